package segment

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormatRoundTrip(t *testing.T) {
	names := []string{
		"segment_2025-12-26T14h11m48_30.00s.ts",
		"segment_2025-12-26T14h12m18_29.97s.ts",
		"segment_2026-01-01T00h00m00_30.00s.ts",
	}
	for _, name := range names {
		seg, err := Parse(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, FormatName(seg.Begin, seg.Duration), name)
	}
}

func TestParseFields(t *testing.T) {
	seg, err := Parse("/data/ingest/segment_2025-12-26T14h11m48_30.00s.ts")
	require.NoError(t, err)

	want := time.Date(2025, 12, 26, 14, 11, 48, 0, time.Local)
	assert.True(t, seg.Begin.Equal(want))
	assert.InDelta(t, 30.0, seg.Duration, 1e-9)
	assert.True(t, seg.End().Equal(want.Add(30*time.Second)))
	assert.False(t, seg.Hole)
}

func TestParseMalformed(t *testing.T) {
	bad := []string{
		"segment_2025-12-26T14h11m48.ts",
		"segment_2025-12-26_14h11-48s.ts",
		"segment_2025-12-26T14h11m48_30.00s.mp4",
		"segment_2025-12-26T14h11m48_30.00s.ts.hole",
		"output.m3u8",
		"",
	}
	for _, name := range bad {
		_, err := Parse(name)
		assert.ErrorIs(t, err, ErrMalformedName, name)
	}
}

func TestEffectiveDuration(t *testing.T) {
	seg := Segment{Duration: 30}
	assert.InDelta(t, 30.0, seg.EffectiveDuration(), 1e-9)

	in, out := 5.0, 25.0
	seg.Inpoint = &in
	assert.InDelta(t, 25.0, seg.EffectiveDuration(), 1e-9)
	seg.Outpoint = &out
	assert.InDelta(t, 20.0, seg.EffectiveDuration(), 1e-9)
}

func TestContains(t *testing.T) {
	seg, err := Parse("segment_2025-12-26T14h11m48_30.00s.ts")
	require.NoError(t, err)

	assert.True(t, seg.Contains(seg.Begin))
	assert.True(t, seg.Contains(seg.Begin.Add(15*time.Second)))
	assert.True(t, seg.Contains(seg.End()))
	assert.False(t, seg.Contains(seg.Begin.Add(-time.Second)))
	assert.False(t, seg.Contains(seg.End().Add(time.Second)))
}

func writeArchiveFile(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
}

func TestArchiveEnumeration(t *testing.T) {
	dir := t.TempDir()
	writeArchiveFile(t, dir, "segment_2025-12-26T14h12m18_30.00s.ts")
	writeArchiveFile(t, dir, "segment_2025-12-26T14h11m48_30.00s.ts")
	writeArchiveFile(t, dir, "segment_2025-12-26T14h11m48_30.00s.ts.hole")
	writeArchiveFile(t, dir, "not-a-segment.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "tmp"), 0o755))

	segs, err := NewArchive(dir).Segments()
	require.NoError(t, err)
	require.Len(t, segs, 2)

	assert.Equal(t, "segment_2025-12-26T14h11m48_30.00s.ts", segs[0].Basename())
	assert.True(t, segs[0].Hole)
	assert.Equal(t, "segment_2025-12-26T14h12m18_30.00s.ts", segs[1].Basename())
	assert.False(t, segs[1].Hole)
	assert.True(t, segs[0].Begin.Before(segs[1].Begin))
}

func TestArchiveMissingDir(t *testing.T) {
	segs, err := NewArchive(filepath.Join(t.TempDir(), "nope")).Segments()
	require.NoError(t, err)
	assert.Empty(t, segs)
}
