package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlaylist(t *testing.T) {
	body := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-VERSION:3",
		"#EXT-X-TARGETDURATION:30",
		"#EXT-X-MEDIA-SEQUENCE:7",
		"#EXTINF:30.000000,",
		"#EXT-X-PROGRAM-DATE-TIME:2025-12-26T14:11:48.000+0100",
		"segment_1700000000.ts",
	}, "\n")

	ev, err := ParsePlaylist(strings.NewReader(body))
	require.NoError(t, err)
	assert.InDelta(t, 30.0, ev.Duration, 1e-9)
	assert.Equal(t, "segment_1700000000.ts", ev.SegmentURI)

	want := time.Date(2025, 12, 26, 14, 11, 48, 0, time.FixedZone("", 3600))
	assert.True(t, ev.Begin.Equal(want))
}

func TestParsePlaylistColonOffset(t *testing.T) {
	ts, err := ParseProgramDateTime("2025-12-26T14:11:48.000+01:00")
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2025, 12, 26, 14, 11, 48, 0, time.FixedZone("", 3600))))
}

func TestParsePlaylistIncomplete(t *testing.T) {
	// Two of three fields.
	body := strings.Join([]string{
		"#EXTM3U",
		"#EXTINF:30.000000,",
		"segment_1700000000.ts",
	}, "\n")

	_, err := ParsePlaylist(strings.NewReader(body))
	assert.ErrorIs(t, err, ErrMalformedPlaylist)
}

func TestParsePlaylistBadTimestamp(t *testing.T) {
	body := strings.Join([]string{
		"#EXTINF:30.000000,",
		"#EXT-X-PROGRAM-DATE-TIME:not-a-time",
		"segment_1700000000.ts",
	}, "\n")

	_, err := ParsePlaylist(strings.NewReader(body))
	assert.ErrorIs(t, err, ErrMalformedPlaylist)
}

func TestDriftRingBoundedMean(t *testing.T) {
	var r DriftRing
	assert.Equal(t, time.Duration(0), r.Mean())

	for _, d := range []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second} {
		r.Add(d)
	}
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, 2500*time.Millisecond, r.Mean())

	// The fifth sample evicts the oldest.
	r.Add(8 * time.Second)
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, time.Duration(2+3+4+8)*time.Second/4, r.Mean())
}

func TestLineScannerSplitsOnCROrLF(t *testing.T) {
	in := "first\nsecond\r\nframe=  42\rlast"
	sc := NewLineScanner(strings.NewReader(in))

	var got []string
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"first", "second", "frame=  42", "last"}, got)
}
