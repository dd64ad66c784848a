package timeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestWithTrims(t *testing.T) {
	archive := testArchive(t, base, 3)

	begin := base.Add(5 * time.Second)
	dur := 80 * time.Second
	tl, err := Open(archive, "clip", &OpenOptions{Begin: &begin, Duration: &dur})
	require.NoError(t, err)

	slices := tl.Slices()
	require.Len(t, slices, 1)
	sl := slices[0]
	assert.InDelta(t, 80.0, sl.EffectiveDuration(), 1e-6)

	lines := strings.Split(strings.TrimRight(sl.Manifest(true), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "file '"))
	assert.True(t, strings.HasSuffix(lines[0], ".ts'"))
	assert.Equal(t, "inpoint 5.0", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "file '"))
	assert.True(t, strings.HasPrefix(lines[3], "file '"))
	assert.Equal(t, "outpoint 25.0", lines[4])
}

func TestManifestWithoutTrims(t *testing.T) {
	archive := testArchive(t, base, 2)

	begin := base.Add(5 * time.Second)
	dur := 50 * time.Second
	tl, err := Open(archive, "clip", &OpenOptions{Begin: &begin, Duration: &dur})
	require.NoError(t, err)

	body := tl.Slices()[0].Manifest(false)
	assert.Contains(t, body, "# inpoint 5.0")
	assert.Contains(t, body, "# outpoint 25.0")
	assert.NotContains(t, body, "\ninpoint")
}

func TestManifestUntrimmedSlice(t *testing.T) {
	tl, err := Open(testArchive(t, base, 2), GlobName, nil)
	require.NoError(t, err)

	body := tl.Slices()[0].Manifest(true)
	assert.NotContains(t, body, "inpoint")
	assert.NotContains(t, body, "outpoint")
	assert.Equal(t, 2, strings.Count(body, "file '"))
}

func TestManifestInteriorHoleTrims(t *testing.T) {
	// Trim points stay on the window edges; slices created by an interior
	// hole carry none of their own.
	archive := testArchive(t, base, 4, 1)

	begin := base.Add(5 * time.Second)
	dur := 140 * time.Second
	tl, err := Open(archive, "holed", &OpenOptions{Begin: &begin, Duration: &dur})
	require.NoError(t, err)

	slices := tl.Slices()
	require.Len(t, slices, 2)
	require.NotNil(t, slices[0].FirstInpoint())
	assert.Nil(t, slices[0].LastOutpoint())
	assert.Nil(t, slices[1].FirstInpoint())
	require.NotNil(t, slices[1].LastOutpoint())
}

func TestSliceBeginAndDuration(t *testing.T) {
	tl, err := Open(testArchive(t, base, 3), GlobName, nil)
	require.NoError(t, err)

	sl := tl.Slices()[0]
	assert.True(t, sl.Begin().Equal(base))
	assert.InDelta(t, 90.0, sl.Duration(), 1e-9)
}

func TestConcatFile(t *testing.T) {
	tl, err := Open(testArchive(t, base, 2), "concat-me", nil)
	require.NoError(t, err)

	path, cleanup, err := tl.Slices()[0].ConcatFile(true)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(path), "concat-me_"))
	assert.True(t, strings.HasSuffix(path, ".concat"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "file '"))

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "5.0", formatSeconds(5))
	assert.Equal(t, "25.0", formatSeconds(25))
	assert.Equal(t, "12.345", formatSeconds(12.345))
	assert.Equal(t, "0.0", formatSeconds(0))
}
