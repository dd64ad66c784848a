package speech

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cablewatch/cablewatch/internal/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSilenceDetector(t *testing.T) {
	d := newSilenceDetector(bounds{5, 580}, testLogger())

	lines := []string{
		"[silencedetect @ 0x5640] silence_start: 12.5",
		"[silencedetect @ 0x5640] silence_end: 13.5 | silence_duration: 1.0",
		"[silencedetect @ 0x5640] silence_start: 2.0",
		"[silencedetect @ 0x5640] silence_end: 3.0 | silence_duration: 1.0",
		"size=   10240kB time=00:09:50.00 bitrate= 142.1kbits/s",
		"[silencedetect @ 0x5640] silence_start: 570.0",
		"[silencedetect @ 0x5640] silence_end: 572.0 | silence_duration: 2.0",
	}
	for _, ln := range lines {
		d.ProcessLine(ln)
	}

	// The second silence midpoint (2.5s) falls before the inpoint bound.
	require.Len(t, d.Cuts(), 2)
	assert.InDelta(t, 13.0, d.Cuts()[0], 1e-9)
	assert.InDelta(t, 571.0, d.Cuts()[1], 1e-9)
}

func TestSilenceEndWithoutStartIgnored(t *testing.T) {
	d := newSilenceDetector(bounds{0, math.Inf(1)}, testLogger())
	d.ProcessLine("[silencedetect @ 0x5640] silence_end: 13.5 | silence_duration: 1.0")
	assert.Empty(t, d.Cuts())
}

func TestSelectCut(t *testing.T) {
	pos, truncated := selectCut([]float64{13, 571}, true, 600)
	assert.True(t, truncated)
	assert.InDelta(t, 571.0, pos, 1e-9)

	// Interior slices keep their full length.
	pos, truncated = selectCut([]float64{13, 571}, false, 600)
	assert.False(t, truncated)
	assert.InDelta(t, 600.0, pos, 1e-9)

	// No silence found: nothing to cut at.
	pos, truncated = selectCut(nil, true, 600)
	assert.False(t, truncated)
	assert.InDelta(t, 600.0, pos, 1e-9)
}

func TestZeroOutside(t *testing.T) {
	frames := make([]byte, secondsToBytes(3))
	for i := range frames {
		frames[i] = 0xff
	}
	zeroOutside(frames, bounds{1, 2})

	assert.Equal(t, byte(0), frames[0])
	assert.Equal(t, byte(0), frames[secondsToBytes(1)-1])
	assert.Equal(t, byte(0xff), frames[secondsToBytes(1)])
	assert.Equal(t, byte(0xff), frames[secondsToBytes(2)-1])
	assert.Equal(t, byte(0), frames[secondsToBytes(2)])
	assert.Equal(t, byte(0), frames[len(frames)-1])
}

func TestWavNameRoundTrip(t *testing.T) {
	begin := time.Date(2025, 12, 26, 14, 11, 48, 0, time.Local)
	name := WavName(begin, 571.0)
	assert.Equal(t, "20251226_14h11m48_571000ms.wav", name)

	got, length, err := ParseWavName(name)
	require.NoError(t, err)
	assert.True(t, got.Equal(begin))
	assert.Equal(t, 571*time.Second, length)

	// The extension is optional; result blob names carry the bare stem.
	_, _, err = ParseWavName("20251226_14h11m48_571000ms")
	assert.NoError(t, err)

	_, _, err = ParseWavName("not-a-wav-name")
	assert.Error(t, err)
}

func TestEncodeWAV(t *testing.T) {
	frames := make([]byte, 3200)
	wav := EncodeWAV(frames)
	require.Len(t, wav, wavHeaderSize+len(frames))

	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]))      // mono
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28])) // sample rate
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]))    // bits per sample
	assert.Equal(t, uint32(len(frames)), binary.LittleEndian.Uint32(wav[40:44]))
}

func TestParseBatchResult(t *testing.T) {
	body := `{
		"results": [{"alternatives": [{"words": [
			{"word": "good", "startOffset": "1.000s", "endOffset": "1.400s", "speakerLabel": "1"},
			{"word": "morning", "startOffset": "1.500s", "endOffset": "2.100s"},
			{"word": "thanks", "endOffset": "4.000s", "speakerLabel": "2"}
		]}]}]
	}`

	words, from, to, err := ParseBatchResult("20251226_14h11m48_571000ms", []byte(body))
	require.NoError(t, err)

	begin := time.Date(2025, 12, 26, 14, 11, 48, 0, time.Local)
	assert.True(t, from.Equal(begin))
	assert.True(t, to.Equal(begin.Add(571*time.Second)))

	require.Len(t, words, 3)
	assert.Equal(t, "good", words[0].Word)
	assert.Equal(t, 1, words[0].Speaker)
	assert.True(t, words[0].TS.Equal(begin.Add(1200*time.Millisecond)))

	// Missing speaker label carries the previous one forward.
	assert.Equal(t, 1, words[1].Speaker)
	assert.Equal(t, 2, words[2].Speaker)
	assert.True(t, words[2].TS.Equal(begin.Add(4*time.Second)))
}

func TestParseBatchResultEmpty(t *testing.T) {
	words, _, _, err := ParseBatchResult("20251226_14h11m48_1000ms", []byte(`{"results": []}`))
	require.NoError(t, err)
	assert.Empty(t, words)
}

func TestDirStore(t *testing.T) {
	store := NewDirStore(t.TempDir())

	require.NoError(t, store.Put(UploadedPrefix+"a.wav", []byte("aaa")))
	require.NoError(t, store.Put(UploadedPrefix+"b.wav", []byte("bbb")))
	require.NoError(t, store.Put(ResultsPrefix+"a_transcript_0.json", []byte("{}")))

	names, err := store.List(UploadedPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{UploadedPrefix + "a.wav", UploadedPrefix + "b.wav"}, names)

	data, err := store.Get(UploadedPrefix + "a.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte("aaa"), data)

	require.NoError(t, store.Delete(UploadedPrefix+"a.wav"))
	require.NoError(t, store.Delete(UploadedPrefix+"a.wav")) // idempotent
	names, err = store.List(UploadedPrefix)
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestFetcherReplacesTranscripts(t *testing.T) {
	db, err := database.Open(":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	transcripts := database.NewTranscriptStore(db)

	store := NewDirStore(t.TempDir())
	body := `{"results": [{"alternatives": [{"words": [
		{"word": "bonjour", "startOffset": "0.500s", "endOffset": "0.900s", "speakerLabel": "1"}
	]}]}]}`
	require.NoError(t, store.Put(ResultsPrefix+"20251226_14h11m48_571000ms_transcript_0.json", []byte(body)))
	require.NoError(t, store.Put(UploadedPrefix+"20251226_14h11m48_571000ms.wav", []byte("wav")))

	f := NewFetcher(store, transcripts, testLogger())
	require.NoError(t, f.Fetch())

	begin := time.Date(2025, 12, 26, 14, 11, 48, 0, time.Local)
	words, err := transcripts.Query(begin, begin.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, words, 1)
	assert.Equal(t, "bonjour", words[0].Word)

	// Processed blobs are cleaned up.
	results, err := store.List(ResultsPrefix)
	require.NoError(t, err)
	assert.Empty(t, results)
	uploaded, err := store.List(UploadedPrefix)
	require.NoError(t, err)
	assert.Empty(t, uploaded)
}
