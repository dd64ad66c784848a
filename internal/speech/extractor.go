// Package speech turns timeline slices into silence-cut wav files for the
// external recognition collaborator and folds its diarized results back into
// the transcript store.
package speech

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cablewatch/cablewatch/internal/ingest"
	"github.com/cablewatch/cablewatch/internal/observability"
	"github.com/cablewatch/cablewatch/internal/timeline"
)

// Extractor converts the slices of its timeline to wav blobs. The window is
// advanced past the extracted audio so the next run picks up where speech
// left off.
type Extractor struct {
	timeline *timeline.Timeline
	store    BlobStore
	log      *slog.Logger

	// Stay leaves the timeline window untouched after extraction.
	Stay bool
}

// NewExtractor returns an Extractor over tl storing wavs in store.
func NewExtractor(tl *timeline.Timeline, store BlobStore, log *slog.Logger) *Extractor {
	return &Extractor{
		timeline: tl,
		store:    store,
		log:      observability.WithComponent(log, "speech"),
	}
}

// Upload extracts one wav per slice and stores it under the uploaded prefix.
// Unless Stay is set, the timeline is advanced by its duration minus the tail
// truncated from the final slice, then saved.
func (e *Extractor) Upload() error {
	slices := e.timeline.Slices()
	if len(slices) == 0 {
		e.log.Warn("currently no slices, nothing to do")
		return nil
	}

	var tail time.Duration
	for _, sl := range slices {
		name, frames, truncated, err := e.extractWav(sl)
		if err != nil {
			return err
		}
		if err := e.store.Put(UploadedPrefix+name, EncodeWAV(frames)); err != nil {
			return err
		}
		e.log.Info("wav stored", "name", name, "size_bytes", len(frames)+wavHeaderSize)
		if sl.Last {
			tail = truncated
		}
	}

	if !e.Stay {
		if err := e.timeline.Advance(tail); err != nil {
			return fmt.Errorf("advancing timeline: %w", err)
		}
		if err := e.timeline.Save(); err != nil {
			return err
		}
		e.log.Info("timeline advanced",
			"begin", e.timeline.Begin.Format(time.RFC3339),
			"truncate_seconds", tail.Seconds())
	}
	return nil
}

// extractWav pipes the slice through the audio pipeline, silences the
// trimmed-away bounds and truncates the final slice at the last silence
// midpoint. It returns the blob basename, the raw frames and the truncated
// tail.
func (e *Extractor) extractWav(sl timeline.Slice) (string, []byte, time.Duration, error) {
	concat, cleanup, err := sl.ConcatFile(false)
	if err != nil {
		return "", nil, 0, err
	}
	defer cleanup()

	b := sliceBounds(sl)
	e.log.Info("extracting slice audio",
		"begin", sl.Begin().Format(time.RFC3339),
		"bounds", fmt.Sprintf("[%.2f, %.2f]", b.lo, b.hi))

	cmd := exec.Command("ffmpeg",
		"-f", "concat", "-safe", "0", "-i", concat,
		"-af", silenceFilter,
		"-vn", "-ac", fmt.Sprintf("%d", wavChannels), "-ar", fmt.Sprintf("%d", wavSampleRate),
		"-f", "wav", "pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", nil, 0, fmt.Errorf("extracting audio: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", nil, 0, fmt.Errorf("extracting audio: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", nil, 0, fmt.Errorf("extracting audio: %w", err)
	}

	det := newSilenceDetector(b, e.log)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sc := ingest.NewLineScanner(stderr)
		for sc.Scan() {
			det.ProcessLine(strings.TrimSpace(sc.Text()))
		}
	}()

	frames, err := readWavStream(stdout)
	wg.Wait()
	waitErr := cmd.Wait()
	if err != nil {
		return "", nil, 0, err
	}
	if waitErr != nil {
		return "", nil, 0, fmt.Errorf("extracting audio: %w", waitErr)
	}

	zeroOutside(frames, b)
	total := bytesToSeconds(len(frames))
	pos, truncated := selectCut(det.Cuts(), sl.Last, total)
	if truncated {
		frames = frames[:secondsToBytes(pos)]
	}
	tail := time.Duration((total - pos) * float64(time.Second))

	name := WavName(sl.Begin(), pos)
	e.log.Info("wav made",
		"name", name,
		"end_seconds", fmt.Sprintf("%.2f", pos),
		"duration_seconds", fmt.Sprintf("%.2f", total),
		"truncate_seconds", fmt.Sprintf("%.2f", tail.Seconds()))
	return name, frames, tail, nil
}

// readWavStream strips the header and returns the raw frames.
func readWavStream(r io.Reader) ([]byte, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("reading wav header: %w", err)
	}
	frames, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading wav stream: %w", err)
	}
	return frames, nil
}
