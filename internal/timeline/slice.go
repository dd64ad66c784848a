package timeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cablewatch/cablewatch/internal/segment"
)

// Slice is a maximal contiguous run of segments within one timeline, with no
// intervening capture hole. Only the first segment may carry an inpoint and
// only the last an outpoint.
type Slice struct {
	Segments []segment.Segment
	// Last reports that this is the final slice of its timeline.
	Last bool

	archive  segment.Archive
	timeline string
}

// Begin returns the wall-clock begin of the slice's first segment.
func (s Slice) Begin() time.Time {
	return s.Segments[0].Begin
}

// Duration returns the untrimmed total duration in fractional seconds.
func (s Slice) Duration() float64 {
	var sum float64
	for _, seg := range s.Segments {
		sum += seg.Duration
	}
	return sum
}

// EffectiveDuration returns the total duration after trimming.
func (s Slice) EffectiveDuration() float64 {
	var sum float64
	for _, seg := range s.Segments {
		sum += seg.EffectiveDuration()
	}
	return sum
}

// FirstInpoint returns the first segment's trim-in point, if any.
func (s Slice) FirstInpoint() *float64 {
	return s.Segments[0].Inpoint
}

// LastOutpoint returns the last segment's trim-out point, if any.
func (s Slice) LastOutpoint() *float64 {
	return s.Segments[len(s.Segments)-1].Outpoint
}

// WriteManifest emits an ffmpeg concat manifest for the slice. Trim points of
// the first and last segment are emitted as inpoint/outpoint directives when
// withTrims is set, and as comments otherwise.
func (s Slice) WriteManifest(w io.Writer, withTrims bool) error {
	prefix := "# "
	if withTrims {
		prefix = ""
	}

	for i, seg := range s.Segments {
		if _, err := fmt.Fprintf(w, "file '%s'\n", seg.Filename); err != nil {
			return err
		}
		if i == 0 && seg.Inpoint != nil {
			if _, err := fmt.Fprintf(w, "%sinpoint %s\n", prefix, formatSeconds(*seg.Inpoint)); err != nil {
				return err
			}
		}
		if i == len(s.Segments)-1 && seg.Outpoint != nil {
			if _, err := fmt.Fprintf(w, "%soutpoint %s\n", prefix, formatSeconds(*seg.Outpoint)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Manifest returns the concat manifest body as a string.
func (s Slice) Manifest(withTrims bool) string {
	var b strings.Builder
	_ = s.WriteManifest(&b, withTrims)
	return b.String()
}

// ConcatFile writes the manifest to a transient file under the archive tmp
// directory and returns its path with a cleanup function. The tmp cleaner
// reaps leftovers should cleanup never run.
func (s Slice) ConcatFile(withTrims bool) (string, func(), error) {
	tmpDir := s.archive.TmpDir()
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating tmp dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.concat", s.timeline, uuid.NewString())
	path := filepath.Join(tmpDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", nil, fmt.Errorf("creating concat manifest: %w", err)
	}
	if err := s.WriteManifest(f, withTrims); err != nil {
		f.Close()
		os.Remove(path)
		return "", nil, fmt.Errorf("writing concat manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", nil, fmt.Errorf("closing concat manifest: %w", err)
	}

	cleanup := func() { os.Remove(path) }
	return path, cleanup, nil
}

// formatSeconds renders a trim point as a bare decimal with a dot separator.
// Integral values keep one decimal place.
func formatSeconds(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
