// Package segment models the on-disk capture archive: one MPEG-TS file per
// fixed-duration capture window, named by its wall-clock begin time.
package segment

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// ErrMalformedName is returned when a filename does not match the segment
// naming grammar.
var ErrMalformedName = errors.New("segment: malformed name")

// NameTimeLayout is the timestamp layout embedded in segment filenames.
// It carries no timezone suffix and is interpreted in the host local zone.
const NameTimeLayout = "2006-01-02T15h04m05"

// HoleSuffix marks a capture gap following a segment. The marker is an empty
// sibling file created once by the recorder and never removed.
const HoleSuffix = ".hole"

// nameRe is the authoritative grammar for archive filenames.
var nameRe = regexp.MustCompile(`^segment_(\d{4}-\d{2}-\d{2}T\d{2}h\d{2}m\d{2})_(\d+(?:\.\d+)?)s\.ts$`)

// Segment is one captured file of nominal fixed duration.
type Segment struct {
	// Filename is the absolute path of the .ts file.
	Filename string
	// Begin is the wall-clock begin time, second precision, local zone.
	Begin time.Time
	// Duration is the nominal duration in fractional seconds.
	Duration float64
	// Inpoint, when set, trims the first Inpoint seconds on playback.
	Inpoint *float64
	// Outpoint, when set, stops playback Outpoint seconds from the start.
	Outpoint *float64
	// Hole reports that a capture gap follows this segment.
	Hole bool
}

// Parse builds a Segment from an archive file path. The basename must match
// the naming grammar exactly; a trailing .hole marker suffix is rejected
// (markers are siblings, not segments).
func Parse(path string) (Segment, error) {
	base := filepath.Base(path)
	m := nameRe.FindStringSubmatch(base)
	if m == nil {
		return Segment{}, fmt.Errorf("%w: %q", ErrMalformedName, base)
	}

	begin, err := time.ParseInLocation(NameTimeLayout, m[1], time.Local)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: %q: %v", ErrMalformedName, base, err)
	}
	duration, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: %q: %v", ErrMalformedName, base, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return Segment{Filename: abs, Begin: begin, Duration: duration}, nil
}

// FormatName composes the archive basename for a segment beginning at the
// given time with the given duration. Durations carry exactly two decimals.
func FormatName(begin time.Time, duration float64) string {
	return fmt.Sprintf("segment_%s_%.2fs.ts", begin.Format(NameTimeLayout), duration)
}

// Basename returns the file basename.
func (s Segment) Basename() string {
	return filepath.Base(s.Filename)
}

// End returns the nominal end time.
func (s Segment) End() time.Time {
	return s.Begin.Add(DurationOf(s.Duration))
}

// EffectiveDuration returns the duration after applying trim points.
func (s Segment) EffectiveDuration() float64 {
	out := s.Duration
	if s.Outpoint != nil {
		out = *s.Outpoint
	}
	in := 0.0
	if s.Inpoint != nil {
		in = *s.Inpoint
	}
	return out - in
}

// Contains reports whether t falls within [Begin, End].
func (s Segment) Contains(t time.Time) bool {
	return !t.Before(s.Begin) && !t.After(s.End())
}

// HoleMarkerPath returns the path of the sibling hole marker file.
func (s Segment) HoleMarkerPath() string {
	return s.Filename + HoleSuffix
}

// DurationOf converts fractional seconds to a time.Duration.
func DurationOf(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// Seconds converts a time.Duration to fractional seconds.
func Seconds(d time.Duration) float64 {
	return d.Seconds()
}
