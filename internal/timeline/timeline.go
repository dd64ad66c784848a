// Package timeline names and materializes time windows over the segment
// archive. A timeline is a persisted [begin, begin+duration) window that
// resolves to an ordered list of trimmed segments and to slices: maximal
// contiguous runs of segments delimited by capture holes.
package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/cablewatch/cablewatch/internal/segment"
)

var (
	// ErrNotFound is returned when a named timeline has no persisted window,
	// or a timestamp lookup falls outside every retained segment.
	ErrNotFound = errors.New("timeline: not found")
	// ErrInvalidName is returned for names outside [A-Za-z0-9_-]+.
	ErrInvalidName = errors.New("timeline: invalid name")
	// ErrReservedName is returned when a mutating operation targets the
	// reserved glob timeline.
	ErrReservedName = errors.New("timeline: reserved name")
)

// GlobName is the reserved pseudo-timeline denoting the whole archive.
// It is never persisted and cannot be mutated or deleted.
const GlobName = "glob"

// beginLayout is the persisted begin timestamp layout, host local zone.
const beginLayout = "2006-01-02T15:04:05"

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Timeline is a named window over the segment archive.
type Timeline struct {
	Name     string
	Begin    time.Time
	Duration time.Duration

	// Segments is the ordered list of archive segments intersecting the
	// window, with trim points applied to the first and last.
	Segments []segment.Segment

	archive segment.Archive
}

// OpenOptions controls how a window is established when opening a timeline.
type OpenOptions struct {
	// Begin overrides the window begin when no persisted window is loaded.
	Begin *time.Time
	// Duration overrides the window duration when no persisted window is loaded.
	Duration *time.Duration
	// NoLoad skips the persisted JSON and always derives the window from
	// the options and archive bounds.
	NoLoad bool
}

// persisted is the on-disk JSON shape of a timeline window.
type persisted struct {
	Begin    string  `json:"begin"`
	Duration float64 `json:"duration"`
}

// Open opens the named timeline over the archive. Unless opts.NoLoad is set,
// a persisted window is loaded when one exists. Otherwise begin defaults to
// the first archived segment's begin (today at midnight on an empty archive)
// and duration to the archive span (zero on an empty archive).
func Open(archive segment.Archive, name string, opts *OpenOptions) (*Timeline, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if opts == nil {
		opts = &OpenOptions{}
	}

	t := &Timeline{Name: name, archive: archive}

	loaded := false
	if !opts.NoLoad && name != GlobName {
		ok, err := t.load()
		if err != nil {
			return nil, err
		}
		loaded = ok
	}

	if !loaded {
		segs, err := archive.Segments()
		if err != nil {
			return nil, err
		}
		t.Begin, t.Duration = defaultWindow(segs)
		if opts.Begin != nil {
			t.Begin = *opts.Begin
		}
		if opts.Duration != nil {
			t.Duration = *opts.Duration
		}
	}

	if err := t.materialize(); err != nil {
		return nil, err
	}
	return t, nil
}

// defaultWindow derives a window spanning the whole archive.
func defaultWindow(segs []segment.Segment) (time.Time, time.Duration) {
	if len(segs) == 0 {
		now := time.Now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
		return midnight, 0
	}
	first := segs[0].Begin
	last := segs[len(segs)-1].End()
	return first, last.Sub(first)
}

// End returns the exclusive end of the window.
func (t *Timeline) End() time.Time {
	return t.Begin.Add(t.Duration)
}

// jsonPath returns the persisted window path for the timeline's name.
func (t *Timeline) jsonPath() string {
	return filepath.Join(t.archive.TimelinesDir(), t.Name+".json")
}

// JSONPath returns the path of the persisted window file.
func (t *Timeline) JSONPath() string {
	return t.jsonPath()
}

// load reads the persisted window. It reports whether a file was found.
func (t *Timeline) load() (bool, error) {
	data, err := os.ReadFile(t.jsonPath())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("loading timeline %q: %w", t.Name, err)
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return false, fmt.Errorf("loading timeline %q: %w", t.Name, err)
	}
	begin, err := time.ParseInLocation(beginLayout, p.Begin, time.Local)
	if err != nil {
		return false, fmt.Errorf("loading timeline %q: %w", t.Name, err)
	}

	t.Begin = begin
	t.Duration = segment.DurationOf(p.Duration)
	return true, nil
}

// Save persists the window as JSON. The glob timeline is rejected.
func (t *Timeline) Save() error {
	if t.Name == GlobName {
		return fmt.Errorf("%w: %s cannot be saved", ErrReservedName, GlobName)
	}
	if err := os.MkdirAll(t.archive.TimelinesDir(), 0o755); err != nil {
		return fmt.Errorf("saving timeline %q: %w", t.Name, err)
	}

	p := persisted{
		Begin:    t.Begin.Format(beginLayout),
		Duration: t.Duration.Seconds(),
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("saving timeline %q: %w", t.Name, err)
	}
	if err := os.WriteFile(t.jsonPath(), data, 0o644); err != nil {
		return fmt.Errorf("saving timeline %q: %w", t.Name, err)
	}
	return nil
}

// Remove deletes the persisted window. Segments are never touched.
func (t *Timeline) Remove() error {
	if t.Name == GlobName {
		return fmt.Errorf("%w: %s cannot be removed", ErrReservedName, GlobName)
	}
	if err := os.Remove(t.jsonPath()); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %q", ErrNotFound, t.Name)
		}
		return fmt.Errorf("removing timeline %q: %w", t.Name, err)
	}
	return nil
}

// Rename rewrites the window under a new name and removes the old file.
func (t *Timeline) Rename(newName string) error {
	if t.Name == GlobName {
		return fmt.Errorf("%w: %s cannot be renamed", ErrReservedName, GlobName)
	}
	if err := checkTargetName(newName); err != nil {
		return err
	}

	oldName, oldPath := t.Name, t.jsonPath()
	t.Name = newName
	if err := t.Save(); err != nil {
		t.Name = oldName
		return err
	}
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("renaming timeline %q: %w", oldName, err)
	}
	return nil
}

// Copy writes the window under dst, leaving the receiver untouched.
func (t *Timeline) Copy(dst string) error {
	if err := checkTargetName(dst); err != nil {
		return err
	}
	cp := *t
	cp.Name = dst
	return cp.Save()
}

func checkTargetName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if name == GlobName {
		return fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	return nil
}

// Advance slides the window forward by duration minus truncate, preserving
// the duration, and re-materializes from the current archive.
func (t *Timeline) Advance(truncate time.Duration) error {
	t.Begin = t.Begin.Add(t.Duration - truncate)
	return t.materialize()
}

// Reset recomputes the window from the current archive bounds.
func (t *Timeline) Reset() error {
	segs, err := t.archive.Segments()
	if err != nil {
		return err
	}
	t.Begin, t.Duration = defaultWindow(segs)
	return t.materialize()
}

// materialize filters archive segments to the window and applies trim points:
// the first retained segment is trimmed at the window begin, the last at the
// window end, interior segments carry no trims.
func (t *Timeline) materialize() error {
	all, err := t.archive.Segments()
	if err != nil {
		return err
	}

	end := t.End()
	var kept []segment.Segment
	for _, s := range all {
		if s.End().After(t.Begin) && s.Begin.Before(end) {
			s.Inpoint = nil
			s.Outpoint = nil
			kept = append(kept, s)
		}
	}

	if len(kept) > 0 {
		first := &kept[0]
		if in := t.Begin.Sub(first.Begin).Seconds(); in > 0 {
			first.Inpoint = &in
		}
		last := &kept[len(kept)-1]
		if over := last.End().Sub(end).Seconds(); over > 0 {
			out := last.Duration - over
			last.Outpoint = &out
		}
	}

	t.Segments = kept
	return nil
}

// LookupSegment returns the segment whose [begin, end] interval contains ts.
func (t *Timeline) LookupSegment(ts time.Time) (segment.Segment, error) {
	for _, s := range t.Segments {
		if s.Contains(ts) {
			return s, nil
		}
	}
	return segment.Segment{}, fmt.Errorf("%w: no segment at %s", ErrNotFound, ts.Format(beginLayout))
}

// Slices groups retained segments into maximal contiguous runs. A new slice
// opens at the start and immediately after every hole-marked segment; the
// final slice is flagged Last.
func (t *Timeline) Slices() []Slice {
	var slices []Slice
	var current []segment.Segment

	for _, s := range t.Segments {
		current = append(current, s)
		if s.Hole {
			slices = append(slices, Slice{Segments: current, archive: t.archive, timeline: t.Name})
			current = nil
		}
	}
	if len(current) > 0 {
		slices = append(slices, Slice{Segments: current, archive: t.archive, timeline: t.Name})
	}
	if len(slices) > 0 {
		slices[len(slices)-1].Last = true
	}
	return slices
}

// List enumerates the persisted timeline names, glob excluded.
func List(archive segment.Archive) ([]string, error) {
	entries, err := os.ReadDir(archive.TimelinesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing timelines: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		names = append(names, name[:len(name)-len(".json")])
	}
	return names, nil
}

// Exists reports whether a persisted window exists for name.
func Exists(archive segment.Archive, name string) bool {
	_, err := os.Stat(filepath.Join(archive.TimelinesDir(), name+".json"))
	return err == nil
}
