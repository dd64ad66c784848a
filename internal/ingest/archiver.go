package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/cablewatch/cablewatch/internal/segment"
)

// Archiver turns playlist events into archive files. It applies the rolling
// drift correction to the embedded timestamp, renames the finished temp
// segment into the archive and tracks the hole marker to drop when capture
// breaks off.
type Archiver struct {
	archive segment.Archive
	log     *slog.Logger
	nominal float64
	now     func() time.Time

	drift       DriftRing
	currentTemp string
	holePending string
}

// NewArchiver returns an Archiver over archive. nominalSeconds is the
// configured segment period, used only to flag off-nominal durations.
func NewArchiver(archive segment.Archive, nominalSeconds float64, log *slog.Logger) *Archiver {
	return &Archiver{
		archive: archive,
		log:     log,
		nominal: nominalSeconds,
		now:     time.Now,
	}
}

// Reset clears per-run state at the start of a supervised record attempt.
// Drift samples survive restarts; the clock does not change with the child.
func (a *Archiver) Reset() {
	a.currentTemp = ""
	a.holePending = ""
}

// SetCurrentTemp remembers the temp segment path the segmenter opened last.
func (a *Archiver) SetCurrentTemp(path string) {
	a.currentTemp = path
}

// CurrentTemp returns the open temp segment path, empty when none is open.
func (a *Archiver) CurrentTemp() string {
	return a.currentTemp
}

// ObserveDrift records one wall-clock-minus-stream-clock sample and logs the
// rolling average.
func (a *Archiver) ObserveDrift(streamTime time.Time) {
	drift := a.now().Sub(streamTime)
	a.drift.Add(drift)
	a.log.Info("drift", "avg_seconds", fmt.Sprintf("%.1f", a.drift.Mean().Seconds()))
}

// DriftMean returns the current rolling drift average.
func (a *Archiver) DriftMean() time.Duration {
	return a.drift.Mean()
}

// Commit archives the finished temp segment under its drift-corrected name
// and arms the hole marker for it. It returns the new archive path.
func (a *Archiver) Commit(ev PlaylistEvent) (string, error) {
	if a.currentTemp == "" {
		return "", fmt.Errorf("no open temp segment for %q", ev.SegmentURI)
	}

	corrected := ev.Begin.Add(-a.drift.Mean()).In(time.Local)
	name := segment.FormatName(corrected, ev.Duration)
	dst := filepath.Join(a.archive.Dir, name)

	a.log.Info("archiving segment", "from", filepath.Base(a.currentTemp), "to", name)
	if err := os.Rename(a.currentTemp, dst); err != nil {
		return "", fmt.Errorf("archiving %s: %w", name, err)
	}
	if ev.Duration != a.nominal {
		a.log.Warn("segment duration off nominal", "segment", name, "duration_seconds", ev.Duration)
	}

	a.currentTemp = ""
	a.holePending = dst + segment.HoleSuffix
	return dst, nil
}

// MarkHole drops the pending hole marker, if any. Called when the supervised
// child exits: whatever follows the last archived segment is a gap.
func (a *Archiver) MarkHole() error {
	if a.holePending == "" {
		return nil
	}
	if err := renameio.WriteFile(a.holePending, nil, 0o644); err != nil {
		return fmt.Errorf("writing hole marker: %w", err)
	}
	a.log.Warn("capture gap", "marker", filepath.Base(a.holePending))
	a.holePending = ""
	return nil
}
