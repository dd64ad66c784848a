package speech

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"

	"github.com/cablewatch/cablewatch/internal/timeline"
)

// Audio format of the extracted wav stream.
const (
	wavSampleRate  = 16000
	wavSampleWidth = 2
	wavChannels    = 1
	wavHeaderSize  = 44
)

// silenceFilter is passed to the audio pipeline; cut candidates come from its
// stderr report lines.
const silenceFilter = "silencedetect=noise=-30dB:d=0.5"

var (
	silenceStartRe = regexp.MustCompile(`silence_start: (\S+)$`)
	silenceEndRe   = regexp.MustCompile(`silence_end: (\S+) \| silence_duration: (\S+)$`)
)

// bounds is the audible interval of a slice in seconds from its start, i.e.
// the untrimmed stream minus the window trims.
type bounds struct {
	lo, hi float64
}

func (b bounds) contains(x float64) bool {
	return x >= b.lo && x <= b.hi
}

// sliceBounds derives the relevant interval of sl: from its inpoint to its
// total duration minus the tail cut off by the outpoint.
func sliceBounds(sl timeline.Slice) bounds {
	b := bounds{0, math.Inf(1)}
	if in := sl.FirstInpoint(); in != nil {
		b.lo = *in
	}
	if out := sl.LastOutpoint(); out != nil {
		last := sl.Segments[len(sl.Segments)-1]
		b.hi = sl.Duration() - (last.Duration - *out)
	}
	return b
}

func secondsToBytes(s float64) int {
	return int(s*wavSampleRate) * wavSampleWidth
}

func bytesToSeconds(n int) float64 {
	return float64(n) / (wavSampleRate * wavSampleWidth)
}

// zeroOutside silences the samples outside b so trimmed-away audio cannot
// leak into the recognizer.
func zeroOutside(frames []byte, b bounds) {
	lo := secondsToBytes(b.lo)
	if lo > len(frames) {
		lo = len(frames)
	}
	for i := 0; i < lo; i++ {
		frames[i] = 0
	}
	if math.IsInf(b.hi, 1) {
		return
	}
	hi := secondsToBytes(b.hi)
	if hi < 0 {
		hi = 0
	}
	for i := hi; i < len(frames); i++ {
		frames[i] = 0
	}
}

// silenceDetector accumulates cut candidates from silencedetect report lines.
// A candidate sits at the midpoint of a detected silence and must fall inside
// the relevant bounds.
type silenceDetector struct {
	bounds bounds
	log    *slog.Logger

	start *float64
	cuts  []float64
	count int
}

func newSilenceDetector(b bounds, log *slog.Logger) *silenceDetector {
	return &silenceDetector{bounds: b, log: log}
}

// ProcessLine consumes one stderr line.
func (d *silenceDetector) ProcessLine(line string) {
	if m := silenceStartRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			d.start = &v
		}
		return
	}
	m := silenceEndRe.FindStringSubmatch(line)
	if m == nil || d.start == nil {
		return
	}
	duration, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return
	}

	pos := *d.start + duration/2
	if d.bounds.contains(pos) {
		d.log.Info("possible cut position", "index", d.count, "seconds", strconv.FormatFloat(pos, 'f', 2, 64))
		d.cuts = append(d.cuts, pos)
	} else {
		d.log.Info("cut position out of bounds", "index", d.count, "seconds", strconv.FormatFloat(pos, 'f', 2, 64))
	}
	d.start = nil
	d.count++
}

// Cuts returns the accumulated candidates in stream order.
func (d *silenceDetector) Cuts() []float64 {
	return d.cuts
}

// selectCut picks where the wav ends. Only the final slice of a timeline is
// truncated, at the last silence midpoint; everything else keeps its full
// length. It returns the end position in seconds and whether it truncates.
func selectCut(cuts []float64, last bool, totalSeconds float64) (float64, bool) {
	if !last || len(cuts) == 0 {
		return totalSeconds, false
	}
	return cuts[len(cuts)-1], true
}
