// Package banner extracts cropped on-screen graphics from archived segments
// for the downstream OCR pipeline, and detects the freeze windows in which a
// banner is stable enough to read.
package banner

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/cablewatch/cablewatch/internal/ingest"
	"github.com/cablewatch/cablewatch/internal/observability"
	"github.com/cablewatch/cablewatch/internal/segment"
)

// Known banner layouts of the monitored channel, as crop=w:h:x:y regions.
var Layouts = map[string]string{
	"yellow":  "crop=246:86:977:ih-0",
	"black":   "crop=908:56:60:ih-145",
	"news":    "crop=909:89:60:ih-0",
	"speaker": "crop=909:39:60:ih-190",
}

// freezeFilter flags intervals where the cropped region stops changing.
const freezeFilter = "freezedetect=n=0.003:d=2"

// FreezeWindow is one interval during which the cropped region was static.
type FreezeWindow struct {
	// Start and End are in seconds from the segment begin.
	Start float64
	End   float64
}

// Duration returns the window length in seconds.
func (w FreezeWindow) Duration() float64 {
	return w.End - w.Start
}

// Extractor runs the frame and freeze passes over single segments.
type Extractor struct {
	// FramesDir receives the extracted banner images.
	FramesDir string
	// FPS is the frame sampling rate, e.g. 0.5 for one frame every 2s.
	FPS float64

	log *slog.Logger
}

// NewExtractor returns an Extractor writing frames to framesDir.
func NewExtractor(framesDir string, fps float64, log *slog.Logger) *Extractor {
	if fps <= 0 {
		fps = 0.5
	}
	return &Extractor{
		FramesDir: framesDir,
		FPS:       fps,
		log:       observability.WithComponent(log, "banner"),
	}
}

// ExtractFrames writes cropped banner frames of seg into FramesDir as
// sequentially numbered PNGs.
func (e *Extractor) ExtractFrames(seg segment.Segment, crop string) error {
	if err := os.MkdirAll(e.FramesDir, 0o755); err != nil {
		return fmt.Errorf("preparing frames dir: %w", err)
	}

	filter := fmt.Sprintf("%s,fps=%g", crop, e.FPS)
	pattern := fmt.Sprintf("%s/banner_%s_%%03d.png", e.FramesDir, strings.TrimSuffix(seg.Basename(), ".ts"))
	cmd := exec.Command("ffmpeg", "-i", seg.Filename, "-vf", filter, pattern)

	return e.runLogged(cmd)
}

// DetectFreezes runs the freeze pass over the cropped region of seg and
// returns the detected windows.
func (e *Extractor) DetectFreezes(seg segment.Segment, crop string) ([]FreezeWindow, error) {
	filter := fmt.Sprintf("%s,%s", crop, freezeFilter)
	cmd := exec.Command("ffmpeg", "-i", seg.Filename, "-vf", filter, "-f", "null", "-")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("detecting freezes: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("detecting freezes: %w", err)
	}

	var windows []FreezeWindow
	parser := newFreezeParser()
	sc := ingest.NewLineScanner(stdout)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		e.log.Info(line)
		if w, ok := parser.ProcessLine(line); ok {
			windows = append(windows, w)
		}
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("detecting freezes: %w", err)
	}
	return windows, nil
}

// runLogged runs cmd forwarding its merged output to the log.
func (e *Extractor) runLogged(cmd *exec.Cmd) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("running %s: %w", cmd.Path, err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("running %s: %w", cmd.Path, err)
	}
	sc := ingest.NewLineScanner(stdout)
	for sc.Scan() {
		e.log.Info(strings.TrimSpace(sc.Text()))
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("running %s: %w", cmd.Path, err)
	}
	return nil
}

var (
	freezeStartRe = regexp.MustCompile(`lavfi\.freezedetect\.freeze_start: (\S+)`)
	freezeEndRe   = regexp.MustCompile(`lavfi\.freezedetect\.freeze_end: (\S+)`)
)

// freezeParser pairs freeze_start/freeze_end report lines into windows.
type freezeParser struct {
	start *float64
}

func newFreezeParser() *freezeParser {
	return &freezeParser{}
}

// ProcessLine consumes one output line; it returns a window when the line
// closes one.
func (p *freezeParser) ProcessLine(line string) (FreezeWindow, bool) {
	if m := freezeStartRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.start = &v
		}
		return FreezeWindow{}, false
	}
	m := freezeEndRe.FindStringSubmatch(line)
	if m == nil || p.start == nil {
		return FreezeWindow{}, false
	}
	end, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return FreezeWindow{}, false
	}
	w := FreezeWindow{Start: *p.start, End: end}
	p.start = nil
	return w, true
}
