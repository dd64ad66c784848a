// Package ingest supervises the live capture pipeline. A stream fetcher pipes
// the upstream broadcast into a segmenter whose merged output is parsed
// line-by-line to recover per-segment wall-clock timing; finished temp
// segments are renamed into the archive and capture gaps leave hole markers.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cablewatch/cablewatch/internal/observability"
	"github.com/cablewatch/cablewatch/internal/segment"
)

// ErrStartupFlap is the unrecoverable tight-crash-loop condition: too many
// failed record attempts within the first seconds of service life.
var ErrStartupFlap = errors.New("ingest: startup flap")

const (
	haltPollInterval  = 300 * time.Millisecond
	haltLogEveryPolls = 100
	cleanupEveryLines = 100
	tempMaxAge        = 10 * time.Minute
	statusTimeLayout  = "2006-01-02 15h04"
)

// Options configures a Recorder.
type Options struct {
	// DataDir is the segment archive directory; the pipeline runs with it as
	// working directory and writes transients under DataDir/tmp.
	DataDir string
	// StreamURL is the upstream live-stream page or manifest URL.
	StreamURL string
	// ExtraArgs is appended verbatim to the stream fetcher invocation.
	ExtraArgs string
	// SegmentSeconds is the nominal segment period.
	SegmentSeconds int
	// Flap guards against a tight restart loop right after service start.
	Flap FlapDetector

	Logger *slog.Logger
	// OnStatus, when set, receives a snapshot after every observable
	// state mutation.
	OnStatus func(Status)
	// AbortSink, when set, receives the startup-flap error instead of the
	// process exiting.
	AbortSink func(error)
}

// Status is a point-in-time snapshot of the recorder, shaped for the control
// plane's status frames.
type Status struct {
	Type                    string  `json:"type"`
	RecordingRequested      bool    `json:"recording_requested"`
	SegmentFilename         *string `json:"segment_filename"`
	PID                     *int    `json:"pid"`
	ServiceStartTime        *string `json:"service_start_time"`
	RecordStartTime         *string `json:"record_start_time"`
	HaltStartTime           *string `json:"halt_start_time"`
	NumberOfLaunchedRecords int     `json:"number_of_launched_records"`
	NumberOfFailedRecords   int     `json:"number_of_failed_records"`
}

// Recorder supervises the capture pipeline. One instance per archive
// directory; concurrent writers are not supported.
type Recorder struct {
	opts     Options
	log      *slog.Logger
	cmdLog   *slog.Logger
	command  string
	archiver *Archiver

	mu                 sync.Mutex
	recordingRequested bool
	sup                *Supervisor
	serviceStart       time.Time
	recordStart        time.Time
	haltStart          time.Time
	launched           int
	failed             int
	haltCompensation   int
	currentSegment     string
	cmdLogLevel        slog.Level

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	abortOnce sync.Once

	launch func(dir, script string) (*Supervisor, error)
}

// New returns an unstarted Recorder.
func New(opts Options) *Recorder {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SegmentSeconds <= 0 {
		opts.SegmentSeconds = 30
	}
	log := observability.WithComponent(opts.Logger, "ingest")

	return &Recorder{
		opts:        opts,
		log:         log,
		cmdLog:      observability.WithComponent(opts.Logger, "from-cmd"),
		command:     buildCommand(opts.StreamURL, opts.ExtraArgs, opts.SegmentSeconds),
		archiver:    NewArchiver(segment.NewArchive(opts.DataDir), float64(opts.SegmentSeconds), log),
		cmdLogLevel: slog.LevelInfo,
		launch:      StartPipeline,
	}
}

// buildCommand renders the shell pipeline: stream fetcher piped into a
// segmenter writing a rolling single-entry playlist with absolute
// program-date-time stamps.
func buildCommand(url, extraArgs string, segmentSeconds int) string {
	parts := []string{"yt-dlp", "-f", "best"}
	if extraArgs != "" {
		parts = append(parts, extraArgs)
	}
	parts = append(parts,
		"-o", "-", fmt.Sprintf("'%s'", url),
		"|",
		"ffmpeg", "-re",
		"-i", "pipe:0",
		"-y",
		"-c", "copy",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", segmentSeconds),
		"-hls_flags", "program_date_time",
		"-hls_list_size", "1",
		"-strftime", "1",
		"-hls_segment_filename", "tmp/segment_%s.ts",
		"tmp/output.m3u8",
	)
	return strings.Join(parts, " ")
}

// Start records the service start time and launches the supervision loop.
func (r *Recorder) Start() {
	r.log.Info("starting ingest service")

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.mu.Lock()
	r.serviceStart = time.Now()
	r.mu.Unlock()

	r.wg.Add(1)
	go r.supervise(ctx)
	r.log.Info("ingest service started")
}

// Stop halts capture, waits briefly for in-flight work and joins the
// supervision loop.
func (r *Recorder) Stop() {
	r.log.Info("stopping ingest service")
	r.RequestHalt()
	time.Sleep(200 * time.Millisecond)
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("ingest service stopped")
}

func (r *Recorder) supervise(ctx context.Context) {
	defer r.wg.Done()
	for ctx.Err() == nil {
		if r.RecordingRequested() {
			r.runCommand(ctx)
		} else {
			r.haltWait(ctx)
		}
	}
}

// haltWait polls the recording flag every 300ms until it flips, logging a
// heartbeat roughly every 30s.
func (r *Recorder) haltWait(ctx context.Context) {
	r.mu.Lock()
	r.haltStart = time.Now()
	r.mu.Unlock()
	r.pushStatus()

	for i := 0; ; i++ {
		if r.RecordingRequested() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(haltPollInterval):
		}
		if i%haltLogEveryPolls == haltLogEveryPolls-1 {
			r.log.Info("halt")
		}
	}
}

// RecordingRequested reports the current flag state.
func (r *Recorder) RecordingRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recordingRequested
}

// RequestRecording sets the recording flag. It reports whether the state
// changed; a second call in a row is a no-op.
func (r *Recorder) RequestRecording() bool {
	r.mu.Lock()
	if r.recordingRequested {
		r.mu.Unlock()
		return false
	}
	r.recordingRequested = true
	r.mu.Unlock()
	r.pushStatus()
	return true
}

// RequestHalt clears the recording flag and terminates the supervised child
// tree. The pending failure increment of the aborted run is compensated so
// user-initiated halts do not inflate the failure counter. It reports whether
// the state changed.
func (r *Recorder) RequestHalt() bool {
	r.mu.Lock()
	if !r.recordingRequested {
		r.mu.Unlock()
		return false
	}
	r.recordingRequested = false
	r.haltCompensation++
	r.cmdLogLevel = slog.LevelInfo
	sup := r.sup
	r.sup = nil
	r.mu.Unlock()
	r.pushStatus()

	if sup != nil {
		sup.Terminate()
	}
	return true
}

// Status returns a snapshot of the recorder state.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	sts := Status{
		Type:                    "status",
		RecordingRequested:      r.recordingRequested,
		ServiceStartTime:        formatStatusTime(r.serviceStart),
		RecordStartTime:         formatStatusTime(r.recordStart),
		HaltStartTime:           formatStatusTime(r.haltStart),
		NumberOfLaunchedRecords: r.launched,
		NumberOfFailedRecords:   r.failed,
	}
	if r.currentSegment != "" {
		fn := r.currentSegment
		sts.SegmentFilename = &fn
	}
	if r.sup != nil {
		pid := r.sup.PID()
		sts.PID = &pid
	}
	return sts
}

func formatStatusTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(statusTimeLayout)
	return &s
}

func (r *Recorder) pushStatus() {
	if r.opts.OnStatus != nil {
		r.opts.OnStatus(r.Status())
	}
}

// runCommand executes one supervised record attempt: launch the pipeline,
// parse its merged output until EOF, reap the child and account the outcome.
// Errors never escape; everything is logged and counted.
func (r *Recorder) runCommand(ctx context.Context) {
	r.log.Info("run recording")
	r.log.Info("ingest command", "command", r.command)

	r.mu.Lock()
	r.recordStart = time.Now()
	r.launched++
	r.currentSegment = ""
	r.cmdLogLevel = slog.LevelInfo
	r.mu.Unlock()
	r.archiver.Reset()

	if err := os.MkdirAll(filepath.Join(r.opts.DataDir, "tmp"), 0o755); err != nil {
		r.log.Error("preparing tmp dir", "error", err)
		r.recordFinished()
		return
	}

	sup, err := r.launch(r.opts.DataDir, r.command)
	if err != nil {
		r.log.Error("launching ingest command", "error", err)
		r.recordFinished()
		return
	}
	r.mu.Lock()
	r.sup = sup
	r.mu.Unlock()
	r.log.Info("ingest command started", "pid", sup.PID())
	r.pushStatus()

	lines := 0
	sc := NewLineScanner(sup.Output())
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := r.processLine(line); err != nil {
			r.log.Error("aborting record attempt", "error", err)
			sup.Terminate()
			break
		}
		lines++
		if lines >= cleanupEveryLines {
			r.cleanupTempDir()
			lines = 0
		}
	}

	exitErr := sup.Wait()
	r.mu.Lock()
	level := r.cmdLogLevel
	r.sup = nil
	r.mu.Unlock()
	r.log.Log(ctx, level, "ingest command exited", "error", exitErr)
	r.recordFinished()
}

// recordFinished accounts one finished record attempt: drop the armed hole
// marker, bump or compensate the failure counter, and check for a startup
// flap.
func (r *Recorder) recordFinished() {
	if err := r.archiver.MarkHole(); err != nil {
		r.log.Error("marking capture gap", "error", err)
	}
	r.mu.Lock()
	if r.haltCompensation > 0 {
		r.haltCompensation--
	} else {
		r.failed++
	}
	r.mu.Unlock()
	r.pushStatus()
	r.checkFatalAtStartup()
}

// checkFatalAtStartup tears the service down when record attempts flap right
// after start. This is the only unrecoverable failure of the recorder.
func (r *Recorder) checkFatalAtStartup() {
	r.mu.Lock()
	uptime := time.Since(r.serviceStart)
	failed := r.failed
	r.mu.Unlock()

	if !r.opts.Flap.Tripped(failed, uptime) {
		return
	}
	r.abortOnce.Do(func() {
		err := fmt.Errorf("%w: %d failed records within %s of start", ErrStartupFlap, failed, uptime.Round(time.Second))
		r.log.Error("record attempts flapping at startup", "error", err)
		if r.cancel != nil {
			r.cancel()
		}
		if r.opts.AbortSink != nil {
			r.opts.AbortSink(err)
			return
		}
		os.Exit(255)
	})
}

var (
	httpsOpeningRe = regexp.MustCompile(`^\[https? @ 0x[0-9a-f]+\] Opening`)
	hlsSkipRe      = regexp.MustCompile(`\[hls @ 0x[0-9a-f]+\] Skip \('(\S+)'\)`)
	hlsOpeningRe   = regexp.MustCompile(`^\[hls @ 0x[0-9a-f]+\] Opening '(\S+)' for writing`)
)

// processLine routes one merged-output line. Progress and transport chatter
// are suppressed; playlist skips feed the drift ring; "Opening ... for
// writing" lines track the temp segment and trigger playlist processing.
func (r *Recorder) processLine(line string) error {
	if strings.HasPrefix(line, "frame=") {
		return nil
	}
	if httpsOpeningRe.MatchString(line) {
		return nil
	}

	if m := hlsSkipRe.FindStringSubmatch(line); m != nil {
		if strings.HasPrefix(m[1], tagProgramDateTime) {
			ts, err := ParseProgramDateTime(strings.TrimPrefix(m[1], tagProgramDateTime))
			if err != nil {
				r.log.Warn("unparseable program-date-time", "line", line)
				return nil
			}
			r.archiver.ObserveDrift(ts)
		}
		return nil
	}

	if m := hlsOpeningRe.FindStringSubmatch(line); m != nil {
		fn := m[1]
		switch {
		case strings.HasSuffix(fn, ".ts"):
			r.archiver.SetCurrentTemp(filepath.Join(r.opts.DataDir, fn))
			r.mu.Lock()
			r.currentSegment = fn
			r.mu.Unlock()
			r.pushStatus()
		case strings.HasSuffix(fn, ".m3u8.tmp"):
			finished := filepath.Join(r.opts.DataDir, strings.TrimSuffix(fn, ".tmp"))
			if err := r.processPlaylist(finished); err != nil {
				return err
			}
		}
		r.cmdLog.Info(line)
		return nil
	}

	r.mu.Lock()
	level := r.cmdLogLevel
	r.mu.Unlock()
	r.cmdLog.Log(context.Background(), level, line)
	return nil
}

// processPlaylist archives the segment finished by one playlist cycle. Torn
// reads while a halt is in flight are tolerated; while recording is still
// requested a short playlist is a hard error forcing a restart.
func (r *Recorder) processPlaylist(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if !r.RecordingRequested() {
			r.log.Warn("playlist gone during halt", "path", path)
			return nil
		}
		return fmt.Errorf("opening playlist: %w", err)
	}
	defer f.Close()

	ev, err := ParsePlaylist(f)
	if err != nil {
		if errors.Is(err, ErrMalformedPlaylist) && !r.RecordingRequested() {
			r.log.Warn("torn playlist during halt", "error", err)
			return nil
		}
		return err
	}

	if _, err := r.archiver.Commit(ev); err != nil {
		return err
	}
	// A full cycle succeeded; from here a child exit is worth an error.
	r.mu.Lock()
	r.cmdLogLevel = slog.LevelError
	r.mu.Unlock()
	return nil
}

// cleanupTempDir trims stale transients from DataDir/tmp. The segmenter
// renames its files away within one segment period, so anything older than
// the age threshold is an orphan.
func (r *Recorder) cleanupTempDir() {
	dir := filepath.Join(r.opts.DataDir, "tmp")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-tempMaxAge)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".ts") && !strings.HasSuffix(name, ".concat") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			r.log.Info("removing stale temp file", "file", name)
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
}
