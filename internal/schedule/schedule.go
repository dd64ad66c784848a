// Package schedule drives the daily record/halt cycle. Two cron triggers in
// the configured timezone delegate to the recorder; trigger failures are
// logged and never propagate.
package schedule

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Default trigger times: recording starts ahead of the morning broadcast and
// halts shortly after midnight.
const (
	DefaultRecordSpec = "25 6 * * *"
	DefaultHaltSpec   = "5 0 * * *"
)

// Recorder is the surface the scheduler drives.
type Recorder interface {
	RequestRecording() bool
	RequestHalt() bool
}

// Scheduler wraps a cron runner with the two capture triggers.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

// Config holds the trigger specs; zero values fall back to the defaults.
type Config struct {
	RecordSpec string
	HaltSpec   string
	Location   *time.Location
}

// New builds a Scheduler delegating to rec. The cron specs are evaluated in
// cfg.Location.
func New(rec Recorder, cfg Config, log *slog.Logger) (*Scheduler, error) {
	if cfg.RecordSpec == "" {
		cfg.RecordSpec = DefaultRecordSpec
	}
	if cfg.HaltSpec == "" {
		cfg.HaltSpec = DefaultHaltSpec
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	s := &Scheduler{
		cron: cron.New(cron.WithLocation(cfg.Location)),
		log:  log,
	}

	if _, err := s.cron.AddFunc(cfg.RecordSpec, func() {
		s.log.Info("scheduled record trigger")
		if !rec.RequestRecording() {
			s.log.Info("record trigger ignored, already recording")
		}
	}); err != nil {
		return nil, fmt.Errorf("record trigger %q: %w", cfg.RecordSpec, err)
	}

	if _, err := s.cron.AddFunc(cfg.HaltSpec, func() {
		s.log.Info("scheduled halt trigger")
		if !rec.RequestHalt() {
			s.log.Info("halt trigger ignored, not recording")
		}
	}); err != nil {
		return nil, fmt.Errorf("halt trigger %q: %w", cfg.HaltSpec, err)
	}

	return s, nil
}

// Start launches the cron runner.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop halts the cron runner and waits for running triggers.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}
