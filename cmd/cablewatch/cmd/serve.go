package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cablewatch/cablewatch/internal/control"
	"github.com/cablewatch/cablewatch/internal/httpserver"
	"github.com/cablewatch/cablewatch/internal/ingest"
	"github.com/cablewatch/cablewatch/internal/schedule"
	"github.com/cablewatch/cablewatch/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the capture service",
	Long: `Start the capture service: the recorder supervising the ingest
pipeline, the control websocket at /api/ingest, the daily record/halt
scheduler and the static web root.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("record-spec", schedule.DefaultRecordSpec, "cron spec for the daily record trigger")
	serveCmd.Flags().String("halt-spec", schedule.DefaultHaltSpec, "cron spec for the daily halt trigger")
	serveCmd.Flags().Bool("record", false, "request recording immediately instead of waiting for the trigger")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	loc, err := cfg.Timezone()
	if err != nil {
		return err
	}

	hub := control.NewHub(logger)

	// The recorder's only unrecoverable failure is a startup flap; route it
	// into the shutdown path so the service exits with an error instead of
	// killing the process from a goroutine.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var abortMu sync.Mutex
	var abortErr error

	rec := ingest.New(ingest.Options{
		DataDir:        cfg.IngestDataDir(),
		StreamURL:      cfg.StreamURL(),
		ExtraArgs:      cfg.YtDlpExtraArgs(),
		SegmentSeconds: cfg.SegmentSeconds(),
		Flap: ingest.FlapDetector{
			MinUptime: cfg.FlapMinUptime(),
			MaxUptime: cfg.FlapMaxUptime(),
			Ratio:     cfg.FlapRatio(),
		},
		Logger:   logger,
		OnStatus: hub.BroadcastStatus,
		AbortSink: func(err error) {
			abortMu.Lock()
			abortErr = err
			abortMu.Unlock()
			cancel()
		},
	})

	recordSpec, _ := cmd.Flags().GetString("record-spec")
	haltSpec, _ := cmd.Flags().GetString("halt-spec")
	sched, err := schedule.New(rec, schedule.Config{
		RecordSpec: recordSpec,
		HaltSpec:   haltSpec,
		Location:   loc,
	}, logger)
	if err != nil {
		return err
	}

	handler := control.NewHandler(hub, rec, logger)
	server := httpserver.New(httpserver.Config{
		ListenAddr: cfg.WebHost(),
		Port:       cfg.WebPort(),
		RootDir:    cfg.WebRootDir(),
	}, handler, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	hub.Start()
	rec.Start()
	sched.Start()
	if record, _ := cmd.Flags().GetBool("record"); record {
		rec.RequestRecording()
	}

	logger.Info("cablewatch serving",
		"addr", cfg.WebListenAddr(),
		"data_dir", cfg.IngestDataDir(),
		"version", version.Version)

	serveErr := server.ListenAndServe(ctx)

	sched.Stop()
	rec.Stop()
	hub.Close()

	abortMu.Lock()
	defer abortMu.Unlock()
	if abortErr != nil {
		return abortErr
	}
	return serveErr
}
