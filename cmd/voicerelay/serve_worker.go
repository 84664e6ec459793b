package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeready-toolchain/voicerelay/pkg/claimer"
	"github.com/codeready-toolchain/voicerelay/pkg/config"
	"github.com/codeready-toolchain/voicerelay/pkg/database"
	"github.com/codeready-toolchain/voicerelay/pkg/dispatch"
	"github.com/codeready-toolchain/voicerelay/pkg/handoff"
	"github.com/codeready-toolchain/voicerelay/pkg/launcher"
	"github.com/codeready-toolchain/voicerelay/pkg/retention"
	"github.com/codeready-toolchain/voicerelay/pkg/roomgateway"
	"github.com/codeready-toolchain/voicerelay/pkg/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func serveWorkerCmd() *cobra.Command {
	var envPath string
	cmd := &cobra.Command{
		Use:   "serve-worker",
		Short: "Run the handoff/claimer/launcher/retention worker loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeWorker(envPath)
		},
	}
	cmd.Flags().StringVar(&envPath, "env-file", ".env", "path to a .env file to load before reading the environment")
	return cmd
}

func runServeWorker(envPath string) error {
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("no .env file loaded from %s: %v", envPath, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("error closing database client: %v", err)
		}
	}()

	var rooms roomgateway.Gateway
	if cfg.Voice.LiveKitURL == "" {
		rooms = roomgateway.NewMock("wss://mock.local")
	} else {
		rooms = roomgateway.New(cfg.Voice.LiveKitURL, cfg.Voice.LiveKitAPIKey, cfg.Voice.LiveKitAPISecret)
	}

	tracer, shutdownTracer, err := telemetry.New(ctx, telemetry.Config{ServiceName: "voicerelay-worker"})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("error shutting down tracer: %v", err)
		}
	}()

	meters, err := telemetry.NewMeters("voicerelay-worker")
	if err != nil {
		return err
	}

	handoffWorker := handoff.New("handoff-1", db.Client, rooms, handoff.Config{
		PollInterval:       cfg.Dispatch.PollInterval,
		PollIntervalJitter: cfg.Dispatch.PollIntervalJitter,
		MaxAttempts:        cfg.Dispatch.MaxAttempts,
		BatchSize:          cfg.Dispatch.BatchSize,
		Tracer:             tracer,
	})

	claimerWorker := claimer.New("claimer-1", db.Client, claimer.Config{
		BatchSize:          cfg.Dispatch.BatchSize,
		PollInterval:       cfg.Dispatch.PollInterval,
		PollIntervalJitter: cfg.Dispatch.PollIntervalJitter,
		MaxAttempts:        cfg.Dispatch.MaxAttempts,
		ConnectorURL: func(room string) string {
			return fmt.Sprintf("%s/launch", cfg.Dispatch.ConnectorBaseURL)
		},
		Tracer: tracer,
		Meters: meters,
	})

	launcherWorker := launcher.New("launcher-1", db.Client, launcher.Config{
		BatchSize:          cfg.Dispatch.BatchSize,
		PollInterval:       cfg.Dispatch.PollInterval,
		PollIntervalJitter: cfg.Dispatch.PollIntervalJitter,
		MaxAttempts:        cfg.Dispatch.MaxAttempts,
		RequestTimeout:     15 * time.Second,
		Tracer:             tracer,
	})

	finalizeWorker := retention.NewFinalizeWorker(db.Client, retention.FinalizeConfig{
		BatchSize:          cfg.Retention.BatchSize,
		PollInterval:       cfg.Retention.PollInterval,
		PollIntervalJitter: cfg.Retention.PollIntervalJitter,
		RetentionDays:      cfg.Retention.RetentionDays,
	})
	rollupWorker := retention.NewRollupWorker(db.Client, retention.RollupConfig{})
	deletionWorker := retention.NewDeletionWorker(db.Client, retention.DeletionConfig{
		BatchSize:          cfg.Retention.BatchSize,
		PollInterval:       cfg.Retention.PollInterval,
		PollIntervalJitter: cfg.Retention.PollIntervalJitter,
	})

	handoffWorker.Start(ctx)
	claimerWorker.Start(ctx)
	launcherWorker.Start(ctx)
	finalizeWorker.Start(ctx)
	rollupWorker.Start(ctx)
	deletionWorker.Start(ctx)
	go runExpirySweeper(ctx, db)

	log.Println("worker process started: handoff, claimer, launcher, finalize, rollup, retention")
	<-ctx.Done()
	log.Println("worker process shutting down")

	handoffWorker.Stop()
	claimerWorker.Stop()
	launcherWorker.Stop()
	finalizeWorker.Stop()
	rollupWorker.Stop()
	deletionWorker.Stop()
	return nil
}

// runExpirySweeper periodically flips pending, expired dispatches to the
// terminal expired status so they stop being claimable.
func runExpirySweeper(ctx context.Context, db *database.Client) {
	store := dispatch.New(db.Client)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.MarkExpired(ctx)
			if err != nil {
				slog.Error("expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired stale dispatches", "count", n)
			}
		}
	}
}
