package main

import (
	"context"
	"log"

	"github.com/codeready-toolchain/voicerelay/pkg/api"
	"github.com/codeready-toolchain/voicerelay/pkg/config"
	"github.com/codeready-toolchain/voicerelay/pkg/database"
	"github.com/codeready-toolchain/voicerelay/pkg/secrets"
	"github.com/codeready-toolchain/voicerelay/pkg/telemetry"
	"github.com/codeready-toolchain/voicerelay/pkg/toolgateway"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func serveAPICmd() *cobra.Command {
	var envPath string
	cmd := &cobra.Command{
		Use:   "serve-api",
		Short: "Run the control-plane HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeAPI(envPath)
		},
	}
	cmd.Flags().StringVar(&envPath, "env-file", ".env", "path to a .env file to load before reading the environment")
	return cmd
}

func runServeAPI(envPath string) error {
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("no .env file loaded from %s: %v", envPath, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("error closing database client: %v", err)
		}
	}()

	var codec *secrets.Codec
	if cfg.API.SecretsEncryptionKey != "" {
		codec, err = secrets.New([]byte(cfg.API.SecretsEncryptionKey))
		if err != nil {
			return err
		}
	}

	tracer, shutdownTracer, err := telemetry.New(ctx, telemetry.Config{ServiceName: "voicerelay-api"})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("error shutting down tracer: %v", err)
		}
	}()
	meters, err := telemetry.NewMeters("voicerelay-api")
	if err != nil {
		return err
	}

	limiter := toolgateway.NewRateLimiter(cfg.Tool.PerMinuteRateLimit)
	gateway := toolgateway.New(db.Client, limiter, codec).WithTelemetry(tracer, meters)

	server := api.New(db, gateway, cfg)

	log.Printf("control-plane API listening on :%s", cfg.HTTPPort)
	return server.Engine().Run(":" + cfg.HTTPPort)
}
