/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/loqalabs/loqa-orbit/internal/app"
	"github.com/loqalabs/loqa-orbit/internal/config"
	"github.com/loqalabs/loqa-orbit/internal/health"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/loqalabs/loqa-orbit/internal/server"
	"github.com/loqalabs/loqa-orbit/internal/turn"
	cli "github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cli.Parse()

	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load(*envFile)

	// Initialize structured logging
	if err := logging.Initialize(); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	cfg, err := config.Load()
	if err != nil {
		logging.LogError(err, "Failed to load configuration")
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, cfg.TTS.APIAudioDir)
	if err != nil {
		logging.LogError(err, "Failed to build turn stages")
		log.Fatalf("Failed to build turn stages: %v", err)
	}
	defer stack.Close()

	pipeline := turn.NewPipeline(turn.PipelineConfig{
		Stages:      stack.Stages,
		Synthesizer: stack.Synthesizer,
		AudioMount:  cfg.Server.AudioMount,
		Sinks:       stack.Sinks(),
	})

	detector := health.NewDetector(0, 0)
	stack.RegisterChecks(detector, cfg)
	detector.OnDegradation(func(reason string) {
		logging.LogWarn("Running degraded", zap.String("component", "health"), zap.String("reason", reason))
	})

	opts := server.Options{
		Pipeline: pipeline,
		Detector: detector,
		Monitor:  stack.Monitor,
	}
	if stack.Store != nil {
		opts.Turns = stack.Store
	}
	srv := server.New(cfg, opts)

	logging.Sugar.Infow("🚀 Orbit starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"db_path", cfg.Storage.DBPath,
		"nats", cfg.NATS.URL != "",
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			logging.LogError(err, "Failed to start server")
			log.Fatalf("Failed to start server: %v", err)
		}
	case <-ctx.Done():
		if err := srv.Stop(); err != nil {
			logging.LogError(err, "Failed to stop server")
		}
	}
}
