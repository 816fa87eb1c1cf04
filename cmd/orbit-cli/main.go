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
	"github.com/loqalabs/loqa-orbit/internal/audio"
	"github.com/loqalabs/loqa-orbit/internal/capture"
	"github.com/loqalabs/loqa-orbit/internal/config"
	"github.com/loqalabs/loqa-orbit/internal/console"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/loqalabs/loqa-orbit/internal/retrieval"
	"github.com/loqalabs/loqa-orbit/internal/speech"
	"github.com/loqalabs/loqa-orbit/internal/turn"
	cli "github.com/spf13/pflag"
	"go.uber.org/zap"
)

const description = "Local Speech-to-Speech AI Agent with OpenAI TTS"

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cli.Usage = func() {
		os.Stderr.WriteString(description + "\n\n")
		cli.PrintDefaults()
	}
	cli.Parse()

	_ = godotenv.Load(*envFile)

	if err := logging.Initialize(); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	term := console.New(os.Stdin, os.Stdout)
	term.Banner("🪐 Orbit", description)

	created, err := retrieval.SeedSampleKnowledge(cfg.Retrieval.KnowledgeFile)
	if err != nil {
		logging.LogError(err, "Failed to seed knowledge file", zap.String("path", cfg.Retrieval.KnowledgeFile))
	} else if created {
		term.Info("Created sample knowledge file %s", cfg.Retrieval.KnowledgeFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, cfg.TTS.OutputDir)
	if err != nil {
		log.Fatalf("Failed to build turn stages: %v", err)
	}
	defer stack.Close()

	var source audio.Source
	mic, err := audio.OpenMicrophone(cfg.Audio.ChunkSamples())
	if err != nil {
		term.Warn("No microphone available, type your messages instead")
		logging.LogWarn("Microphone unavailable", zap.String("component", "audio"), zap.Error(err))
	} else {
		source = mic
		defer func() { _ = mic.Terminate() }()
	}

	segmenter := audio.NewSegmenter(audio.SegmenterOptions{
		ChunkDuration:    cfg.Audio.ChunkDuration,
		SilenceThreshold: cfg.Audio.SilenceThreshold,
		EndOfSpeech:      cfg.Audio.EndOfSpeech,
		MaxRecord:        cfg.Audio.MaxRecord,
	})

	player, err := speech.NewDefaultPlayer()
	if err != nil {
		logging.LogWarn("Audio playback unavailable, replies will be printed",
			zap.String("component", "tts"), zap.Error(err))
	}

	session := turn.NewSession(turn.SessionConfig{
		Listener: capture.NewListener(term, source, segmenter),
		Stages:   stack.Stages,
		Speaker:  speech.NewVoice(stack.Synthesizer, player, term),
		Display:  term,
		Sinks:    stack.Sinks(),
	})

	logging.Sugar.Infow("🪐 Orbit session starting",
		"session_id", session.ID(),
		"microphone", source != nil,
		"tts", stack.Synthesizer.Available())

	session.Run(ctx)
	stack.Monitor.LogSummary()
}
