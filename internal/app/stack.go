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

// Package app assembles the turn stages and their optional sinks from
// configuration. Both front ends share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/loqalabs/loqa-orbit/internal/audio"
	"github.com/loqalabs/loqa-orbit/internal/config"
	"github.com/loqalabs/loqa-orbit/internal/generation"
	"github.com/loqalabs/loqa-orbit/internal/health"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/loqalabs/loqa-orbit/internal/messaging"
	"github.com/loqalabs/loqa-orbit/internal/retrieval"
	"github.com/loqalabs/loqa-orbit/internal/speech"
	"github.com/loqalabs/loqa-orbit/internal/storage"
	"github.com/loqalabs/loqa-orbit/internal/stt"
	"github.com/loqalabs/loqa-orbit/internal/turn"
	"go.uber.org/zap"
)

// Stack owns every long-lived service handle. Store and Publisher are nil
// when their backing service is disabled or unreachable.
type Stack struct {
	Stages      turn.Stages
	Synthesizer *speech.Synthesizer
	Monitor     *health.TurnMonitor
	Store       *storage.TurnEventsStore
	Publisher   *messaging.TurnPublisher

	model    stt.SpeechModel
	tts      speech.TextToSpeech
	database *storage.Database
}

// Build constructs the stages. Every backend that cannot be reached is
// replaced by its degraded stand-in so the agent still starts.
// Synthesized audio is written to audioDir.
func Build(ctx context.Context, cfg *config.Config, audioDir string) (*Stack, error) {
	if cfg == nil {
		return nil, errors.New("app: nil configuration")
	}

	s := &Stack{Monitor: health.NewTurnMonitor()}

	s.model = newSpeechModel(cfg.STT)
	transcoder := audio.NewTranscoder(cfg.STT.FFmpegPath, cfg.STT.TempDir)
	if !transcoder.Available() {
		logging.LogWarn("ffmpeg not found, transcode strategies will fail",
			zap.String("component", "stt"),
			zap.String("ffmpeg_path", cfg.STT.FFmpegPath))
	}
	chain := stt.NewChain(stt.DefaultStrategies(s.model, transcoder, cfg.STT.TempDir)...)

	docs, err := retrieval.LoadKnowledge(cfg.Retrieval.KnowledgeFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge: %w", err)
	}
	retriever := retrieval.NewRetriever(ctx, docs, newEmbedder(cfg), cfg.Retrieval.TopK)

	generator := generation.NewGenerator(newBackend(ctx, cfg.Generation), cfg.Generation.Temperature)

	s.Stages = turn.Stages{
		Transcriber: chain,
		Retriever:   retriever,
		Generator:   generator,
	}

	client, err := speech.NewOpenAITTSClient(cfg.TTS)
	if err != nil {
		logging.LogWarn("Speech synthesis disabled",
			zap.String("component", "tts"),
			zap.Error(err))
		s.Synthesizer = speech.NewSynthesizer(nil, audioDir, cfg.TTS.ResponseFormat)
	} else {
		s.tts = client
		s.Synthesizer = speech.NewSynthesizer(client, audioDir, cfg.TTS.ResponseFormat)
	}

	s.openSinks(cfg)
	return s, nil
}

func newSpeechModel(cfg config.STTConfig) stt.SpeechModel {
	if cfg.URL != "" {
		model, err := stt.NewRESTModel(cfg.URL, cfg.Model, cfg.Language)
		if err == nil {
			return model
		}
		logging.LogWarn("STT REST service unavailable, trying whisper",
			zap.String("component", "stt"),
			zap.String("url", cfg.URL),
			zap.Error(err))
	}

	model, err := stt.NewWhisperModel(cfg.WhisperModelPath, cfg.Language)
	if err == nil {
		return model
	}
	logging.LogWarn("Speech model unavailable, audio input will not be understood",
		zap.String("component", "stt"),
		zap.String("model_path", cfg.WhisperModelPath),
		zap.Error(err))
	return stt.UnavailableModel{Reason: err}
}

func newEmbedder(cfg *config.Config) retrieval.Embedder {
	switch cfg.Embedding.Backend {
	case "ollama":
		return retrieval.NewOllamaEmbedder(cfg.Generation.OllamaHost, cfg.Embedding.Model)
	case "openai":
		if cfg.Generation.OpenAIAPIKey == "" && cfg.Generation.OpenAIBaseURL == "" {
			logging.LogWarn("OpenAI embeddings need OPENAI_API_KEY, using lexical retrieval",
				zap.String("component", "retrieval"))
			return nil
		}
		return retrieval.NewOpenAIEmbedder(cfg.Generation.OpenAIAPIKey, cfg.Generation.OpenAIBaseURL, cfg.Embedding.Model)
	default:
		return nil
	}
}

func newBackend(ctx context.Context, cfg config.GenerationConfig) generation.Backend {
	switch cfg.Backend {
	case "openai":
		if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
			logging.LogWarn("OpenAI generation needs OPENAI_API_KEY",
				zap.String("component", "generation"))
			return nil
		}
		return generation.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	default:
		backend := generation.NewOllamaBackend(cfg.OllamaHost, cfg.OllamaModel)
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := backend.CheckModel(checkCtx); err != nil {
			// The backend is kept: Ollama may come up after the agent.
			logging.LogWarn("Ollama model check failed",
				zap.String("component", "generation"),
				zap.String("host", cfg.OllamaHost),
				zap.Error(err))
		}
		return backend
	}
}

func (s *Stack) openSinks(cfg *config.Config) {
	if cfg.Storage.DBPath != "" {
		db, err := storage.NewDatabase(storage.DatabaseConfig{Path: cfg.Storage.DBPath})
		if err != nil {
			logging.LogError(err, "Turn history disabled", zap.String("db_path", cfg.Storage.DBPath))
		} else {
			s.database = db
			s.Store = storage.NewTurnEventsStore(db)
		}
	}

	if cfg.NATS.URL != "" {
		publisher := messaging.NewTurnPublisher(cfg.NATS)
		if err := publisher.Connect(); err != nil {
			logging.LogError(err, "Turn event publishing disabled", zap.String("nats_url", cfg.NATS.URL))
		} else {
			s.Publisher = publisher
		}
	}
}

// Sinks returns the turn monitor followed by the enabled persistent sinks
func (s *Stack) Sinks() []turn.Sink {
	sinks := []turn.Sink{s.Monitor}
	if s.Store != nil {
		sinks = append(sinks, s.Store)
	}
	if s.Publisher != nil {
		sinks = append(sinks, s.Publisher)
	}
	return sinks
}

// RegisterChecks adds a health probe for every configured backend
func (s *Stack) RegisterChecks(d *health.Detector, cfg *config.Config) {
	switch cfg.Generation.Backend {
	case "openai":
		if cfg.Generation.OpenAIBaseURL != "" {
			d.AddCheck("generation", reachable(cfg.Generation.OpenAIBaseURL+"/models"))
		}
	default:
		d.AddHTTP("generation", cfg.Generation.OllamaHost+"/api/tags")
	}

	if cfg.STT.URL != "" {
		d.AddHTTP("stt", cfg.STT.URL+"/health")
	}
	if s.tts != nil {
		d.AddCheck("tts", reachable(cfg.TTS.URL+"/models"))
	}
	if s.database != nil {
		d.AddCheck("storage", func(ctx context.Context) error { return s.database.Ping() })
	}
	if s.Publisher != nil {
		d.AddCheck("nats", func(ctx context.Context) error {
			if !s.Publisher.IsConnected() {
				return messaging.ErrNotConnected
			}
			return nil
		})
	}
}

// reachable accepts any non-5xx answer. Hosted APIs reject unauthenticated
// GETs with 401 while still being up.
func reachable(url string) health.Check {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}
}

// Close releases every service handle
func (s *Stack) Close() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			logging.LogError(err, "Failed to close database")
		}
	}
	if s.tts != nil {
		if err := s.tts.Close(); err != nil {
			logging.LogError(err, "Failed to close TTS client")
		}
	}
	if s.model != nil {
		if err := s.model.Close(); err != nil {
			logging.LogError(err, "Failed to close speech model")
		}
	}
}
