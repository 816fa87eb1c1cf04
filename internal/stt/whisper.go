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

//go:build whisper

package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/loqalabs/loqa-orbit/internal/security"
	"go.uber.org/zap"
)

// WhisperModel runs whisper.cpp in-process
type WhisperModel struct {
	mu        sync.Mutex
	model     whisper.Model
	modelPath string
	language  string
}

// NewWhisperModel loads a ggml whisper model from disk
func NewWhisperModel(modelPath, language string) (*WhisperModel, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("whisper model not found at %s", modelPath)
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load whisper model: %w", err)
	}
	if language == "" {
		language = "auto"
	}

	logging.Sugar.Infow("✅ Whisper model loaded", "model_path", modelPath, "language", language)
	return &WhisperModel{model: model, modelPath: modelPath, language: language}, nil
}

// TranscribePCM converts audio samples to text
func (wm *WhisperModel) TranscribePCM(ctx context.Context, samples []float32) (string, error) {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	if wm.model == nil {
		return "", ErrModelUnavailable
	}
	if len(samples) == 0 {
		return "", errors.New("empty audio data")
	}

	wctx, err := wm.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("failed to create whisper context: %w", err)
	}
	if err := wctx.SetLanguage(wm.language); err != nil {
		logging.LogWarn("Unsupported whisper language, using model default", zap.String("component", "stt"), zap.String("language", wm.language), zap.Error(err))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("failed to process audio: %w", err)
	}

	var transcript strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read whisper segment: %w", err)
		}
		transcript.WriteString(segment.Text)
	}

	result := strings.TrimSpace(transcript.String())
	logging.Sugar.Infow("🧠 Whisper transcription", "text", security.SanitizeLogInput(result))
	return result, nil
}

// Close releases the model
func (wm *WhisperModel) Close() error {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	if wm.model != nil {
		err := wm.model.Close()
		wm.model = nil
		logging.Sugar.Infow("🧠 Whisper model closed")
		return err
	}
	return nil
}
