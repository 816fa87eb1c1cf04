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

package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-orbit/internal/audio"
)

// Transcoder converts an audio file to WAV with a given profile
type Transcoder interface {
	ToWAV(ctx context.Context, in string, profile audio.Profile) (string, error)
}

// DirectStrategy hands the samples or the original blob straight to the
// speech model. Models without EncodedTranscriber get the blob decoded
// in-process.
type DirectStrategy struct {
	Model SpeechModel
}

// Name implements Strategy
func (DirectStrategy) Name() string { return "direct" }

// Attempt implements Strategy
func (s DirectStrategy) Attempt(ctx context.Context, in RawAudio) (string, error) {
	samples := in.Samples
	if len(samples) == 0 {
		data, err := in.encoded()
		if err != nil {
			return "", err
		}
		if et, ok := s.Model.(EncodedTranscriber); ok {
			return et.TranscribeEncoded(ctx, data, in.Container)
		}
		samples, err = audio.DecodeToPCM16k(data, in.Container)
		if err != nil {
			return "", err
		}
	}
	return s.Model.TranscribePCM(ctx, samples)
}

// TranscodeStrategy converts the audio with the external transcoder before
// transcribing. The canonical profile forces 16 kHz mono; the simple profile
// takes decoder defaults and resamples in-process.
type TranscodeStrategy struct {
	Model      SpeechModel
	Transcoder Transcoder
	Profile    audio.Profile
	TempDir    string
}

// NewCanonicalTranscodeStrategy returns the mono 16 kHz transcode strategy
func NewCanonicalTranscodeStrategy(model SpeechModel, t Transcoder, tempDir string) TranscodeStrategy {
	return TranscodeStrategy{Model: model, Transcoder: t, Profile: audio.ProfileCanonical, TempDir: tempDir}
}

// NewSimpleTranscodeStrategy returns the default-settings transcode strategy
func NewSimpleTranscodeStrategy(model SpeechModel, t Transcoder, tempDir string) TranscodeStrategy {
	return TranscodeStrategy{Model: model, Transcoder: t, Profile: audio.ProfileSimple, TempDir: tempDir}
}

// Name implements Strategy
func (s TranscodeStrategy) Name() string { return "transcode_" + string(s.Profile) }

// Attempt implements Strategy
func (s TranscodeStrategy) Attempt(ctx context.Context, in RawAudio) (string, error) {
	if s.Transcoder == nil {
		return "", audio.ErrTranscoderUnavailable
	}

	src, cleanup, err := s.sourceFile(in)
	if err != nil {
		return "", err
	}
	defer cleanup()

	wavPath, err := s.Transcoder.ToWAV(ctx, src, s.Profile)
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(wavPath) }()

	samples, err := audio.DecodeFileToPCM16k(wavPath)
	if err != nil {
		return "", fmt.Errorf("failed to read transcoded audio: %w", err)
	}
	return s.Model.TranscribePCM(ctx, samples)
}

// sourceFile returns a file holding in's audio, writing a temporary one when
// the input only lives in memory.
func (s TranscodeStrategy) sourceFile(in RawAudio) (string, func(), error) {
	if in.Path != "" {
		return in.Path, func() {}, nil
	}
	if err := os.MkdirAll(s.TempDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	var (
		path string
		err  error
	)
	switch {
	case len(in.Encoded) > 0:
		ext := in.Container
		if ext == "" {
			ext = audio.ContainerWebM
		}
		path = filepath.Join(s.TempDir, fmt.Sprintf("input_%s.%s", id, ext))
		err = os.WriteFile(path, in.Encoded, 0o644)
	case len(in.Samples) > 0:
		path = filepath.Join(s.TempDir, fmt.Sprintf("input_%s.wav", id))
		err = audio.WriteWAVFile(path, in.Samples)
	default:
		return "", nil, errors.New("no audio to transcode")
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to write temp audio: %w", err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}

func (in RawAudio) encoded() ([]byte, error) {
	if len(in.Encoded) > 0 {
		return in.Encoded, nil
	}
	if in.Path != "" {
		data, err := os.ReadFile(in.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read audio file: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("no audio data")
}

// DefaultStrategies returns the direct, canonical and simple strategies in order
func DefaultStrategies(model SpeechModel, t Transcoder, tempDir string) []Strategy {
	return []Strategy{
		DirectStrategy{Model: model},
		NewCanonicalTranscodeStrategy(model, t, tempDir),
		NewSimpleTranscodeStrategy(model, t, tempDir),
	}
}
