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

// Package speech turns reply text into audio artifacts and, in the
// interactive agent, plays them.
package speech

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"go.uber.org/zap"
)

// Artifact is a synthesized audio file owned by the synthesizer's output directory
type Artifact struct {
	Name string
	Path string
}

// URL resolves the artifact under a public mount such as "/audio"
func (a Artifact) URL(mount string) string {
	return path.Join("/", mount, a.Name)
}

// Synthesizer persists synthesized speech under a dedicated directory
type Synthesizer struct {
	backend   TextToSpeech
	outputDir string
	format    string
}

// NewSynthesizer creates a synthesizer. backend may be nil, in which case
// every call yields no artifact.
func NewSynthesizer(backend TextToSpeech, outputDir, format string) *Synthesizer {
	if format == "" {
		format = "mp3"
	}
	return &Synthesizer{backend: backend, outputDir: outputDir, format: format}
}

// Available reports whether a backend is configured
func (s *Synthesizer) Available() bool { return s.backend != nil }

// OutputDir returns the directory artifacts are written to
func (s *Synthesizer) OutputDir() string { return s.outputDir }

// Synthesize writes speech for text to a uniquely named file. It returns
// false when there is no backend, the text is blank, or anything fails;
// errors are logged and never returned.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*Artifact, bool) {
	if s.backend == nil || strings.TrimSpace(text) == "" {
		return nil, false
	}

	artifact, err := s.synthesize(ctx, text)
	if err != nil {
		logging.LogError(err, "Speech synthesis failed",
			zap.String("component", "tts"),
			zap.Int("text_length", len(text)))
		return nil, false
	}
	return artifact, true
}

func (s *Synthesizer) synthesize(ctx context.Context, text string) (artifact *Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("speech backend panicked: %v", r)
		}
	}()

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	result, err := s.backend.Synthesize(ctx, text, &TTSOptions{ResponseFormat: s.format})
	if err != nil {
		return nil, err
	}
	defer func() { _ = result.Audio.Close() }()

	name := fmt.Sprintf("speech_%s.%s", strings.ReplaceAll(uuid.NewString(), "-", ""), s.format)
	target := filepath.Join(s.outputDir, name)

	f, err := os.Create(target)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact: %w", err)
	}
	written, copyErr := io.Copy(f, result.Audio)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(target)
		if copyErr != nil {
			return nil, fmt.Errorf("failed to write artifact: %w", copyErr)
		}
		return nil, fmt.Errorf("failed to write artifact: %w", closeErr)
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("artifact missing after write: %w", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(target)
		return nil, fmt.Errorf("backend returned no audio")
	}

	logging.LogTTSOperation("artifact_written",
		zap.String("name", name),
		zap.Int64("bytes", written))

	return &Artifact{Name: name, Path: target}, nil
}
