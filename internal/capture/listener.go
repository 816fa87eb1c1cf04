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

// Package capture obtains one user utterance per turn, typed or spoken.
package capture

import (
	"context"
	"errors"
	"io"

	"github.com/loqalabs/loqa-orbit/internal/audio"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/loqalabs/loqa-orbit/internal/stt"
	"go.uber.org/zap"
)

// Console is the text side of the conversation
type Console interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// Listener asks the user for input and records speech when they choose to talk
type Listener struct {
	console   Console
	source    audio.Source
	segmenter *audio.Segmenter
}

// NewListener creates a listener. source may be nil when no microphone is available.
func NewListener(console Console, source audio.Source, segmenter *audio.Segmenter) *Listener {
	return &Listener{console: console, source: source, segmenter: segmenter}
}

// Listen returns the user's next input: LiteralText when typed, RawAudio
// when recorded, or nil when nothing usable was captured. The only errors
// are context cancellation and io.EOF when the console is closed.
func (l *Listener) Listen(ctx context.Context) (stt.Input, error) {
	l.console.Info("🎤 Listening... (Press ENTER to start, speak, then pause. Or type your input)")

	choice, err := l.console.ReadLine(ctx, "   Press ENTER to start voice recording, or type your message and press ENTER:")
	if err != nil {
		return nil, err
	}
	if choice != "" {
		l.console.Info("   Using typed input.")
		return stt.LiteralText(choice), nil
	}

	if l.source == nil || l.segmenter == nil {
		l.console.Warn("   Microphone not available for recording. Falling back to text input.")
		return l.textFallback(ctx)
	}

	segment, err := l.record(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.LogError(err, "Recording failed, falling back to text input", zap.String("component", "capture"))
		l.console.Warn("   Error during recording: %v", err)
		return l.textFallback(ctx)
	}
	if segment == nil {
		l.console.Warn("   No speech detected.")
		return nil, nil
	}

	l.console.Info("   Recording finished. Total duration: %.2fs", segment.Samples.Duration().Seconds())
	return stt.RawAudio{Samples: segment.Samples}, nil
}

func (l *Listener) record(ctx context.Context) (*audio.Segment, error) {
	stream, err := l.source.Start()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := stream.Close(); err != nil {
			logging.LogWarn("Failed to close capture stream", zap.String("component", "capture"), zap.Error(err))
		}
	}()

	l.console.Info("   Recording... Speak now. Recording stops after a pause or at the time limit.")
	return l.segmenter.Record(ctx, stream)
}

func (l *Listener) textFallback(ctx context.Context) (stt.Input, error) {
	text, err := l.console.ReadLine(ctx, "   Your voice input (type here as fallback):")
	if err != nil {
		if errors.Is(err, io.EOF) {
			l.console.Warn("   No input available.")
			return nil, nil
		}
		return nil, err
	}
	if text == "" {
		l.console.Warn("   No input received.")
		return nil, nil
	}
	return stt.LiteralText(text), nil
}
