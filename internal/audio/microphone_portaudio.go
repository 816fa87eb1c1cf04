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

//go:build portaudio

package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"go.uber.org/zap"
)

// Microphone captures mono 16 kHz audio from the default input device
type Microphone struct {
	framesPerBuffer int
	mu              sync.Mutex
	terminated      bool
}

// OpenMicrophone initializes PortAudio and checks that an input device exists
func OpenMicrophone(framesPerBuffer int) (*Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAudioSource, err)
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: no default input device", ErrNoAudioSource)
	}

	logging.Sugar.Infow("🎤 Microphone initialized",
		"device", dev.Name,
		"sample_rate", SampleRate,
		"frames_per_buffer", framesPerBuffer)

	return &Microphone{framesPerBuffer: framesPerBuffer}, nil
}

// Start opens and starts a capture stream for one recording
func (m *Microphone) Start() (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return nil, ErrNoAudioSource
	}

	buf := make([]float32, m.framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(SampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}
	return &micStream{stream: stream, buf: buf}, nil
}

// Terminate releases PortAudio
func (m *Microphone) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return nil
	}
	m.terminated = true
	return portaudio.Terminate()
}

type micStream struct {
	stream *portaudio.Stream
	buf    []float32
}

func (s *micStream) ReadChunk(ctx context.Context, n int) ([]float32, error) {
	out := make([]float32, 0, n)
	for len(out) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				logging.LogWarn("Input overflow during recording", zap.String("component", "audio"))
			} else {
				return nil, fmt.Errorf("failed to read input stream: %w", err)
			}
		}
		out = append(out, s.buf...)
	}
	return out[:n], nil
}

func (s *micStream) Close() error {
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}
