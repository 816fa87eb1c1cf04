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

package speech

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// playbackRate is the speaker rate; OpenAI TTS mp3 output is 24 kHz
const playbackRate = beep.SampleRate(24000)

// BeepPlayer plays mp3 artifacts on the default output device
type BeepPlayer struct {
	initOnce sync.Once
	initErr  error
	mu       sync.Mutex
}

// NewDefaultPlayer returns a speaker-backed player
func NewDefaultPlayer() (Player, error) {
	p := &BeepPlayer{}
	if err := p.init(); err != nil {
		return NopPlayer{}, fmt.Errorf("%w: %v", ErrPlaybackUnavailable, err)
	}
	return p, nil
}

func (p *BeepPlayer) init() error {
	p.initOnce.Do(func() {
		p.initErr = speaker.Init(playbackRate, playbackRate.N(time.Second/10))
	})
	return p.initErr
}

// Play decodes the mp3 at path and blocks until it has been played
func (p *BeepPlayer) Play(ctx context.Context, path string) error {
	if err := p.init(); err != nil {
		return fmt.Errorf("%w: %v", ErrPlaybackUnavailable, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to decode mp3: %w", err)
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if format.SampleRate != playbackRate {
		s = beep.Resample(4, format.SampleRate, playbackRate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}
