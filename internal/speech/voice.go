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

package speech

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-orbit/internal/logging"
	"go.uber.org/zap"
)

// Printer shows text that could not be spoken
type Printer interface {
	MockSpeech(text string)
}

// Voice speaks replies in the interactive agent, falling back to the console
type Voice struct {
	synth   *Synthesizer
	player  Player
	printer Printer
}

// NewVoice creates a voice. player may be nil.
func NewVoice(synth *Synthesizer, player Player, printer Printer) *Voice {
	if player == nil {
		player = NopPlayer{}
	}
	return &Voice{synth: synth, player: player, printer: printer}
}

// Say synthesizes and plays text. When either step fails the text is
// printed instead. It reports whether the text was heard as audio.
func (v *Voice) Say(ctx context.Context, text string) bool {
	artifact, ok := v.synth.Synthesize(ctx, text)
	if ok {
		err := v.play(ctx, artifact.Path)
		if err == nil {
			return true
		}
		logging.LogWarn("Playback failed, printing instead",
			zap.String("component", "tts"),
			zap.String("artifact", artifact.Name),
			zap.Error(err))
	}
	if v.printer != nil {
		v.printer.MockSpeech(text)
	}
	return false
}

// play turns a panic in the decoder or the output device into an error
func (v *Voice) play(ctx context.Context, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: playback panicked: %v", ErrPlaybackUnavailable, r)
		}
	}()
	return v.player.Play(ctx, path)
}
