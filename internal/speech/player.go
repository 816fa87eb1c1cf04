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
	"errors"
)

// ErrPlaybackUnavailable is returned when no audio output device can be used
var ErrPlaybackUnavailable = errors.New("audio playback unavailable")

// Player plays a synthesized artifact and returns when playback ends
type Player interface {
	Play(ctx context.Context, path string) error
}

// NopPlayer never plays anything
type NopPlayer struct{}

// Play always reports that playback is unavailable
func (NopPlayer) Play(ctx context.Context, path string) error {
	return ErrPlaybackUnavailable
}
