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
)

// ErrModelUnavailable is returned by speech models that were never loaded
var ErrModelUnavailable = errors.New("speech model unavailable")

// SpeechModel turns 16 kHz mono samples into text
type SpeechModel interface {
	TranscribePCM(ctx context.Context, samples []float32) (string, error)
	Close() error
}

// EncodedTranscriber is implemented by models that accept an encoded
// upload as-is, so the direct strategy can skip in-process decoding.
type EncodedTranscriber interface {
	TranscribeEncoded(ctx context.Context, data []byte, container string) (string, error)
}

// UnavailableModel stands in when no speech model could be loaded
type UnavailableModel struct {
	Reason error
}

// TranscribePCM always fails
func (m UnavailableModel) TranscribePCM(ctx context.Context, samples []float32) (string, error) {
	if m.Reason != nil {
		return "", errors.Join(ErrModelUnavailable, m.Reason)
	}
	return "", ErrModelUnavailable
}

// Close is a no-op
func (UnavailableModel) Close() error { return nil }
