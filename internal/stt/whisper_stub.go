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

//go:build !whisper

package stt

import (
	"context"
	"errors"
)

// WhisperModel is a stub used when whisper.cpp is not compiled in
type WhisperModel struct{}

// NewWhisperModel fails in builds without the whisper tag
func NewWhisperModel(modelPath, language string) (*WhisperModel, error) {
	return nil, errors.New("whisper transcription disabled (build with -tags whisper to enable)")
}

// TranscribePCM always fails in the stub
func (wm *WhisperModel) TranscribePCM(ctx context.Context, samples []float32) (string, error) {
	return "", ErrModelUnavailable
}

// Close is a no-op in the stub
func (wm *WhisperModel) Close() error {
	return nil
}
