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

//go:build !portaudio

package audio

// Microphone is unavailable without the portaudio build tag
type Microphone struct{}

// OpenMicrophone always fails; rebuild with -tags portaudio for live capture.
func OpenMicrophone(framesPerBuffer int) (*Microphone, error) {
	return nil, ErrNoAudioSource
}

// Start always fails in builds without PortAudio
func (m *Microphone) Start() (Stream, error) {
	return nil, ErrNoAudioSource
}

// Terminate is a no-op in builds without PortAudio
func (m *Microphone) Terminate() error {
	return nil
}
