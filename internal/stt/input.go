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

import "github.com/loqalabs/loqa-orbit/internal/audio"

// Input is what a turn hands to the transcription chain: either text the
// user typed or audio to be transcribed.
type Input interface {
	isInput()
}

// LiteralText is already-transcribed user input
type LiteralText string

func (LiteralText) isInput() {}

// RawAudio is captured or uploaded audio. Samples holds 16 kHz mono PCM from
// the microphone; Encoded holds an uploaded blob in Container format. Path,
// when set, is a file on disk with the same content as Encoded.
type RawAudio struct {
	Samples   audio.Buffer
	Encoded   []byte
	Container string
	Path      string
}

func (RawAudio) isInput() {}

// Kind names the input variant for logging and turn records
func Kind(in Input) string {
	switch v := in.(type) {
	case LiteralText:
		return "text"
	case RawAudio:
		if len(v.Samples) > 0 {
			return "microphone"
		}
		return "upload"
	default:
		return "none"
	}
}
