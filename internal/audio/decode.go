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

package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Container names understood by the decoder and the HTTP layer
const (
	ContainerWebM = "webm"
	ContainerMP4  = "mp4"
	ContainerOgg  = "ogg"
	ContainerWAV  = "wav"
	ContainerMP3  = "mp3"
)

// DecodeToPCM16k decodes an encoded blob to mono samples at SampleRate.
// WAV, MP3 and Ogg/Vorbis decode in-process; anything else needs the
// external transcoder and returns ErrUnsupportedContainer.
func DecodeToPCM16k(data []byte, container string) (Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("empty audio payload")
	}
	if container == "" {
		container = sniffContainer(data)
	}

	switch strings.ToLower(container) {
	case ContainerWAV:
		return decodeWAV(bytes.NewReader(data))
	case ContainerMP3:
		return decodeMP3(bytes.NewReader(data))
	case ContainerOgg, "oga":
		return decodeOggVorbis(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContainer, container)
	}
}

// DecodeFileToPCM16k decodes a file, choosing the decoder from its extension
func DecodeFileToPCM16k(path string) (Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeToPCM16k(data, ext)
}

func sniffContainer(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	switch {
	case string(data[:4]) == "RIFF":
		return ContainerWAV
	case string(data[:4]) == "OggS":
		return ContainerOgg
	case string(data[:3]) == "ID3" || (data[0] == 0xFF && data[1]&0xE0 == 0xE0):
		return ContainerMP3
	case bytes.Equal(data[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return ContainerWebM
	}
	return ""
}

func decodeWAV(r io.ReadSeeker) (Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav: %w", err)
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, errors.New("empty wav")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	x := intSliceToFloat32(pb.Data, bitDepth)

	channels, rate := 1, SampleRate
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			rate = pb.Format.SampleRate
		}
	}
	x = downmixInterleaved(x, channels)
	return Resample(x, rate, SampleRate), nil
}

func decodeMP3(r io.Reader) (Buffer, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3: %w", err)
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, fmt.Errorf("failed to decode mp3: %w", err)
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}
	// go-mp3 always emits 16-bit stereo
	x := downmixInterleaved(int16SliceToFloat32(ints), 2)

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	return Resample(x, rate, SampleRate), nil
}

func decodeOggVorbis(r io.Reader) (Buffer, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ogg/vorbis: %w", err)
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	x := downmixInterleaved(pcm, format.Channels)
	return Resample(x, format.SampleRate, SampleRate), nil
}
