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
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/loqalabs/loqa-orbit/internal/logging"
	"go.uber.org/zap"
)

// ChunkSource delivers successive chunks of live audio. ReadChunk blocks
// until n samples are available and returns io.EOF once the source ends.
type ChunkSource interface {
	ReadChunk(ctx context.Context, n int) ([]float32, error)
}

// Stream is an open capture stream
type Stream interface {
	ChunkSource
	Close() error
}

// Source opens a fresh capture stream for each recording
type Source interface {
	Start() (Stream, error)
}

// StopReason records why a recording ended
type StopReason string

const (
	StopEndOfSpeech     StopReason = "end_of_speech"
	StopMaxDuration     StopReason = "max_duration"
	StopSourceExhausted StopReason = "source_exhausted"
)

// Segment is one utterance bounded by VAD decisions
type Segment struct {
	Samples Buffer
	Chunks  int
	Reason  StopReason
}

// SegmenterOptions holds the VAD tuning knobs
type SegmenterOptions struct {
	ChunkDuration    time.Duration
	SilenceThreshold float64
	EndOfSpeech      time.Duration
	MaxRecord        time.Duration
}

// DefaultSegmenterOptions returns the stock VAD tuning
func DefaultSegmenterOptions() SegmenterOptions {
	return SegmenterOptions{
		ChunkDuration:    300 * time.Millisecond,
		SilenceThreshold: 0.008,
		EndOfSpeech:      1500 * time.Millisecond,
		MaxRecord:        20 * time.Second,
	}
}

// Segmenter cuts a live stream into a single utterance using an RMS energy gate
type Segmenter struct {
	chunkSamples  int
	threshold     float64
	silenceChunks int
	maxChunks     int
}

// NewSegmenter derives chunk counts from the option durations
func NewSegmenter(opts SegmenterOptions) *Segmenter {
	chunkMs := opts.ChunkDuration.Milliseconds()
	if chunkMs <= 0 {
		chunkMs = 300
	}
	s := &Segmenter{
		chunkSamples:  int(int64(SampleRate) * chunkMs / 1000),
		threshold:     opts.SilenceThreshold,
		silenceChunks: int(opts.EndOfSpeech.Milliseconds() / chunkMs),
		maxChunks:     int(opts.MaxRecord.Milliseconds() / chunkMs),
	}
	if s.silenceChunks < 1 {
		s.silenceChunks = 1
	}
	if s.maxChunks < 1 {
		s.maxChunks = 1
	}
	return s
}

// ChunkSamples returns the number of samples analysed per VAD decision
func (s *Segmenter) ChunkSamples() int { return s.chunkSamples }

// SilenceChunks returns the consecutive silent chunks that end speech
func (s *Segmenter) SilenceChunks() int { return s.silenceChunks }

// MaxChunks returns the hard cap on chunks per utterance
func (s *Segmenter) MaxChunks() int { return s.maxChunks }

// Record consumes chunks from src until end of speech, the duration cap, or
// the end of the source. Every consumed chunk is kept. A recording in which
// no chunk reached the threshold yields a nil segment.
func (s *Segmenter) Record(ctx context.Context, src ChunkSource) (*Segment, error) {
	var (
		samples    Buffer
		chunks     int
		silent     int
		heardVoice bool
		reason     StopReason
	)

	logging.Sugar.Infow("🎙️ Recording... speak now",
		"end_of_speech_chunks", s.silenceChunks,
		"max_chunks", s.maxChunks)

	for chunks < s.maxChunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk, err := src.ReadChunk(ctx, s.chunkSamples)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read audio chunk: %w", err)
		}
		if len(chunk) > 0 {
			samples = append(samples, chunk...)
			chunks++

			if RMS(chunk) < s.threshold {
				silent++
			} else {
				if silent > 0 && heardVoice {
					logging.Sugar.Debugw("Speech resumed after brief silence", "silent_chunks", silent)
				}
				silent = 0
				heardVoice = true
			}
		}
		if err != nil || len(chunk) == 0 {
			reason = StopSourceExhausted
			break
		}

		if silent >= s.silenceChunks {
			reason = StopEndOfSpeech
			break
		}
	}
	if reason == "" {
		reason = StopMaxDuration
	}

	logging.Logger.Info("🎙️ Recording stopped",
		zap.String("reason", string(reason)),
		zap.Int("chunks", chunks),
		zap.Duration("duration", samples.Duration()),
		zap.Bool("speech_detected", heardVoice))

	if !heardVoice {
		return nil, nil
	}
	return &Segment{Samples: samples, Chunks: chunks, Reason: reason}, nil
}
