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
	"io"
	"math"
	"testing"
	"time"
)

// levelSource emits one constant-amplitude chunk per level, then io.EOF
type levelSource struct {
	levels []float32
	reads  int
	err    error
}

func (s *levelSource) ReadChunk(ctx context.Context, n int) ([]float32, error) {
	if s.reads >= len(s.levels) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	chunk := make([]float32, n)
	for i := range chunk {
		chunk[i] = s.levels[s.reads]
	}
	s.reads++
	return chunk, nil
}

func levels(v float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

const (
	quiet = float32(0.001)
	loud  = float32(0.1)
)

func TestNewSegmenterDerivesChunkCounts(t *testing.T) {
	s := NewSegmenter(DefaultSegmenterOptions())

	if s.ChunkSamples() != 4800 {
		t.Errorf("ChunkSamples() = %d, want 4800", s.ChunkSamples())
	}
	if s.SilenceChunks() != 5 {
		t.Errorf("SilenceChunks() = %d, want 5", s.SilenceChunks())
	}
	if s.MaxChunks() != 66 {
		t.Errorf("MaxChunks() = %d, want 66", s.MaxChunks())
	}
}

func TestSegmenterRecord(t *testing.T) {
	tests := []struct {
		name       string
		levels     []float32
		wantNil    bool
		wantChunks int
		wantReason StopReason
	}{
		{
			name:    "single silent chunk",
			levels:  levels(quiet, 1),
			wantNil: true,
		},
		{
			name:    "long silence stops at end of speech and is absent",
			levels:  levels(quiet, 40),
			wantNil: true,
		},
		{
			name:    "silence past the cap is absent",
			levels:  levels(0, 100),
			wantNil: true,
		},
		{
			name:    "empty source",
			levels:  nil,
			wantNil: true,
		},
		{
			name:       "speech then silence stops exactly at the silence boundary",
			levels:     append(levels(loud, 3), levels(quiet, 20)...),
			wantChunks: 8,
			wantReason: StopEndOfSpeech,
		},
		{
			name:       "pause shorter than threshold does not stop",
			levels:     append(append(append(levels(loud, 2), levels(quiet, 4)...), levels(loud, 2)...), levels(quiet, 10)...),
			wantChunks: 13,
			wantReason: StopEndOfSpeech,
		},
		{
			name:       "continuous speech stops at the cap",
			levels:     levels(loud, 200),
			wantChunks: 66,
			wantReason: StopMaxDuration,
		},
		{
			name:       "source ends mid speech",
			levels:     levels(loud, 4),
			wantChunks: 4,
			wantReason: StopSourceExhausted,
		},
		{
			name:       "threshold level counts as speech",
			levels:     append(levels(0.008, 1), levels(quiet, 5)...),
			wantChunks: 6,
			wantReason: StopEndOfSpeech,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := NewSegmenter(DefaultSegmenterOptions())
			src := &levelSource{levels: tt.levels}

			got, err := seg.Record(context.Background(), src)
			if err != nil {
				t.Fatalf("Record() error = %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Fatalf("Record() = %d chunks (%s), want absent", got.Chunks, got.Reason)
				}
				return
			}
			if got == nil {
				t.Fatal("Record() = nil, want a segment")
			}
			if got.Chunks != tt.wantChunks {
				t.Errorf("Chunks = %d, want %d", got.Chunks, tt.wantChunks)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %s, want %s", got.Reason, tt.wantReason)
			}
			if len(got.Samples) != tt.wantChunks*seg.ChunkSamples() {
				t.Errorf("len(Samples) = %d, want %d", len(got.Samples), tt.wantChunks*seg.ChunkSamples())
			}
			if src.reads != tt.wantChunks {
				t.Errorf("source read %d chunks, want %d", src.reads, tt.wantChunks)
			}
		})
	}
}

func TestSegmenterLeadingSilenceEndsRecording(t *testing.T) {
	// Leading silence counts toward end of speech: speech after the
	// boundary is never consumed.
	seg := NewSegmenter(DefaultSegmenterOptions())
	src := &levelSource{levels: append(levels(quiet, 5), levels(loud, 5)...)}

	got, err := seg.Record(context.Background(), src)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got != nil {
		t.Errorf("Record() = %+v, want absent", got)
	}
	if src.reads != 5 {
		t.Errorf("source read %d chunks, want 5", src.reads)
	}
}

func TestSegmenterKeepsLeadingSoftChunks(t *testing.T) {
	seg := NewSegmenter(DefaultSegmenterOptions())
	src := &levelSource{levels: append(append(levels(quiet, 2), levels(loud, 1)...), levels(quiet, 5)...)}

	got, err := seg.Record(context.Background(), src)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got == nil || got.Chunks != 8 {
		t.Fatalf("Record() = %+v, want 8 chunks", got)
	}
	if got.Samples[0] != quiet {
		t.Errorf("first sample = %v, want the leading soft chunk %v", got.Samples[0], quiet)
	}
}

func TestSegmenterSourceError(t *testing.T) {
	seg := NewSegmenter(DefaultSegmenterOptions())
	boom := errors.New("device unplugged")
	src := &levelSource{levels: levels(loud, 2), err: boom}

	_, err := seg.Record(context.Background(), src)
	if !errors.Is(err, boom) {
		t.Errorf("Record() error = %v, want %v", err, boom)
	}
}

func TestSegmenterCancelled(t *testing.T) {
	seg := NewSegmenter(DefaultSegmenterOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := seg.Record(ctx, &levelSource{levels: levels(loud, 10)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Record() error = %v, want context.Canceled", err)
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := RMS([]float32{0.5, -0.5, 0.5, -0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS(square) = %v, want 0.5", got)
	}
	if got := RMS([]float32{3, 4}); math.Abs(got-math.Sqrt(12.5)) > 1e-6 {
		t.Errorf("RMS(3,4) = %v, want %v", got, math.Sqrt(12.5))
	}
}

func TestBufferDuration(t *testing.T) {
	if got := Buffer(make([]float32, 24000)).Duration(); got != 1500*time.Millisecond {
		t.Errorf("Duration() = %v, want 1.5s", got)
	}
}
