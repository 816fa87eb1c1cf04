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

package health

import (
	"sync"
	"time"

	"github.com/loqalabs/loqa-orbit/internal/events"
	"github.com/loqalabs/loqa-orbit/internal/logging"
)

// Recommendation thresholds
const (
	slowTurnThreshold       = 10 * time.Second
	failureRateThreshold    = 20.0 // percent
	unheardRateThreshold    = 30.0 // percent of audio turns
	minTurnsForRecommending = 5
)

// TurnMonitor aggregates latency and outcome figures over completed turns.
// It is a turn event sink.
type TurnMonitor struct {
	mutex sync.RWMutex

	turns           uint64
	failures        uint64
	audioTurns      uint64
	unheardAudio    uint64
	totalProcessing time.Duration
	maxProcessing   time.Duration
	minProcessing   time.Duration
	strategies      map[string]uint64
	lastTurn        time.Time
	recommendations []string
}

// TurnMetrics is a snapshot of a TurnMonitor
type TurnMetrics struct {
	Turns                 uint64            `json:"turns"`
	Failures              uint64            `json:"failures"`
	AudioTurns            uint64            `json:"audio_turns"`
	UnheardAudio          uint64            `json:"unheard_audio"`
	AverageProcessingMs   int64             `json:"average_processing_ms"`
	MaxProcessingMs       int64             `json:"max_processing_ms"`
	MinProcessingMs       int64             `json:"min_processing_ms"`
	TranscriptionStrategy map[string]uint64 `json:"transcription_strategy"`
	LastTurn              time.Time         `json:"last_turn"`
	Recommendations       []string          `json:"recommendations,omitempty"`
}

// NewTurnMonitor creates an empty monitor
func NewTurnMonitor() *TurnMonitor {
	return &TurnMonitor{strategies: make(map[string]uint64)}
}

// Record adds one completed turn
func (m *TurnMonitor) Record(event *events.TurnEvent) error {
	if event == nil {
		return nil
	}
	processing := time.Duration(event.ProcessingTime) * time.Millisecond

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.turns++
	m.totalProcessing += processing
	if processing > m.maxProcessing {
		m.maxProcessing = processing
	}
	if m.turns == 1 || processing < m.minProcessing {
		m.minProcessing = processing
	}
	if !event.Success {
		m.failures++
	}
	if event.InputKind == "microphone" || event.InputKind == "upload" {
		m.audioTurns++
		if event.Strategy == "" {
			m.unheardAudio++
		}
	}
	if event.Strategy != "" {
		m.strategies[event.Strategy]++
	}
	m.lastTurn = event.Timestamp

	m.updateRecommendations()
	return nil
}

// Metrics returns the current figures
func (m *TurnMonitor) Metrics() TurnMetrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	metrics := TurnMetrics{
		Turns:                 m.turns,
		Failures:              m.failures,
		AudioTurns:            m.audioTurns,
		UnheardAudio:          m.unheardAudio,
		MaxProcessingMs:       m.maxProcessing.Milliseconds(),
		MinProcessingMs:       m.minProcessing.Milliseconds(),
		TranscriptionStrategy: make(map[string]uint64, len(m.strategies)),
		LastTurn:              m.lastTurn,
		Recommendations:       append([]string(nil), m.recommendations...),
	}
	if m.turns > 0 {
		//nolint:gosec // turn counts stay far below MaxInt64
		metrics.AverageProcessingMs = (m.totalProcessing / time.Duration(m.turns)).Milliseconds()
	}
	for name, n := range m.strategies {
		metrics.TranscriptionStrategy[name] = n
	}
	return metrics
}

func (m *TurnMonitor) updateRecommendations() {
	m.recommendations = nil
	if m.turns < minTurnsForRecommending {
		return
	}

	//nolint:gosec // turn counts stay far below MaxInt64
	if avg := m.totalProcessing / time.Duration(m.turns); avg > slowTurnThreshold {
		m.recommendations = append(m.recommendations,
			"Turns are slow (>10s on average). Check the generation and TTS backends.")
	}

	if rate := float64(m.failures) / float64(m.turns) * 100; rate > failureRateThreshold {
		m.recommendations = append(m.recommendations,
			"Many turns fail. Check the logs for the failing stage.")
	}

	if m.audioTurns > 0 {
		if rate := float64(m.unheardAudio) / float64(m.audioTurns) * 100; rate > unheardRateThreshold {
			m.recommendations = append(m.recommendations,
				"Much of the audio is not understood. Check the speech model and ffmpeg.")
		}
	}
}

// LogSummary logs the current figures
func (m *TurnMonitor) LogSummary() {
	metrics := m.Metrics()

	logging.Sugar.Infow("Turn summary",
		"turns", metrics.Turns,
		"failures", metrics.Failures,
		"avg_processing_ms", metrics.AverageProcessingMs,
		"max_processing_ms", metrics.MaxProcessingMs,
		"audio_turns", metrics.AudioTurns,
		"unheard_audio", metrics.UnheardAudio)

	if len(metrics.Recommendations) > 0 {
		logging.Sugar.Warnw("Turn recommendations", "recommendations", metrics.Recommendations)
	}
}
