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

package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mode identifies which front end produced a turn
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeAPI         Mode = "api"
)

// Resource is a titled piece of supporting text returned alongside a reply
type Resource struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// TurnEvent records one conversational turn from input to reply
type TurnEvent struct {
	// Core identification
	UUID      string    `json:"uuid" db:"uuid"`
	SessionID string    `json:"session_id" db:"session_id"`
	Mode      Mode      `json:"mode" db:"mode"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// Input
	InputKind     string  `json:"input_kind" db:"input_kind"`
	AudioDuration float64 `json:"audio_duration" db:"audio_duration"`

	// Processing results
	Transcription string `json:"transcription" db:"transcription"`
	Strategy      string `json:"strategy" db:"strategy"`
	Context       string `json:"context" db:"context"`

	// Response data
	ResponseText   string     `json:"response_text" db:"response_text"`
	AudioURL       string     `json:"audio_url,omitempty" db:"audio_url"`
	Resources      []Resource `json:"resources" db:"resources"`
	ProcessingTime int64      `json:"processing_time_ms" db:"processing_time_ms"`
	Success        bool       `json:"success" db:"success"`
	ErrorMessage   string     `json:"error_message,omitempty" db:"error_message"`
}

// NewTurnEvent creates a TurnEvent with a fresh UUID and the current timestamp
func NewTurnEvent(sessionID string, mode Mode) *TurnEvent {
	return &TurnEvent{
		UUID:      uuid.NewString(),
		SessionID: sessionID,
		Mode:      mode,
		Timestamp: time.Now(),
		Resources: []Resource{},
		Success:   true,
	}
}

// SetInput records what kind of input started the turn
func (te *TurnEvent) SetInput(kind string, audioDuration time.Duration) {
	te.InputKind = kind
	te.AudioDuration = audioDuration.Seconds()
}

// SetTranscription records the transcribed text and the strategy that produced it
func (te *TurnEvent) SetTranscription(text, strategy string) {
	te.Transcription = text
	te.Strategy = strategy
}

// SetContext records the retrieved context handed to generation
func (te *TurnEvent) SetContext(context string) {
	te.Context = context
}

// SetResponse sets the reply and marks processing as complete
func (te *TurnEvent) SetResponse(text, audioURL string, resources []Resource) {
	te.ResponseText = text
	te.AudioURL = audioURL
	if resources != nil {
		te.Resources = resources
	}
	te.ProcessingTime = time.Since(te.Timestamp).Milliseconds()
}

// SetError marks the event as failed. The reply, if any, is kept.
func (te *TurnEvent) SetError(err error) {
	te.Success = false
	te.ErrorMessage = err.Error()
	te.ProcessingTime = time.Since(te.Timestamp).Milliseconds()
}

// ResourcesJSON returns resources as a JSON string for database storage
func (te *TurnEvent) ResourcesJSON() (string, error) {
	if len(te.Resources) == 0 {
		return "[]", nil
	}

	data, err := json.Marshal(te.Resources)
	if err != nil {
		return "", fmt.Errorf("failed to marshal resources: %w", err)
	}

	return string(data), nil
}

// SetResourcesFromJSON parses a JSON string and sets resources
func (te *TurnEvent) SetResourcesFromJSON(jsonStr string) error {
	if jsonStr == "" || jsonStr == "[]" {
		te.Resources = []Resource{}
		return nil
	}

	var resources []Resource
	if err := json.Unmarshal([]byte(jsonStr), &resources); err != nil {
		return fmt.Errorf("failed to unmarshal resources JSON: %w", err)
	}

	te.Resources = resources
	return nil
}

// IsValid performs basic validation on the turn event
func (te *TurnEvent) IsValid() error {
	if te.UUID == "" {
		return fmt.Errorf("UUID is required")
	}

	if te.SessionID == "" {
		return fmt.Errorf("sessionID is required")
	}

	if te.Mode != ModeInteractive && te.Mode != ModeAPI {
		return fmt.Errorf("unknown mode %q", te.Mode)
	}

	if te.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if te.ProcessingTime < 0 {
		return fmt.Errorf("processing time must not be negative")
	}

	return nil
}

// String returns a human-readable representation of the turn event
func (te *TurnEvent) String() string {
	return fmt.Sprintf("TurnEvent{UUID: %s, Session: %s, Mode: %s, Input: %s, Transcription: %q, Strategy: %s, Success: %t}",
		te.UUID, te.SessionID, te.Mode, te.InputKind, te.Transcription, te.Strategy, te.Success)
}
