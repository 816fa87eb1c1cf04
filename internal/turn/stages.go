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

// Package turn drives conversational turns through capture, transcription,
// retrieval, generation, and synthesis.
package turn

import (
	"context"

	"github.com/loqalabs/loqa-orbit/internal/events"
	"github.com/loqalabs/loqa-orbit/internal/generation"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/loqalabs/loqa-orbit/internal/speech"
	"github.com/loqalabs/loqa-orbit/internal/stt"
	"go.uber.org/zap"
)

// Listener captures the user's next input. A nil Input means nothing usable
// was captured.
type Listener interface {
	Listen(ctx context.Context) (stt.Input, error)
}

// Transcriber turns input into text
type Transcriber interface {
	Transcribe(ctx context.Context, in stt.Input) stt.Result
}

// ContextRetriever returns knowledge-base context for a query, or a sentinel
type ContextRetriever interface {
	ContextText(ctx context.Context, query string) string
}

// ResponseGenerator produces a reply that is never empty
type ResponseGenerator interface {
	Generate(ctx context.Context, query, contextText string) generation.Reply
}

// SpeechSynthesizer writes reply audio to disk
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (*speech.Artifact, bool)
}

// Speaker says text out loud, or prints it when it cannot
type Speaker interface {
	Say(ctx context.Context, text string) bool
}

// Sink receives every completed turn
type Sink interface {
	Record(event *events.TurnEvent) error
}

// Stages are the text-side stages shared by both front ends
type Stages struct {
	Transcriber Transcriber
	Retriever   ContextRetriever
	Generator   ResponseGenerator
}

func recordEvent(sinks []Sink, event *events.TurnEvent) {
	for _, sink := range sinks {
		if err := sink.Record(event); err != nil {
			logging.LogError(err, "Failed to record turn event",
				zap.String("component", "turn"),
				zap.String("event_uuid", event.UUID),
			)
		}
	}
}
