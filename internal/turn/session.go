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

package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-orbit/internal/events"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/loqalabs/loqa-orbit/internal/security"
	"github.com/loqalabs/loqa-orbit/internal/stt"
	"go.uber.org/zap"
)

// farewellTimeout bounds speech after the session context is gone
const farewellTimeout = 15 * time.Second

var (
	errNoInput         = errors.New("no input captured")
	errNotUnderstood   = errors.New("transcription produced no text")
	errDegradedReply   = errors.New("generation backend unavailable")
	errSessionStopping = errors.New("session interrupted")
)

// Display shows the conversation as text alongside speech
type Display interface {
	User(text string)
	Agent(text string)
	Warn(format string, args ...any)
}

// SessionConfig wires a Session. Display and Sinks are optional.
type SessionConfig struct {
	Listener Listener
	Stages   Stages
	Speaker  Speaker
	Display  Display
	Sinks    []Sink
}

// Session runs the interactive conversation loop
type Session struct {
	id       string
	listener Listener
	stages   Stages
	speaker  Speaker
	display  Display
	sinks    []Sink

	mu    sync.RWMutex
	state State
}

// NewSession creates an idle session
func NewSession(cfg SessionConfig) *Session {
	return &Session{
		id:       uuid.NewString(),
		listener: cfg.Listener,
		stages:   cfg.Stages,
		speaker:  cfg.Speaker,
		display:  cfg.Display,
		sinks:    cfg.Sinks,
		state:    Idle,
	}
}

// ID identifies the session in turn records
func (s *Session) ID() string { return s.id }

// State returns the current orchestrator state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run greets the user and processes turns until an exit phrase is heard or
// ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	logging.Sugar.Infow("🚀 Conversation started", "session_id", s.id)
	s.say(ctx, Greeting)

	for {
		if ctx.Err() != nil {
			s.interrupt(ctx)
			break
		}
		if !s.RunTurn(ctx) {
			break
		}
	}

	logging.Sugar.Infow("Conversation ended", "session_id", s.id)
}

// RunTurn processes one turn and reports whether the conversation continues.
// Failures inside the turn are answered with an apology and never end the
// session; only an exit phrase, a closed console, or ctx cancellation do.
func (s *Session) RunTurn(ctx context.Context) (cont bool) {
	event := events.NewTurnEvent(s.id, events.ModeInteractive)
	turnID := event.UUID

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("unexpected error in conversation loop: %v", r)
			logging.LogError(err, "Turn recovered", zap.String("turn_id", turnID))
			event.SetError(err)
			s.reply(ctx, event, SnagReply)
			cont = true
		}
		if cont {
			s.setState(Idle)
		} else {
			s.setState(Ending)
		}
		recordEvent(s.sinks, event)
	}()

	s.setState(Capturing)
	logging.LogTurnStage(turnID, Capturing.String())

	in, err := s.listener.Listen(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, io.EOF) {
			event.SetError(errSessionStopping)
			s.interrupt(ctx)
			return false
		}
		logging.LogError(err, "Capture failed", zap.String("turn_id", turnID))
		in = nil
	}
	if in == nil {
		event.SetError(errNoInput)
		s.reply(ctx, event, NotCaughtReply)
		return true
	}
	event.SetInput(stt.Kind(in), inputDuration(in))

	s.setState(Transcribing)
	logging.LogTurnStage(turnID, Transcribing.String(), zap.String("input_kind", stt.Kind(in)))

	result := s.stages.Transcriber.Transcribe(ctx, in)
	if !result.OK {
		if ctx.Err() != nil {
			event.SetError(errSessionStopping)
			s.interrupt(ctx)
			return false
		}
		event.SetError(errNotUnderstood)
		s.reply(ctx, event, NotUnderstood)
		return true
	}
	query := result.Text
	event.SetTranscription(query, result.Strategy)
	if s.display != nil {
		s.display.User(query)
	}

	if IsExitPhrase(query) {
		s.setState(Ending)
		logging.LogTurnStage(turnID, Ending.String(), zap.String("phrase", security.SanitizeLogInput(query)))
		s.reply(ctx, event, Farewell)
		return false
	}

	s.setState(Retrieving)
	logging.LogTurnStage(turnID, Retrieving.String())
	contextText := s.stages.Retriever.ContextText(ctx, query)
	event.SetContext(contextText)

	s.setState(Generating)
	logging.LogTurnStage(turnID, Generating.String())
	reply := s.stages.Generator.Generate(ctx, query, contextText)

	s.setState(Synthesizing)
	logging.LogTurnStage(turnID, Synthesizing.String(), zap.Bool("degraded", reply.Degraded))
	if reply.Degraded {
		if s.display != nil {
			s.display.Warn("LLM response issue: %s", reply.Text)
		}
		event.SetError(errDegradedReply)
		s.reply(ctx, event, TroubleThinking)
		return true
	}

	if s.display != nil {
		s.display.Agent(reply.Text)
	}
	s.reply(ctx, event, reply.Text)
	return true
}

// reply speaks text and records it as the turn's response
func (s *Session) reply(ctx context.Context, event *events.TurnEvent, text string) {
	s.say(ctx, text)
	event.SetResponse(text, "", nil)
}

// say runs the speaker, which may be called from RunTurn's recover, so a
// panic here must not escape.
func (s *Session) say(ctx context.Context, text string) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogError(fmt.Errorf("speaker panicked: %v", r), "Speech failed",
				zap.String("session_id", s.id))
			if s.display != nil {
				s.display.Agent(text)
			}
		}
	}()
	s.speaker.Say(ctx, text)
}

// interrupt says the interrupt farewell even though ctx may already be done
func (s *Session) interrupt(ctx context.Context) {
	s.setState(Ending)
	if s.display != nil {
		s.display.Warn("Conversation interrupted.")
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), farewellTimeout)
	defer cancel()
	s.say(fctx, InterruptFarewell)
}

func inputDuration(in stt.Input) time.Duration {
	if raw, ok := in.(stt.RawAudio); ok {
		return raw.Samples.Duration()
	}
	return 0
}
