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
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/loqalabs/loqa-orbit/internal/events"
	"github.com/loqalabs/loqa-orbit/internal/generation"
	"github.com/loqalabs/loqa-orbit/internal/retrieval"
	"github.com/loqalabs/loqa-orbit/internal/speech"
	"github.com/loqalabs/loqa-orbit/internal/stt"
)

// scriptedListener returns its inputs in order, then io.EOF
type scriptedListener struct {
	inputs []stt.Input
	errs   []error
	calls  int
}

func (l *scriptedListener) Listen(ctx context.Context) (stt.Input, error) {
	i := l.calls
	l.calls++
	if i < len(l.errs) && l.errs[i] != nil {
		return nil, l.errs[i]
	}
	if i >= len(l.inputs) {
		return nil, io.EOF
	}
	return l.inputs[i], nil
}

// recordingBackend is a generation backend that remembers every prompt
type recordingBackend struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (b *recordingBackend) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts = append(b.prompts, prompt)
	return b.reply, b.err
}

func (b *recordingBackend) Name() string { return "recording" }

// countingTTS is a speech backend that returns a few bytes per request
type countingTTS struct {
	mu    sync.Mutex
	texts []string
}

func (c *countingTTS) Synthesize(ctx context.Context, text string, options *speech.TTSOptions) (*speech.TTSResult, error) {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
	return &speech.TTSResult{
		Audio:       io.NopCloser(strings.NewReader("ID3fake-mp3")),
		ContentType: "audio/mpeg",
		Length:      -1,
	}, nil
}

func (c *countingTTS) Close() error { return nil }

// recordingSpeaker remembers what was said and in which state
type recordingSpeaker struct {
	session *Session
	said    []string
	states  []State
}

func (s *recordingSpeaker) Say(ctx context.Context, text string) bool {
	s.said = append(s.said, text)
	if s.session != nil {
		s.states = append(s.states, s.session.State())
	}
	return true
}

func (s *recordingSpeaker) last() string {
	if len(s.said) == 0 {
		return ""
	}
	return s.said[len(s.said)-1]
}

type recordingSink struct {
	events []*events.TurnEvent
	err    error
}

func (s *recordingSink) Record(event *events.TurnEvent) error {
	s.events = append(s.events, event)
	return s.err
}

// failingStrategy always fails with err
type failingStrategy struct {
	err error
}

func (f failingStrategy) Name() string { return "failing" }

func (f failingStrategy) Attempt(ctx context.Context, in stt.RawAudio) (string, error) {
	return "", f.err
}

// fixedStrategy always hears text
type fixedStrategy string

func (f fixedStrategy) Name() string { return "fixed" }

func (f fixedStrategy) Attempt(ctx context.Context, in stt.RawAudio) (string, error) {
	return string(f), nil
}

type panickingRetriever struct{}

func (panickingRetriever) ContextText(ctx context.Context, query string) string {
	panic("index corrupted")
}

// stateRecordingRetriever records the session state while retrieving
type stateRecordingRetriever struct {
	session *Session
	seen    State
}

func (p *stateRecordingRetriever) ContextText(ctx context.Context, query string) string {
	p.seen = p.session.State()
	return retrieval.NoContextSentinel
}

func emptyRetriever() *retrieval.Retriever {
	return retrieval.NewRetriever(context.Background(), nil, nil, retrieval.DefaultTopK)
}

func newTestSession(listener Listener, backend generation.Backend, speaker *recordingSpeaker, sinks ...Sink) *Session {
	session := NewSession(SessionConfig{
		Listener: listener,
		Stages: Stages{
			Transcriber: stt.NewChain(),
			Retriever:   emptyRetriever(),
			Generator:   generation.NewGenerator(backend, generation.DefaultTemperature),
		},
		Speaker: speaker,
		Sinks:   sinks,
	})
	speaker.session = session
	return session
}

func TestTypedHelloWithEmptyKnowledge(t *testing.T) {
	backend := &recordingBackend{reply: "Hi there, friend!"}
	speaker := &recordingSpeaker{}
	listener := &scriptedListener{inputs: []stt.Input{stt.LiteralText("hello")}}
	session := newTestSession(listener, backend, speaker)

	if !session.RunTurn(context.Background()) {
		t.Fatal("RunTurn() = false, want the conversation to continue")
	}

	if len(backend.prompts) != 1 {
		t.Fatalf("backend called %d times, want 1", len(backend.prompts))
	}
	prompt := backend.prompts[0]
	if !strings.Contains(prompt, `"hello"`) {
		t.Errorf("prompt does not contain the query: %q", prompt)
	}
	if !strings.Contains(prompt, retrieval.NoContextSentinel) {
		t.Errorf("prompt does not contain the no-context sentinel: %q", prompt)
	}
	if speaker.last() != "Hi there, friend!" {
		t.Errorf("spoke %q, want the reply", speaker.last())
	}
	if session.State() != Idle {
		t.Errorf("State() = %s, want idle", session.State())
	}
}

func TestExitPhraseEndsSessionAfterOneFarewell(t *testing.T) {
	for _, phrase := range []string{"quit", "QUIT", "  Quit ", "Exit", "thank you goodbye"} {
		t.Run(phrase, func(t *testing.T) {
			tts := &countingTTS{}
			voice := speech.NewVoice(speech.NewSynthesizer(tts, t.TempDir(), "mp3"), speech.NopPlayer{}, nil)
			backend := &recordingBackend{reply: "unused"}
			listener := &scriptedListener{inputs: []stt.Input{stt.LiteralText(phrase), stt.LiteralText("hello")}}

			session := NewSession(SessionConfig{
				Listener: listener,
				Stages: Stages{
					Transcriber: stt.NewChain(),
					Retriever:   emptyRetriever(),
					Generator:   generation.NewGenerator(backend, generation.DefaultTemperature),
				},
				Speaker: voice,
			})
			session.Run(context.Background())

			if listener.calls != 1 {
				t.Errorf("listened %d times, want 1", listener.calls)
			}
			if len(backend.prompts) != 0 {
				t.Errorf("generation called %d times, want 0", len(backend.prompts))
			}
			want := []string{Greeting, Farewell}
			if len(tts.texts) != len(want) {
				t.Fatalf("synthesized %q, want %q", tts.texts, want)
			}
			for i := range want {
				if tts.texts[i] != want[i] {
					t.Errorf("synthesis %d = %q, want %q", i, tts.texts[i], want[i])
				}
			}
			if session.State() != Ending {
				t.Errorf("State() = %s, want ending", session.State())
			}
		})
	}
}

func TestRunTurnDegradedPaths(t *testing.T) {
	tests := []struct {
		name      string
		input     stt.Input
		chain     *stt.Chain
		backend   *recordingBackend
		wantSaid  string
		wantCalls int
	}{
		{
			name:     "nothing captured",
			input:    nil,
			chain:    stt.NewChain(),
			backend:  &recordingBackend{reply: "unused"},
			wantSaid: NotCaughtReply,
		},
		{
			name:     "every strategy fails",
			input:    stt.RawAudio{Encoded: []byte("junk"), Container: "webm"},
			chain:    stt.NewChain(failingStrategy{err: errors.New("decode failed")}),
			backend:  &recordingBackend{reply: "unused"},
			wantSaid: NotUnderstood,
		},
		{
			name:     "blank typed text",
			input:    stt.LiteralText("   "),
			chain:    stt.NewChain(),
			backend:  &recordingBackend{reply: "unused"},
			wantSaid: NotUnderstood,
		},
		{
			name:      "generation unavailable",
			input:     stt.LiteralText("what time is it"),
			chain:     stt.NewChain(),
			backend:   &recordingBackend{err: generation.ErrBackendUnavailable},
			wantSaid:  TroubleThinking,
			wantCalls: 1,
		},
		{
			name:      "generation error",
			input:     stt.LiteralText("what time is it"),
			chain:     stt.NewChain(),
			backend:   &recordingBackend{err: errors.New("model crashed")},
			wantSaid:  TroubleThinking,
			wantCalls: 1,
		},
		{
			name:      "spoken input",
			input:     stt.RawAudio{Encoded: []byte("RIFF"), Container: "wav"},
			chain:     stt.NewChain(fixedStrategy("tell me a joke")),
			backend:   &recordingBackend{reply: "Why did the robot cross the road?"},
			wantSaid:  "Why did the robot cross the road?",
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			speaker := &recordingSpeaker{}
			sink := &recordingSink{}
			session := NewSession(SessionConfig{
				Listener: &scriptedListener{inputs: []stt.Input{tt.input}},
				Stages: Stages{
					Transcriber: tt.chain,
					Retriever:   emptyRetriever(),
					Generator:   generation.NewGenerator(tt.backend, generation.DefaultTemperature),
				},
				Speaker: speaker,
				Sinks:   []Sink{sink},
			})

			if !session.RunTurn(context.Background()) {
				t.Fatal("RunTurn() = false, want the conversation to continue")
			}
			if speaker.last() != tt.wantSaid {
				t.Errorf("spoke %q, want %q", speaker.last(), tt.wantSaid)
			}
			if len(tt.backend.prompts) != tt.wantCalls {
				t.Errorf("backend called %d times, want %d", len(tt.backend.prompts), tt.wantCalls)
			}
			if len(sink.events) != 1 {
				t.Fatalf("recorded %d events, want 1", len(sink.events))
			}
			if got := sink.events[0].ResponseText; got != tt.wantSaid {
				t.Errorf("recorded response %q, want %q", got, tt.wantSaid)
			}
		})
	}
}

func TestRunTurnRecoversPanics(t *testing.T) {
	speaker := &recordingSpeaker{}
	sink := &recordingSink{}
	session := NewSession(SessionConfig{
		Listener: &scriptedListener{inputs: []stt.Input{stt.LiteralText("hello")}},
		Stages: Stages{
			Transcriber: stt.NewChain(),
			Retriever:   panickingRetriever{},
			Generator:   generation.NewGenerator(&recordingBackend{reply: "x"}, 0.75),
		},
		Speaker: speaker,
		Sinks:   []Sink{sink},
	})

	if !session.RunTurn(context.Background()) {
		t.Fatal("RunTurn() = false after a panic, want the conversation to continue")
	}
	if speaker.last() != SnagReply {
		t.Errorf("spoke %q, want %q", speaker.last(), SnagReply)
	}
	if session.State() != Idle {
		t.Errorf("State() = %s, want idle", session.State())
	}
	if len(sink.events) != 1 || sink.events[0].Success {
		t.Errorf("recorded %+v, want one failed event", sink.events)
	}
}

// panickingSpeaker panics on every Say and counts the calls
type panickingSpeaker struct {
	calls int
}

func (s *panickingSpeaker) Say(ctx context.Context, text string) bool {
	s.calls++
	panic("speaker device lost")
}

func TestSpeakerPanicsDoNotEndSession(t *testing.T) {
	speaker := &panickingSpeaker{}
	sink := &recordingSink{}
	listener := &scriptedListener{inputs: []stt.Input{nil, stt.LiteralText("hello")}}
	session := NewSession(SessionConfig{
		Listener: listener,
		Stages: Stages{
			Transcriber: stt.NewChain(),
			Retriever:   emptyRetriever(),
			Generator:   generation.NewGenerator(&recordingBackend{reply: "Hi!"}, generation.DefaultTemperature),
		},
		Speaker: speaker,
		Sinks:   []Sink{sink},
	})

	for i := 0; i < 2; i++ {
		if !session.RunTurn(context.Background()) {
			t.Fatalf("turn %d: RunTurn() = false, want the conversation to continue", i+1)
		}
		if session.State() != Idle {
			t.Errorf("turn %d: State() = %s, want idle", i+1, session.State())
		}
	}
	if listener.calls != 2 {
		t.Errorf("listener called %d times, want 2", listener.calls)
	}
	if len(sink.events) != 2 {
		t.Errorf("recorded %d events, want 2", len(sink.events))
	}

	// The interrupt farewell and greeting go through the same guard.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	session.Run(ctx)
	if session.State() != Ending {
		t.Errorf("State() = %s after Run, want ending", session.State())
	}
}

func TestRunTurnInterrupted(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		cancel bool
	}{
		{name: "context cancelled", err: context.Canceled, cancel: true},
		{name: "console closed", err: io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				cancel()
			}

			speaker := &recordingSpeaker{}
			listener := &scriptedListener{errs: []error{tt.err}}
			session := newTestSession(listener, &recordingBackend{reply: "x"}, speaker)

			if session.RunTurn(ctx) {
				t.Fatal("RunTurn() = true, want the session to end")
			}
			if speaker.last() != InterruptFarewell {
				t.Errorf("spoke %q, want %q", speaker.last(), InterruptFarewell)
			}
			if session.State() != Ending {
				t.Errorf("State() = %s, want ending", session.State())
			}
		})
	}
}

func TestRunTurnCaptureErrorIsAbsent(t *testing.T) {
	speaker := &recordingSpeaker{}
	listener := &scriptedListener{errs: []error{errors.New("device unplugged")}}
	session := newTestSession(listener, &recordingBackend{reply: "x"}, speaker)

	if !session.RunTurn(context.Background()) {
		t.Fatal("RunTurn() = false, want the conversation to continue")
	}
	if speaker.last() != NotCaughtReply {
		t.Errorf("spoke %q, want %q", speaker.last(), NotCaughtReply)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	speaker := &recordingSpeaker{}
	listener := &scriptedListener{}
	session := newTestSession(listener, &recordingBackend{reply: "x"}, speaker)
	session.Run(ctx)

	if listener.calls != 0 {
		t.Errorf("listened %d times, want 0", listener.calls)
	}
	want := []string{Greeting, InterruptFarewell}
	if len(speaker.said) != 2 || speaker.said[0] != want[0] || speaker.said[1] != want[1] {
		t.Errorf("said %q, want %q", speaker.said, want)
	}
}

func TestRunTurnStateTransitions(t *testing.T) {
	speaker := &recordingSpeaker{}
	retriever := &stateRecordingRetriever{}
	session := NewSession(SessionConfig{
		Listener: &scriptedListener{inputs: []stt.Input{stt.LiteralText("hello")}},
		Stages: Stages{
			Transcriber: stt.NewChain(),
			Retriever:   retriever,
			Generator:   generation.NewGenerator(&recordingBackend{reply: "Hi!"}, 0.75),
		},
		Speaker: speaker,
	})
	retriever.session = session
	speaker.session = session

	if session.State() != Idle {
		t.Fatalf("initial State() = %s, want idle", session.State())
	}

	session.RunTurn(context.Background())

	if retriever.seen != Retrieving {
		t.Errorf("state during retrieval = %s, want retrieving", retriever.seen)
	}
	if len(speaker.states) != 1 || speaker.states[0] != Synthesizing {
		t.Errorf("state during speech = %v, want synthesizing", speaker.states)
	}
	if session.State() != Idle {
		t.Errorf("final State() = %s, want idle", session.State())
	}
}

func TestSinkErrorsDoNotBreakTurn(t *testing.T) {
	speaker := &recordingSpeaker{}
	broken := &recordingSink{err: errors.New("disk full")}
	healthy := &recordingSink{}
	listener := &scriptedListener{inputs: []stt.Input{stt.LiteralText("hello")}}
	session := newTestSession(listener, &recordingBackend{reply: "Hi!"}, speaker, broken, healthy)

	if !session.RunTurn(context.Background()) {
		t.Fatal("RunTurn() = false, want the conversation to continue")
	}
	if len(healthy.events) != 1 {
		t.Fatalf("healthy sink got %d events, want 1", len(healthy.events))
	}
	event := healthy.events[0]
	if event.Mode != events.ModeInteractive || event.SessionID != session.ID() {
		t.Errorf("event identity = %s/%s", event.Mode, event.SessionID)
	}
	if event.Transcription != "hello" || event.Strategy != "literal" || event.InputKind != "text" {
		t.Errorf("event = %s", event)
	}
}

func TestIsExitPhrase(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"quit", true},
		{"STOP", true},
		{" goodbye ", true},
		{"Thank You Goodbye", true},
		{"thank you", false},
		{"quit now", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsExitPhrase(tt.text); got != tt.want {
			t.Errorf("IsExitPhrase(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
