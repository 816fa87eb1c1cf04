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

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/loqalabs/loqa-orbit/internal/security"
	"go.uber.org/zap"
)

// ErrEmptyTranscription marks an attempt that ran but produced no text
var ErrEmptyTranscription = errors.New("empty transcription")

// Strategy is one way of turning raw audio into text
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, in RawAudio) (string, error)
}

// Attempt records the outcome of one strategy
type Attempt struct {
	Strategy string
	Duration time.Duration
	Err      error
}

// Result is the outcome of a whole chain run. OK is false when no strategy
// produced text; Text is then empty.
type Result struct {
	Text     string
	OK       bool
	Strategy string
	Attempts []Attempt
}

// ProcessingFailed reports whether the chain gave up because the last
// strategy errored rather than hearing nothing.
func (r Result) ProcessingFailed() bool {
	if r.OK || len(r.Attempts) == 0 {
		return false
	}
	last := r.Attempts[len(r.Attempts)-1].Err
	return last != nil && !errors.Is(last, ErrEmptyTranscription)
}

// Chain tries its strategies in order and stops at the first one that yields text
type Chain struct {
	strategies []Strategy
}

// NewChain creates a chain over the given strategies
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Strategies returns the configured strategy names in order
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Transcribe returns the user's words for in. Literal text passes through
// without touching any strategy. No error escapes: every strategy failure is
// recorded in Result.Attempts.
func (c *Chain) Transcribe(ctx context.Context, in Input) Result {
	switch v := in.(type) {
	case LiteralText:
		text := strings.TrimSpace(string(v))
		logging.LogTranscriptionAttempt("literal",
			zap.String("text", security.SanitizeLogInput(text)),
			zap.Bool("success", text != ""))
		return Result{Text: text, OK: text != "", Strategy: "literal"}
	case RawAudio:
		return c.transcribeAudio(ctx, v)
	default:
		logging.LogWarn("No input to transcribe", zap.String("component", "stt"))
		return Result{}
	}
}

func (c *Chain) transcribeAudio(ctx context.Context, in RawAudio) Result {
	var result Result

	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			result.Attempts = append(result.Attempts, Attempt{Strategy: s.Name(), Err: err})
			break
		}

		start := time.Now()
		text, err := attempt(ctx, s, in)
		text = strings.TrimSpace(text)
		if err == nil && text == "" {
			err = ErrEmptyTranscription
		}
		a := Attempt{Strategy: s.Name(), Duration: time.Since(start), Err: err}
		result.Attempts = append(result.Attempts, a)

		if err != nil {
			logging.LogTranscriptionAttempt(s.Name(),
				zap.Bool("success", false),
				zap.Duration("duration", a.Duration),
				zap.Error(err))
			continue
		}

		logging.LogTranscriptionAttempt(s.Name(),
			zap.Bool("success", true),
			zap.Duration("duration", a.Duration),
			zap.String("text", security.SanitizeLogInput(text)))

		result.Text = text
		result.OK = true
		result.Strategy = s.Name()
		return result
	}

	logging.LogWarn("All transcription strategies failed",
		zap.String("component", "stt"),
		zap.Int("attempts", len(result.Attempts)))
	return result
}

// attempt runs one strategy, turning a panic inside a backend into an error
func attempt(ctx context.Context, s Strategy, in RawAudio) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Attempt(ctx, in)
}
