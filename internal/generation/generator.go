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

// Package generation wraps a language-generation backend with the agent's
// prompt and a reply that is never empty.
package generation

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

// DefaultTemperature is the sampling temperature for every request
const DefaultTemperature = 0.75

// UnavailableReply is returned when no backend is configured
const UnavailableReply = "LLM not available. Please check Ollama setup."

const promptTemplate = `You are Orbit, a helpful, playful, and cheerful local AI assistant.
User Query: "%s"
Relevant Information from Knowledge Base:
"""
%s
"""
Based on the user query and relevant information, provide a concise, positive, and encouraging answer. If the information is insufficient, say so cheerfully and offer general help. Do not make up facts.
Orbit (in a playful and cheering voice):`

// BuildPrompt embeds the query and retrieved context in the agent prompt
func BuildPrompt(query, contextText string) string {
	return fmt.Sprintf(promptTemplate, query, contextText)
}

// Reply is the generated answer. Degraded is set when Text is an apology
// standing in for a real answer.
type Reply struct {
	Text     string
	Degraded bool
}

// Generator calls the backend once per query
type Generator struct {
	backend     Backend
	temperature float64
}

// NewGenerator creates a generator. backend may be nil.
func NewGenerator(backend Backend, temperature float64) *Generator {
	return &Generator{backend: backend, temperature: temperature}
}

// Generate returns a reply for query grounded on contextText. It never returns an
// empty text and never fails.
func (g *Generator) Generate(ctx context.Context, query, contextText string) (reply Reply) {
	if g.backend == nil {
		logging.LogWarn("No generation backend configured", zap.String("component", "generation"))
		return Reply{Text: UnavailableReply, Degraded: true}
	}

	defer func() {
		if r := recover(); r != nil {
			reply = apology(fmt.Errorf("backend panicked: %v", r))
		}
	}()

	start := time.Now()
	text, err := g.backend.Generate(ctx, BuildPrompt(query, contextText), g.temperature)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty response")
	}
	if err != nil {
		logging.LogError(err, "Generation failed",
			zap.String("component", "generation"),
			zap.String("backend", g.backend.Name()))
		if errors.Is(err, ErrBackendUnavailable) {
			return Reply{Text: UnavailableReply, Degraded: true}
		}
		return apology(err)
	}

	text = strings.TrimSpace(text)
	logging.Sugar.Infow("💬 Reply generated",
		"backend", g.backend.Name(),
		"duration_ms", time.Since(start).Milliseconds(),
		"reply", security.Truncate(security.SanitizeLogInput(text), 120))
	return Reply{Text: text}
}

func apology(err error) Reply {
	return Reply{Text: fmt.Sprintf("Sorry, I encountered an error with the LLM: %v", err), Degraded: true}
}
