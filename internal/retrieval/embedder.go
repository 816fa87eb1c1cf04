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

package retrieval

import (
	"context"
	"errors"
)

var (
	// ErrNoEmbedder is returned when semantic retrieval is disabled
	ErrNoEmbedder = errors.New("no embedding model configured")

	// ErrEmptyInput is returned when there is nothing to embed
	ErrEmptyInput = errors.New("embed: empty input")
)

// Embedder converts text into dense float32 vectors
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// NoEmbedder disables the semantic path
type NoEmbedder struct{}

// Embed implements Embedder
func (NoEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrNoEmbedder
}

// EmbedBatch implements Embedder
func (NoEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ErrNoEmbedder
}

func float64sToFloat32s(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
