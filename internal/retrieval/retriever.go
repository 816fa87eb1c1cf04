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

// Package retrieval finds knowledge-base lines relevant to a user query,
// semantically when an embedding model is available and by word overlap
// otherwise.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/loqalabs/loqa-orbit/internal/security"
	"go.uber.org/zap"
)

// NoContextSentinel replaces an empty retrieval in prompts
const NoContextSentinel = "No specific context found in local knowledge."

// DefaultTopK is the number of documents returned per query
const DefaultTopK = 2

// Retriever answers context queries over an immutable document set
type Retriever struct {
	docs     []Document
	embedder Embedder
	index    *FlatIndex
	topK     int
}

// NewRetriever builds the semantic index from docs. When the embedder fails
// the retriever stays usable in lexical mode.
func NewRetriever(ctx context.Context, docs []Document, embedder Embedder, topK int) *Retriever {
	if topK < 1 {
		topK = DefaultTopK
	}
	r := &Retriever{docs: docs, embedder: embedder, topK: topK}

	if embedder == nil || len(docs) == 0 {
		logging.Sugar.Infow("📚 Retriever in lexical mode", "documents", len(docs))
		return r
	}

	index, err := buildIndex(ctx, embedder, docs)
	if err != nil {
		logging.LogWarn("Semantic index unavailable, using lexical retrieval",
			zap.String("component", "retrieval"),
			zap.Error(err))
		return r
	}
	r.index = index
	logging.Sugar.Infow("📚 Semantic index built", "documents", index.Len(), "dimension", index.Dim())
	return r
}

func buildIndex(ctx context.Context, embedder Embedder, docs []Document) (*FlatIndex, error) {
	vecs, err := embedder.EmbedBatch(ctx, Texts(docs))
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(docs) || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(docs))
	}
	index := NewFlatIndex(len(vecs[0]))
	if err := index.Add(vecs...); err != nil {
		return nil, err
	}
	return index, nil
}

// Semantic reports whether the embedding index is available
func (r *Retriever) Semantic() bool { return r.index != nil }

// TopK returns the configured result count
func (r *Retriever) TopK() int { return r.topK }

// Retrieve returns at most topK document texts, most relevant first. It never
// fails; an empty result means nothing relevant was found.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) []string {
	query = strings.TrimSpace(query)
	if query == "" || topK < 1 {
		return nil
	}

	if r.index != nil {
		docs, err := r.semantic(ctx, query, topK)
		if err == nil && len(docs) > 0 {
			return docs
		}
		if err != nil {
			logging.LogWarn("Semantic retrieval failed, falling back to lexical",
				zap.String("component", "retrieval"),
				zap.String("query", security.SanitizeLogInput(query)),
				zap.Error(err))
		}
	}

	return lexical(r.docs, query, topK)
}

// ContextText returns the retrieved documents joined by newlines, or the
// sentinel when nothing was found.
func (r *Retriever) ContextText(ctx context.Context, query string) string {
	docs := r.Retrieve(ctx, query, r.topK)
	if len(docs) == 0 {
		return NoContextSentinel
	}
	return strings.Join(docs, "\n")
}

func (r *Retriever) semantic(ctx context.Context, query string, topK int) (docs []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("semantic retrieval panicked: %v", rec)
		}
	}()

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	matches, err := r.index.Search(vec, topK)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		if m.ID >= 0 && m.ID < len(r.docs) {
			docs = append(docs, r.docs[m.ID].Text)
		}
	}
	if len(docs) == 0 {
		return nil, errors.New("index returned no documents")
	}
	return docs, nil
}

// lexical selects documents sharing at least one lowercase word with the
// query, de-duplicated in document order.
func lexical(docs []Document, query string, topK int) []string {
	queryWords := wordSet(query)
	seen := make(map[string]bool)

	var out []string
	for _, d := range docs {
		if seen[d.Text] || !intersects(queryWords, wordSet(d.Text)) {
			continue
		}
		seen[d.Text] = true
		out = append(out, d.Text)
		if len(out) == topK {
			break
		}
	}
	return out
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func intersects(a, b map[string]struct{}) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for w := range a {
		if _, ok := b[w]; ok {
			return true
		}
	}
	return false
}
