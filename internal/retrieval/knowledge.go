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
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loqalabs/loqa-orbit/internal/logging"
)

// DefaultDocument is written when the knowledge file does not exist
const DefaultDocument = "Default knowledge: Ollama runs LLMs locally."

// SampleKnowledge seeds a fresh knowledge file for the interactive agent
var SampleKnowledge = []string{
	"The agent's name is Orbit, and he is very cheerful.",
	"Ollama is a tool for running large language models locally.",
	"OpenAI Whisper can convert speech to text with high accuracy.",
	"OpenAI TTS provides natural-sounding text-to-speech voices.",
	"The best way to learn is by doing and having fun!",
}

// Document is one non-empty line of the knowledge file
type Document struct {
	Index int
	Text  string
}

// LoadKnowledge reads one document per non-empty line of path, creating the
// file with DefaultDocument when it is missing.
func LoadKnowledge(path string) ([]Document, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logging.Sugar.Infow("📚 Knowledge file not found, creating default", "path", path)
		if err := writeLines(path, []string{DefaultDocument}); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge file: %w", err)
	}
	defer f.Close()

	var docs []Document
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		docs = append(docs, Document{Index: len(docs), Text: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read knowledge file: %w", err)
	}

	logging.Sugar.Infow("📚 Knowledge loaded", "path", path, "documents", len(docs))
	return docs, nil
}

// SeedSampleKnowledge writes SampleKnowledge to path unless the file exists.
// It reports whether a file was created.
func SeedSampleKnowledge(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat knowledge file: %w", err)
	}
	if err := writeLines(path, SampleKnowledge); err != nil {
		return false, err
	}
	return true, nil
}

// Texts returns the document texts in order
func Texts(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Text
	}
	return out
}

func writeLines(path string, lines []string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create knowledge dir: %w", err)
		}
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write knowledge file: %w", err)
	}
	return nil
}
