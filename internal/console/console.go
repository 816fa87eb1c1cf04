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

// Package console provides the line-oriented text console used by the
// interactive agent.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the console color scheme
type Theme struct {
	Accent lipgloss.Color
	Agent  lipgloss.Color
	Warn   lipgloss.Color
	Dim    lipgloss.Color
}

// DefaultTheme matches the agent's cyan/green/yellow palette
var DefaultTheme = Theme{
	Accent: lipgloss.Color("#00d7ff"),
	Agent:  lipgloss.Color("#5fff87"),
	Warn:   lipgloss.Color("#ffd75f"),
	Dim:    lipgloss.Color("#6e7681"),
}

// Styles holds the styles derived from a theme
type Styles struct {
	Title  lipgloss.Style
	Prompt lipgloss.Style
	Info   lipgloss.Style
	Agent  lipgloss.Style
	Warn   lipgloss.Style
	Dim    lipgloss.Style
}

// NewStyles creates styles from a theme
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		Prompt: lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		Info:   lipgloss.NewStyle().Foreground(t.Accent),
		Agent:  lipgloss.NewStyle().Foreground(t.Agent),
		Warn:   lipgloss.NewStyle().Foreground(t.Warn),
		Dim:    lipgloss.NewStyle().Foreground(t.Dim),
	}
}

type line struct {
	text string
	err  error
}

// Console reads user lines and writes styled agent output
type Console struct {
	in     *bufio.Reader
	out    io.Writer
	styles Styles

	mu        sync.Mutex
	startOnce sync.Once
	lines     chan line
}

// New creates a console over the given streams
func New(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:     bufio.NewReader(in),
		out:    out,
		styles: NewStyles(DefaultTheme),
		lines:  make(chan line),
	}
}

// ReadLine shows prompt and waits for one line of input. The returned text
// is trimmed. io.EOF is returned when input ends.
func (c *Console) ReadLine(ctx context.Context, prompt string) (string, error) {
	c.startOnce.Do(func() { go c.readLoop() })

	if prompt != "" {
		c.write(c.styles.Prompt.Render(prompt) + " ")
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(l.text), l.err
	}
}

func (c *Console) readLoop() {
	defer close(c.lines)
	for {
		s, err := c.in.ReadString('\n')
		if err != nil {
			if s != "" {
				c.lines <- line{text: s}
			}
			if err != io.EOF {
				c.lines <- line{err: err}
			}
			return
		}
		c.lines <- line{text: s}
	}
}

// Banner prints the session title and description
func (c *Console) Banner(title, description string) {
	c.writeln(c.styles.Title.Render(title))
	if description != "" {
		c.writeln(c.styles.Dim.Render(description))
	}
}

// Info prints a status line
func (c *Console) Info(format string, args ...any) {
	c.writeln(c.styles.Info.Render(fmt.Sprintf(format, args...)))
}

// Warn prints a warning line
func (c *Console) Warn(format string, args ...any) {
	c.writeln(c.styles.Warn.Render(fmt.Sprintf(format, args...)))
}

// User echoes what the agent understood from the user
func (c *Console) User(text string) {
	c.writeln(c.styles.Info.Render("👤 You: " + text))
}

// Agent prints something the agent says
func (c *Console) Agent(text string) {
	c.writeln(c.styles.Agent.Render("🤖 Orbit: " + text))
}

// MockSpeech prints text that could not be spoken aloud
func (c *Console) MockSpeech(text string) {
	c.writeln(c.styles.Agent.Render("🔊 Orbit (mock TTS): " + text))
}

func (c *Console) writeln(s string) {
	c.write(s + "\n")
}

func (c *Console) write(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.out, s)
}
