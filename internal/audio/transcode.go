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

package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"go.uber.org/zap"
)

// ErrTranscoderUnavailable is returned when the ffmpeg binary cannot be found
var ErrTranscoderUnavailable = errors.New("audio transcoder not available")

// Profile selects the ffmpeg argument set
type Profile string

const (
	// ProfileCanonical forces mono 16 kHz WAV output
	ProfileCanonical Profile = "canonical"
	// ProfileSimple lets ffmpeg pick defaults for the WAV output
	ProfileSimple Profile = "simple"
)

// runFunc executes an external command and returns its combined output
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Transcoder converts arbitrary containers to WAV with an external ffmpeg
type Transcoder struct {
	ffmpegPath string
	tempDir    string
	run        runFunc
}

// NewTranscoder creates a transcoder writing its output under tempDir
func NewTranscoder(ffmpegPath, tempDir string) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{ffmpegPath: ffmpegPath, tempDir: tempDir, run: execRun}
}

// Available reports whether the ffmpeg binary can be resolved
func (t *Transcoder) Available() bool {
	_, err := exec.LookPath(t.ffmpegPath)
	return err == nil
}

// Args returns the ffmpeg arguments for a profile
func (p Profile) Args(in, out string) []string {
	if p == ProfileCanonical {
		return []string{"-i", in, "-ar", "16000", "-ac", "1", "-f", "wav", out}
	}
	return []string{"-y", "-i", in, out}
}

// ToWAV transcodes the file at in and returns the path of the new WAV file.
// The caller owns the returned file.
func (t *Transcoder) ToWAV(ctx context.Context, in string, profile Profile) (string, error) {
	if t.run == nil {
		return "", ErrTranscoderUnavailable
	}
	if err := os.MkdirAll(t.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}

	prefix := "converted"
	if profile == ProfileSimple {
		prefix = "simple_converted"
	}
	out := filepath.Join(t.tempDir, fmt.Sprintf("%s_%s.wav", prefix, strings.ReplaceAll(uuid.NewString(), "-", "")))

	logging.Logger.Debug("Transcoding audio",
		zap.String("component", "audio"),
		zap.String("profile", string(profile)),
		zap.String("input", in))

	output, err := t.run(ctx, t.ffmpegPath, profile.Args(in, out)...)
	if err != nil {
		_ = os.Remove(out)
		if errors.Is(err, exec.ErrNotFound) {
			return "", ErrTranscoderUnavailable
		}
		return "", fmt.Errorf("ffmpeg %s failed: %w: %s", profile, err, lastLine(output))
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("ffmpeg %s produced no output: %w", profile, err)
	}
	return out, nil
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	return lines[len(lines)-1]
}
