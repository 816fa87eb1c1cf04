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

package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loqalabs/loqa-orbit/internal/audio"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/loqalabs/loqa-orbit/internal/security"
	"github.com/loqalabs/loqa-orbit/internal/stt"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies; base64 audio of a 20 s clip fits easily
const maxBodyBytes = 32 << 20

// TextRequest is the body of POST /api/text
type TextRequest struct {
	Message string `json:"message"`
}

// AudioRequest is the body of POST /api/audio. AudioData is base64, with
// an optional data URL prefix naming the container.
type AudioRequest struct {
	AudioData string `json:"audio_data"`
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req TextRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}

	resp, err := s.pipeline.Respond(r.Context(), stt.LiteralText(req.Message))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing text: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req AudioRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.AudioData == "" {
		writeError(w, http.StatusBadRequest, "Audio data cannot be empty")
		return
	}

	data, container, err := audio.ParseDataURL(req.AudioData)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid audio data: %v", err))
		return
	}
	logging.Sugar.Infow("Detected audio format", "container", container, "bytes", len(data))

	path, err := s.persistUpload(data, container)
	if err != nil {
		logging.LogError(err, "Failed to persist uploaded audio", zap.String("component", "server"))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing audio: %v", err))
		return
	}

	resp, err := s.pipeline.Respond(r.Context(), stt.RawAudio{Encoded: data, Container: container, Path: path})
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing audio: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// persistUpload writes the upload under the temp dir so the transcoder can read it
func (s *Server) persistUpload(data []byte, container string) (string, error) {
	dir := s.cfg.STT.TempDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}

	f, err := os.CreateTemp(dir, fmt.Sprintf("input_%d_*.%s", time.Now().Unix(), container))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	logging.Sugar.Infow("Processing audio file", "path", f.Name(), "bytes", len(data))
	return f.Name(), nil
}

// handleArtifact serves synthesized speech by file name
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	name := r.URL.Path
	if err := security.ValidateArtifactName(name); err != nil {
		logging.LogWarn("Rejected artifact request",
			zap.String("component", "server"),
			zap.String("name", security.SanitizeLogInput(name)))
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	path := filepath.Join(s.cfg.TTS.APIAudioDir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	http.ServeFile(w, r, path)
}
