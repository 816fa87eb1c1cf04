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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/loqalabs/loqa-orbit/internal/audio"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/loqalabs/loqa-orbit/internal/security"
	"go.uber.org/zap"
)

// RESTModel transcribes through any OpenAI-compatible Speech-to-Text service
type RESTModel struct {
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
}

// OpenAI-compatible response struct
type transcriptionResponse struct {
	Text string `json:"text"`
}

// NewRESTModel creates a REST speech model and verifies the service is up
func NewRESTModel(baseURL, model, language string) (*RESTModel, error) {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if language == "auto" {
		language = ""
	}

	m := &RESTModel{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		language:   language,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	if err := m.healthCheck(); err != nil {
		return nil, fmt.Errorf("STT service health check failed: %w", err)
	}

	logging.Sugar.Infow("Connected to STT REST service", "base_url", m.baseURL, "model", model)
	return m, nil
}

// healthCheck verifies the service is running
func (m *RESTModel) healthCheck() error {
	resp, err := m.httpClient.Get(m.baseURL + "/health")
	if err != nil {
		return fmt.Errorf("failed to connect to STT service at %s: %w", m.baseURL, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.LogWarn("Failed to close response body", zap.String("component", "stt"), zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("STT service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

// TranscribePCM uploads the samples as a WAV file and returns the text
func (m *RESTModel) TranscribePCM(ctx context.Context, samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", fmt.Errorf("empty audio data")
	}

	wavData, err := audio.EncodeWAVBytes(samples)
	if err != nil {
		return "", fmt.Errorf("failed to convert audio to WAV: %w", err)
	}
	return m.transcribe(ctx, wavData, "audio.wav")
}

// TranscribeEncoded uploads an encoded blob unchanged. OpenAI-compatible
// services decode webm, mp4, ogg and wav themselves.
func (m *RESTModel) TranscribeEncoded(ctx context.Context, data []byte, container string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty audio data")
	}
	if container == "" {
		container = audio.ContainerWebM
	}
	return m.transcribe(ctx, data, "audio."+container)
}

func (m *RESTModel) transcribe(ctx context.Context, data []byte, filename string) (string, error) {
	startTime := time.Now()
	requestID := fmt.Sprintf("req_%d", startTime.UnixNano())

	logging.Sugar.Infow("Sending transcription request",
		"request_id", requestID,
		"filename", filename,
		"bytes", len(data),
	)

	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	audioWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := audioWriter.Write(data); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}

	_ = writer.WriteField("model", m.model)
	_ = writer.WriteField("language", m.language)
	_ = writer.WriteField("temperature", "0.0")
	_ = writer.WriteField("response_format", "json")

	contentType := writer.FormDataContentType()
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/audio/transcriptions", &requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription HTTP request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.LogWarn("Failed to close response body", zap.String("component", "stt"), zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription failed with status %d: %s", resp.StatusCode, string(body))
	}

	var transcriptionResp transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&transcriptionResp); err != nil {
		return "", fmt.Errorf("failed to parse transcription response: %w", err)
	}

	logging.Sugar.Infow("Transcription completed",
		"request_id", requestID,
		"processing_time_ms", time.Since(startTime).Milliseconds(),
		"text_length", len(transcriptionResp.Text),
		"text", security.SanitizeLogInput(transcriptionResp.Text),
	)

	return transcriptionResp.Text, nil
}

// Close cleans up resources
func (m *RESTModel) Close() error {
	logging.Sugar.Infow("Closing STT client", "base_url", m.baseURL)
	return nil
}
