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

package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loqalabs/loqa-orbit/internal/config"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"go.uber.org/zap"
)

// OpenAITTSRequest represents a request to an OpenAI-compatible TTS API
type OpenAITTSRequest struct {
	Model  string `json:"model"`
	Input  string `json:"input"`
	Voice  string `json:"voice"`
	Format string `json:"response_format"`
}

// OpenAITTSClient implements TextToSpeech for OpenAI-compatible TTS services
type OpenAITTSClient struct {
	baseURL   string
	client    *http.Client
	config    config.TTSConfig
	semaphore chan struct{} // Limits concurrent requests
}

// NewOpenAITTSClient creates a new OpenAI-compatible TTS client. The hosted
// OpenAI endpoint requires an API key; self-hosted services may omit it.
func NewOpenAITTSClient(cfg config.TTSConfig) (*OpenAITTSClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: TTS URL cannot be empty", ErrSynthesisUnavailable)
	}
	if cfg.APIKey == "" && strings.Contains(cfg.URL, "api.openai.com") {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrSynthesisUnavailable)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}

	c := &OpenAITTSClient{
		baseURL:   strings.TrimSuffix(cfg.URL, "/"),
		client:    &http.Client{Timeout: cfg.Timeout},
		config:    cfg,
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
	}

	logging.Sugar.Infow("🔊 TTS client initialized",
		"url", cfg.URL,
		"model", cfg.Model,
		"voice", cfg.Voice,
		"max_concurrent", cfg.MaxConcurrent,
	)

	return c, nil
}

// Synthesize converts text to speech. The caller must close result.Audio.
func (c *OpenAITTSClient) Synthesize(ctx context.Context, text string, options *TTSOptions) (*TTSResult, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	// Acquire semaphore slot for concurrency control
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("TTS synthesis queue full, request timed out")
	}

	startTime := time.Now()

	voice := c.config.Voice
	format := c.config.ResponseFormat
	if options != nil {
		if options.Voice != "" {
			voice = options.Voice
		}
		if options.ResponseFormat != "" {
			format = options.ResponseFormat
		}
	}

	requestBody, err := json.Marshal(OpenAITTSRequest{
		Model:  c.config.Model,
		Input:  text,
		Voice:  voice,
		Format: format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	logging.LogTTSOperation("synthesis_start",
		zap.String("voice", voice),
		zap.Int("text_length", len(text)),
		zap.String("format", format),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/*")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		logging.LogError(err, "TTS HTTP request failed",
			zap.String("voice", voice),
			zap.Int("text_length", len(text)),
		)
		return nil, fmt.Errorf("TTS HTTP request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		logging.LogWarn("TTS request failed",
			zap.String("component", "tts"),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_body", string(body)),
		)
		return nil, fmt.Errorf("TTS request failed with status %d: %s", resp.StatusCode, string(body))
	}

	logging.LogTTSOperation("synthesis_complete",
		zap.String("voice", voice),
		zap.Int("text_length", len(text)),
		zap.Duration("processing_time", time.Since(startTime)),
		zap.String("content_type", resp.Header.Get("Content-Type")),
		zap.Int64("content_length", resp.ContentLength),
	)

	return &TTSResult{
		Audio:       resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Length:      resp.ContentLength,
	}, nil
}

// Close cleans up resources
func (c *OpenAITTSClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
