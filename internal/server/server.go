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

// Package server exposes the turn pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/loqalabs/loqa-orbit/internal/api"
	"github.com/loqalabs/loqa-orbit/internal/config"
	"github.com/loqalabs/loqa-orbit/internal/health"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/loqalabs/loqa-orbit/internal/stt"
	"github.com/loqalabs/loqa-orbit/internal/turn"
	"go.uber.org/zap"
)

// Responder answers one turn of input
type Responder interface {
	Respond(ctx context.Context, in stt.Input) (turn.Response, error)
}

// Options holds the components the server routes to. Detector, Monitor
// and Turns are optional.
type Options struct {
	Pipeline Responder
	Detector *health.Detector
	Monitor  *health.TurnMonitor
	Turns    api.TurnStore
}

// Server is the served-mode HTTP front end
type Server struct {
	cfg    *config.Config
	mux    *http.ServeMux
	server *http.Server

	pipeline Responder
	detector *health.Detector
	monitor  *health.TurnMonitor
	turns    *api.TurnsHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server and registers its routes
func New(cfg *config.Config, opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		pipeline: opts.Pipeline,
		detector: opts.Detector,
		monitor:  opts.Monitor,
		ctx:      ctx,
		cancel:   cancel,
	}
	if opts.Turns != nil {
		s.turns = api.NewTurnsHandler(opts.Turns)
	}

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.routes()
	return s
}

// Handler returns the routed handler wrapped with CORS and panic recovery
func (s *Server) Handler() http.Handler {
	return withRecovery(withCORS(s.mux))
}

// Start runs background detection and serves until Stop is called
func (s *Server) Start() error {
	if s.detector != nil {
		go s.detector.Start(s.ctx)
	}

	logging.Sugar.Infow("🚀 Orbit API starting",
		"addr", s.server.Addr,
		"audio_mount", s.cfg.Server.AudioMount)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	logging.Sugar.Infow("🛑 Shutting down Orbit API")
	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logging.Sugar.Infow("✅ Orbit API shut down successfully")
	return nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/{$}", s.handleRoot)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/text", s.handleText)
	s.mux.HandleFunc("/api/audio", s.handleAudio)

	mount := s.cfg.Server.AudioMount
	s.mux.Handle(mount+"/", http.StripPrefix(mount+"/", http.HandlerFunc(s.handleArtifact)))

	if s.turns != nil {
		s.mux.HandleFunc("/api/turns", s.turns.HandleTurns)
		s.mux.HandleFunc("/api/turns/", s.turns.HandleTurnByID)
	}

	logging.Sugar.Infow("🌐 HTTP routes configured",
		"text_endpoint", "/api/text",
		"audio_endpoint", "/api/audio",
		"audio_mount", mount,
		"turn_history", s.turns != nil)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Orbit AI API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now(),
	}
	if s.detector != nil {
		caps := s.detector.Capabilities()
		body["services"] = caps.Services
		body["hardware"] = caps.Hardware
		body["degraded"] = caps.Degraded
		body["last_detected"] = caps.LastDetected
		if caps.Degraded {
			body["degradation_reason"] = caps.DegradationReason
		}
	}
	if s.monitor != nil {
		body["turns"] = s.monitor.Metrics()
	}

	writeJSON(w, http.StatusOK, body)
}

// withCORS allows browser front ends on any origin
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("handler panicked: %v", rec)
				logging.LogError(err, "Recovered from handler panic",
					zap.String("component", "server"),
					zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// errorResponse mirrors the {"detail": ...} shape clients already parse
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Sugar.Errorw("Failed to write response", "error", err)
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, data any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(data)
}
