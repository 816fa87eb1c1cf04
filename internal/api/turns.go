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

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-orbit/internal/events"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/loqalabs/loqa-orbit/internal/storage"
	"go.uber.org/zap"
)

// TurnStore is the subset of the turn history store the API needs
type TurnStore interface {
	GetByUUID(uuid string) (*events.TurnEvent, error)
	List(options storage.ListOptions) ([]*events.TurnEvent, error)
	Count(options storage.ListOptions) (int64, error)
	Delete(uuid string) error
}

// TurnsHandler serves the recorded turn history
type TurnsHandler struct {
	store TurnStore
}

// NewTurnsHandler creates a new turn history handler
func NewTurnsHandler(store TurnStore) *TurnsHandler {
	return &TurnsHandler{store: store}
}

// ListTurnsResponse represents the response for listing turns
type ListTurnsResponse struct {
	Turns      []*events.TurnEvent `json:"turns"`
	Total      int64               `json:"total"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	TotalPages int                 `json:"total_pages"`
}

// HandleTurns handles GET /api/turns
func (h *TurnsHandler) HandleTurns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.listTurns(w, r)
}

// HandleTurnByID handles GET and DELETE /api/turns/{uuid}
func (h *TurnsHandler) HandleTurnByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/turns/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		http.Error(w, "Turn ID is required", http.StatusBadRequest)
		return
	}
	uuid := pathParts[0]

	switch r.Method {
	case http.MethodGet:
		h.getTurn(w, uuid)
	case http.MethodDelete:
		h.deleteTurn(w, uuid)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *TurnsHandler) listTurns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := parseIntParam(query.Get("page"), 1)
	pageSize := parseIntParam(query.Get("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if page < 1 {
		page = 1
	}

	options := storage.ListOptions{
		SessionID: query.Get("session_id"),
		Mode:      events.Mode(query.Get("mode")),
		Limit:     pageSize,
		Offset:    (page - 1) * pageSize,
		SortBy:    query.Get("sort_by"),
		SortOrder: strings.ToUpper(query.Get("sort_order")),
	}

	if successStr := query.Get("success"); successStr != "" {
		if success, err := strconv.ParseBool(successStr); err == nil {
			options.Success = &success
		}
	}

	total, err := h.store.Count(options)
	if err != nil {
		logging.LogError(err, "Failed to count turns")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	turns, err := h.store.List(options)
	if err != nil {
		logging.LogError(err, "Failed to list turns")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	response := ListTurnsResponse{
		Turns:      turns,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}

	logging.Sugar.Infow("Turns API request",
		"endpoint", "list",
		"page", page,
		"page_size", pageSize,
		"total_results", total,
	)

	writeJSON(w, http.StatusOK, response)
}

func (h *TurnsHandler) getTurn(w http.ResponseWriter, uuid string) {
	event, err := h.store.GetByUUID(uuid)
	if err != nil {
		if errors.Is(err, storage.ErrTurnEventNotFound) {
			http.Error(w, "Turn not found", http.StatusNotFound)
			return
		}
		logging.LogError(err, "Failed to get turn", zap.String("uuid", uuid))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

func (h *TurnsHandler) deleteTurn(w http.ResponseWriter, uuid string) {
	if err := h.store.Delete(uuid); err != nil {
		if errors.Is(err, storage.ErrTurnEventNotFound) {
			http.Error(w, "Turn not found", http.StatusNotFound)
			return
		}
		logging.LogError(err, "Failed to delete turn", zap.String("uuid", uuid))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.LogError(err, "Failed to write response")
	}
}

func parseIntParam(param string, defaultValue int) int {
	if param == "" {
		return defaultValue
	}

	if value, err := strconv.Atoi(param); err == nil {
		return value
	}

	return defaultValue
}
