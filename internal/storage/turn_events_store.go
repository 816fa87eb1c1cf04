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

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-orbit/internal/events"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"go.uber.org/zap"
)

// ErrTurnEventNotFound is returned when no turn event has the requested UUID
var ErrTurnEventNotFound = errors.New("turn event not found")

const turnEventColumns = `uuid, session_id, mode, timestamp,
		input_kind, audio_duration,
		transcription, strategy, context,
		response_text, audio_url, resources, processing_time_ms, success, error_message`

// sortColumns maps accepted SortBy values to columns
var sortColumns = map[string]string{
	"timestamp":       "timestamp",
	"processing_time": "processing_time_ms",
	"audio_duration":  "audio_duration",
}

// TurnEventsStore handles database operations for turn events
type TurnEventsStore struct {
	db *Database
}

// NewTurnEventsStore creates a new turn events store
func NewTurnEventsStore(db *Database) *TurnEventsStore {
	return &TurnEventsStore{db: db}
}

// Insert stores a new turn event
func (s *TurnEventsStore) Insert(event *events.TurnEvent) error {
	if err := event.IsValid(); err != nil {
		return fmt.Errorf("invalid turn event: %w", err)
	}

	resourcesJSON, err := event.ResourcesJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize resources: %w", err)
	}

	query := `INSERT INTO turn_events (` + turnEventColumns + `) VALUES (
			?, ?, ?, ?,
			?, ?,
			?, ?, ?,
			?, ?, ?, ?, ?, ?
		)`

	_, err = s.db.DB().Exec(query,
		event.UUID, event.SessionID, string(event.Mode), event.Timestamp,
		event.InputKind, event.AudioDuration,
		event.Transcription, event.Strategy, event.Context,
		event.ResponseText, event.AudioURL, resourcesJSON, event.ProcessingTime, event.Success, event.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn event: %w", err)
	}

	logging.LogDatabaseOperation("insert", "turn_events",
		zap.String("uuid", event.UUID),
		zap.String("session_id", event.SessionID),
		zap.Bool("success", event.Success),
	)
	return nil
}

// Record implements the turn event sink interface
func (s *TurnEventsStore) Record(event *events.TurnEvent) error {
	return s.Insert(event)
}

// GetByUUID retrieves a turn event by its UUID
func (s *TurnEventsStore) GetByUUID(uuid string) (*events.TurnEvent, error) {
	query := `SELECT ` + turnEventColumns + ` FROM turn_events WHERE uuid = ?`
	return scanTurnEvent(s.db.DB().QueryRow(query, uuid))
}

// ListOptions defines filtering and pagination options
type ListOptions struct {
	// Filtering
	SessionID string
	Mode      events.Mode
	Success   *bool // nil = all, true = success only, false = errors only

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // "timestamp", "processing_time", "audio_duration"
	SortOrder string // "ASC", "DESC"
}

// List retrieves turn events with pagination and filtering
func (s *TurnEventsStore) List(options ListOptions) ([]*events.TurnEvent, error) {
	query, args := buildListQuery(options)

	rows, err := s.db.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turn events: %w", err)
	}
	defer rows.Close()

	eventsList := []*events.TurnEvent{}
	for rows.Next() {
		event, err := scanTurnEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn event: %w", err)
		}
		eventsList = append(eventsList, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turn events: %w", err)
	}

	return eventsList, nil
}

// Count returns the number of turn events matching the filter, ignoring pagination
func (s *TurnEventsStore) Count(options ListOptions) (int64, error) {
	options.Limit = 0
	options.Offset = 0
	query, args := buildListQuery(options)

	var count int64
	if err := s.db.DB().QueryRow("SELECT COUNT(*) FROM ("+query+") AS filtered", args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count turn events: %w", err)
	}

	return count, nil
}

// Delete removes a turn event by UUID
func (s *TurnEventsStore) Delete(uuid string) error {
	result, err := s.db.DB().Exec("DELETE FROM turn_events WHERE uuid = ?", uuid)
	if err != nil {
		return fmt.Errorf("failed to delete turn event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrTurnEventNotFound, uuid)
	}

	logging.LogDatabaseOperation("delete", "turn_events", zap.String("uuid", uuid))
	return nil
}

func buildListQuery(options ListOptions) (string, []any) {
	query := `SELECT ` + turnEventColumns + ` FROM turn_events WHERE 1=1`
	var args []any

	if options.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, options.SessionID)
	}

	if options.Mode != "" {
		query += " AND mode = ?"
		args = append(args, string(options.Mode))
	}

	if options.Success != nil {
		query += " AND success = ?"
		args = append(args, *options.Success)
	}

	sortBy, ok := sortColumns[options.SortBy]
	if !ok {
		sortBy = "timestamp"
	}

	sortOrder := strings.ToUpper(options.SortOrder)
	if sortOrder != "ASC" {
		sortOrder = "DESC"
	}

	// id breaks ties between events recorded within the same timestamp
	query += fmt.Sprintf(" ORDER BY %s %s, id %s", sortBy, sortOrder, sortOrder)

	if options.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, options.Limit)

		if options.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, options.Offset)
		}
	}

	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurnEvent(row rowScanner) (*events.TurnEvent, error) {
	var event events.TurnEvent
	var mode, resourcesJSON string

	err := row.Scan(
		&event.UUID, &event.SessionID, &mode, &event.Timestamp,
		&event.InputKind, &event.AudioDuration,
		&event.Transcription, &event.Strategy, &event.Context,
		&event.ResponseText, &event.AudioURL, &resourcesJSON, &event.ProcessingTime, &event.Success, &event.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTurnEventNotFound
		}
		return nil, err
	}

	event.Mode = events.Mode(mode)
	if err := event.SetResourcesFromJSON(resourcesJSON); err != nil {
		return nil, fmt.Errorf("failed to parse resources JSON: %w", err)
	}

	return &event, nil
}
