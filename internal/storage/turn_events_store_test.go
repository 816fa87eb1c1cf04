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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-orbit/internal/events"
)

func newTestStore(t *testing.T) *TurnEventsStore {
	t.Helper()

	db, err := NewDatabase(DatabaseConfig{Path: filepath.Join(t.TempDir(), "nested", "orbit.db")})
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewTurnEventsStore(db)
}

func newEvent(session string, mode events.Mode, at time.Time) *events.TurnEvent {
	event := events.NewTurnEvent(session, mode)
	event.Timestamp = at
	return event
}

func TestNewDatabaseCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "orbit.db")

	db, err := NewDatabase(DatabaseConfig{Path: path})
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestNewDatabaseRequiresPath(t *testing.T) {
	if _, err := NewDatabase(DatabaseConfig{}); err == nil {
		t.Error("NewDatabase() with empty path should fail")
	}
}

func TestInsertAndGetByUUID(t *testing.T) {
	store := newTestStore(t)

	event := events.NewTurnEvent("session-1", events.ModeAPI)
	event.SetInput("upload", 1500*time.Millisecond)
	event.SetTranscription("what is orbit", "transcode_canonical")
	event.SetContext("Orbit is a voice agent.")
	event.SetResponse("Orbit is your assistant!", "/audio/speech_abc.mp3", []events.Resource{
		{Title: "I heard you say", Content: "what is orbit"},
	})

	if err := store.Insert(event); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := store.GetByUUID(event.UUID)
	if err != nil {
		t.Fatalf("GetByUUID() error = %v", err)
	}

	if got.SessionID != "session-1" || got.Mode != events.ModeAPI {
		t.Errorf("identity = %s/%s", got.SessionID, got.Mode)
	}
	if got.Transcription != "what is orbit" || got.Strategy != "transcode_canonical" {
		t.Errorf("transcription = %q via %q", got.Transcription, got.Strategy)
	}
	if got.AudioDuration != 1.5 {
		t.Errorf("AudioDuration = %v, want 1.5", got.AudioDuration)
	}
	if got.AudioURL != "/audio/speech_abc.mp3" {
		t.Errorf("AudioURL = %q", got.AudioURL)
	}
	if len(got.Resources) != 1 || got.Resources[0].Title != "I heard you say" {
		t.Errorf("Resources = %+v", got.Resources)
	}
	if !got.Success {
		t.Error("Success should round-trip as true")
	}
}

func TestInsertRejectsInvalidEvent(t *testing.T) {
	store := newTestStore(t)

	event := events.NewTurnEvent("", events.ModeAPI)
	if err := store.Insert(event); err == nil {
		t.Error("Insert() should reject an event without a session")
	}
}

func TestGetByUUIDNotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetByUUID("missing"); !errors.Is(err, ErrTurnEventNotFound) {
		t.Errorf("GetByUUID() error = %v, want ErrTurnEventNotFound", err)
	}
}

func TestListFiltersAndPagination(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	failed := newEvent("a", events.ModeInteractive, base.Add(3*time.Second))
	failed.SetError(errors.New("no speech"))

	for _, e := range []*events.TurnEvent{
		newEvent("a", events.ModeInteractive, base),
		newEvent("a", events.ModeInteractive, base.Add(time.Second)),
		newEvent("b", events.ModeAPI, base.Add(2*time.Second)),
		failed,
	} {
		if err := store.Insert(e); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	yes, no := true, false
	tests := []struct {
		name    string
		options ListOptions
		want    int
	}{
		{name: "all", options: ListOptions{}, want: 4},
		{name: "by session", options: ListOptions{SessionID: "a"}, want: 3},
		{name: "by mode", options: ListOptions{Mode: events.ModeAPI}, want: 1},
		{name: "successes", options: ListOptions{Success: &yes}, want: 3},
		{name: "failures", options: ListOptions{Success: &no}, want: 1},
		{name: "limit", options: ListOptions{Limit: 2}, want: 2},
		{name: "offset past end", options: ListOptions{Limit: 2, Offset: 3}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(tt.options)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("List() returned %d events, want %d", len(got), tt.want)
			}
		})
	}

	count, err := store.Count(ListOptions{SessionID: "a", Limit: 1})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3 (pagination ignored)", count)
	}
}

func TestListSorting(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	first := newEvent("s", events.ModeAPI, base)
	second := newEvent("s", events.ModeAPI, base.Add(time.Minute))
	for _, e := range []*events.TurnEvent{first, second} {
		if err := store.Insert(e); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	desc, err := store.List(ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if desc[0].UUID != second.UUID {
		t.Error("default order should be newest first")
	}

	asc, err := store.List(ListOptions{SortOrder: "asc"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if asc[0].UUID != first.UUID {
		t.Error("ASC order should be oldest first")
	}

	// Unknown sort columns fall back to timestamp instead of reaching SQL
	injected, err := store.List(ListOptions{SortBy: "timestamp; DROP TABLE turn_events"})
	if err != nil {
		t.Fatalf("List() with hostile SortBy error = %v", err)
	}
	if len(injected) != 2 {
		t.Errorf("List() returned %d events, want 2", len(injected))
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	event := events.NewTurnEvent("s", events.ModeInteractive)
	if err := store.Record(event); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if err := store.Delete(event.UUID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(event.UUID); !errors.Is(err, ErrTurnEventNotFound) {
		t.Errorf("second Delete() error = %v, want ErrTurnEventNotFound", err)
	}
}
