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
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-orbit/internal/audio"
)

// MockSpeechModel records the samples it is given
type MockSpeechModel struct {
	Text    string
	Err     error
	Calls   int
	Samples []float32
}

func (m *MockSpeechModel) TranscribePCM(ctx context.Context, samples []float32) (string, error) {
	m.Calls++
	m.Samples = samples
	return m.Text, m.Err
}

func (m *MockSpeechModel) Close() error { return nil }

// fakeTranscoder writes a short WAV instead of running ffmpeg
type fakeTranscoder struct {
	err      error
	profiles []audio.Profile
	inputs   []string
	outputs  []string
	dir      string
}

func (f *fakeTranscoder) ToWAV(ctx context.Context, in string, profile audio.Profile) (string, error) {
	f.profiles = append(f.profiles, profile)
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return "", f.err
	}
	out := filepath.Join(f.dir, "converted_"+string(profile)+".wav")
	if err := audio.WriteWAVFile(out, make([]float32, 1600)); err != nil {
		return "", err
	}
	f.outputs = append(f.outputs, out)
	return out, nil
}

func TestDirectStrategyWithSamples(t *testing.T) {
	model := &MockSpeechModel{Text: "hello"}
	samples := make([]float32, 320)

	got, err := DirectStrategy{Model: model}.Attempt(context.Background(), RawAudio{Samples: samples})
	if err != nil || got != "hello" {
		t.Fatalf("Attempt() = %q, %v", got, err)
	}
	if len(model.Samples) != 320 {
		t.Errorf("model got %d samples, want 320", len(model.Samples))
	}
}

func TestDirectStrategyDecodesWAV(t *testing.T) {
	wav, err := audio.EncodeWAVBytes(make([]float32, 800))
	if err != nil {
		t.Fatal(err)
	}
	model := &MockSpeechModel{Text: "decoded"}

	got, err := DirectStrategy{Model: model}.Attempt(context.Background(), RawAudio{Encoded: wav, Container: "wav"})
	if err != nil || got != "decoded" {
		t.Fatalf("Attempt() = %q, %v", got, err)
	}
	if len(model.Samples) != 800 {
		t.Errorf("model got %d samples, want 800", len(model.Samples))
	}
}

func TestDirectStrategyRejectsWebM(t *testing.T) {
	model := &MockSpeechModel{Text: "never"}
	_, err := DirectStrategy{Model: model}.Attempt(context.Background(), RawAudio{Encoded: []byte{0x1A, 0x45, 0xDF, 0xA3}, Container: "webm"})
	if !errors.Is(err, audio.ErrUnsupportedContainer) {
		t.Errorf("Attempt() error = %v, want ErrUnsupportedContainer", err)
	}
	if model.Calls != 0 {
		t.Errorf("model called for undecodable input")
	}
}

func TestDirectStrategyUploadsOriginalBlob(t *testing.T) {
	webm := []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01, 0x02}
	var gotName string
	var gotData []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/v1/audio/transcriptions":
			f, header, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "missing file", http.StatusBadRequest)
				return
			}
			defer f.Close()
			gotName = header.Filename
			gotData, _ = io.ReadAll(f)
			_ = json.NewEncoder(w).Encode(map[string]string{"text": "from webm"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	m, err := NewRESTModel(server.URL, "base", "")
	if err != nil {
		t.Fatalf("NewRESTModel() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "input_1_x.webm")
	if err := os.WriteFile(path, webm, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := DirectStrategy{Model: m}.Attempt(context.Background(), RawAudio{Path: path, Container: "webm"})
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if got != "from webm" {
		t.Errorf("Attempt() = %q", got)
	}
	if gotName != "audio.webm" {
		t.Errorf("uploaded filename = %q, want audio.webm", gotName)
	}
	if string(gotData) != string(webm) {
		t.Errorf("uploaded %v, want the original bytes", gotData)
	}
}

func TestTranscodeStrategies(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTranscoder{dir: dir}
	model := &MockSpeechModel{Text: "transcoded"}

	canonical := NewCanonicalTranscodeStrategy(model, tr, dir)
	simple := NewSimpleTranscodeStrategy(model, tr, dir)

	if canonical.Name() != "transcode_canonical" || simple.Name() != "transcode_simple" {
		t.Fatalf("names = %q, %q", canonical.Name(), simple.Name())
	}

	in := RawAudio{Encoded: []byte("webm-bytes"), Container: "webm"}
	for _, s := range []TranscodeStrategy{canonical, simple} {
		got, err := s.Attempt(context.Background(), in)
		if err != nil || got != "transcoded" {
			t.Fatalf("%s Attempt() = %q, %v", s.Name(), got, err)
		}
	}

	if tr.profiles[0] != audio.ProfileCanonical || tr.profiles[1] != audio.ProfileSimple {
		t.Errorf("profiles = %v", tr.profiles)
	}
	for _, in := range tr.inputs {
		if !strings.HasSuffix(in, ".webm") {
			t.Errorf("transcoder input %q, want a .webm temp file", in)
		}
	}

	// Temporary inputs and transcoded outputs are cleaned up.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temp dir not cleaned: %d entries left", len(entries))
	}
}

func TestTranscodeStrategyUsesExistingPath(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "input_1.ogg")
	if err := os.WriteFile(src, []byte("ogg"), 0o644); err != nil {
		t.Fatal(err)
	}
	tr := &fakeTranscoder{dir: dir}

	_, err := NewSimpleTranscodeStrategy(&MockSpeechModel{Text: "ok"}, tr, dir).
		Attempt(context.Background(), RawAudio{Path: src, Container: "ogg"})
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if tr.inputs[0] != src {
		t.Errorf("transcoder input = %q, want %q", tr.inputs[0], src)
	}
	if _, err := os.Stat(src); err != nil {
		t.Errorf("caller-owned input was removed: %v", err)
	}
}

func TestTranscodeStrategyFromSamples(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTranscoder{dir: dir}

	_, err := NewCanonicalTranscodeStrategy(&MockSpeechModel{Text: "ok"}, tr, dir).
		Attempt(context.Background(), RawAudio{Samples: make([]float32, 100)})
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if !strings.HasSuffix(tr.inputs[0], ".wav") {
		t.Errorf("transcoder input = %q, want a wav temp file", tr.inputs[0])
	}
}

func TestTranscodeStrategyTranscoderError(t *testing.T) {
	tr := &fakeTranscoder{dir: t.TempDir(), err: audio.ErrTranscoderUnavailable}
	model := &MockSpeechModel{Text: "never"}

	_, err := NewCanonicalTranscodeStrategy(model, tr, t.TempDir()).
		Attempt(context.Background(), RawAudio{Encoded: []byte("x")})
	if !errors.Is(err, audio.ErrTranscoderUnavailable) {
		t.Errorf("Attempt() error = %v", err)
	}
	if model.Calls != 0 {
		t.Error("model called after transcoder failure")
	}
}

func TestDefaultChainFallsBackToTranscode(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTranscoder{dir: dir}
	model := &MockSpeechModel{Text: "what time is it"}
	chain := NewChain(DefaultStrategies(model, tr, dir)...)

	got := chain.Transcribe(context.Background(), RawAudio{Encoded: []byte{0x1A, 0x45, 0xDF, 0xA3}, Container: "webm"})

	if !got.OK || got.Strategy != "transcode_canonical" {
		t.Fatalf("Transcribe() = %+v, want canonical transcode success", got)
	}
	if len(tr.profiles) != 1 {
		t.Errorf("transcoder ran %d times, want 1", len(tr.profiles))
	}
}

func TestUnavailableModel(t *testing.T) {
	_, err := UnavailableModel{Reason: errors.New("no model file")}.TranscribePCM(context.Background(), nil)
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("error = %v, want ErrModelUnavailable", err)
	}
}

func TestRESTModel(t *testing.T) {
	var gotModel, gotFormat string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/v1/audio/transcriptions":
			if err := r.ParseMultipartForm(10 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			gotModel = r.FormValue("model")
			gotFormat = r.FormValue("response_format")
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "missing file", http.StatusBadRequest)
				return
			}
			_ = f.Close()
			_ = json.NewEncoder(w).Encode(map[string]string{"text": " hello orbit "})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	m, err := NewRESTModel(server.URL, "base", "auto")
	if err != nil {
		t.Fatalf("NewRESTModel() error = %v", err)
	}

	got, err := m.TranscribePCM(context.Background(), make([]float32, 1600))
	if err != nil {
		t.Fatalf("TranscribePCM() error = %v", err)
	}
	if got != " hello orbit " {
		t.Errorf("TranscribePCM() = %q", got)
	}
	if gotModel != "base" || gotFormat != "json" {
		t.Errorf("form model=%q format=%q", gotModel, gotFormat)
	}

	if _, err := m.TranscribePCM(context.Background(), nil); err == nil {
		t.Error("expected error for empty audio")
	}
}

func TestRESTModelHealthCheckFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if _, err := NewRESTModel(server.URL, "base", ""); err == nil {
		t.Error("expected health check error")
	}
}

func TestRESTModelServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			return
		}
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	m, err := NewRESTModel(server.URL, "base", "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.TranscribePCM(context.Background(), make([]float32, 10))
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("TranscribePCM() error = %v, want status 500", err)
	}
}
