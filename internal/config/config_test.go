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

package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Server.AudioMount != "/audio" {
		t.Errorf("Server.AudioMount = %q, want /audio", cfg.Server.AudioMount)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Errorf("audio format = %d Hz/%d ch, want 16000/1", cfg.Audio.SampleRate, cfg.Audio.Channels)
	}
	if cfg.Audio.ChunkSamples() != 4800 {
		t.Errorf("ChunkSamples() = %d, want 4800", cfg.Audio.ChunkSamples())
	}
	if cfg.Audio.SilenceThreshold != 0.008 {
		t.Errorf("SilenceThreshold = %v, want 0.008", cfg.Audio.SilenceThreshold)
	}
	if cfg.Audio.EndOfSpeech != 1500*time.Millisecond {
		t.Errorf("EndOfSpeech = %v, want 1.5s", cfg.Audio.EndOfSpeech)
	}
	if cfg.Audio.MaxRecord != 20*time.Second {
		t.Errorf("MaxRecord = %v, want 20s", cfg.Audio.MaxRecord)
	}
	if cfg.Generation.Backend != "ollama" || cfg.Generation.Temperature != 0.75 {
		t.Errorf("Generation = %+v, want ollama at 0.75", cfg.Generation)
	}
	if cfg.Retrieval.TopK != 2 {
		t.Errorf("Retrieval.TopK = %d, want 2", cfg.Retrieval.TopK)
	}
	if cfg.TTS.Model != "tts-1" || cfg.TTS.Voice != "shimmer" || cfg.TTS.ResponseFormat != "mp3" {
		t.Errorf("TTS = %+v, want tts-1/shimmer/mp3", cfg.TTS)
	}
	if cfg.NATS.URL != "" {
		t.Errorf("NATS.URL = %q, want empty (publishing disabled)", cfg.NATS.URL)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	_ = os.Setenv("ORBIT_PORT", "9100")
	_ = os.Setenv("VAD_SILENCE_THRESHOLD", "0.02")
	_ = os.Setenv("VAD_END_OF_SPEECH", "900ms")
	_ = os.Setenv("GENERATION_BACKEND", "openai")
	_ = os.Setenv("OPENAI_API_KEY", "sk-test")
	_ = os.Setenv("RETRIEVAL_TOP_K", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Audio.SilenceThreshold != 0.02 {
		t.Errorf("SilenceThreshold = %v, want 0.02", cfg.Audio.SilenceThreshold)
	}
	if cfg.Audio.EndOfSpeech != 900*time.Millisecond {
		t.Errorf("EndOfSpeech = %v, want 900ms", cfg.Audio.EndOfSpeech)
	}
	if cfg.Generation.Backend != "openai" {
		t.Errorf("Generation.Backend = %q, want openai", cfg.Generation.Backend)
	}
	// TTS key falls back to the shared OpenAI key
	if cfg.TTS.APIKey != "sk-test" || cfg.Generation.OpenAIAPIKey != "sk-test" {
		t.Errorf("API keys not propagated: tts=%q gen=%q", cfg.TTS.APIKey, cfg.Generation.OpenAIAPIKey)
	}
	if cfg.Retrieval.TopK != 4 {
		t.Errorf("Retrieval.TopK = %d, want 4", cfg.Retrieval.TopK)
	}
}

func TestLoadInvalidValuesFallBackToDefaults(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	_ = os.Setenv("ORBIT_PORT", "not-a-number")
	_ = os.Setenv("VAD_MAX_RECORD", "forever")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want default 8000", cfg.Server.Port)
	}
	if cfg.Audio.MaxRecord != 20*time.Second {
		t.Errorf("MaxRecord = %v, want default 20s", cfg.Audio.MaxRecord)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name          string
		envVars       map[string]string
		expectError   bool
		errorContains string
	}{
		{
			name:        "valid defaults",
			envVars:     map[string]string{},
			expectError: false,
		},
		{
			name:          "invalid port",
			envVars:       map[string]string{"ORBIT_PORT": "70000"},
			expectError:   true,
			errorContains: "invalid server port",
		},
		{
			name:          "unsupported sample rate",
			envVars:       map[string]string{"AUDIO_SAMPLE_RATE": "44100"},
			expectError:   true,
			errorContains: "unsupported sample rate",
		},
		{
			name:          "stereo rejected",
			envVars:       map[string]string{"AUDIO_CHANNELS": "2"},
			expectError:   true,
			errorContains: "unsupported channel count",
		},
		{
			name:          "non-positive threshold",
			envVars:       map[string]string{"VAD_SILENCE_THRESHOLD": "0"},
			expectError:   true,
			errorContains: "silence threshold",
		},
		{
			name:          "end of speech shorter than a chunk",
			envVars:       map[string]string{"VAD_END_OF_SPEECH": "100ms"},
			expectError:   true,
			errorContains: "end-of-speech",
		},
		{
			name:          "unknown generation backend",
			envVars:       map[string]string{"GENERATION_BACKEND": "markov"},
			expectError:   true,
			errorContains: "unknown generation backend",
		},
		{
			name:          "unknown embedding backend",
			envVars:       map[string]string{"EMBEDDING_BACKEND": "bag-of-words"},
			expectError:   true,
			errorContains: "unknown embedding backend",
		},
		{
			name:          "zero top k",
			envVars:       map[string]string{"RETRIEVAL_TOP_K": "0"},
			expectError:   true,
			errorContains: "top_k",
		},
		{
			name:          "zero TTS concurrency",
			envVars:       map[string]string{"TTS_MAX_CONCURRENT": "0"},
			expectError:   true,
			errorContains: "TTS max concurrent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars()
			for key, value := range tt.envVars {
				_ = os.Setenv(key, value)
			}
			defer clearEnvVars()

			_, err := Load()

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				} else if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error to contain %q, got: %v", tt.errorContains, err)
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

// Helper function to clear environment variables used in tests
func clearEnvVars() {
	envVars := []string{
		"ORBIT_HOST", "ORBIT_PORT", "ORBIT_READ_TIMEOUT", "ORBIT_WRITE_TIMEOUT", "ORBIT_AUDIO_MOUNT",
		"AUDIO_SAMPLE_RATE", "AUDIO_CHANNELS",
		"VAD_CHUNK_DURATION", "VAD_SILENCE_THRESHOLD", "VAD_END_OF_SPEECH", "VAD_MAX_RECORD",
		"WHISPER_MODEL_PATH", "STT_URL", "STT_MODEL", "STT_LANGUAGE", "FFMPEG_PATH", "TEMP_AUDIO_DIR",
		"GENERATION_BACKEND", "OLLAMA_HOST", "OLLAMA_MODEL",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_CHAT_MODEL", "LLM_TEMPERATURE",
		"EMBEDDING_BACKEND", "EMBEDDING_MODEL", "KNOWLEDGE_FILE", "RETRIEVAL_TOP_K",
		"TTS_URL", "TTS_API_KEY", "TTS_MODEL", "TTS_VOICE", "TTS_FORMAT",
		"TTS_MAX_CONCURRENT", "TTS_TIMEOUT", "OUTPUT_DIR", "API_AUDIO_DIR",
		"DB_PATH", "NATS_URL", "NATS_SUBJECT", "NATS_MAX_RECONNECT", "NATS_RECONNECT_WAIT",
		"LOG_LEVEL", "LOG_FORMAT",
	}

	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}
