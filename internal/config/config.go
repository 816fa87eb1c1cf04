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
	"fmt"
	"os"
	"strconv"
	"time"
)

// Fixed audio format shared by capture, decoding and transcription.
const (
	PipelineSampleRate = 16000
	PipelineChannels   = 1
)

// Config holds all configuration for the Orbit agent
type Config struct {
	Server     ServerConfig
	Audio      AudioConfig
	STT        STTConfig
	Generation GenerationConfig
	Embedding  EmbeddingConfig
	Retrieval  RetrievalConfig
	TTS        TTSConfig
	Storage    StorageConfig
	NATS       NATSConfig
	Logging    LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AudioMount   string // URL prefix under which synthesized audio is served
}

// AudioConfig holds capture and voice-activity-detection settings
type AudioConfig struct {
	SampleRate       int
	Channels         int
	ChunkDuration    time.Duration // VAD analysis window
	SilenceThreshold float64       // RMS below this is silence
	EndOfSpeech      time.Duration // consecutive silence that ends an utterance
	MaxRecord        time.Duration // hard cap on one utterance
}

// STTConfig holds Speech-to-Text configuration
type STTConfig struct {
	WhisperModelPath string // ggml model for the in-process whisper.cpp model
	URL              string // OpenAI-compatible REST service, used when set
	Model            string
	Language         string
	FFmpegPath       string
	TempDir          string // uploaded and transcoded audio
}

// GenerationConfig holds language-generation backend configuration
type GenerationConfig struct {
	Backend       string // "ollama" or "openai"
	OllamaHost    string
	OllamaModel   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	Temperature   float64
}

// EmbeddingConfig holds text-embedding configuration for semantic retrieval
type EmbeddingConfig struct {
	Backend string // "ollama", "openai" or "none"
	Model   string
}

// RetrievalConfig holds knowledge-base configuration
type RetrievalConfig struct {
	KnowledgeFile string
	TopK          int
}

// TTSConfig holds Text-to-Speech service configuration
type TTSConfig struct {
	URL            string // OpenAI-compatible base URL (…/v1)
	APIKey         string
	Model          string
	Voice          string
	ResponseFormat string
	MaxConcurrent  int
	Timeout        time.Duration
	OutputDir      string // interactive mode artifacts
	APIAudioDir    string // served mode artifacts, exposed under Server.AudioMount
}

// StorageConfig holds turn-history persistence configuration
type StorageConfig struct {
	DBPath string // empty disables turn history
}

// NATSConfig holds NATS messaging configuration
type NATSConfig struct {
	URL           string // empty disables turn event publishing
	Subject       string
	MaxReconnect  int
	ReconnectWait time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	openAIKey := getEnvString("OPENAI_API_KEY", "")

	config := &Config{
		Server: ServerConfig{
			Host:         getEnvString("ORBIT_HOST", "0.0.0.0"),
			Port:         getEnvInt("ORBIT_PORT", 8000),
			ReadTimeout:  getEnvDuration("ORBIT_READ_TIMEOUT", 60*time.Second),
			WriteTimeout: getEnvDuration("ORBIT_WRITE_TIMEOUT", 120*time.Second),
			AudioMount:   getEnvString("ORBIT_AUDIO_MOUNT", "/audio"),
		},
		Audio: AudioConfig{
			SampleRate:       getEnvInt("AUDIO_SAMPLE_RATE", PipelineSampleRate),
			Channels:         getEnvInt("AUDIO_CHANNELS", PipelineChannels),
			ChunkDuration:    getEnvDuration("VAD_CHUNK_DURATION", 300*time.Millisecond),
			SilenceThreshold: getEnvFloat64("VAD_SILENCE_THRESHOLD", 0.008),
			EndOfSpeech:      getEnvDuration("VAD_END_OF_SPEECH", 1500*time.Millisecond),
			MaxRecord:        getEnvDuration("VAD_MAX_RECORD", 20*time.Second),
		},
		STT: STTConfig{
			WhisperModelPath: getEnvString("WHISPER_MODEL_PATH", "./models/ggml-base.bin"),
			URL:              getEnvString("STT_URL", ""),
			Model:            getEnvString("STT_MODEL", "base"),
			Language:         getEnvString("STT_LANGUAGE", "auto"),
			FFmpegPath:       getEnvString("FFMPEG_PATH", "ffmpeg"),
			TempDir:          getEnvString("TEMP_AUDIO_DIR", "temp_audio"),
		},
		Generation: GenerationConfig{
			Backend:       getEnvString("GENERATION_BACKEND", "ollama"),
			OllamaHost:    getEnvString("OLLAMA_HOST", "http://localhost:11434"),
			OllamaModel:   getEnvString("OLLAMA_MODEL", "llama3.2"),
			OpenAIAPIKey:  openAIKey,
			OpenAIBaseURL: getEnvString("OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnvString("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			Temperature:   getEnvFloat64("LLM_TEMPERATURE", 0.75),
		},
		Embedding: EmbeddingConfig{
			Backend: getEnvString("EMBEDDING_BACKEND", "ollama"),
			Model:   getEnvString("EMBEDDING_MODEL", "all-minilm"),
		},
		Retrieval: RetrievalConfig{
			KnowledgeFile: getEnvString("KNOWLEDGE_FILE", "knowledge_base.txt"),
			TopK:          getEnvInt("RETRIEVAL_TOP_K", 2),
		},
		TTS: TTSConfig{
			URL:            getEnvString("TTS_URL", "https://api.openai.com/v1"),
			APIKey:         getEnvString("TTS_API_KEY", openAIKey),
			Model:          getEnvString("TTS_MODEL", "tts-1"),
			Voice:          getEnvString("TTS_VOICE", "shimmer"),
			ResponseFormat: getEnvString("TTS_FORMAT", "mp3"),
			MaxConcurrent:  getEnvInt("TTS_MAX_CONCURRENT", 10),
			Timeout:        getEnvDuration("TTS_TIMEOUT", 30*time.Second),
			OutputDir:      getEnvString("OUTPUT_DIR", "outputs"),
			APIAudioDir:    getEnvString("API_AUDIO_DIR", "api_audio"),
		},
		Storage: StorageConfig{
			DBPath: getEnvString("DB_PATH", "./data/orbit.db"),
		},
		NATS: NATSConfig{
			URL:           getEnvString("NATS_URL", ""),
			Subject:       getEnvString("NATS_SUBJECT", "orbit.turns.completed"),
			MaxReconnect:  getEnvInt("NATS_MAX_RECONNECT", 10),
			ReconnectWait: getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "console"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// ChunkSamples returns the number of samples in one VAD chunk
func (a AudioConfig) ChunkSamples() int {
	return int(int64(a.SampleRate) * a.ChunkDuration.Milliseconds() / 1000)
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Audio.SampleRate != PipelineSampleRate {
		return fmt.Errorf("unsupported sample rate: %d (pipeline runs at %d Hz)", c.Audio.SampleRate, PipelineSampleRate)
	}

	if c.Audio.Channels != PipelineChannels {
		return fmt.Errorf("unsupported channel count: %d (pipeline is mono)", c.Audio.Channels)
	}

	if c.Audio.ChunkDuration <= 0 || c.Audio.ChunkSamples() == 0 {
		return fmt.Errorf("VAD chunk duration must be positive: %v", c.Audio.ChunkDuration)
	}

	if c.Audio.SilenceThreshold <= 0 {
		return fmt.Errorf("VAD silence threshold must be positive: %f", c.Audio.SilenceThreshold)
	}

	if c.Audio.EndOfSpeech < c.Audio.ChunkDuration {
		return fmt.Errorf("end-of-speech silence %v shorter than one chunk", c.Audio.EndOfSpeech)
	}

	if c.Audio.MaxRecord < c.Audio.ChunkDuration {
		return fmt.Errorf("max record duration %v shorter than one chunk", c.Audio.MaxRecord)
	}

	switch c.Generation.Backend {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown generation backend: %q", c.Generation.Backend)
	}

	switch c.Embedding.Backend {
	case "ollama", "openai", "none":
	default:
		return fmt.Errorf("unknown embedding backend: %q", c.Embedding.Backend)
	}

	if c.Retrieval.KnowledgeFile == "" {
		return fmt.Errorf("knowledge file must be provided")
	}

	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval top_k must be at least 1: %d", c.Retrieval.TopK)
	}

	if c.TTS.MaxConcurrent <= 0 {
		return fmt.Errorf("TTS max concurrent must be positive: %d", c.TTS.MaxConcurrent)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
