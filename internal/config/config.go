package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port          int
	DatabaseURL   string
	LogLevel      string
	GeminiAPIKey  string
	GeminiModel   string
	VoiceURL      string
	NatsURL       string
	NatsToken     string
	CloseDelay    time.Duration
	EventsContext int
}

func Load() Config {
	return Config{
		Port:          envInt("CAPTURE_PORT", 8820),
		DatabaseURL:   envStr("DATABASE_URL", ""),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		GeminiAPIKey:  envStr("GEMINI_API_KEY", ""),
		GeminiModel:   envStr("CAPTURE_MODEL", "gemini-2.0-flash-exp"),
		VoiceURL:      envStr("VOICE_STREAM_URL", "wss://generativelanguage.googleapis.com/ws/live"),
		NatsURL:       envStr("NATS_URL", ""),
		NatsToken:     envStr("NATS_TOKEN", ""),
		CloseDelay:    envDuration("CAPTURE_CLOSE_DELAY", 2*time.Second),
		EventsContext: envInt("CAPTURE_EVENTS_CONTEXT", 20),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
