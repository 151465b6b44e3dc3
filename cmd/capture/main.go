package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/smartlife/capture/internal/api"
	"github.com/smartlife/capture/internal/bus"
	"github.com/smartlife/capture/internal/channel"
	"github.com/smartlife/capture/internal/config"
	"github.com/smartlife/capture/internal/domain"
	"github.com/smartlife/capture/internal/gemini"
	"github.com/smartlife/capture/internal/session"
	"github.com/smartlife/capture/internal/store"
)

func main() {
	godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("capture starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Gemini client
	if cfg.GeminiAPIKey == "" {
		slog.Error("GEMINI_API_KEY is required")
		os.Exit(1)
	}
	llm := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel)
	slog.Info("gemini client ready", "model", cfg.GeminiModel)

	// Voice channel
	voice := channel.NewVoice(cfg.VoiceURL, slog.Default())

	// NATS (optional — capture works without it, just no downstream fan-out)
	var notifier session.Notifier
	if cfg.NatsURL != "" {
		busClient, err := bus.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer busClient.Close()
		notifier = busClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured — saved events will not be announced")
	}

	// Session manager — the main pipeline
	sessions := session.NewManager(session.Config{
		Store: db,
		LLM:   llm,
		OpenVoice: func(ctx context.Context, token string, prior []domain.ConversationTurn) (session.VoiceStream, error) {
			return voice.Open(ctx, token, prior)
		},
		Bus:           notifier,
		Logger:        slog.Default(),
		CloseDelay:    cfg.CloseDelay,
		EventsContext: cfg.EventsContext,
	})

	// HTTP API
	srv := api.NewServer(cfg.Port, sessions, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("capture ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("capture stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
