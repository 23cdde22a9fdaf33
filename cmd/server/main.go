package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/workwise/aikor"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	uploads := flag.String("uploads", filepath.Join(os.TempDir(), "aikor-uploads"), "Directory for uploaded documents")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("AIKOR_LOG_LEVEL")),
	})))

	cfg := aikor.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = aikor.LoadConfig(*configPath)
		if err != nil {
			slog.Error("loading config", "error", err)
			os.Exit(1)
		}
	}
	applyEnv(&cfg)

	apiKey := os.Getenv("AIKOR_API_KEY")
	corsOrigins := os.Getenv("AIKOR_CORS_ORIGINS")

	engine, err := aikor.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:         *addr,
		Handler:      newRouter(newHandler(engine, *uploads), apiKey, corsOrigins),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 0, // render and review can run for minutes
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

// applyEnv overrides config values from AIKOR_* environment variables.
func applyEnv(cfg *aikor.Config) {
	if v := os.Getenv("AIKOR_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("AIKOR_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("AIKOR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Batch.MaxWorkers = n
		}
	}
	if v := os.Getenv("AIKOR_VISION_PROVIDER"); v != "" {
		cfg.Vision.Provider = v
	}
	if v := os.Getenv("AIKOR_VISION_MODEL"); v != "" {
		cfg.Vision.Model = v
	}
	if v := os.Getenv("AIKOR_VISION_BASE_URL"); v != "" {
		cfg.Vision.BaseURL = v
	}
	if v := os.Getenv("AIKOR_VISION_API_KEY"); v != "" {
		cfg.Vision.APIKey = v
	}

	// Fallback: well-known provider env vars for API keys.
	if cfg.Vision.APIKey == "" {
		switch cfg.Vision.Provider {
		case "openai":
			cfg.Vision.APIKey = os.Getenv("OPENAI_API_KEY")
		case "openrouter":
			cfg.Vision.APIKey = os.Getenv("OPENROUTER_API_KEY")
		case "gemini":
			cfg.Vision.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
}

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
