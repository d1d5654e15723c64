package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/embr/internal/api"
	"github.com/eldtechnologies/embr/internal/broadcast"
	"github.com/eldtechnologies/embr/internal/config"
	"github.com/eldtechnologies/embr/internal/kv"
	"github.com/eldtechnologies/embr/internal/room"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize Redis store
	store, err := kv.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer store.Close()
	logger.Info().Msg("connected to Redis")

	// Broadcaster and room service
	events := broadcast.New(store.Client(), logger)
	defer events.Close()

	tokens, err := room.NewSignedTokenPolicy(cfg.TokenSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid token secret")
	}

	rooms := room.NewService(store, events, tokens, logger)

	// Create router
	router := api.NewRouter(logger, cfg, rooms, events, store)

	// Create server. No WriteTimeout: the events endpoint holds SSE streams
	// open for the life of the room.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting embr server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
