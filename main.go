package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/roleboard/internal/api"
	"github.com/isdelr/roleboard/internal/config"
	"github.com/isdelr/roleboard/internal/database"
	"github.com/isdelr/roleboard/internal/logger"
	"github.com/isdelr/roleboard/internal/monitoring"
	"github.com/isdelr/roleboard/internal/secret"
	"github.com/isdelr/roleboard/internal/services"
	"github.com/isdelr/roleboard/internal/session"
	"github.com/isdelr/roleboard/internal/views"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, !cfg.IsProduction())

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	userService := services.NewUserService(db, cfg.QueryTimeout, cfg.BcryptCost)

	password, err := userService.EnsureAdmin(context.Background(), cfg.AdminUsername)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed administrator")
	}
	if password != "" {
		log.Warn().Str("username", cfg.AdminUsername).Str("password", password).
			Msg("Administrator created; this password is shown only once")
	}

	// The signing key lives for the life of the process only.
	signingKey, err := secret.NewSigningKey()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate session signing key")
	}
	sessions := session.NewManager(signingKey, cfg.SessionTTL)
	authService := services.NewAuthService(userService, sessions, cfg.BcryptCost)

	renderer, err := views.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse templates")
	}

	// Set up and run the background session sweeper
	sweeper, err := monitoring.NewSessionSweeper(sessions, cfg.SweepSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule session sweeper")
	}
	sweeper.Run()

	// Set up router
	router := api.NewRouter(api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		SecureCookies:  cfg.IsProduction(),
	}, sessions, authService, userService, renderer)

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
