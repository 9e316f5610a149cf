package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/user-portal/internal/app"
	"github.com/vasiliy-maslov/user-portal/internal/auth"
	"github.com/vasiliy-maslov/user-portal/internal/config"
	"github.com/vasiliy-maslov/user-portal/internal/db"
	handler "github.com/vasiliy-maslov/user-portal/internal/handler/http"
	"github.com/vasiliy-maslov/user-portal/internal/store"
	"github.com/vasiliy-maslov/user-portal/internal/store/memstore"
	"github.com/vasiliy-maslov/user-portal/internal/store/pgstore"
	"github.com/vasiliy-maslov/user-portal/internal/store/postgrest"
	"github.com/vasiliy-maslov/user-portal/internal/user"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	envFile := flag.String("env", ".env", "path to the .env file")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.App)

	log.Info().Str("store", cfg.Store.Backend).Str("auth", cfg.Auth.Backend).Msg("User portal starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up store")
	}
	defer closeStore()

	authenticator, err := newAuthenticator(cfg, client)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up authentication")
	}

	sessions, err := app.NewRegistry(app.Deps{
		Store: client,
		Auth:  authenticator,
	}, cfg.App.SessionIdleTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session registry")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      handler.NewHandler(sessions).Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Store.Timeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
		return
	}
	log.Info().Msg("Server stopped")
}

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", cfg.Name).Logger()
}

func newStore(ctx context.Context, cfg *config.Config) (store.Client, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendPostgREST:
		client, err := postgrest.New(postgrest.Config{
			BaseURL: cfg.Store.URL,
			APIKey:  cfg.Store.APIKey,
			Schema:  cfg.Store.Schema,
			Timeout: cfg.Store.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil

	case config.BackendPostgres:
		conn, err := db.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if err := conn.ApplyMigrations(cfg.Postgres); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return pgstore.New(conn.Pool, cfg.Store.Timeout), conn.Close, nil

	case config.BackendMemory:
		mem := memstore.New()
		mem.CreateTable(user.Table, "email")
		mem.CreateTable(auth.CredentialsTable, "email")
		log.Warn().Msg("Using the in-memory store, data is lost on restart")
		return mem, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func newAuthenticator(cfg *config.Config, client store.Client) (auth.Authenticator, error) {
	switch cfg.Auth.Backend {
	case config.AuthGoTrue:
		return auth.NewGoTrue(auth.GoTrueConfig{
			BaseURL: cfg.Store.URL,
			APIKey:  cfg.Store.APIKey,
			Timeout: cfg.Store.Timeout,
		})
	case config.AuthLocal:
		tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
		if err != nil {
			return nil, err
		}
		return auth.NewLocal(client, tokens), nil
	}
	return nil, fmt.Errorf("unknown auth backend %q", cfg.Auth.Backend)
}
