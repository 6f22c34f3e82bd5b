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

	"github.com/cenkalti/backoff/v5"
	"github.com/gin-gonic/gin"

	"brewmate-engine/internal/config"
	"brewmate-engine/internal/handlers"
	"brewmate-engine/internal/pkg/logger"
	"brewmate-engine/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting brewmate engine", "environment", cfg.Environment, "port", cfg.HTTP.Port)

	ctx := context.Background()

	oracle, err := services.NewGeminiService(cfg.Gemini, log)
	if err != nil {
		log.WithError(err).Error("failed to initialize oracle service")
		os.Exit(1)
	}
	defer oracle.Close()

	catalog, err := connectCatalog(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to connect to catalog store")
		os.Exit(1)
	}
	defer catalog.Close()

	state, err := connectState(cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to connect to state store")
		os.Exit(1)
	}
	defer state.Close()

	orchestrator := services.NewOrchestrator(oracle, catalog, state, cfg, log)
	defer orchestrator.Close()

	chatHandler := handlers.NewChatHandler(orchestrator, catalog, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	chatHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	log.Info("Shutdown complete")
}

// connectCatalog retries the initial Postgres connection; the database often
// comes up a few seconds after the service in containerized deploys.
func connectCatalog(ctx context.Context, cfg *config.Config, log *logger.Logger) (*services.CatalogService, error) {
	return backoff.Retry(ctx, func() (*services.CatalogService, error) {
		catalog, err := services.NewCatalogService(ctx, cfg.Postgres, log)
		if err != nil {
			log.WithError(err).Warn("catalog connection attempt failed, retrying")
			return nil, err
		}
		return catalog, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(2*time.Minute))
}

func connectState(cfg *config.Config, log *logger.Logger) (*services.StateService, error) {
	return backoff.Retry(context.Background(), func() (*services.StateService, error) {
		state, err := services.NewStateService(cfg.Redis, log)
		if err != nil {
			log.WithError(err).Warn("state store connection attempt failed, retrying")
			return nil, err
		}
		return state, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(2*time.Minute))
}
