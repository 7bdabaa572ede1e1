/*
Package main is the entry point for the storesync daemon.

It loads configuration, initializes the global logging system, brings up the
realtime sync service for the configured identity, serves the diagnostic HTTP
endpoints, and handles operating system interrupt signals (SIGINT, SIGTERM)
for a graceful shutdown.
*/
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

	"storesync/internal/app/realtime"
	"storesync/internal/app/store"
	"storesync/internal/configs"
	"storesync/internal/handler"
	"storesync/internal/pkg/errs"
	"storesync/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("broker_url", cfg.BrokerURL).
		Str("api_base_url", cfg.APIBaseURL).
		Dur("reconnect_delay", cfg.ReconnectDelay).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Wire the collaborator client and the sync service
	api := store.NewClient(cfg.APIBaseURL, cfg.AuthToken, cfg.APITimeout)
	service := realtime.NewService(api, realtime.NewWebSocketTransport(), cfg.BrokerURL, cfg.ReconnectDelay)

	if cfg.AuthToken != "" {
		initCtx, cancelInit := context.WithTimeout(ctx, 30*time.Second)
		err := service.Init(initCtx, cfg.AuthToken)
		cancelInit()

		if err != nil {
			// an invalid credential is fatal; a dead broker is not, the
			// service keeps retrying once the first session is established
			if errors.Is(err, errs.NewError(errs.ErrAuthFailure)) || errors.Is(err, errs.NewError(errs.ErrInvalidToken)) {
				logx.Fatal(err, "Credential rejected. Refusing to start without a valid identity.")
			}
			logx.Error(err, "Initial connect failed. Serving diagnostics; connect again via a fresh start.")
		}
	} else {
		logx.Warn("AUTH_TOKEN is empty. Starting without a connected identity.")
	}

	// Setup HTTP server and routes
	router := handler.Router(service, cfg)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("storesync daemon listening on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	service.Teardown()

	logx.Info("Daemon gracefully stopped.")
}
