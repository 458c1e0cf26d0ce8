package main

import (
	"alcyxob/plan-delivery/internal/app"
	"alcyxob/plan-delivery/internal/config"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/observability"
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

// @title Plan Delivery API
// @version 1.0
// @description Delivers coaching plans to clients and gates catalog content behind review.
// @contact.name API Support
// @contact.email support@example.com
// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}

	appLogger, err := logger.New(cfg.Log.Mode)
	if err != nil {
		log.Fatalf("FATAL: Could not initialize logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info("Starting Plan Delivery Server...", "address", cfg.Server.Address)

	if cfg.JWT.Secret == "" {
		appLogger.Fatal("JWT secret is not configured (JWT_SECRET)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.InitOTel(ctx, appLogger, cfg.OTel)

	// --- Wiring ---
	application, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Could not initialize application", "error", err)
	}

	// --- Ensure Indexes ---
	go func() { // Run index creation in background
		idxCtx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		if err := application.EnsureIndexes(idxCtx); err != nil {
			appLogger.Error("Index creation finished with errors", "error", err)
			return
		}
		appLogger.Info("Index creation process completed.")
	}()

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      application.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Server listening", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// --- Graceful Shutdown ---
	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down server...")
	case err := <-serverErr:
		if err != nil {
			appLogger.Error("ListenAndServe error", "error", err)
		}
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}
	if err := application.Close(ctxShutdown); err != nil {
		appLogger.Error("Failed to release connections", "error", err)
	}
	if err := shutdownTracing(ctxShutdown); err != nil {
		appLogger.Warn("Failed to flush traces", "error", err)
	}
	appLogger.Info("Server exiting.")
}
