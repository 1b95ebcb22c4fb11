package main

import (
	"context"   // Shutdown deadline
	"errors"    // Server closed detection
	"net/http"  // HTTP server
	"os"        // Log output
	"os/signal" // Graceful shutdown
	"sync"      // Worker lifecycle
	"syscall"   // SIGTERM
	"time"      // Timeouts

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logrus for structured logging

	"github.com/The-Quan/atm-banking-2/internal/api"      // HTTP handlers and routes
	"github.com/The-Quan/atm-banking-2/internal/app"      // Component wiring
	"github.com/The-Quan/atm-banking-2/internal/auth"     // Token issuer
	"github.com/The-Quan/atm-banking-2/internal/config"   // Configuration
	"github.com/The-Quan/atm-banking-2/internal/identity" // Registration and login
	"github.com/The-Quan/atm-banking-2/internal/logging"  // Logger setup
)

// Main function to set up and run the server
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logging.Setup(os.Stdout, cfg.LogLevel, cfg.IsProd) // Setup logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg) // Connect storage, Redis and notification pipeline
	if err != nil {
		logrus.Fatalf("failed to start: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logrus.WithField("error", err.Error()).Error("Shutdown cleanup failed")
		}
	}()

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	router, err := api.NewRouter(api.Deps{
		Engine:   a.Engine,
		Users:    a.Store,
		Admin:    a.Store,
		Identity: identity.NewService(a.Store, tokens),
		Tokens:   tokens,
		Cache:    a.Cache,
		Probes:   a.Probes(),
		Proxies:  []string{"127.0.0.1"},
	})
	if err != nil {
		logrus.Fatalf("failed to build router: %v", err)
	}

	// Notifications are delivered in the background for the life of the server
	workerCtx, stopWorker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = a.Worker.Run(workerCtx)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.WithFields(logrus.Fields{"port": cfg.AppPort, "driver": cfg.DBDriver}).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("error", err.Error()).Error("Server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithField("error", err.Error()).Error("HTTP shutdown failed")
	}
	// Stop the worker once the last request has finished
	stopWorker()
	wg.Wait()
}
