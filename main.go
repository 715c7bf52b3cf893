package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mailtriage/config"
	"mailtriage/internal/bootstrap"
	"mailtriage/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger.Init(logger.Config{Level: logger.LevelInfo, Service: "mailtriage"})

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config: %v", err)
	}

	app, cleanup, err := bootstrap.NewAPI(cfg)
	if err != nil {
		logger.Fatal("failed to initialize API: %v", err)
	}
	defer cleanup()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down (timeout: %v)...", shutdownTimeout)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- app.Shutdown() }()

		select {
		case err := <-done:
			if err != nil {
				logger.Error("error shutting down: %v", err)
			} else {
				logger.Info("shut down gracefully")
			}
		case <-ctx.Done():
			logger.Warn("shutdown timed out, forcing exit")
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("starting server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("failed to start server: %v", err)
	}
}
