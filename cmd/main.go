package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"compliance-rag-assistant/internal/app"
	"compliance-rag-assistant/internal/config"
	"compliance-rag-assistant/internal/logger"
	"compliance-rag-assistant/models"
	"compliance-rag-assistant/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	logger.InitLogger(cfg)

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		if errors.Is(err, models.ErrDimensionMismatch) {
			logger.Error("Index was built with another embedding model, run the ingest command with -rebuild", "error", err)
		} else {
			logger.Error("Failed to initialize", "error", err)
		}
		os.Exit(1)
	}
	defer a.Close()

	if a.Index.Len() == 0 {
		logger.Warn("Vector index is empty, every answer will be 'not found' until the ingest command runs", "index_path", cfg.IndexPath)
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := routes.NewRouter(routes.Deps{
		Config:   cfg,
		Pipeline: a.Pipeline,
		Index:    a.Index,
		Redis:    a.Redis,
		Metrics:  a.Metrics,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Streams in flight get up to one request timeout to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
