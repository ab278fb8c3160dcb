package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/OutfinityResearch/ploinky-sub006/internal/agenttoken"
	"github.com/OutfinityResearch/ploinky-sub006/internal/common/config"
	"github.com/OutfinityResearch/ploinky-sub006/internal/common/logger"
	"github.com/OutfinityResearch/ploinky-sub006/internal/registry"
	"github.com/OutfinityResearch/ploinky-sub006/internal/router"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Ploinky router...")

	// 3. Initialize the agent route registry
	reg := registry.New(cfg.Agents)
	log.Info("Loaded agent registry", zap.Int("agents", len(reg.Names())))

	// 4. Initialize the Agent Token Service (C4)
	credStore, err := agenttoken.LoadCredentialStore(cfg.Auth.CredentialsFile)
	if err != nil {
		log.Fatal("Failed to load agent-to-agent credentials", zap.Error(err))
	}
	tokenService := agenttoken.NewService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenDurationSeconds)*time.Second)
	tokenHandler := agenttoken.NewHandler(credStore, tokenService, log)

	// 5. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	// 6. Register routes
	router.SetupRoutes(engine, reg, tokenHandler, cfg.Router, log)

	// 7. Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Router.Host, cfg.Router.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Router.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Router.WriteTimeout) * time.Second,
	}

	// 8. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Router.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 9. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Ploinky router...")

	// 10. Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Ploinky router stopped")
}
