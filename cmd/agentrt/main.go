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

	"github.com/OutfinityResearch/ploinky-sub006/internal/agentserver"
	"github.com/OutfinityResearch/ploinky-sub006/internal/common/config"
	"github.com/OutfinityResearch/ploinky-sub006/internal/common/httpmw"
	"github.com/OutfinityResearch/ploinky-sub006/internal/common/logger"
	"github.com/OutfinityResearch/ploinky-sub006/internal/taskqueue"
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

	agentName := os.Getenv("PLOINKY_AGENT_NAME")
	if agentName == "" {
		log.Fatal("PLOINKY_AGENT_NAME must be set")
	}
	log.Info("Starting Ploinky agent runtime...", zap.String("agent", agentName))

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Initialize the Task Queue (C5)
	queue := taskqueue.New(agentName, cfg.Queue.Workspace, cfg.Queue.MaxConcurrent, taskqueue.CommandExecutor, log)
	if err := queue.Initialize(ctx); err != nil {
		log.Fatal("Failed to initialize task queue", zap.Error(err))
	}
	log.Info("Task queue initialized", zap.Int("maxConcurrent", cfg.Queue.MaxConcurrent))

	// 5. Build the agent-side MCP server
	srv := agentserver.New(agentName, queue, log)

	// 6. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(httpmw.RequestLogger(log))
	engine.Use(httpmw.Recovery(log))
	engine.Use(httpmw.BodyLimit(cfg.Router.BodyLimitBytes))
	srv.RegisterRoutes(engine)

	// 7. Create HTTP server
	route, ok := cfg.Agents[agentName]
	port := route.HostPort
	if !ok || port == 0 {
		port = 8090
	}
	server := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Router.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Router.WriteTimeout) * time.Second,
	}

	// 8. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 9. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Ploinky agent runtime...")

	// 10. Graceful shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Ploinky agent runtime stopped")
}
