package router

import (
	"github.com/gin-gonic/gin"

	"github.com/OutfinityResearch/ploinky-sub006/internal/agenttoken"
	"github.com/OutfinityResearch/ploinky-sub006/internal/common/config"
	"github.com/OutfinityResearch/ploinky-sub006/internal/common/httpmw"
	"github.com/OutfinityResearch/ploinky-sub006/internal/common/logger"
	"github.com/OutfinityResearch/ploinky-sub006/internal/registry"
)

// SetupRoutes wires the full MCP plane URL surface (spec §4.1 "URL
// surface the core implements") onto engine, with the auth gate applied
// to every /mcps/* and /mcp route.
func SetupRoutes(engine *gin.Engine, reg *registry.Registry, tokenHandler *agenttoken.Handler, cfg config.RouterConfig, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	engine.Use(httpmw.RequestLogger(log))
	engine.Use(httpmw.Recovery(log))
	engine.Use(httpmw.ErrorHandler(log))
	engine.Use(httpmw.CORS())
	engine.Use(httpmw.BodyLimit(cfg.BodyLimitBytes))
	if cfg.RateLimitPerSecond > 0 {
		engine.Use(httpmw.RateLimit(cfg.RateLimitPerSecond))
	}

	engine.POST("/auth/agent-token", tokenHandler.MintToken)

	h := NewHandler(reg, cfg.SessionCookieMaxAgeSeconds, log)

	// GET is a routing-level 405 classification (spec §4.1), applied
	// before the auth gate — no token is required just to learn that
	// SSE server-push isn't supported here.
	engine.GET("/mcps/:agent/mcp", h.MethodNotAllowed)
	engine.GET("/mcp", h.MethodNotAllowed)

	mcps := engine.Group("/mcps/:agent/mcp")
	mcps.Use(tokenHandler.RequireToken())
	mcps.POST("", h.PerAgentMCP)
	mcps.DELETE("", h.PerAgentMCP)

	tasks := engine.Group("/mcps/:agent/task")
	tasks.Use(tokenHandler.RequireToken())
	tasks.GET("", taskStatusPassthrough(reg))

	aggregator := engine.Group("/mcp")
	aggregator.Use(tokenHandler.RequireToken())
	aggregator.POST("", h.AggregatorMCP)
	aggregator.DELETE("", h.AggregatorMCP)

	engine.GET("/healthz", healthz)

	return h
}

func healthz(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
