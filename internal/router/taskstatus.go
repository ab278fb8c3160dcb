package router

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OutfinityResearch/ploinky-sub006/internal/agenttoken"
	"github.com/OutfinityResearch/ploinky-sub006/internal/common/errors"
	"github.com/OutfinityResearch/ploinky-sub006/internal/registry"
)

// taskStatusPassthrough proxies GET /mcps/<agent>/task?taskId=<id> to
// the upstream agent's own task-status endpoint (spec §6 "Task status
// API"), without going through the MCP JSON-RPC client — this is a
// plain REST passthrough, not a JSON-RPC exchange. It sits under the
// token-gated /mcps/:agent group (spec §4.1: every /mcps/* request
// must carry a bearer token) and enforces the same allowedTargets
// check PerAgentMCP applies to POST/DELETE.
func taskStatusPassthrough(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		agentName := c.Param("agent")

		principal, ok := agenttoken.PrincipalFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}
		if !contains(principal.AllowedTargets, agentName) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden_target"})
			return
		}

		route, ok := reg.Get(agentName)
		if !ok {
			c.Error(errors.NotFound("task", c.Query("taskId")))
			return
		}

		taskID := c.Query("taskId")
		upstreamURL := route.BaseURL() + "/task?taskId=" + taskID

		req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, upstreamURL, nil)
		if err != nil {
			c.Error(errors.InternalError("internal error", err))
			return
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			c.Error(errors.ServiceUnavailable(agentName))
			return
		}
		defer resp.Body.Close()

		c.Status(resp.StatusCode)
		c.Header("Content-Type", resp.Header.Get("Content-Type"))
		io.Copy(c.Writer, resp.Body)
	}
}
