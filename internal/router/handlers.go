package router

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/OutfinityResearch/ploinky-sub006/internal/agenttoken"
	"github.com/OutfinityResearch/ploinky-sub006/internal/common/logger"
	"github.com/OutfinityResearch/ploinky-sub006/internal/mcprpc"
	"github.com/OutfinityResearch/ploinky-sub006/internal/registry"
)

const sessionHeader = "Mcp-Session-Id"
const protocolHeader = "Mcp-Protocol-Version"

// Handler wires C1 (sessions, request classification, auth gate) to C2
// (the per-agent proxy and the aggregator).
type Handler struct {
	sessions     *SessionStore
	proxy        *Proxy
	aggregator   *Aggregator
	registry     *registry.Registry
	log          *logger.Logger
	cookieMaxAge int
}

// NewHandler builds a Handler. cookieMaxAge is the configured
// session-cookie Max-Age (-1 meaning unset; see config.RouterConfig).
func NewHandler(reg *registry.Registry, cookieMaxAge int, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		sessions:     NewSessionStore(),
		proxy:        NewProxy(reg),
		aggregator:   NewAggregator(reg),
		registry:     reg,
		log:          log.With(zap.String("component", "router")),
		cookieMaxAge: cookieMaxAge,
	}
}

// MethodNotAllowed answers GET on endpoints that only support POST/DELETE
// (spec §4.1: "SSE server-push is not supported upstream from router").
func (h *Handler) MethodNotAllowed(c *gin.Context) {
	c.Header("Allow", "POST, DELETE")
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
}

// PerAgentMCP handles POST/DELETE /mcps/:agent/mcp.
func (h *Handler) PerAgentMCP(c *gin.Context) {
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

	if c.Request.Method == http.MethodDelete {
		h.handleDelete(c)
		return
	}

	h.handleMCPPost(c, agentName)
}

// AggregatorMCP handles POST/DELETE /mcp.
func (h *Handler) AggregatorMCP(c *gin.Context) {
	principal, ok := agenttoken.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	if c.Request.Method == http.MethodDelete {
		h.handleDelete(c)
		return
	}

	h.handleAggregatorPost(c, principal.AllowedTargets)
}

func (h *Handler) handleDelete(c *gin.Context) {
	if sid := c.GetHeader(sessionHeader); sid != "" {
		h.sessions.Delete(sid)
	}
	http.SetCookie(c.Writer, expireCookie())
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleMCPPost(c *gin.Context, agentName string) {
	req, batchRejected, parseErr := decodeRequest(c)
	if batchRejected {
		writeRPCError(c, nil, mcprpc.CodeBatchNotSupported, "Batch requests are not supported")
		return
	}
	if parseErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}

	switch req.Method {
	case mcprpc.MethodInitialize:
		h.handleInitialize(c, agentName, req)
		return
	case mcprpc.MethodNotificationsInit:
		h.echoSessionHeaders(c, agentName)
		c.Status(http.StatusNoContent)
		return
	}

	sess, sessErr := h.requireSession(c, agentName)
	if sessErr != nil {
		writeRPCError(c, req.ID, sessErr.Code, sessErr.Message)
		return
	}

	result, rpcErr := h.proxy.Forward(c.Request.Context(), agentName, req.Method, req.Params)
	h.echoSessionHeaders(c, sess.AgentName)
	if rpcErr != nil {
		writeRPCError(c, req.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	c.JSON(http.StatusOK, mcprpc.NewResult(req.ID, json.RawMessage(result)))
}

func (h *Handler) handleAggregatorPost(c *gin.Context, allowedTargets []string) {
	req, batchRejected, parseErr := decodeRequest(c)
	if batchRejected {
		writeRPCError(c, nil, mcprpc.CodeBatchNotSupported, "Batch requests are not supported")
		return
	}
	if parseErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}

	targets := h.aggregator.EffectiveTargets(allowedTargets)

	switch req.Method {
	case mcprpc.MethodInitialize:
		h.handleInitialize(c, "", req)
		return
	case mcprpc.MethodNotificationsInit:
		c.Status(http.StatusNoContent)
		return
	case mcprpc.MethodToolsList:
		result, rpcErr := h.aggregator.ListTools(c.Request.Context(), targets)
		if rpcErr != nil {
			writeRPCError(c, req.ID, rpcErr.Code, rpcErr.Message)
			return
		}
		c.JSON(http.StatusOK, mcprpc.NewResult(req.ID, result))
		return
	case mcprpc.MethodToolsCall:
		result, rpcErr := h.aggregator.CallTool(c.Request.Context(), targets, req.Params)
		if rpcErr != nil {
			writeRPCError(c, req.ID, rpcErr.Code, rpcErr.Message)
			return
		}
		c.JSON(http.StatusOK, mcprpc.NewResult(req.ID, json.RawMessage(result)))
		return
	case mcprpc.MethodResourcesList:
		result, rpcErr := h.aggregator.ListResources(c.Request.Context(), targets)
		if rpcErr != nil {
			writeRPCError(c, req.ID, rpcErr.Code, rpcErr.Message)
			return
		}
		c.JSON(http.StatusOK, mcprpc.NewResult(req.ID, result))
		return
	case mcprpc.MethodPing:
		if rpcErr := h.aggregator.Ping(c.Request.Context(), targets); rpcErr != nil {
			writeRPCError(c, req.ID, rpcErr.Code, rpcErr.Message)
			return
		}
		c.JSON(http.StatusOK, mcprpc.NewResult(req.ID, struct{}{}))
		return
	default:
		writeRPCError(c, req.ID, mcprpc.CodeMethodNotFound, "Method not found: "+req.Method)
	}
}

func (h *Handler) handleInitialize(c *gin.Context, agentName string, req *mcprpc.Request) {
	var params mcprpc.InitializeParams
	_ = json.Unmarshal(req.Params, &params)

	protocolVersion := params.ProtocolVersion
	if protocolVersion == "" {
		protocolVersion = mcprpc.DefaultProtocolVersion
	}

	sess := h.sessions.Create(agentName, protocolVersion)

	serverName := "ploinky-router-proxy"
	if agentName != "" {
		serverName = "ploinky-router-proxy:" + agentName
	}

	result := mcprpc.InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: map[string]interface{}{
			"tools":     map[string]interface{}{"listChanged": false},
			"resources": map[string]interface{}{"listChanged": false},
		},
		ServerInfo: mcprpc.ServerInfo{Name: serverName, Version: "1.0.0"},
	}

	c.Header(sessionHeader, sess.ID)
	c.Header(protocolHeader, protocolVersion)
	http.SetCookie(c.Writer, buildCookie(sess.ID, h.cookieMaxAge))
	c.JSON(http.StatusOK, mcprpc.NewResult(req.ID, result))
}

// requireSession validates the mcp-session-id header against the store
// and the requested agentName (spec §3 "a session belongs to exactly
// one upstream agent; cross-agent reuse is rejected with -32000").
func (h *Handler) requireSession(c *gin.Context, agentName string) (*Session, *mcprpc.Error) {
	sid := c.GetHeader(sessionHeader)
	sess, ok := h.sessions.Get(sid)
	if !ok || sess.AgentName != agentName {
		return nil, &mcprpc.Error{Code: mcprpc.CodeServerError, Message: "Missing or invalid MCP session"}
	}
	return sess, nil
}

func (h *Handler) echoSessionHeaders(c *gin.Context, agentName string) {
	sid := c.GetHeader(sessionHeader)
	if sid == "" {
		return
	}
	if sess, ok := h.sessions.Get(sid); ok {
		c.Header(sessionHeader, sess.ID)
		c.Header(protocolHeader, sess.ProtocolVersion)
	}
}

// decodeRequest parses the JSON-RPC request body, distinguishing a
// rejected batch (a JSON array) from a malformed single request.
func decodeRequest(c *gin.Context) (req *mcprpc.Request, batchRejected bool, err error) {
	var raw json.RawMessage
	if bindErr := c.ShouldBindJSON(&raw); bindErr != nil {
		return nil, false, bindErr
	}
	trimmed := trimLeadingSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, true, nil
	}
	var parsed mcprpc.Request
	if unmarshalErr := json.Unmarshal(raw, &parsed); unmarshalErr != nil {
		return nil, false, unmarshalErr
	}
	return &parsed, false, nil
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

func writeRPCError(c *gin.Context, id json.RawMessage, code int, message string) {
	c.JSON(http.StatusOK, mcprpc.NewError(id, code, message))
}
