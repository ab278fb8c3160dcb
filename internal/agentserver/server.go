// Package agentserver implements the MCP-speaking HTTP endpoint that
// runs inside each agent runtime: it answers the per-agent MCP JSON-RPC
// methods the router proxies to, enqueuing long-running tool calls onto
// the Task Queue (C5).
package agentserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/OutfinityResearch/ploinky-sub006/internal/common/httpmw"
	"github.com/OutfinityResearch/ploinky-sub006/internal/common/logger"
	"github.com/OutfinityResearch/ploinky-sub006/internal/mcprpc"
	"github.com/OutfinityResearch/ploinky-sub006/internal/taskqueue"
)

// Server is the agent-side MCP endpoint. It holds no session state of
// its own — the router owns sessions; this server just answers
// whatever JSON-RPC call arrives.
type Server struct {
	name      string
	queue     *taskqueue.Queue
	tools     []ToolDefinition
	resources []mcprpc.Resource
	log       *logger.Logger
}

// New builds a Server backed by queue, named agentName (used in
// serverInfo replies).
func New(agentName string, queue *taskqueue.Queue, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		name:      agentName,
		queue:     queue,
		tools:     defaultTools(),
		resources: defaultResources(),
		log:       log.With(zap.String("component", "agentserver"), zap.String("agent", agentName)),
	}
}

// RegisterRoutes wires /mcp and /task onto engine.
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.Use(httpmw.ErrorHandler(s.log))
	engine.POST("/mcp", s.handleMCP)
	engine.DELETE("/mcp", s.handleDelete)
	engine.GET("/mcp", s.methodNotAllowed)
	engine.GET("/task", s.handleTaskStatus)
	engine.GET("/healthz", s.handleHealthz)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) methodNotAllowed(c *gin.Context) {
	c.Header("Allow", "POST, DELETE")
	c.Status(http.StatusMethodNotAllowed)
}

func (s *Server) handleDelete(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMCP(c *gin.Context) {
	var raw json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}

	var req mcprpc.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}

	ctx := c.Request.Context()

	switch req.Method {
	case mcprpc.MethodInitialize:
		s.handleInitialize(c, &req)
	case mcprpc.MethodNotificationsInit:
		c.Status(http.StatusNoContent)
	case mcprpc.MethodToolsList:
		s.handleToolsList(c, &req)
	case mcprpc.MethodToolsCall:
		s.handleToolsCall(c, ctx, &req)
	case mcprpc.MethodResourcesList:
		s.handleResourcesList(c, &req)
	case mcprpc.MethodResourcesRead:
		s.handleResourcesRead(c, &req)
	case mcprpc.MethodPing:
		c.JSON(http.StatusOK, mcprpc.NewResult(req.ID, struct{}{}))
	default:
		c.JSON(http.StatusOK, mcprpc.NewError(req.ID, mcprpc.CodeMethodNotFound, "Method not found: "+req.Method))
	}
}

func (s *Server) handleInitialize(c *gin.Context, req *mcprpc.Request) {
	var params mcprpc.InitializeParams
	_ = json.Unmarshal(req.Params, &params)

	protocolVersion := params.ProtocolVersion
	if protocolVersion == "" {
		protocolVersion = mcprpc.DefaultProtocolVersion
	}

	result := mcprpc.InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: map[string]interface{}{
			"tools":     map[string]interface{}{"listChanged": false},
			"resources": map[string]interface{}{"listChanged": false},
		},
		ServerInfo: mcprpc.ServerInfo{Name: "ploinky-agent:" + s.name, Version: "1.0.0"},
	}
	c.Header("Mcp-Protocol-Version", protocolVersion)
	c.JSON(http.StatusOK, mcprpc.NewResult(req.ID, result))
}

func (s *Server) handleToolsList(c *gin.Context, req *mcprpc.Request) {
	result := mcprpc.ToolsListResult{}
	for _, t := range s.tools {
		result.Tools = append(result.Tools, t.Tool)
	}
	c.JSON(http.StatusOK, mcprpc.NewResult(req.ID, result))
}

func (s *Server) handleToolsCall(c *gin.Context, ctx context.Context, req *mcprpc.Request) {
	var params mcprpc.ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		c.JSON(http.StatusOK, mcprpc.NewError(req.ID, mcprpc.CodeInvalidParams, "invalid params: "+err.Error()))
		return
	}

	tool, ok := s.findTool(params.Name)
	if !ok {
		rpcErr := toolNotFoundError(params.Name)
		c.JSON(http.StatusOK, mcprpc.NewError(req.ID, rpcErr.Code, rpcErr.Message))
		return
	}

	if tool.Call != nil {
		result, err := tool.Call(ctx, params.Arguments)
		if err != nil {
			c.JSON(http.StatusOK, mcprpc.NewError(req.ID, mcprpc.CodeInternalError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, mcprpc.NewResult(req.ID, result))
		return
	}

	spec := tool.Enqueue(params.Arguments)
	task, err := s.queue.Enqueue(spec)
	if err != nil {
		c.JSON(http.StatusOK, mcprpc.NewError(req.ID, mcprpc.CodeInternalError, "failed to enqueue task: "+err.Error()))
		return
	}

	result := mcprpc.ToolCallResult{Metadata: map[string]interface{}{"taskId": task.ID}}
	c.JSON(http.StatusOK, mcprpc.NewResult(req.ID, result))
}

func (s *Server) handleResourcesList(c *gin.Context, req *mcprpc.Request) {
	c.JSON(http.StatusOK, mcprpc.NewResult(req.ID, mcprpc.ResourcesListResult{Resources: s.resources}))
}

func (s *Server) handleResourcesRead(c *gin.Context, req *mcprpc.Request) {
	var params mcprpc.ResourceReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		c.JSON(http.StatusOK, mcprpc.NewError(req.ID, mcprpc.CodeInvalidParams, "invalid params: "+err.Error()))
		return
	}
	for _, r := range s.resources {
		if r.URI == params.URI {
			c.JSON(http.StatusOK, mcprpc.NewResult(req.ID, mcprpc.ResourceReadResult{
				Contents: []mcprpc.ResourceContent{{URI: r.URI, MimeType: r.MimeType}},
			}))
			return
		}
	}
	c.JSON(http.StatusOK, mcprpc.NewError(req.ID, mcprpc.CodeInvalidParams, "unknown resource: "+params.URI))
}

func (s *Server) handleTaskStatus(c *gin.Context) {
	taskID := c.Query("taskId")
	task, ok := s.queue.GetTask(taskID)
	if !ok {
		// Literal {"error":"task not found"} (spec §6): the MCP client's
		// task poller matches this exact body to synthesize a failed
		// callback, not the nested AppError shape.
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}
