package agentserver

import (
	"context"
	"fmt"

	"github.com/OutfinityResearch/ploinky-sub006/internal/mcprpc"
	"github.com/OutfinityResearch/ploinky-sub006/internal/taskqueue"
)

// ToolDefinition describes one MCP tool this agent runtime exposes.
// Synchronous tools set Call; long-running tools set Enqueue instead —
// exactly one of the two is non-nil.
type ToolDefinition struct {
	Tool    mcprpc.Tool
	Call    func(ctx context.Context, args map[string]interface{}) (*mcprpc.ToolCallResult, error)
	Enqueue func(args map[string]interface{}) taskqueue.EnqueueSpec
}

// defaultTools are the demo tools exercised by the seed scenarios:
// echo_script answers inline, run_simulation always goes through the
// task queue.
func defaultTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Tool: mcprpc.Tool{
				Name:        "echo_script",
				Description: "Echoes the given text back immediately.",
				InputSchema: map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{"text": map[string]interface{}{"type": "string"}},
					"required":   []string{"text"},
				},
			},
			Call: func(ctx context.Context, args map[string]interface{}) (*mcprpc.ToolCallResult, error) {
				text, _ := args["text"].(string)
				return &mcprpc.ToolCallResult{Content: []mcprpc.ContentBlock{{Type: "text", Text: text}}}, nil
			},
		},
		{
			Tool: mcprpc.Tool{
				Name:        "run_simulation",
				Description: "Runs a long-lived simulation command via the task queue.",
				InputSchema: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"command":   map[string]interface{}{"type": "string"},
						"timeoutMs": map[string]interface{}{"type": "integer"},
					},
					"required": []string{"command"},
				},
			},
			Enqueue: func(args map[string]interface{}) taskqueue.EnqueueSpec {
				command, _ := args["command"].(string)
				timeoutMs := 0
				if v, ok := args["timeoutMs"].(float64); ok {
					timeoutMs = int(v)
				}
				return taskqueue.EnqueueSpec{
					ToolName:    "run_simulation",
					CommandSpec: taskqueue.CommandSpec{Command: command, TimeoutMs: timeoutMs},
					Payload:     args,
					TimeoutMs:   timeoutMs,
				}
			},
		},
	}
}

func (s *Server) findTool(name string) (ToolDefinition, bool) {
	for _, t := range s.tools {
		if t.Tool.Name == name {
			return t, true
		}
	}
	return ToolDefinition{}, false
}

func toolNotFoundError(name string) *mcprpc.Error {
	return &mcprpc.Error{Code: mcprpc.CodeInvalidParams, Message: fmt.Sprintf("unknown tool: %s", name)}
}
