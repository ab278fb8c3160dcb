package agentserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OutfinityResearch/ploinky-sub006/internal/mcprpc"
	"github.com/OutfinityResearch/ploinky-sub006/internal/taskqueue"
)

func newTestServer(t *testing.T, maxConcurrent int) (*httptest.Server, *taskqueue.Queue) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	workspace := t.TempDir()
	q := taskqueue.New("demo", workspace, maxConcurrent, taskqueue.CommandExecutor, nil)
	if err := q.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize queue: %v", err)
	}

	srv := New("demo", q, nil)
	engine := gin.New()
	srv.RegisterRoutes(engine)
	return httptest.NewServer(engine), q
}

func rpcCall(t *testing.T, srv *httptest.Server, method string, params interface{}) *mcprpc.Response {
	t.Helper()
	req := mcprpc.NewRequest(json.RawMessage(`"1"`), method, params)
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var out mcprpc.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &out
}

func TestToolsListAdvertisesSeedTools(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	defer srv.Close()

	resp := rpcCall(t, srv, mcprpc.MethodToolsList, nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result mcprpc.ToolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(result.Tools))
	}
}

func TestEchoScriptRespondsSynchronously(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	defer srv.Close()

	resp := rpcCall(t, srv, mcprpc.MethodToolsCall, mcprpc.ToolCallParams{
		Name:      "echo_script",
		Arguments: map[string]interface{}{"text": "hi"},
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result mcprpc.ToolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hi" {
		t.Fatalf("expected echoed text, got %+v", result.Content)
	}
}

func TestRunSimulationEnqueuesAndCompletes(t *testing.T) {
	srv, q := newTestServer(t, 1)
	defer srv.Close()

	resp := rpcCall(t, srv, mcprpc.MethodToolsCall, mcprpc.ToolCallParams{
		Name:      "run_simulation",
		Arguments: map[string]interface{}{"command": "echo hello"},
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result mcprpc.ToolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	taskID, _ := result.Metadata["taskId"].(string)
	if taskID == "" {
		t.Fatalf("expected a taskId in metadata, got %+v", result.Metadata)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, ok := q.GetTask(taskID)
		if ok && task.Status == taskqueue.StatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not complete in time", taskID)
}

func TestRunSimulationTimesOutAndKillsProcess(t *testing.T) {
	srv, q := newTestServer(t, 1)
	defer srv.Close()

	resp := rpcCall(t, srv, mcprpc.MethodToolsCall, mcprpc.ToolCallParams{
		Name: "run_simulation",
		Arguments: map[string]interface{}{
			"command":   "sleep 5",
			"timeoutMs": float64(50),
		},
	})
	var result mcprpc.ToolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	taskID, _ := result.Metadata["taskId"].(string)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, ok := q.GetTask(taskID)
		if ok && task.Status == taskqueue.StatusFailed {
			if !strings.Contains(task.Error, "timed out") {
				t.Fatalf("expected timeout error, got %q", task.Error)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not fail in time", taskID)
}

func TestGetOnMCPReturns405(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/mcp")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestHealthzReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestTaskStatusEndpointReturns404ForUnknownID(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/task?taskId=does-not-exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

