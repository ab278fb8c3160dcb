package mcpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/OutfinityResearch/ploinky-sub006/internal/mcprpc"
)

// fakeJSONServer answers every /mcp POST with an inline JSON response,
// and 405s the SSE GET (so the client falls back to POST-only replies).
func fakeJSONServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req mcprpc.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Mcp-Session-Id", "sess-123")

		switch req.Method {
		case mcprpc.MethodInitialize:
			result := mcprpc.InitializeResult{
				ProtocolVersion: "2025-06-18",
				ServerInfo:      mcprpc.ServerInfo{Name: "fake-agent", Version: "9.9.9"},
			}
			resp := mcprpc.NewResult(req.ID, result)
			json.NewEncoder(w).Encode(resp)
		case mcprpc.MethodToolsList:
			result := mcprpc.ToolsListResult{Tools: []mcprpc.Tool{{Name: "echo_script"}}}
			json.NewEncoder(w).Encode(mcprpc.NewResult(req.ID, result))
		case mcprpc.MethodPing:
			json.NewEncoder(w).Encode(mcprpc.NewResult(req.ID, struct{}{}))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	return httptest.NewServer(mux)
}

func TestConnectNegotiatesProtocolVersionAndListsTools(t *testing.T) {
	srv := fakeJSONServer(t)
	defer srv.Close()

	client := New(srv.URL, "/task")
	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if client.ProtocolVersion() != "2025-06-18" {
		t.Fatalf("expected negotiated protocol version, got %q", client.ProtocolVersion())
	}
	if client.ServerInfo().Name != "fake-agent" {
		t.Fatalf("expected server info to be recorded, got %+v", client.ServerInfo())
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(tools.Tools) != 1 || tools.Tools[0].Name != "echo_script" {
		t.Fatalf("unexpected tools: %+v", tools.Tools)
	}
}

func TestPingRoundTrip(t *testing.T) {
	srv := fakeJSONServer(t)
	defer srv.Close()

	client := New(srv.URL, "/task")
	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := client.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func fakeErrorServer(t *testing.T, code int, message string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req mcprpc.Request
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Method == mcprpc.MethodInitialize {
			json.NewEncoder(w).Encode(mcprpc.NewResult(req.ID, mcprpc.InitializeResult{ProtocolVersion: "2025-06-18"}))
			return
		}
		json.NewEncoder(w).Encode(mcprpc.NewError(req.ID, code, message))
	})
	return httptest.NewServer(mux)
}

func TestCallToolPropagatesUpstreamJSONRPCError(t *testing.T) {
	srv := fakeErrorServer(t, mcprpc.CodeInvalidParams, "missing argument: text")
	defer srv.Close()

	client := New(srv.URL, "/task")
	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	_, err := client.CallTool(ctx, "echo_script", nil, nil)
	if err == nil {
		t.Fatalf("expected an error")
	}
	rpcErr, ok := err.(*mcprpc.Error)
	if !ok {
		t.Fatalf("expected *mcprpc.Error, got %T: %v", err, err)
	}
	if rpcErr.Code != mcprpc.CodeInvalidParams {
		t.Fatalf("expected code %d, got %d", mcprpc.CodeInvalidParams, rpcErr.Code)
	}
}

func TestConnectFallsBackWhenSSEUnsupported(t *testing.T) {
	srv := fakeJSONServer(t)
	defer srv.Close()

	client := New(srv.URL, "/task")
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if client.streamsSupported {
		t.Fatalf("expected streamsSupported=false when upstream 405s the SSE GET")
	}
}
