package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OutfinityResearch/ploinky-sub006/internal/agenttoken"
	"github.com/OutfinityResearch/ploinky-sub006/internal/common/config"
	"github.com/OutfinityResearch/ploinky-sub006/internal/mcprpc"
	"github.com/OutfinityResearch/ploinky-sub006/internal/registry"
)

func newTestEngine(t *testing.T, allowedTargets []string) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New(map[string]config.AgentRoute{
		"demo":      {HostPort: 19001},
		"simulator": {HostPort: 19002},
	})

	store := agenttoken.NewCredentialStore([]agenttoken.ClientCredential{
		{ClientID: "client-a", ClientSecret: "secret-a", AllowedTargets: allowedTargets},
	})
	service := agenttoken.NewService("test-jwt-secret", time.Hour)
	tokenHandler := agenttoken.NewHandler(store, service, nil)

	engine := gin.New()
	SetupRoutes(engine, reg, tokenHandler, config.RouterConfig{BodyLimitBytes: 0, SessionCookieMaxAgeSeconds: -1}, nil)

	token, _, err := service.Mint("client-a", allowedTargets)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return engine, token
}

func doJSONRPC(engine *gin.Engine, method, path, token string, body *mcprpc.Request, sessionID string) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestGetOnMCPEndpointsReturns405(t *testing.T) {
	engine, _ := newTestEngine(t, []string{"demo"})

	for _, path := range []string{"/mcps/demo/mcp", "/mcp"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", path, rec.Code)
		}
		if allow := rec.Header().Get("Allow"); allow != "POST, DELETE" {
			t.Fatalf("%s: expected Allow header, got %q", path, allow)
		}
	}
}

func TestAuthGateRejectsMissingToken(t *testing.T) {
	engine, _ := newTestEngine(t, []string{"demo"})
	req := httptest.NewRequest(http.MethodPost, "/mcps/demo/mcp", bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":"1","method":"ping"}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthGateForbidsOutOfScopeTarget(t *testing.T) {
	engine, token := newTestEngine(t, []string{"demo"})

	idJSON, _ := json.Marshal("1")
	req := mcprpc.NewRequest(idJSON, mcprpc.MethodPing, nil)
	rec := doJSONRPC(engine, http.MethodPost, "/mcps/simulator/mcp", token, req, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 forbidden_target, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInitializeMintsSessionAndEchoesProtocolVersion(t *testing.T) {
	engine, token := newTestEngine(t, []string{"demo"})

	idJSON, _ := json.Marshal("1")
	params, _ := json.Marshal(mcprpc.InitializeParams{ProtocolVersion: "2099-01-01"})
	req := &mcprpc.Request{JSONRPC: "2.0", ID: idJSON, Method: mcprpc.MethodInitialize, Params: params}

	rec := doJSONRPC(engine, http.MethodPost, "/mcps/demo/mcp", token, req, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	sessionID := rec.Header().Get(sessionHeader)
	if sessionID == "" {
		t.Fatalf("expected a minted session id")
	}
	if pv := rec.Header().Get(protocolHeader); pv != "2099-01-01" {
		t.Fatalf("expected negotiated protocol version to be echoed, got %q", pv)
	}
}

func TestCrossAgentSessionReuseRejected(t *testing.T) {
	engine, token := newTestEngine(t, []string{"demo", "simulator"})

	idJSON, _ := json.Marshal("1")
	initReq := &mcprpc.Request{JSONRPC: "2.0", ID: idJSON, Method: mcprpc.MethodInitialize}
	rec := doJSONRPC(engine, http.MethodPost, "/mcps/demo/mcp", token, initReq, "")
	sessionID := rec.Header().Get(sessionHeader)
	if sessionID == "" {
		t.Fatalf("expected minted session")
	}

	callReq := &mcprpc.Request{JSONRPC: "2.0", ID: idJSON, Method: mcprpc.MethodPing}
	rec = doJSONRPC(engine, http.MethodPost, "/mcps/simulator/mcp", token, callReq, sessionID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200 (JSON-RPC errors are not HTTP errors), got %d", rec.Code)
	}

	var resp mcprpc.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != mcprpc.CodeServerError {
		t.Fatalf("expected -32000 session error, got %+v", resp.Error)
	}
}

func TestBatchRequestsRejected(t *testing.T) {
	engine, token := newTestEngine(t, []string{"demo"})

	req := httptest.NewRequest(http.MethodPost, "/mcps/demo/mcp", bytes.NewReader([]byte(`[{"jsonrpc":"2.0","id":"1","method":"ping"}]`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200 carrying a JSON-RPC error, got %d", rec.Code)
	}
	var resp mcprpc.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != mcprpc.CodeBatchNotSupported {
		t.Fatalf("expected -32600 batch error, got %+v", resp.Error)
	}
}

func TestTaskStatusRouteRejectsMissingToken(t *testing.T) {
	engine, _ := newTestEngine(t, []string{"demo"})
	req := httptest.NewRequest(http.MethodGet, "/mcps/demo/task?taskId=abc", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTaskStatusRouteForbidsOutOfScopeTarget(t *testing.T) {
	engine, token := newTestEngine(t, []string{"demo"})
	req := httptest.NewRequest(http.MethodGet, "/mcps/simulator/task?taskId=abc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 forbidden_target, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteSessionExpiresCookieExactlyZero(t *testing.T) {
	engine, token := newTestEngine(t, []string{"demo"})

	idJSON, _ := json.Marshal("1")
	initReq := &mcprpc.Request{JSONRPC: "2.0", ID: idJSON, Method: mcprpc.MethodInitialize}
	rec := doJSONRPC(engine, http.MethodPost, "/mcps/demo/mcp", token, initReq, "")
	sessionID := rec.Header().Get(sessionHeader)

	req := httptest.NewRequest(http.MethodDelete, "/mcps/demo/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(sessionHeader, sessionID)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	var found bool
	for _, sc := range rec.Result().Cookies() {
		if sc.Name == sessionCookieName {
			found = true
			// net/http parses a "Max-Age=0" attribute as MaxAge -1; a
			// cookie with no Max-Age attribute would parse as 0.
			if sc.MaxAge != -1 {
				t.Fatalf("expected Max-Age=0 exactly, got MaxAge=%d (%q)", sc.MaxAge, sc.Raw)
			}
		}
	}
	if !found {
		t.Fatalf("expected a session-clearing cookie in the DELETE response")
	}
}
