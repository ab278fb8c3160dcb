package agenttoken

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestMintServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := NewCredentialStore([]ClientCredential{
		{ClientID: "client-a", ClientSecret: "secret-a", AllowedTargets: []string{"demo"}},
	})
	service := NewService("test-jwt-secret", time.Hour)
	handler := NewHandler(store, service, nil)

	engine := gin.New()
	engine.POST("/auth/agent-token", handler.MintToken)
	return httptest.NewServer(engine)
}

func TestMintTokenRejectsBadCredentialsWithLiteralErrorShape(t *testing.T) {
	srv := newTestMintServer(t)
	defer srv.Close()

	body, _ := json.Marshal(mintAgentTokenRequest{ClientID: "client-a", ClientSecret: "wrong"})
	resp, err := http.Post(srv.URL+"/auth/agent-token", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	var parsed mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("expected the literal {ok,error} shape to decode into mintResponse: %v", err)
	}
	if parsed.OK {
		t.Fatalf("expected ok=false")
	}
	if parsed.Error == "" {
		t.Fatalf("expected a non-empty error string")
	}
}

func TestCacheSurfacesMintFailureFromRealHandler(t *testing.T) {
	srv := newTestMintServer(t)
	defer srv.Close()

	cache := NewCache(srv.URL+"/auth/agent-token", "client-a", "wrong-secret")
	if _, err := cache.Get(context.Background()); err == nil {
		t.Fatalf("expected Get to surface the mint failure")
	}
}
