package agenttoken

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// refreshWindow is how far ahead of expiry a cached token is considered
// stale (spec §4.4 "Client-side cache": "reuses while now+60s < expiresAt").
const refreshWindow = 60 * time.Second

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// Cache is the per-process client-side token cache used by any
// component that calls another agent and needs a bearer token. It is
// not shared across processes (spec §4.4: "no sharing across containers").
type Cache struct {
	mu         sync.Mutex
	cached     *cachedToken
	mintURL    string
	clientID   string
	clientSec  string
	httpClient *http.Client
}

// NewCache builds a Cache that mints tokens by POSTing to mintURL
// (typically "http://127.0.0.1:<routerPort>/auth/agent-token").
func NewCache(mintURL, clientID, clientSecret string) *Cache {
	return &Cache{
		mintURL:    mintURL,
		clientID:   clientID,
		clientSec:  clientSecret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type mintRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type mintResponse struct {
	OK          bool   `json:"ok"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// Get returns a valid bearer token, minting a fresh one if the cache is
// empty or within the pre-expiry refresh window.
func (c *Cache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.cached != nil && time.Now().Add(refreshWindow).Before(c.cached.expiresAt) {
		token := c.cached.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	token, expiresIn, err := c.mint(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cached = &cachedToken{token: token, expiresAt: time.Now().Add(time.Duration(expiresIn) * time.Second)}
	c.mu.Unlock()

	return token, nil
}

// Invalidate drops the cached token, forcing the next Get to mint fresh.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

func (c *Cache) mint(ctx context.Context) (string, int, error) {
	body, err := json.Marshal(mintRequest{ClientID: c.clientID, ClientSecret: c.clientSec})
	if err != nil {
		return "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.mintURL, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("agenttoken: mint request: %w", err)
	}
	defer resp.Body.Close()

	var parsed mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, fmt.Errorf("agenttoken: decode mint response: %w", err)
	}
	if !parsed.OK {
		return "", 0, fmt.Errorf("agenttoken: mint failed: %s", parsed.Error)
	}
	return parsed.AccessToken, parsed.ExpiresIn, nil
}
