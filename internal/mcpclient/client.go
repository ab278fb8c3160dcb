// Package mcpclient implements the MCP Client Core (C3): a JSON-RPC 2.0
// client over Streamable-HTTP that speaks to a single agent's MCP
// endpoint, multiplexes requests/responses over an optional SSE
// back-channel, and transparently waits for long-running tasks.
package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OutfinityResearch/ploinky-sub006/internal/common/logger"
	"github.com/OutfinityResearch/ploinky-sub006/internal/mcprpc"
	"go.uber.org/zap"
)

// ClientName/ClientVersion identify this client during the initialize
// handshake (spec §4.3 step 2).
const (
	ClientName    = "ploinky-router"
	ClientVersion = "1.0.0"
)

type pendingCall struct {
	resultCh chan json.RawMessage
	errCh    chan *mcprpc.Error
}

// Client is a connected MCP session against one agent's /mcp endpoint.
type Client struct {
	baseURL      string
	taskBasePath string
	httpClient   *http.Client
	log          *logger.Logger

	requestID atomic.Int64

	mu              sync.Mutex
	pending         map[string]*pendingCall
	sessionID       string
	protocolVersion string
	capabilities    map[string]interface{}
	serverInfo      mcprpc.ServerInfo
	instructions    string
	streamsSupported bool
	closed          bool

	sseCancel context.CancelFunc
	pollers   map[string]context.CancelFunc
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (e.g. for custom timeouts/transports).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger overrides the default logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New builds a Client targeting baseURL (e.g. "http://127.0.0.1:8081").
// taskBasePath is the task-status endpoint used for long-running calls
// (e.g. "/mcps/<agent>/task").
func New(baseURL, taskBasePath string, opts ...Option) *Client {
	c := &Client{
		baseURL:      baseURL,
		taskBasePath: taskBasePath,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		log:          logger.Default(),
		pending:      make(map[string]*pendingCall),
		pollers:      make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProtocolVersion returns the version negotiated during Connect.
func (c *Client) ProtocolVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocolVersion
}

// Capabilities returns the server's negotiated capabilities.
func (c *Client) Capabilities() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// ServerInfo returns the server's self-description from initialize.
func (c *Client) ServerInfo() mcprpc.ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Instructions returns any server-supplied usage instructions.
func (c *Client) Instructions() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instructions
}

// Connect performs the handshake (spec §4.3 "Connect handshake"):
// opens the SSE back-channel (falling back gracefully on 405), sends
// initialize, records what the server negotiated, then sends
// notifications/initialized.
func (c *Client) Connect(ctx context.Context) error {
	c.openSSE(ctx)

	params := mcprpc.InitializeParams{
		ProtocolVersion: mcprpc.DefaultProtocolVersion,
		Capabilities:    map[string]interface{}{},
		ClientInfo:      mcprpc.ClientInfo{Name: ClientName, Version: ClientVersion},
	}
	raw, err := c.call(ctx, mcprpc.MethodInitialize, params)
	if err != nil {
		return err
	}
	var result mcprpc.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("mcpclient: decode initialize result: %w", err)
	}

	c.mu.Lock()
	c.protocolVersion = result.ProtocolVersion
	if c.protocolVersion == "" {
		c.protocolVersion = mcprpc.DefaultProtocolVersion
	}
	c.capabilities = result.Capabilities
	c.serverInfo = result.ServerInfo
	c.instructions = result.Instructions
	c.mu.Unlock()

	return c.notify(ctx, mcprpc.MethodNotificationsInit, nil)
}

// ListTools calls tools/list.
func (c *Client) ListTools(ctx context.Context) (*mcprpc.ToolsListResult, error) {
	raw, err := c.call(ctx, mcprpc.MethodToolsList, nil)
	if err != nil {
		return nil, err
	}
	var result mcprpc.ToolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcpclient: decode tools/list result: %w", err)
	}
	return &result, nil
}

// TaskStatusCallback is invoked once per distinct status transition of
// a long-running tools/call (spec §4.3 "Long-running task semantics").
type TaskStatusCallback func(status string, result *mcprpc.ToolCallResult, taskErr error)

// CallTool invokes tools/call. If the immediate result carries
// result.metadata.taskId, a background poller is started and onStatus
// (if non-nil) receives one callback per distinct status; the method
// itself still returns only once the task reaches a terminal state (or
// immediately, for calls that never produced a taskId).
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}, onStatus TaskStatusCallback) (*mcprpc.ToolCallResult, error) {
	raw, err := c.call(ctx, mcprpc.MethodToolsCall, mcprpc.ToolCallParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var result mcprpc.ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcpclient: decode tools/call result: %w", err)
	}

	taskID, _ := result.Metadata["taskId"].(string)
	if taskID == "" {
		return &result, nil
	}
	return c.awaitTask(ctx, taskID, onStatus)
}

// ListResources calls resources/list.
func (c *Client) ListResources(ctx context.Context) (*mcprpc.ResourcesListResult, error) {
	raw, err := c.call(ctx, mcprpc.MethodResourcesList, nil)
	if err != nil {
		return nil, err
	}
	var result mcprpc.ResourcesListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcpclient: decode resources/list result: %w", err)
	}
	return &result, nil
}

// ReadResource calls resources/read.
func (c *Client) ReadResource(ctx context.Context, uri string) (*mcprpc.ResourceReadResult, error) {
	raw, err := c.call(ctx, mcprpc.MethodResourcesRead, mcprpc.ResourceReadParams{URI: uri})
	if err != nil {
		return nil, err
	}
	var result mcprpc.ResourceReadResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcpclient: decode resources/read result: %w", err)
	}
	return &result, nil
}

// Ping calls ping.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, mcprpc.MethodPing, nil)
	return err
}

// Close aborts the SSE stream, stops all task pollers, rejects all
// pending calls, and best-effort DELETEs the session (spec §4.3 "Close").
func (c *Client) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.sseCancel != nil {
		c.sseCancel()
	}
	for _, cancel := range c.pollers {
		cancel()
	}
	sessionID := c.sessionID
	pending := c.pending
	c.pending = make(map[string]*pendingCall)
	c.mu.Unlock()

	for _, p := range pending {
		p.errCh <- &mcprpc.Error{Code: mcprpc.CodeServerError, Message: "MCP client closed"}
	}

	if sessionID != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/mcp", nil)
		if err == nil {
			c.setHeaders(req)
			resp, err := c.httpClient.Do(req)
			if err == nil {
				resp.Body.Close()
			}
		}
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	c.mu.Lock()
	if c.sessionID != "" {
		req.Header.Set("Mcp-Session-Id", c.sessionID)
	}
	if c.protocolVersion != "" {
		req.Header.Set("Mcp-Protocol-Version", c.protocolVersion)
	}
	c.mu.Unlock()
}

// notify sends a fire-and-forget JSON-RPC notification.
func (c *Client) notify(ctx context.Context, method string, params interface{}) error {
	body, err := json.Marshal(mcprpc.NewNotification(method, params))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mcp", bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mcpclient: notify %s: %w", method, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

// call sends a JSON-RPC request and waits for its correlated reply,
// whether it arrives inline in the POST response or via the SSE
// back-channel (spec §4.3 "Polymorphic client behavior").
func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := fmt.Sprintf("%d", c.requestID.Add(1))
	idJSON, _ := json.Marshal(id)

	pc := &pendingCall{resultCh: make(chan json.RawMessage, 1), errCh: make(chan *mcprpc.Error, 1)}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("mcpclient: client closed")
	}
	c.pending[id] = pc
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := mcprpc.NewRequest(idJSON, method, params)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mcp", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: %s request: %w", method, err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		c.mu.Lock()
		c.sessionID = sid
		c.mu.Unlock()
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "text/event-stream"):
		if err := readSSEFrames(resp.Body, c.handleFrame); err != nil {
			c.log.Warn("mcpclient: SSE response stream ended with error", zap.Error(err))
		}
	default:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("mcpclient: read %s response: %w", method, err)
		}
		if len(data) > 0 {
			if err := c.handleFrame(data); err != nil {
				c.log.Warn("mcpclient: malformed inline response", zap.Error(err))
			}
		}
	}

	select {
	case result := <-pc.resultCh:
		return result, nil
	case rpcErr := <-pc.errCh:
		return nil, rpcErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleFrame decodes a raw SSE/inline payload (one message or an array
// micro-batch) and routes each message to its pending call or drops it
// as a notification.
func (c *Client) handleFrame(data []byte) error {
	messages, err := decodeFrame(data)
	if err != nil {
		c.log.Warn("mcpclient: malformed frame, skipping", zap.Error(err))
		return nil
	}
	for _, raw := range messages {
		var resp mcprpc.Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			c.log.Warn("mcpclient: malformed message, skipping", zap.Error(err))
			continue
		}
		if len(resp.ID) == 0 {
			continue // notification: no correlated caller
		}
		id := mcprpc.IDString(resp.ID)
		c.mu.Lock()
		pc, ok := c.pending[id]
		c.mu.Unlock()
		if !ok {
			continue
		}
		if resp.Error != nil {
			pc.errCh <- resp.Error
		} else {
			pc.resultCh <- resp.Result
		}
	}
	return nil
}

// openSSE opens the long-lived back-channel GET. A 405 means the
// upstream doesn't support server push; the client silently falls back
// to POST-only replies (spec §4.3 step 1).
func (c *Client) openSSE(ctx context.Context) {
	sseCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.sseCancel = cancel
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(sseCtx, http.MethodGet, c.baseURL+"/mcp", nil)
	if err != nil {
		return
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("mcpclient: SSE back-channel unavailable, using POST-only replies", zap.Error(err))
		return
	}
	if resp.StatusCode == http.StatusMethodNotAllowed {
		resp.Body.Close()
		c.log.Debug("mcpclient: upstream returned 405 for SSE GET, streams unsupported")
		return
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return
	}

	c.mu.Lock()
	c.streamsSupported = true
	c.mu.Unlock()

	go func() {
		defer resp.Body.Close()
		if err := readSSEFrames(resp.Body, c.handleFrame); err != nil {
			c.log.Debug("mcpclient: SSE back-channel closed", zap.Error(err))
		}
	}()
}
