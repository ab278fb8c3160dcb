package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OutfinityResearch/ploinky-sub006/internal/mcpclient"
	"github.com/OutfinityResearch/ploinky-sub006/internal/mcprpc"
	"github.com/OutfinityResearch/ploinky-sub006/internal/registry"
)

// Proxy forwards non-session JSON-RPC methods to a single upstream
// agent, instantiating a short-lived MCP Client per call and closing it
// once the reply is decoded (spec §4.2 "Per-Agent Proxy").
type Proxy struct {
	registry *registry.Registry
}

// NewProxy builds a Proxy against reg.
func NewProxy(reg *registry.Registry) *Proxy {
	return &Proxy{registry: reg}
}

// Forward dispatches method/params to agentName's upstream MCP endpoint
// and returns either a JSON-RPC result or a JSON-RPC error — never a Go
// error for upstream-originated failures, which are always folded into
// the returned *mcprpc.Error per spec §4.1/§4.2 "Failure propagation".
func (p *Proxy) Forward(ctx context.Context, agentName, method string, params json.RawMessage) (json.RawMessage, *mcprpc.Error) {
	route, ok := p.registry.Get(agentName)
	if !ok {
		return nil, &mcprpc.Error{Code: mcprpc.CodeServerError, Message: fmt.Sprintf("upstream error: unknown agent %q", agentName)}
	}

	client := mcpclient.New(route.BaseURL(), "/task")
	if err := client.Connect(ctx); err != nil {
		return nil, &mcprpc.Error{Code: mcprpc.CodeServerError, Message: "upstream error: " + err.Error()}
	}
	defer client.Close(ctx)

	return callUpstream(ctx, client, method, params)
}

// callUpstream dispatches one already-connected call; shared by the
// single-agent proxy and the aggregator (which keeps one client open
// per upstream for the lifetime of a fan-out request).
func callUpstream(ctx context.Context, client *mcpclient.Client, method string, params json.RawMessage) (json.RawMessage, *mcprpc.Error) {
	switch method {
	case mcprpc.MethodToolsList:
		result, err := client.ListTools(ctx)
		if err != nil {
			return nil, upstreamError(err)
		}
		return marshalResult(result)

	case mcprpc.MethodToolsCall:
		var callParams mcprpc.ToolCallParams
		if err := json.Unmarshal(params, &callParams); err != nil {
			return nil, &mcprpc.Error{Code: mcprpc.CodeInvalidParams, Message: "invalid params: " + err.Error()}
		}
		result, err := client.CallTool(ctx, callParams.Name, callParams.Arguments, nil)
		if err != nil {
			return nil, upstreamError(err)
		}
		return marshalResult(result)

	case mcprpc.MethodResourcesList:
		result, err := client.ListResources(ctx)
		if err != nil {
			return nil, upstreamError(err)
		}
		return marshalResult(result)

	case mcprpc.MethodResourcesRead:
		var readParams mcprpc.ResourceReadParams
		if err := json.Unmarshal(params, &readParams); err != nil {
			return nil, &mcprpc.Error{Code: mcprpc.CodeInvalidParams, Message: "invalid params: " + err.Error()}
		}
		result, err := client.ReadResource(ctx, readParams.URI)
		if err != nil {
			return nil, upstreamError(err)
		}
		return marshalResult(result)

	case mcprpc.MethodPing:
		if err := client.Ping(ctx); err != nil {
			return nil, upstreamError(err)
		}
		return marshalResult(struct{}{})

	default:
		return nil, &mcprpc.Error{Code: mcprpc.CodeMethodNotFound, Message: "Method not found: " + method}
	}
}

// upstreamError copies a verbatim JSON-RPC error from the upstream, or
// wraps a transport-level failure as -32000 (spec §4.2 "Failure propagation").
func upstreamError(err error) *mcprpc.Error {
	if rpcErr, ok := err.(*mcprpc.Error); ok {
		return rpcErr
	}
	return &mcprpc.Error{Code: mcprpc.CodeServerError, Message: "upstream error: " + err.Error()}
}

func marshalResult(v interface{}) (json.RawMessage, *mcprpc.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &mcprpc.Error{Code: mcprpc.CodeInternalError, Message: "internal error: " + err.Error()}
	}
	return data, nil
}
