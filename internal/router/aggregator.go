package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/OutfinityResearch/ploinky-sub006/internal/mcpclient"
	"github.com/OutfinityResearch/ploinky-sub006/internal/mcprpc"
	"github.com/OutfinityResearch/ploinky-sub006/internal/registry"
)

// Aggregator serves the /mcp endpoint: a union view over every agent in
// the caller's effective target set (spec §4.2 "Aggregator").
type Aggregator struct {
	registry *registry.Registry
}

// NewAggregator builds an Aggregator against reg.
func NewAggregator(reg *registry.Registry) *Aggregator {
	return &Aggregator{registry: reg}
}

// EffectiveTargets intersects the caller's allowed targets with the
// router's currently enabled agents (spec §4.1 "Auth gate": "For /mcp,
// the effective target set is the intersection..."). This is where
// Open Question 1 (allowedTargets enforcement on fan-out) is resolved:
// every aggregator operation below iterates ONLY this intersected set,
// never the full registry.
func (a *Aggregator) EffectiveTargets(allowedTargets []string) []string {
	enabled := make(map[string]bool)
	for _, name := range a.registry.Names() {
		enabled[name] = true
	}
	var effective []string
	for _, name := range allowedTargets {
		if enabled[name] {
			effective = append(effective, name)
		}
	}
	return effective
}

// ListTools unions tools/list across targets, annotating each tool with
// its originating agent and prefixing its name (spec §4.2: "prefixed
// name e.g. <agent>::<tool>, metadata.agent=<agent>").
func (a *Aggregator) ListTools(ctx context.Context, targets []string) (*mcprpc.ToolsListResult, *mcprpc.Error) {
	result := &mcprpc.ToolsListResult{}
	for _, agentName := range targets {
		route, ok := a.registry.Get(agentName)
		if !ok {
			continue
		}
		tools, err := fetchTools(ctx, route.BaseURL())
		if err != nil {
			continue // one unreachable upstream must not fail the whole union
		}
		for _, tool := range tools.Tools {
			annotated := tool
			annotated.Name = agentName + "::" + tool.Name
			metadata := map[string]interface{}{"agent": agentName}
			for k, v := range tool.Metadata {
				metadata[k] = v
			}
			annotated.Metadata = metadata
			result.Tools = append(result.Tools, annotated)
		}
	}
	return result, nil
}

func fetchTools(ctx context.Context, baseURL string) (*mcprpc.ToolsListResult, error) {
	client := mcpclient.New(baseURL, "/task")
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	defer client.Close(ctx)
	return client.ListTools(ctx)
}

// CallTool dispatches a prefixed "<agent>::<tool>" call to the right
// upstream; unprefixed names are rejected.
func (a *Aggregator) CallTool(ctx context.Context, targets []string, rawParams json.RawMessage) (json.RawMessage, *mcprpc.Error) {
	var params mcprpc.ToolCallParams
	if err := json.Unmarshal(rawParams, &params); err != nil {
		return nil, &mcprpc.Error{Code: mcprpc.CodeInvalidParams, Message: "invalid params: " + err.Error()}
	}

	agentName, toolName, ok := splitPrefixedTool(params.Name)
	if !ok {
		return nil, &mcprpc.Error{Code: mcprpc.CodeInvalidParams, Message: "ambiguous tool: " + params.Name}
	}
	if !contains(targets, agentName) {
		return nil, &mcprpc.Error{Code: mcprpc.CodeServerError, Message: fmt.Sprintf("upstream error: agent %q not in allowed targets", agentName)}
	}

	route, ok := a.registry.Get(agentName)
	if !ok {
		return nil, &mcprpc.Error{Code: mcprpc.CodeServerError, Message: fmt.Sprintf("upstream error: unknown agent %q", agentName)}
	}

	client := mcpclient.New(route.BaseURL(), "/task")
	if err := client.Connect(ctx); err != nil {
		return nil, &mcprpc.Error{Code: mcprpc.CodeServerError, Message: "upstream error: " + err.Error()}
	}
	defer client.Close(ctx)

	unprefixed, _ := json.Marshal(mcprpc.ToolCallParams{Name: toolName, Arguments: params.Arguments})
	return callUpstream(ctx, client, mcprpc.MethodToolsCall, unprefixed)
}

// ListResources and Ping fan out to every target analogously to ListTools.
func (a *Aggregator) ListResources(ctx context.Context, targets []string) (*mcprpc.ResourcesListResult, *mcprpc.Error) {
	result := &mcprpc.ResourcesListResult{}
	for _, agentName := range targets {
		route, ok := a.registry.Get(agentName)
		if !ok {
			continue
		}
		client := mcpclient.New(route.BaseURL(), "/task")
		if err := client.Connect(ctx); err != nil {
			continue
		}
		resources, err := client.ListResources(ctx)
		client.Close(ctx)
		if err != nil {
			continue
		}
		result.Resources = append(result.Resources, resources.Resources...)
	}
	return result, nil
}

func (a *Aggregator) Ping(ctx context.Context, targets []string) *mcprpc.Error {
	for _, agentName := range targets {
		route, ok := a.registry.Get(agentName)
		if !ok {
			continue
		}
		client := mcpclient.New(route.BaseURL(), "/task")
		if err := client.Connect(ctx); err == nil {
			client.Ping(ctx)
			client.Close(ctx)
		}
	}
	return nil
}

func splitPrefixedTool(name string) (agentName, toolName string, ok bool) {
	agentName, toolName, found := strings.Cut(name, "::")
	if !found || agentName == "" || toolName == "" {
		return "", "", false
	}
	return agentName, toolName, true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
