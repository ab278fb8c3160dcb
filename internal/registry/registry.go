// Package registry holds the table of enabled agent routes the router
// proxies to. Routes are immutable once loaded (spec §3 "Agent Route").
package registry

import (
	"fmt"
	"sync"

	"github.com/OutfinityResearch/ploinky-sub006/internal/common/config"
)

// Route is an immutable per-agent route record.
type Route struct {
	AgentName string
	HostPort  int
	Image     string
	Mounts    []string
	Env       map[string]string
}

// BaseURL is the upstream MCP endpoint base for this agent.
func (r Route) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", r.HostPort)
}

// Registry is a read-mostly, keyed table of agent routes.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]Route
}

// New builds a Registry from the given agent route configs.
func New(agents map[string]config.AgentRoute) *Registry {
	routes := make(map[string]Route, len(agents))
	for name, a := range agents {
		routes[name] = Route{
			AgentName: name,
			HostPort:  a.HostPort,
			Image:     a.Image,
			Mounts:    append([]string(nil), a.Mounts...),
			Env:       copyEnv(a.Env),
		}
	}
	return &Registry{routes: routes}
}

func copyEnv(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Get returns the route for agentName, and whether it is enabled.
func (r *Registry) Get(agentName string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[agentName]
	return route, ok
}

// Names returns the set of enabled agent names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	return names
}

// Replace swaps the entire route table. Used only at startup/reload;
// there is no partial-mutation API (spec §3's routes are created when an
// agent is enabled and destroyed on disable, but reload as a whole is
// the only mechanism this single-process router needs).
func (r *Registry) Replace(agents map[string]config.AgentRoute) {
	next := New(agents)
	r.mu.Lock()
	r.routes = next.routes
	r.mu.Unlock()
}
