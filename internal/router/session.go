// Package router implements the Frontend Router (C1) and the Per-Agent
// Proxy / Aggregator (C2): the HTTP front-end that demultiplexes
// /mcps/<agent>/mcp, /mcps/<agent>/task, and /mcp onto per-agent MCP
// sessions.
package router

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is an opaque, router-owned MCP session bound to exactly one
// upstream agent (spec §3 "MCP Session").
type Session struct {
	ID              string
	AgentName       string
	ProtocolVersion string
	CreatedAt       time.Time
}

// SessionStore is the router's exclusive owner of the session map
// (spec §5 "Shared-resource discipline": one mutex, no nesting).
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore builds an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Create mints a new session for agentName and returns it.
func (s *SessionStore) Create(agentName, protocolVersion string) *Session {
	sess := &Session{
		ID:              uuid.NewString(),
		AgentName:       agentName,
		ProtocolVersion: protocolVersion,
		CreatedAt:       time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns the session for id, if any.
func (s *SessionStore) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Delete removes a session. Deleting an unknown id is a no-op (spec
// §4.1: "Without a session, still 204").
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}
