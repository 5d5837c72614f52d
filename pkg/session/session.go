// Package session models the per-connection authentication state the
// invocation guard enforces. State is derived from a verified bearer
// token, from a prior in-session credential exchange, or from
// environment-supplied credentials, in that order of preference.
package session

import (
	"context"
	"os"
	"sync"
)

// WildcardScope grants every capability.
const WildcardScope = "*"

// StdioConnectionKey identifies the single logical connection of the
// stdio transport. HTTP transports key sessions by their MCP session
// id instead.
const StdioConnectionKey = "stdio"

// AuthState is the resolved authentication state of one logical
// session. Authenticated is never true without both upstream
// identifiers populated.
type AuthState struct {
	Authenticated bool
	Login         string
	ShopID        string
	APIKey        string
	Scopes        []string
}

// HasScope reports whether the session holds the named scope or the
// wildcard.
func (a *AuthState) HasScope(scope string) bool {
	if a == nil {
		return false
	}
	for _, held := range a.Scopes {
		if held == scope || held == WildcardScope {
			return true
		}
	}
	return false
}

// HasAllScopes reports whether every required scope is covered.
func (a *AuthState) HasAllScopes(required []string) bool {
	for _, scope := range required {
		if !a.HasScope(scope) {
			return false
		}
	}
	return true
}

type ctxKey struct{}
type connKey struct{}

// WithAuthState attaches a resolved auth state to the call context.
func WithAuthState(ctx context.Context, state *AuthState) context.Context {
	return context.WithValue(ctx, ctxKey{}, state)
}

// AuthStateFromContext returns the auth state attached to the context,
// if any.
func AuthStateFromContext(ctx context.Context) (*AuthState, bool) {
	state, ok := ctx.Value(ctxKey{}).(*AuthState)
	return state, ok && state != nil
}

// WithConnectionID tags the context with the transport connection
// identifier used to key ambient sessions.
func WithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connKey{}, id)
}

// ConnectionIDFromContext returns the connection identifier, falling
// back to the stdio key when the transport did not set one.
func ConnectionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(connKey{}).(string); ok && id != "" {
		return id
	}
	return StdioConnectionKey
}

// Manager holds ambient sessions keyed by connection identifier. It
// replaces a process-global "current session": multi-connection
// transports get isolated entries.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*AuthState
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*AuthState)}
}

func (m *Manager) Set(connectionID string, state *AuthState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[connectionID] = state
}

func (m *Manager) Get(connectionID string) (*AuthState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[connectionID]
	return state, ok
}

func (m *Manager) Clear(connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, connectionID)
}

// FromEnv builds an auth state from SHOPID/APIKEY (or the MCP_
// prefixed variants), the way a pre-provisioned stdio deployment
// supplies credentials. Returns nil when unset.
func FromEnv() *AuthState {
	shopID := firstEnv("SHOPID", "MCP_SHOPID")
	apiKey := firstEnv("APIKEY", "MCP_APIKEY")
	if shopID == "" || apiKey == "" {
		return nil
	}
	return &AuthState{
		Authenticated: true,
		ShopID:        shopID,
		APIKey:        apiKey,
		Scopes:        []string{WildcardScope},
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if value := os.Getenv(name); value != "" {
			return value
		}
	}
	return ""
}

// Resolve returns the effective auth state for a call: context-attached
// state (verified bearer) wins, then the ambient session for the
// connection, then environment credentials. Returns nil when nothing
// authenticates the call.
func (m *Manager) Resolve(ctx context.Context) *AuthState {
	if state, ok := AuthStateFromContext(ctx); ok {
		return state
	}
	if state, ok := m.Get(ConnectionIDFromContext(ctx)); ok {
		return state
	}
	return FromEnv()
}
