// Package guard enforces per-operation authorization over the MCP tool
// registry. Every tool is registered through the guard together with an
// explicit policy descriptor; the dispatcher consults the descriptor at
// call time, so policies hold regardless of registration order and
// tools registered after startup are captured the same way.
package guard

import (
	"context"
	"fmt"
	"sync"

	"github.com/enregistreuse/caisse-mcp/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// JSON-RPC error codes surfaced to MCP clients, matching what the
// existing POS integrations expect.
const (
	CodeAuthenticationRequired = -32001
	CodeAuthorizationDenied    = -32003
)

// Error is a terminal authorization failure; it is never retried.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// ErrAuthenticationRequired rejects calls with no usable session.
var ErrAuthenticationRequired = &Error{
	Code:    CodeAuthenticationRequired,
	Message: "login required (call auth_get_token first)",
}

// ErrAuthorizationDenied rejects authenticated calls missing a
// required scope.
var ErrAuthorizationDenied = &Error{
	Code:    CodeAuthorizationDenied,
	Message: "forbidden: missing required scope",
}

// Policy describes who may call a tool. Public tools skip the
// authentication requirement but still receive the resolved auth state
// in their context.
type Policy struct {
	Public         bool
	RequiredScopes []string
}

// ToolServer is the slice of *server.MCPServer the registry needs.
type ToolServer interface {
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
}

// Registry owns the tool policy descriptors and installs guarded
// handlers into the MCP server.
type Registry struct {
	server   ToolServer
	sessions *session.Manager

	mu       sync.RWMutex
	policies map[string]Policy
}

func NewRegistry(srv ToolServer, sessions *session.Manager) *Registry {
	return &Registry{
		server:   srv,
		sessions: sessions,
		policies: make(map[string]Policy),
	}
}

// Sessions exposes the ambient session manager, for tools that
// establish a session themselves.
func (r *Registry) Sessions() *session.Manager {
	return r.sessions
}

// Register records the policy descriptor and installs the guarded
// handler. Late registration is safe: the guard wraps every handler
// that passes through here.
func (r *Registry) Register(tool mcp.Tool, policy Policy, handler server.ToolHandlerFunc) {
	r.mu.Lock()
	r.policies[tool.Name] = policy
	r.mu.Unlock()

	r.server.AddTool(tool, r.guarded(tool.Name, handler))
}

// Policy returns the descriptor registered for a tool.
func (r *Registry) Policy(name string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	policy, ok := r.policies[name]
	return policy, ok
}

func (r *Registry) guarded(name string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		state := r.sessions.Resolve(ctx)
		if state != nil {
			ctx = session.WithAuthState(ctx, state)
		}

		policy, known := r.Policy(name)
		if !known {
			// Tools always register through Register; an unknown name
			// means the registry and server disagree.
			return nil, fmt.Errorf("no policy registered for tool %s", name)
		}
		if policy.Public {
			return handler(ctx, request)
		}

		if state == nil || !state.Authenticated {
			return nil, ErrAuthenticationRequired
		}
		if !state.HasAllScopes(policy.RequiredScopes) {
			return nil, ErrAuthorizationDenied
		}

		return handler(ctx, request)
	}
}
