// Package store holds the short-lived broker state: registered OAuth
// clients and pending authorization codes. Implementations must provide
// atomic consume semantics for codes, so that two concurrent redemption
// attempts for the same code can never both succeed.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// Client is a registered OAuth client. All clients are public
// (no client secret); redirect URIs are matched verbatim.
type Client struct {
	ID           string   `json:"client_id"`
	RedirectURIs []string `json:"redirect_uris"`
	Public       bool     `json:"public"`
}

// AllowsRedirectURI reports whether uri is an exact string match for one
// of the registered redirect URIs. No normalization, no prefixes.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// PendingCode bridges a successful authorize step to the token step.
type PendingCode struct {
	ClientID      string    `json:"client_id"`
	RedirectURI   string    `json:"redirect_uri"`
	CodeChallenge string    `json:"code_challenge"`
	Login         string    `json:"login"`
	ShopID        string    `json:"shop_id"`
	APIKey        string    `json:"api_key"`
	Scope         string    `json:"scope"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (p *PendingCode) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

type ClientStore interface {
	SaveClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, clientID string) (*Client, error)
	DeleteClient(ctx context.Context, clientID string) error
}

type CodeStore interface {
	// SaveCode persists a pending record under the opaque code for at
	// most ttl.
	SaveCode(ctx context.Context, code string, record *PendingCode, ttl time.Duration) error
	// ConsumeCode returns the record and deletes it in a single atomic
	// step. A second call for the same code returns ErrNotFound even if
	// the first redemption failed later checks.
	ConsumeCode(ctx context.Context, code string) (*PendingCode, error)
}
