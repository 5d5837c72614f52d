// Package upstream talks to the legacy caisse.enregistreuse.fr worker
// API. It is the only identity backend: a login/password pair is
// exchanged for the shop identifier and API key that authorize every
// other worker call.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://caisse.enregistreuse.fr"

// DefaultTimeout bounds every upstream call. Timeouts fail closed: a
// slow upstream is an error, never an implicit grant.
const DefaultTimeout = 15 * time.Second

// ErrBadCredentials marks a credential rejection by the upstream, as
// opposed to a transport failure. Callers must not map transport
// failures to a wrong-password answer.
var ErrBadCredentials = errors.New("upstream: bad credentials")

// Identity is the opaque upstream identity returned for valid
// credentials.
type Identity struct {
	APIKey string `json:"APIKEY"`
	ShopID string `json:"SHOPID"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VerifyCredentials exchanges a login/password pair for the upstream
// identity. The worker endpoint answers with an APIKEY/SHOPID document
// for valid credentials and anything else for invalid ones.
func (c *Client) VerifyCredentials(ctx context.Context, login, password string) (*Identity, error) {
	body, err := c.PostForm(ctx, "/workers/getAuthToken.php", url.Values{
		"login":    {login},
		"password": {password},
	})
	if err != nil {
		return nil, err
	}

	var identity Identity
	if err := json.Unmarshal(body, &identity); err != nil {
		return nil, ErrBadCredentials
	}
	if identity.APIKey == "" || identity.ShopID == "" {
		return nil, ErrBadCredentials
	}
	return &identity, nil
}

// Query builds URL parameters the way the worker API expects: empty
// values are skipped, slices are repeated.
func Query(params map[string]any) url.Values {
	values := url.Values{}
	for key, value := range params {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			if v != "" {
				values.Set(key, v)
			}
		case []string:
			for _, item := range v {
				values.Add(key, item)
			}
		default:
			values.Set(key, fmt.Sprint(v))
		}
	}
	return values
}

// Get fetches a worker endpoint and returns the raw response body. The
// worker API answers JSON, CSV or HTML depending on the format
// parameter, so decoding is left to the caller.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

// PostForm submits a form-encoded body to a worker endpoint.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// PostJSON submits a JSON body to a worker endpoint.
func (c *Client) PostJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: read body: %w", req.URL.Path, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("upstream %s: status %d", req.URL.Path, resp.StatusCode)
	}
	return body, nil
}
