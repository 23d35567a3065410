// Package backend is the HTTP client for the product backend, which holds the accounting platform's
// client credentials and proxies authorization, token refresh and resource reads.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-ledger-sync/auth"
	"github.com/jrsteele09/go-ledger-sync/internal/utils"
	"github.com/jrsteele09/go-ledger-sync/resourcesync"
	"github.com/jrsteele09/go-ledger-sync/tenants"
	"github.com/jrsteele09/go-ledger-sync/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	authorizePath = "/integration/authorize"
	exchangePath  = "/integration/exchange"
	refreshPath   = "/integration/refresh"
	tenantsPath   = "/integration/tenants"
	configPath    = "/integration/config"
	resourcesPath = "/integration/resources/"

	maxBodyBytes = 10 << 20
)

var (
	_ auth.Authorizer      = (*Client)(nil)
	_ auth.TenantLister    = (*Client)(nil)
	_ resourcesync.Fetcher = (*Client)(nil)
)

// Client talks JSON to the backend integration endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	configured atomic.Bool
}

type Option func(*Client)

// WithHTTPClient replaces the default client, e.g. to set a transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

func New(baseURL string, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[backend.New] base URL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrap(err, "[backend.New] invalid base URL")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range options {
		opt(c)
	}
	c.configured.Store(true)
	return c, nil
}

// CredentialsConfigured reports what the last Probe learned. Before any probe it assumes the backend is configured.
func (c *Client) CredentialsConfigured() bool {
	return c.configured.Load()
}

// Probe asks the backend whether it holds client credentials.
func (c *Client) Probe(ctx context.Context) error {
	var out struct {
		HasCredentialsConfigured bool `json:"hasCredentialsConfigured"`
	}
	if err := c.do(ctx, http.MethodGet, configPath, nil, "", nil, &out); err != nil {
		return err
	}
	c.configured.Store(out.HasCredentialsConfigured)
	return nil
}

func (c *Client) AuthorizationURL(ctx context.Context, state string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	q := url.Values{"state": {state}}
	if err := c.do(ctx, http.MethodGet, authorizePath, q, "", nil, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.New("[Client.AuthorizationURL] backend returned no url")
	}
	return out.URL, nil
}

func (c *Client) ExchangeCode(ctx context.Context, code, state string) (*auth.Exchange, error) {
	in := map[string]string{"code": code, "state": state}
	var out auth.Exchange
	if err := c.do(ctx, http.MethodPost, exchangePath, nil, "", in, &out); err != nil {
		return nil, err
	}
	if out.Token.AccessToken == "" {
		return nil, errors.New("[Client.ExchangeCode] backend returned no access token")
	}
	return &out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*token.Record, error) {
	in := map[string]string{"refreshToken": refreshToken}
	var out struct {
		Token token.Record `json:"tokenRecord"`
	}
	if err := c.do(ctx, http.MethodPost, refreshPath, nil, "", in, &out); err != nil {
		return nil, err
	}
	return &out.Token, nil
}

func (c *Client) Tenants(ctx context.Context, accessToken string) ([]tenants.Tenant, error) {
	var out struct {
		Tenants []tenants.Tenant `json:"tenants"`
	}
	if err := c.do(ctx, http.MethodGet, tenantsPath, nil, accessToken, nil, &out); err != nil {
		return nil, err
	}
	return out.Tenants, nil
}

// envelope wraps resource responses.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message *string         `json:"message,omitempty"`
	Code    *string         `json:"code,omitempty"`
}

// Fetch reads one page of a resource. A success=false envelope becomes an *APIError even on HTTP 200.
func (c *Client) Fetch(ctx context.Context, req resourcesync.Request) (json.RawMessage, error) {
	q := url.Values{"tenantId": {req.TenantID}}
	if req.Page > 0 {
		q.Set("page", strconv.Itoa(req.Page))
	}
	if req.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(req.PageSize))
	}

	var env envelope
	path := resourcesPath + url.PathEscape(string(req.Resource))
	if err := c.do(ctx, http.MethodGet, path, q, req.AccessToken, nil, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &APIError{
			Status:  http.StatusOK,
			Code:    utils.Value(env.Code),
			Message: utils.Value(env.Message),
		}
	}
	return env.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, in, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrapf(err, "read %s response", path)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := parseAPIError(resp.StatusCode, raw)
		log.Debug().Str("path", path).Int("status", resp.StatusCode).Str("code", apiErr.Code).Msg("backend request failed")
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}

func statusText(status int) string {
	return fmt.Sprintf("%d %s", status, http.StatusText(status))
}
