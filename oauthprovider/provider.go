// Package oauthprovider runs the authorization-code flow directly against the accounting platform's
// identity endpoints, for deployments without a backend holding the client secret.
package oauthprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-ledger-sync/auth"
	"github.com/jrsteele09/go-ledger-sync/tenants"
	"github.com/jrsteele09/go-ledger-sync/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var (
	_ auth.Authorizer   = (*Provider)(nil)
	_ auth.TenantLister = (*Provider)(nil)
)

// Config holds the client registration with the accounting platform.
type Config struct {
	ClientID       string
	ClientSecret   string
	AuthURL        string
	TokenURL       string
	ConnectionsURL string
	RedirectURL    string
	Scopes         []string

	// IssuerURL enables ID token verification when set.
	IssuerURL string
}

// Provider implements auth.Authorizer with golang.org/x/oauth2. PKCE verifiers are kept in memory
// per state until the code is exchanged or the verifier ages out.
type Provider struct {
	config      Config
	oauth       *oauth2.Config
	httpClient  *http.Client
	verifierTTL time.Duration
	nowTime     func() time.Time

	verifiers    map[string]pendingVerifier
	verifierLock sync.Mutex

	idVerifier *oidc.IDTokenVerifier
	oidcLock   sync.Mutex
}

type pendingVerifier struct {
	verifier  string
	createdAt time.Time
}

type Option func(*Provider)

func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowTime = nowFunc
	}
}

// WithVerifierTTL bounds how long a started flow keeps its PKCE verifier.
func WithVerifierTTL(d time.Duration) Option {
	return func(p *Provider) {
		p.verifierTTL = d
	}
}

func New(config Config, options ...Option) *Provider {
	p := &Provider{
		config: config,
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			RedirectURL: config.RedirectURL,
			Scopes:      config.Scopes,
		},
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		verifierTTL: 15 * time.Minute,
		nowTime:     time.Now,
		verifiers:   make(map[string]pendingVerifier),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *Provider) CredentialsConfigured() bool {
	return p.config.ClientID != "" && p.config.ClientSecret != ""
}

// AuthorizationURL builds the consent URL with an S256 code challenge bound to state.
func (p *Provider) AuthorizationURL(_ context.Context, state string) (string, error) {
	if !p.CredentialsConfigured() {
		return "", auth.CredentialsNotConfiguredErr
	}
	verifier := oauth2.GenerateVerifier()

	p.verifierLock.Lock()
	now := p.nowTime()
	for s, v := range p.verifiers {
		if now.Sub(v.createdAt) > p.verifierTTL {
			delete(p.verifiers, s)
		}
	}
	p.verifiers[state] = pendingVerifier{verifier: verifier, createdAt: now}
	p.verifierLock.Unlock()

	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

func (p *Provider) ExchangeCode(ctx context.Context, code, state string) (*auth.Exchange, error) {
	p.verifierLock.Lock()
	pending, ok := p.verifiers[state]
	delete(p.verifiers, state)
	p.verifierLock.Unlock()
	if !ok {
		return nil, auth.UnknownStateErr
	}

	tok, err := p.oauth.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(pending.verifier))
	if err != nil {
		return nil, providerErr(err, "[Provider.ExchangeCode] exchange")
	}
	rec := recordFromToken(tok)

	if rec.IDToken != "" && p.config.IssuerURL != "" {
		if err := p.verifyIDToken(ctx, rec.IDToken); err != nil {
			return nil, err
		}
	}

	list, err := p.connections(ctx, rec.AccessToken, token.AuthenticationEventID(rec.AccessToken))
	if err != nil {
		return nil, err
	}
	return &auth.Exchange{Token: *rec, Tenants: list}, nil
}

func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*token.Record, error) {
	if refreshToken == "" {
		return nil, auth.NoRefreshTokenErr
	}
	tok, err := p.oauth.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, providerErr(err, "[Provider.Refresh] refresh")
	}
	return recordFromToken(tok), nil
}

// Tenants lists every connection the access token can reach.
func (p *Provider) Tenants(ctx context.Context, accessToken string) ([]tenants.Tenant, error) {
	return p.connections(ctx, accessToken, "")
}

type connection struct {
	ID          string `json:"id"`
	AuthEventID string `json:"authEventId"`
	TenantID    string `json:"tenantId"`
	TenantType  string `json:"tenantType"`
	TenantName  string `json:"tenantName"`
}

// connections reads the connections endpoint. When authEventID is set only the connections granted
// by that authorization are returned.
func (p *Provider) connections(ctx context.Context, accessToken, authEventID string) ([]tenants.Tenant, error) {
	if p.config.ConnectionsURL == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.ConnectionsURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.connections] build request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.connections] request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.connections] read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Status: resp.StatusCode, Message: string(body)}
	}

	var conns []connection
	if err := json.Unmarshal(body, &conns); err != nil {
		return nil, errors.Wrap(err, "[Provider.connections] decode")
	}

	out := make([]tenants.Tenant, 0, len(conns))
	for _, c := range conns {
		if authEventID != "" && c.AuthEventID != authEventID {
			continue
		}
		out = append(out, tenants.Tenant{ID: c.TenantID, Name: c.TenantName})
	}
	return out, nil
}

func (p *Provider) verifyIDToken(ctx context.Context, rawIDToken string) error {
	verifier, err := p.oidcVerifier(ctx)
	if err != nil {
		return err
	}
	if _, err := verifier.Verify(ctx, rawIDToken); err != nil {
		return errors.Wrap(err, "[Provider.verifyIDToken] ID token verification failed")
	}
	return nil
}

// oidcVerifier discovers the issuer once and caches the verifier.
func (p *Provider) oidcVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	p.oidcLock.Lock()
	defer p.oidcLock.Unlock()
	if p.idVerifier != nil {
		return p.idVerifier, nil
	}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, p.httpClient), p.config.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.oidcVerifier] failed to create OIDC provider")
	}
	p.idVerifier = provider.Verifier(&oidc.Config{ClientID: p.config.ClientID})
	log.Debug().Str("issuer", p.config.IssuerURL).Msg("OIDC provider discovered")
	return p.idVerifier, nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func recordFromToken(tok *oauth2.Token) *token.Record {
	rec := &token.Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		rec.IDToken = id
	}
	token.FillExpiry(rec)
	return rec
}

// Error is a failure reported by the platform's token or connections endpoint.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *Error) ErrorCode() string {
	if e.Code == "" && e.Status == http.StatusTooManyRequests {
		return "429"
	}
	return e.Code
}

// providerErr surfaces the OAuth error code of a token endpoint failure to the classifier.
func providerErr(err error, msg string) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		e := &Error{Code: re.ErrorCode, Message: re.ErrorDescription}
		if re.Response != nil {
			e.Status = re.Response.StatusCode
		}
		if e.Message == "" {
			e.Message = string(re.Body)
		}
		return errors.Wrap(e, msg)
	}
	return errors.Wrap(err, msg)
}
