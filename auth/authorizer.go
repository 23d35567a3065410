package auth

import (
	"context"

	"github.com/jrsteele09/go-ledger-sync/tenants"
	"github.com/jrsteele09/go-ledger-sync/token"
)

// Exchange is the result of swapping an authorization code for credentials.
type Exchange struct {
	Token   token.Record     `json:"tokenRecord"`
	Tenants []tenants.Tenant `json:"tenants"`
}

// Authorizer is the external collaborator that owns the redirect-based OAuth flow:
// either the product backend or the accounting platform's own identity endpoints.
type Authorizer interface {
	// CredentialsConfigured reports whether a client id/secret is available to start a flow.
	CredentialsConfigured() bool

	// AuthorizationURL returns the URL to redirect the user to. state must be echoed back on the callback.
	AuthorizationURL(ctx context.Context, state string) (string, error)

	// ExchangeCode swaps an authorization code for a token record and the tenants it grants.
	ExchangeCode(ctx context.Context, code, state string) (*Exchange, error)

	// Refresh obtains a new token record from a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*token.Record, error)
}

// TenantLister is implemented by authorizers that can list the tenants an access token covers.
// It lets a restarted process rebuild the tenant set from stored credentials.
type TenantLister interface {
	Tenants(ctx context.Context, accessToken string) ([]tenants.Tenant, error)
}
