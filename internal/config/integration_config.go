package config

import (
	"strings"
	"time"
)

// AuthMode selects which collaborator performs the OAuth exchange.
type AuthMode string

const (
	// AuthModeBackend delegates authorization, code exchange and refresh to the product backend.
	AuthModeBackend AuthMode = "backend"
	// AuthModeDirect talks to the accounting platform's OAuth endpoints directly.
	AuthModeDirect AuthMode = "direct"
)

type IntegrationConfig interface {
	GetAuthMode() AuthMode
	GetBackendURL() string
	GetClientID() string
	GetClientSecret() string
	GetAuthURL() string
	GetTokenURL() string
	GetConnectionsURL() string
	GetIssuerURL() string
	GetScopes() []string
	GetRedirectPath() string
	GetReturnURL() string
	GetAuthFlowTimeout() time.Duration
	GetHTTPTimeout() time.Duration
}

type Integration struct{}

var _ IntegrationConfig = Integration{}

func (Integration) GetAuthMode() AuthMode {
	if AuthMode(GetEnv("AUTH_MODE", string(AuthModeBackend))) == AuthModeDirect {
		return AuthModeDirect
	}
	return AuthModeBackend
}

func (Integration) GetBackendURL() string {
	return GetEnv("BACKEND_URL", "http://localhost:9000/api")
}

func (Integration) GetClientID() string {
	return GetEnv("ACCOUNTING_CLIENT_ID", "")
}

func (Integration) GetClientSecret() string {
	return GetEnv("ACCOUNTING_CLIENT_SECRET", "")
}

func (Integration) GetAuthURL() string {
	return GetEnv("ACCOUNTING_AUTH_URL", "https://login.xero.com/identity/connect/authorize")
}

func (Integration) GetTokenURL() string {
	return GetEnv("ACCOUNTING_TOKEN_URL", "https://identity.xero.com/connect/token")
}

func (Integration) GetConnectionsURL() string {
	return GetEnv("ACCOUNTING_CONNECTIONS_URL", "https://api.xero.com/connections")
}

// GetIssuerURL enables ID token verification when set.
func (Integration) GetIssuerURL() string {
	return GetEnv("ACCOUNTING_ISSUER_URL", "")
}

func (Integration) GetScopes() []string {
	raw := GetEnv("ACCOUNTING_SCOPES", "offline_access accounting.transactions.read accounting.contacts.read accounting.settings.read accounting.journals.read")
	return strings.Fields(raw)
}

func (Integration) GetRedirectPath() string {
	return "/integration/callback"
}

// GetReturnURL is where the browser lands after the callback has been handled.
func (Integration) GetReturnURL() string {
	return GetEnv("INTEGRATION_RETURN_URL", "/")
}

func (Integration) GetAuthFlowTimeout() time.Duration {
	return 15 * time.Minute
}

func (Integration) GetHTTPTimeout() time.Duration {
	return GetEnvDuration("HTTP_TIMEOUT", 30*time.Second)
}
