package classify

// Category is the fixed taxonomy every integration failure is reduced to.
type Category string

const (
	// Categories produced by Classify.
	NotConnected   Category = "NOT_CONNECTED"
	TokenExpired   Category = "TOKEN_EXPIRED"
	TenantNotFound Category = "TENANT_NOT_FOUND"
	RateLimited    Category = "RATE_LIMITED"
	Unknown        Category = "UNKNOWN"

	// Categories raised by the coordinator itself, never inferred from remote errors.
	InvalidCallback         Category = "INVALID_CALLBACK"
	AuthorizationStartError Category = "AUTHORIZATION_START_ERROR"
	Throttled               Category = "THROTTLED"
)

// IsFailure is false for Throttled: a debounced call was rejected, nothing is broken.
func (c Category) IsFailure() bool {
	return c != Throttled
}

func (c Category) String() string {
	return string(c)
}

// Action is the affordance a UI should present for a category.
type Action string

const (
	ActionNone           Action = "none"
	ActionReconnect      Action = "reconnect"
	ActionRefreshTenants Action = "refresh_tenants"
	ActionRetryLater     Action = "retry_later"
	ActionCheckSettings  Action = "check_settings"
)

// ActionFor maps a category to the affordance shown next to its message.
func ActionFor(c Category) Action {
	switch c {
	case NotConnected, TokenExpired, InvalidCallback:
		return ActionReconnect
	case TenantNotFound:
		return ActionRefreshTenants
	case RateLimited, Throttled:
		return ActionRetryLater
	case AuthorizationStartError:
		return ActionCheckSettings
	}
	return ActionNone
}
