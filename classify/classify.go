package classify

import (
	"errors"
	"strings"
)

// coder is implemented by errors that carry a machine-readable code.
type coder interface {
	ErrorCode() string
}

var codeCategories = map[string]Category{
	"TOKEN_EXPIRED":             TokenExpired,
	"token_expired":             TokenExpired,
	"TokenExpired":              TokenExpired,
	"XERO_TOKEN_EXPIRED":        TokenExpired,
	"NOT_CONNECTED":             NotConnected,
	"not_connected":             NotConnected,
	"XERO_NOT_CONNECTED":        NotConnected,
	"TOKEN_NOT_FOUND":           NotConnected,
	"invalid_grant":             NotConnected,
	"TENANT_NOT_FOUND":          TenantNotFound,
	"tenant_not_found":          TenantNotFound,
	"RATE_LIMITED":              RateLimited,
	"rate_limited":              RateLimited,
	"RATE_LIMIT_EXCEEDED":       RateLimited,
	"429":                       RateLimited,
	"INVALID_CALLBACK":          InvalidCallback,
	"AUTHORIZATION_START_ERROR": AuthorizationStartError,
	"THROTTLED":                 Throttled,
	"UNKNOWN":                   Unknown,
}

// Patterns are matched case-insensitively; the slice order is the priority order.
var messagePatterns = []struct {
	category Category
	patterns []string
}{
	{TokenExpired, []string{
		"token expired",
		"token has expired",
		"expired token",
		"token is expired",
		"tokenexpired",
		"token_expired",
		"access token expired",
		"jwt expired",
	}},
	{NotConnected, []string{
		"not connected",
		"access token not found",
		"no access token",
		"refresh token not found",
		"not_connected",
		"please connect",
		"connection not found",
		"invalid_grant",
	}},
	{TenantNotFound, []string{
		"tenant not found",
		"tenant_not_found",
		"tenant id not found",
		"no tenant selected",
		"organisation not found",
		"organization not found",
		"xero-tenant-id",
	}},
	{RateLimited, []string{
		"rate limit",
		"rate_limit",
		"ratelimit",
		"too many requests",
		"429",
	}},
}

// Classify maps a raw error from the remote platform or the backend to a Category.
// An exact code match wins; otherwise the message is scanned in priority order.
func Classify(err error) Category {
	if err == nil {
		return Unknown
	}
	return ClassifyMessage(codeOf(err), err.Error())
}

// ClassifyMessage classifies a raw code/message pair. The code may be empty.
func ClassifyMessage(code, message string) Category {
	if code != "" {
		if c, ok := codeCategories[code]; ok {
			return c
		}
	}
	lower := strings.ToLower(message)
	for _, group := range messagePatterns {
		for _, p := range group.patterns {
			if strings.Contains(lower, p) {
				return group.category
			}
		}
	}
	return Unknown
}

func codeOf(err error) string {
	var c coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return ""
}
