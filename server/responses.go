package server

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-ledger-sync/classify"
	interrors "github.com/jrsteele09/go-ledger-sync/internal/errors"
	"github.com/jrsteele09/go-ledger-sync/resourcesync"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

// errorResponse is the wire form of a classified error.
type errorResponse struct {
	Category   classify.Category `json:"category"`
	Code       string            `json:"code,omitempty"`
	Message    string            `json:"message"`
	Action     classify.Action   `json:"action"`
	RetryAfter float64           `json:"retryAfterSeconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("writeJSON: encode failed")
	}
}

func writeJSONError(w http.ResponseWriter, category, message, action string, statusCode int) {
	writeJSON(w, statusCode, errorResponse{
		Category: classify.Category(category),
		Message:  message,
		Action:   classify.Action(action),
	})
}

// writeError renders err as {category, message, action} with a status derived from its category.
// A debounced call is a 429 with Retry-After and never a server error.
func writeError(w http.ResponseWriter, err error) {
	var throttled *resourcesync.ThrottledError
	if errors.As(err, &throttled) {
		seconds := int(math.Ceil(throttled.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Category:   classify.Throttled,
			Message:    throttled.Error(),
			Action:     classify.ActionFor(classify.Throttled),
			RetryAfter: throttled.RetryAfter.Seconds(),
		})
		return
	}

	ce := classify.Wrap(err)
	writeJSON(w, statusFor(ce, err), errorResponse{
		Category: ce.Category,
		Code:     ce.Code,
		Message:  ce.Message,
		Action:   ce.Action(),
	})
}

func statusFor(ce *classify.Error, err error) int {
	if interrors.Is(err, interrors.ErrUnknownResource) {
		return http.StatusNotFound
	}
	switch ce.Category {
	case classify.NotConnected, classify.TokenExpired:
		return http.StatusUnauthorized
	case classify.TenantNotFound:
		return http.StatusNotFound
	case classify.RateLimited, classify.Throttled:
		return http.StatusTooManyRequests
	case classify.InvalidCallback:
		return http.StatusBadRequest
	case classify.AuthorizationStartError:
		return http.StatusPreconditionFailed
	}
	return http.StatusBadGateway
}

// wantsJSON reports whether the caller is a script rather than a browser navigation.
func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
