package auth

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-ledger-sync/classify"
)

// Callback holds the query parameters of the OAuth redirect callback.
type Callback struct {
	Code         string
	State        string
	Error        string // error slug on the failure path
	ErrorDetails string // optional human readable detail
}

// IsFailure reports whether the provider redirected back with an error.
func (c Callback) IsFailure() bool {
	return c.Error != ""
}

// Validate enforces that exactly one of {code+state} or {error} is present.
func (c Callback) Validate() error {
	switch {
	case c.Error != "" && c.Code != "":
		return classify.WrapAs(classify.InvalidCallback, AmbiguousCallbackErr)
	case c.Error != "":
		return nil
	case c.Code == "" || c.State == "":
		return classify.WrapAs(classify.InvalidCallback, MissingCallbackParamsErr)
	}
	return nil
}

// ParseCallback reads code, state, error and errorDetails from a callback query. Values are already
// URL-decoded by url.Values. error_description is accepted as an alias for errorDetails.
func ParseCallback(q url.Values) (Callback, error) {
	cb := Callback{
		Code:         strings.TrimSpace(q.Get("code")),
		State:        strings.TrimSpace(q.Get("state")),
		Error:        strings.TrimSpace(q.Get("error")),
		ErrorDetails: strings.TrimSpace(q.Get("errorDetails")),
	}
	if cb.ErrorDetails == "" {
		cb.ErrorDetails = strings.TrimSpace(q.Get("error_description"))
	}
	if err := cb.Validate(); err != nil {
		return cb, err
	}
	return cb, nil
}
