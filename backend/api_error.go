package backend

import (
	"encoding/json"
	"strconv"
	"strings"
)

// APIError is a failure reported by the backend, either as an HTTP error status or as a
// success=false envelope. Code and Message are passed to the classifier untouched.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// ErrorCode is the backend's machine-readable code, falling back to the HTTP status for 429.
func (e *APIError) ErrorCode() string {
	if e.Code == "" && e.Status == 429 {
		return strconv.Itoa(e.Status)
	}
	return e.Code
}

// parseAPIError accepts {"code","message"}, {"error","message"} and {"error":{"code","message"}} bodies.
func parseAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{Status: status}

	var flat struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &flat); err == nil {
		apiErr.Code = flat.Code
		apiErr.Message = flat.Message
		if len(flat.Error) > 0 {
			var slug string
			var nested struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			switch {
			case json.Unmarshal(flat.Error, &slug) == nil:
				if apiErr.Code == "" {
					apiErr.Code = slug
				}
			case json.Unmarshal(flat.Error, &nested) == nil:
				if apiErr.Code == "" {
					apiErr.Code = nested.Code
				}
				if apiErr.Message == "" {
					apiErr.Message = nested.Message
				}
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = statusText(status)
	}
	return apiErr
}
