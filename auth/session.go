package auth

import (
	"time"

	"github.com/jrsteele09/go-ledger-sync/classify"
)

// Status is the connection state of the integration.
//
//	disconnected -> connecting -> connected <-> expired
//	any -> disconnected (Disconnect), any -> error (unrecoverable failure)
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusExpired      Status = "expired"
	StatusError        Status = "error"
)

// Session is a read-only snapshot of the connection state.
type Session struct {
	Status                Status          `json:"status"`
	CredentialsConfigured bool            `json:"hasCredentialsConfigured"`
	LastError             *classify.Error `json:"lastError,omitempty"`
	ConnectedAt           time.Time       `json:"connectedAt,omitempty"`

	// HintAuthorized is the advisory cached flag from the last run. It is only a hint for the
	// initial affordance and never drives Status.
	HintAuthorized bool `json:"hintAuthorized"`
}

// Action is the affordance the UI should offer for this session.
func (s Session) Action() classify.Action {
	switch s.Status {
	case StatusConnected, StatusConnecting:
		return classify.ActionNone
	case StatusExpired:
		return classify.ActionReconnect
	case StatusError:
		if s.LastError != nil {
			return s.LastError.Action()
		}
		return classify.ActionReconnect
	}
	if !s.CredentialsConfigured {
		return classify.ActionCheckSettings
	}
	return classify.ActionReconnect
}
