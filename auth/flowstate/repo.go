package flowstate

import (
	"errors"
	"time"

	"github.com/jrsteele09/go-ledger-sync/classify"
)

var ErrStateNotFound = errors.New("state not found")

// FlowState is the record of one authorization attempt, keyed by its anti-CSRF state value.
type FlowState struct {
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`

	// Set once a callback carrying this state has been accepted; a replay of the same code is a no-op.
	ConsumedCodeHash string    `json:"consumedCodeHash,omitempty"`
	ConsumedAt       time.Time `json:"consumedAt,omitempty"`

	// Failure is set when the exchange for the consumed code failed, so a replay reports the same outcome.
	Failure *classify.Error `json:"failure,omitempty"`
}

// Consumed reports whether a callback was already accepted for this state.
func (f *FlowState) Consumed() bool {
	return f.ConsumedCodeHash != ""
}

type Repo interface {
	Upsert(state *FlowState) error
	Get(state string) (*FlowState, error)
	// MarkConsumed records codeHash against state unless it was already consumed.
	// It returns the stored record and whether this call performed the transition.
	MarkConsumed(state, codeHash string, at time.Time) (*FlowState, bool, error)
	Delete(state string) error
	DeleteExpired(before time.Time) error
}
