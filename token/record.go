package token

import "time"

// Record is the credential set obtained from a code exchange or a refresh.
// It is replaced wholesale on refresh and cleared on disconnect.
type Record struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	IDToken      string    `json:"idToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	TenantScope  []string  `json:"tenantScope,omitempty"` // tenant IDs the grant covers
}

// Expired reports whether the record's local expiry has passed. A zero ExpiresAt is never expired:
// the remote platform is the authority and expiry is then only detected reactively.
func (r *Record) Expired(now time.Time) bool {
	if r == nil {
		return true
	}
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Copy returns a deep copy so callers never share the scope slice with the store.
func (r *Record) Copy() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.TenantScope = append([]string(nil), r.TenantScope...)
	return &c
}
