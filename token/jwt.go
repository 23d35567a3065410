package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ExpiryFromJWT reads the exp claim of an access token without verifying it.
// It is only a hint for local pre-emptive refresh; the platform remains the authority on validity.
func ExpiryFromJWT(rawToken string) (time.Time, bool) {
	if strings.Count(rawToken, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// AuthenticationEventID returns the authentication_event_id claim some platforms put in access tokens.
// It identifies which tenant connections were granted by this authorization.
func AuthenticationEventID(rawToken string) string {
	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return ""
	}
	id, _ := claims["authentication_event_id"].(string)
	return id
}

// FillExpiry sets ExpiresAt from the access token when the exchange response did not carry one.
func FillExpiry(r *Record) {
	if r == nil || !r.ExpiresAt.IsZero() {
		return
	}
	if exp, ok := ExpiryFromJWT(r.AccessToken); ok {
		r.ExpiresAt = exp
	}
}
