package auth

import "errors"

var (
	CredentialsNotConfiguredErr = errors.New("integration client credentials are not configured")
	MissingCallbackParamsErr    = errors.New("callback carries neither code and state nor error")
	AmbiguousCallbackErr        = errors.New("callback carries both code and error")
	UnknownStateErr             = errors.New("unknown authorization state")
	StateExpiredErr             = errors.New("authorization state expired")
	StateReusedErr              = errors.New("authorization state already used with a different code")
	NoRefreshTokenErr           = errors.New("refresh token not found")
	NotConnectedErr             = errors.New("integration not connected")
)
