package token

import "errors"

var (
	ErrHMACKeyMissing  = errors.New("token HMAC key missing")
	ErrHMACKeyTooShort = errors.New("token HMAC key too short")
	ErrTokenSize       = errors.New("token size out of range")
)
