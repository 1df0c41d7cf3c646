package token

import "errors"

// Public, stable errors for callers.
var (
	ErrKeyTooShort = errors.New("token hash key too short")
	ErrInvalidSize = errors.New("token size must be positive")
)
