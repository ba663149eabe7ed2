package provider

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrMissingData        = errors.New("missing email or password")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMalformedResponse  = errors.New("malformed response from auth backend")
)
