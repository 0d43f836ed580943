package domain

import (
	"errors"
)

// Sentinel errors surfaced by the services. Handlers map these to HTTP
// status codes; everything else is treated as an internal failure.
var (
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already registered")
	ErrDuplicateLabel    = errors.New("an API key with this label already exists")
	ErrNoFields          = errors.New("no fields provided for update")
	ErrRedundantState    = errors.New("API key is already in the requested state")
	ErrNotFound          = errors.New("not found")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrUnauthorized      = errors.New("invalid or missing API key")
	ErrKeyInactive       = errors.New("API key is inactive/revoked")
	ErrTokenInvalid      = errors.New("token is invalid or expired")
)
