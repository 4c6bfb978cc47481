package services

import "errors"

// Sentinel errors surfaced to the HTTP layer. Handlers map ErrNotFound to 404
// and ErrInvalidState to 409; everything else is a 500.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
)
