package model

import "errors"

// Sentinel errors shared across services and mapped to HTTP status codes at
// the handler boundary.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidSample     = errors.New("invalid metric sample")
	ErrInvalidFilter     = errors.New("invalid filter")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrStoreUnavailable  = errors.New("store unavailable")
)
