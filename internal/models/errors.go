package models

import "errors"

// Sentinel errors returned by repositories and domain checks; handlers map them to HTTP status codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrLimitReached = errors.New("price tier limit reached")
)
