package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrForbidden         = errors.New("forbidden")
	ErrCredentials       = errors.New("credential failure")
	ErrProvider          = errors.New("provider failure")
	ErrMalformedResource = errors.New("malformed resource")
)
