// Package common holds the sentinel errors shared by the services and the HTTP
// layer. Callers match them with errors.Is.
package common

import "errors"

var (
	// Store errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	// Authentication errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account inactive")
	ErrUnauthenticated    = errors.New("unauthenticated")

	// Authorization errors.
	ErrForbidden = errors.New("forbidden")

	// Request payload errors.
	ErrValidation = errors.New("validation failed")
)
