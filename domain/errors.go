package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when no record matches.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a record already exists or a conditional
	// update lost the race.
	ErrConflict = errors.New("conflict")

	ErrInvalidClient = errors.New("invalid client")
	ErrUnknownScope  = errors.New("unknown scope")
)
