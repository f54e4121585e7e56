package credentials

import "errors"

var (
	// ErrInvalidDetails is returned when a payload violates credentials validation rules.
	ErrInvalidDetails = errors.New("invalid resource details")
	// ErrNotFound is returned when no credentials exist for the requested username.
	ErrNotFound = errors.New("credentials not found")
	// ErrAlreadyExists is returned when creating credentials for a username that is taken.
	ErrAlreadyExists = errors.New("credentials already exist")
)
