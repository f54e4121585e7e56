package credentials

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	maxUsernameLength    = 255
	maxPasswordLength    = 72
	maxDescriptionLength = 1024
)

// ValidateUsername checks that a username can travel inside a Basic
// Authorization header, forms a single URL path segment and fits the
// storage column.
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return fmt.Errorf("%w: username must not be empty", ErrInvalidDetails)
	case len(username) > maxUsernameLength:
		return fmt.Errorf("%w: username must be at most %d bytes", ErrInvalidDetails, maxUsernameLength)
	case strings.Contains(username, ":"):
		return fmt.Errorf("%w: username must not contain ':'", ErrInvalidDetails)
	case strings.Contains(username, "/"):
		return fmt.Errorf("%w: username must not contain '/'", ErrInvalidDetails)
	case username == "." || username == "..":
		return fmt.Errorf("%w: username must not be a dot segment", ErrInvalidDetails)
	case strings.TrimSpace(username) != username:
		return fmt.Errorf("%w: username must not start or end with whitespace", ErrInvalidDetails)
	case strings.IndexFunc(username, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: username must not contain control characters", ErrInvalidDetails)
	}
	return nil
}

// ValidatePassword enforces the bcrypt input limit.
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password must not be empty", ErrInvalidDetails)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidDetails, maxPasswordLength)
	}
	return nil
}

func validateDescription(description string) error {
	if len(description) > maxDescriptionLength {
		return fmt.Errorf("%w: description must be at most %d bytes", ErrInvalidDetails, maxDescriptionLength)
	}
	return nil
}

// SplitToken splits a "username:password" token on the first colon.
func SplitToken(token string) (username, password string, err error) {
	username, password, ok := strings.Cut(token, ":")
	if !ok {
		return "", "", fmt.Errorf("%w: token must have the form username:password", ErrInvalidDetails)
	}
	return username, password, nil
}
