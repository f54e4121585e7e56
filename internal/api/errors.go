package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/eugenenazirov/basic-auth/internal/credentials"
)

// apiError is an error with a fixed HTTP status and a machine readable code.
type apiError struct {
	status  int
	code    string
	message string
	details any
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func errBadRequest(message string) *apiError {
	return &apiError{status: http.StatusBadRequest, code: "BadRequest", message: message}
}

func errMethodNotAllowed(method string, allowed []string) *apiError {
	return &apiError{
		status:  http.StatusMethodNotAllowed,
		code:    "MethodNotAllowed",
		message: fmt.Sprintf("Only %s requests are allowed", strings.Join(allowed, ",")),
		details: map[string]any{
			"method":  method,
			"allowed": allowed,
		},
	}
}

// toAPIError maps domain errors to API errors.
func toAPIError(err error) *apiError {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, credentials.ErrInvalidDetails):
		return &apiError{status: http.StatusBadRequest, code: "InvalidResourceDetails", message: err.Error()}
	case errors.Is(err, credentials.ErrNotFound):
		return &apiError{status: http.StatusNotFound, code: "ResourceNotFound", message: err.Error()}
	case errors.Is(err, credentials.ErrAlreadyExists):
		return &apiError{status: http.StatusConflict, code: "ResourceAlreadyExists", message: err.Error()}
	default:
		return &apiError{status: http.StatusInternalServerError, code: "InternalServerError", message: "unexpected server error"}
	}
}
