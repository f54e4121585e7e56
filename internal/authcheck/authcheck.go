// Package authcheck serves the endpoint a reverse proxy queries to decide
// whether a request's Basic credentials are valid.
package authcheck

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/basic-auth/internal/api"
)

// AuthenticatedUserHeader carries the verified username on success.
const AuthenticatedUserHeader = "X-Authenticated-User"

// Checker verifies a username/password pair.
type Checker interface {
	Check(ctx context.Context, username, password string) (bool, error)
}

// Handler answers 200 for valid Basic credentials and 401 with a challenge otherwise.
type Handler struct {
	realm   string
	checker Checker
	logger  *zap.Logger
}

// NewHandler constructs a Handler for realm.
func NewHandler(realm string, checker Checker, logger *zap.Logger) *Handler {
	return &Handler{
		realm:   realm,
		checker: checker,
		logger:  logger,
	}
}

// ServeHTTP accepts any method.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok {
		h.unauthorized(w, "missing or malformed Authorization header")
		return
	}

	valid, err := h.checker.Check(r.Context(), username, password)
	if err != nil {
		h.logger.Error("credentials check failed",
			zap.String("username", username),
			zap.String("request_id", api.RequestID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, response{Code: "InternalServerError", Message: "unable to verify credentials"})
		return
	}
	if !valid {
		h.logger.Info("invalid credentials",
			zap.String("username", username),
			zap.String("request_id", api.RequestID(r.Context())),
		)
		h.unauthorized(w, "invalid credentials")
		return
	}

	w.Header().Set(AuthenticatedUserHeader, username)
	writeJSON(w, http.StatusOK, response{Code: "OK", Message: "authenticated"})
}

func (h *Handler) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", Challenge(h.realm))
	writeJSON(w, http.StatusUnauthorized, response{Code: "Unauthorized", Message: message})
}

// Challenge builds the WWW-Authenticate value for realm.
func Challenge(realm string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(realm)
	return `Basic realm="` + escaped + `", charset="UTF-8"`
}

type response struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
