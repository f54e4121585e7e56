package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/basic-auth/internal/credentials"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const (
	// CredentialsPath is the collection path of the credentials resource.
	CredentialsPath = "/api/credentials"

	dateQueryLayout = "2006-01-02-15-04"
	dateQueryFormat = "%Y-%m-%d-%H-%M"
	maxPayloadBytes = 1 << 20
)

var (
	collectionMethods = []string{http.MethodGet, http.MethodPost}
	instanceMethods   = []string{http.MethodDelete, http.MethodGet, http.MethodPut}
)

// CredentialsService is the credentials behaviour the API depends on.
type CredentialsService interface {
	Create(ctx context.Context, in credentials.Input) (credentials.Credentials, error)
	Get(ctx context.Context, username string) (credentials.Credentials, error)
	List(ctx context.Context, opts credentials.ListOptions) ([]credentials.Credentials, error)
	Update(ctx context.Context, username string, patch credentials.Patch) (credentials.Credentials, error)
	Delete(ctx context.Context, username string) (bool, error)
}

// Handler wires the credentials service into HTTP handlers.
type Handler struct {
	credentials CredentialsService

	clock   func() time.Time
	logger  *zap.Logger
	profile string
	version string
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithLogger sets the logger used for unexpected handler errors.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMediaTypeParams requires requests to carry matching profile and version
// media type parameters. Empty values are not checked.
func WithMediaTypeParams(profile, version string) HandlerOption {
	return func(h *Handler) {
		h.profile = profile
		h.version = version
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(service CredentialsService, opts ...HandlerOption) *Handler {
	h := &Handler{
		credentials: service,
		clock: func() time.Time {
			return time.Now().UTC()
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCollection(w http.ResponseWriter, r *http.Request) {
	body, err := h.validateRequest(r, collectionMethods)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.listCredentials(w, r)
	case http.MethodPost:
		h.createCredentials(w, r, body)
	}
}

func (h *Handler) handleInstance(w http.ResponseWriter, r *http.Request) {
	body, err := h.validateRequest(r, instanceMethods)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}

	username := r.PathValue("username")
	switch r.Method {
	case http.MethodGet:
		h.getCredentials(w, r, username)
	case http.MethodPut:
		h.updateCredentials(w, r, username, body)
	case http.MethodDelete:
		h.deleteCredentials(w, r, username)
	}
}

func (h *Handler) listCredentials(w http.ResponseWriter, r *http.Request) {
	start, err := dateFromQuery(r, "start_date")
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	end, err := dateFromQuery(r, "end_date")
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}

	list, err := h.credentials.List(r.Context(), credentials.ListOptions{Start: start, End: end})
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}

	resp := credentialsListResponse{
		Credentials: make([]credentialsResponse, 0, len(list)),
		Count:       len(list),
	}
	for _, c := range list {
		resp.Credentials = append(resp.Credentials, newCredentialsResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createCredentials(w http.ResponseWriter, r *http.Request, body []byte) {
	if body == nil {
		h.writeAPIError(w, r, fmt.Errorf("%w: missing request payload", credentials.ErrInvalidDetails))
		return
	}

	var req createRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeAPIError(w, r, errBadRequest("Invalid JSON payload"))
		return
	}

	in := credentials.Input{
		Username:    req.Username,
		Password:    req.Password,
		Description: req.Description,
	}
	if req.Token != "" {
		username, password, err := credentials.SplitToken(req.Token)
		if err != nil {
			h.writeAPIError(w, r, err)
			return
		}
		in.Username, in.Password = username, password
	}

	created, err := h.credentials.Create(r.Context(), in)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}

	w.Header().Set("Location", CredentialsPath+"/"+url.PathEscape(created.Username))
	writeJSON(w, http.StatusCreated, newCredentialsResponse(created))
}

func (h *Handler) getCredentials(w http.ResponseWriter, r *http.Request, username string) {
	creds, err := h.credentials.Get(r.Context(), username)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCredentialsResponse(creds))
}

func (h *Handler) updateCredentials(w http.ResponseWriter, r *http.Request, username string, body []byte) {
	if body == nil {
		h.writeAPIError(w, r, fmt.Errorf("%w: missing request payload", credentials.ErrInvalidDetails))
		return
	}

	var req updateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeAPIError(w, r, errBadRequest("Invalid JSON payload"))
		return
	}

	patch := credentials.Patch{
		Password:    req.Password,
		Description: req.Description,
	}
	if req.Token != nil {
		tokenUser, password, err := credentials.SplitToken(*req.Token)
		if err != nil {
			h.writeAPIError(w, r, err)
			return
		}
		if tokenUser != username {
			h.writeAPIError(w, r, fmt.Errorf("%w: token username does not match resource", credentials.ErrInvalidDetails))
			return
		}
		patch.Password = &password
	}

	updated, err := h.credentials.Update(r.Context(), username, patch)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCredentialsResponse(updated))
}

func (h *Handler) deleteCredentials(w http.ResponseWriter, r *http.Request, username string) {
	removed, err := h.credentials.Delete(r.Context(), username)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	if !removed {
		h.writeAPIError(w, r, credentials.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{
		Username: username,
		Message:  "Credentials deleted",
	})
}

// validateRequest checks the media type and method, then returns the raw
// payload. An empty body yields a nil payload.
func (h *Handler) validateRequest(r *http.Request, allowed []string) ([]byte, error) {
	if err := h.checkMediaType(r); err != nil {
		return nil, err
	}
	if !slices.Contains(allowed, r.Method) {
		return nil, errMethodNotAllowed(r.Method, allowed)
	}
	if r.ContentLength == 0 || r.Body == nil {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
	if err != nil {
		return nil, errBadRequest("unable to read request payload")
	}
	if len(body) > maxPayloadBytes {
		return nil, errBadRequest("request payload too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, errBadRequest("Invalid JSON payload")
	}
	return body, nil
}

func (h *Handler) checkMediaType(r *http.Request) error {
	invalid := errBadRequest("Invalid request MIME type")

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return invalid
	}
	if h.profile != "" && params["profile"] != h.profile {
		return invalid
	}
	if h.version != "" && params["version"] != h.version {
		return invalid
	}
	return nil
}

func dateFromQuery(r *http.Request, key string) (*time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation(dateQueryLayout, value, time.UTC)
	if err != nil {
		return nil, errBadRequest(fmt.Sprintf("Param %s of %s was not in expected format: %s", key, value, dateQueryFormat))
	}
	return &parsed, nil
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type createRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Description string `json:"description"`
	Token       string `json:"token"`
}

type updateRequest struct {
	Password    *string `json:"password"`
	Description *string `json:"description"`
	Token       *string `json:"token"`
}

type credentialsResponse struct {
	Username    string    `json:"username"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func newCredentialsResponse(c credentials.Credentials) credentialsResponse {
	return credentialsResponse{
		Username:    c.Username,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

type credentialsListResponse struct {
	Credentials []credentialsResponse `json:"credentials"`
	Count       int                   `json:"count"`
}

type deleteResponse struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// writeAPIError logs errors that map to 500 before writing the response.
func (h *Handler) writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	if toAPIError(err).status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFromContext(r.Context())),
		)
	}
	writeAPIError(w, err)
}

func writeAPIError(w http.ResponseWriter, err error) {
	apiErr := toAPIError(err)
	if apiErr.status == http.StatusMethodNotAllowed {
		if details, ok := apiErr.details.(map[string]any); ok {
			if allowed, ok := details["allowed"].([]string); ok {
				w.Header().Set("Allow", strings.Join(allowed, ", "))
			}
		}
	}
	writeJSON(w, apiErr.status, errorResponse{
		Code:    apiErr.code,
		Message: apiErr.message,
		Details: apiErr.details,
	})
}

