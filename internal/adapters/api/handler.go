// Package api exposes the credential service over HTTP. Handlers
// decode and validate the payload at the edge, delegate to the core
// services, and map domain sentinel errors onto status codes in one
// place.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgeops/keyforge/internal/core/domain"
	"github.com/forgeops/keyforge/internal/core/ports"
	"github.com/forgeops/keyforge/internal/infrastructure/ratelimit"
)

type APIHandler struct {
	auth    ports.AuthService
	keys    ports.APIKeyService
	store   ports.CredentialStore
	limiter *ratelimit.Limiter
}

// NewAPIHandler wires the HTTP surface. limiter may be nil, which
// disables login throttling.
func NewAPIHandler(auth ports.AuthService, keys ports.APIKeyService, store ports.CredentialStore, limiter *ratelimit.Limiter) *APIHandler {
	return &APIHandler{auth: auth, keys: keys, store: store, limiter: limiter}
}

// RegisterRoutes attaches all endpoints to the mux. Session-scoped
// routes go through SessionAuth; the verification endpoint
// authenticates with the raw key itself.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.Handle("POST /api/v1/auth/login", RateLimit(h.limiter, "login")(http.HandlerFunc(h.Login)))

	session := SessionAuth(h.auth)
	mux.Handle("GET /api/v1/users/me", session(http.HandlerFunc(h.Me)))
	mux.Handle("POST /api/v1/keys", session(http.HandlerFunc(h.CreateKey)))
	mux.Handle("GET /api/v1/keys", session(http.HandlerFunc(h.ListKeys)))
	mux.Handle("PATCH /api/v1/keys/{id}", session(http.HandlerFunc(h.UpdateKey)))
	mux.Handle("POST /api/v1/keys/{id}/rotate", session(http.HandlerFunc(h.RotateKey)))
	mux.Handle("DELETE /api/v1/keys", session(http.HandlerFunc(h.DeleteKey)))

	mux.Handle("GET /api/v1/verify", APIKeyAuth(h.keys)(http.HandlerFunc(h.Verify)))
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := domain.ValidateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.auth.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(CtxUser).(*domain.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, "could not validate credentials")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type createKeyRequest struct {
	Label       string  `json:"label"`
	Description *string `json:"description"`
}

type createKeyResponse struct {
	domain.APIKey
	// Key is the full plaintext credential, shown exactly once.
	Key string `json:"key"`
}

func (h *APIHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(CtxUser).(*domain.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, "could not validate credentials")
		return
	}

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateLabel(req.Label); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Description != nil {
		if err := domain.ValidateDescription(*req.Description); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	key, plaintext, err := h.keys.Create(r.Context(), user.ID, req.Label, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createKeyResponse{APIKey: *key, Key: plaintext})
}

func (h *APIHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(CtxUser).(*domain.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, "could not validate credentials")
		return
	}

	keys, err := h.keys.List(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if keys == nil {
		// An account with no keys is an empty collection, not an error.
		keys = []domain.APIKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

type updateKeyRequest struct {
	Label       *string `json:"label"`
	Description *string `json:"description"`
	Active      *bool   `json:"is_active"`
}

func (h *APIHandler) UpdateKey(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(CtxUser).(*domain.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, "could not validate credentials")
		return
	}
	keyID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	var req updateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Label != nil {
		if err := domain.ValidateLabel(*req.Label); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Description != nil {
		if err := domain.ValidateDescription(*req.Description); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	patch := domain.APIKeyPatch{Label: req.Label, Description: req.Description, Active: req.Active}
	if _, err := h.keys.Update(r.Context(), user.ID, keyID, patch); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "API key updated successfully"})
}

type deleteKeyRequest struct {
	Label string `json:"label"`
}

func (h *APIHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(CtxUser).(*domain.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, "could not validate credentials")
		return
	}

	var req deleteKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateLabel(req.Label); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.keys.Delete(r.Context(), user.ID, req.Label); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "API key deleted successfully"})
}

type rotateKeyResponse struct {
	KeyID int64  `json:"key_id"`
	Label string `json:"label"`
	// Key is the replacement plaintext credential, shown exactly once.
	Key string `json:"key"`
}

func (h *APIHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(CtxUser).(*domain.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, "could not validate credentials")
		return
	}
	keyID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	key, plaintext, err := h.keys.Rotate(r.Context(), user.ID, keyID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rotateKeyResponse{KeyID: key.ID, Label: key.Label, Key: plaintext})
}

// Verify reports the identity behind a valid API key. All the work
// happens in APIKeyAuth; reaching this handler means the key passed.
func (h *APIHandler) Verify(w http.ResponseWriter, r *http.Request) {
	key, ok := r.Context().Value(CtxAPIKey).(*domain.APIKey)
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "API key is valid",
		"user_id": key.UserID,
		"label":   key.Label,
	})
}

func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "database": "ok"}
	code := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}
	if h.limiter != nil {
		status["redis"] = "ok"
		if err := h.limiter.Ping(ctx); err != nil {
			status["status"] = "degraded"
			status["redis"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeDomainError maps service-layer sentinel errors to HTTP status
// codes. Anything unrecognized is an internal failure and must not
// leak its message to the client.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrDuplicateEmail),
		errors.Is(err, domain.ErrDuplicateUsername),
		errors.Is(err, domain.ErrDuplicateLabel),
		errors.Is(err, domain.ErrNoFields),
		errors.Is(err, domain.ErrRedundantState):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "API key not found")
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrKeyInactive):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
