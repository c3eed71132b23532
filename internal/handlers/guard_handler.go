package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/services"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

// GuardServiceInterface is the facade an authenticator talks to
type GuardServiceInterface interface {
	Authorize(ctx context.Context, clientKey, username string) (services.Decision, error)
	OnAuthenticationFailed(ctx context.Context, attempt services.Attempt) (*services.FailureResult, error)
	OnAuthenticationSucceeded(ctx context.Context, attempt services.Attempt) error
}

// GuardHandler exposes the guard to authenticators running in other processes
type GuardHandler struct {
	guard  GuardServiceInterface
	logger *slog.Logger
}

// NewGuardHandler creates a new GuardHandler
func NewGuardHandler(guard GuardServiceInterface, logger *slog.Logger) *GuardHandler {
	return &GuardHandler{guard: guard, logger: logger}
}

// GuardRequest describes one authentication attempt
type GuardRequest struct {
	ClientKey string `json:"client_key" validate:"required,ip"`
	Username  string `json:"username" validate:"max=320"`
	UserAgent string `json:"user_agent" validate:"max=1024"`
	UserID    string `json:"user_id" validate:"max=128"`
}

// RecordResponse acknowledges a recorded attempt
type RecordResponse struct {
	Recorded bool `json:"recorded"`
	*services.FailureResult
}

func (h *GuardHandler) decode(w http.ResponseWriter, r *http.Request) (*GuardRequest, bool) {
	var req GuardRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return nil, false
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return nil, false
	}
	key, ok := pkghttp.NormalizeClientKey(req.ClientKey)
	if !ok {
		pkghttp.WriteBadRequest(w, "client_key must be an IP address")
		return nil, false
	}
	req.ClientKey = key
	return &req, true
}

func (req *GuardRequest) attempt() services.Attempt {
	return services.Attempt{
		ClientKey: req.ClientKey,
		Username:  req.Username,
		UserAgent: req.UserAgent,
		UserID:    req.UserID,
	}
}

// Authorize handles POST /v1/guard/authorize.
// A deny is still a 200; only an unverifiable lock state is a 503.
func (h *GuardHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	decision, err := h.guard.Authorize(r.Context(), req.ClientKey, req.Username)
	if err != nil {
		pkghttp.WriteJSON(w, http.StatusServiceUnavailable, decision)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, decision)
}

// RecordFailure handles POST /v1/guard/failures
func (h *GuardHandler) RecordFailure(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	result, err := h.guard.OnAuthenticationFailed(r.Context(), req.attempt())
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, RecordResponse{Recorded: true, FailureResult: result})
}

// RecordSuccess handles POST /v1/guard/successes
func (h *GuardHandler) RecordSuccess(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	if err := h.guard.OnAuthenticationSucceeded(r.Context(), req.attempt()); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, RecordResponse{Recorded: true})
}

// writeStoreError maps service errors onto HTTP responses.
// A StorageError is always a 503, whatever it wraps.
func writeStoreError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "bad_request", validationErr.Message, validationErr.Field)
	case models.IsStorageError(err):
		pkghttp.WriteServiceUnavailable(w, services.UnavailableMessage)
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	default:
		logger.Error("unexpected handler error", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
