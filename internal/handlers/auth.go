package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/services"
	pkgauth "github.com/BradenHooton/loginguard/pkg/auth"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	"github.com/BradenHooton/loginguard/pkg/logger"
)

// TokenIssuer issues admin API tokens
type TokenIssuer interface {
	GenerateAdminToken(username string) (string, error)
	Expiry() time.Duration
}

// AuthHandler handles the admin login. The login itself runs behind the guard,
// keyed by the caller's IP address, like any other authenticator would.
type AuthHandler struct {
	guard       GuardServiceInterface
	credentials models.AdminCredentials
	tokens      TokenIssuer
	timing      *auth.TimingDelay
	audit       *logger.AuditLogger
	ipConfig    *pkghttp.IPConfig
	logger      *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	guard GuardServiceInterface,
	credentials models.AdminCredentials,
	tokens TokenIssuer,
	timing *auth.TimingDelay,
	audit *logger.AuditLogger,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		guard:       guard,
		credentials: credentials,
		tokens:      tokens,
		timing:      timing,
		audit:       audit,
		ipConfig:    ipConfig,
		logger:      logger,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=72"`
}

// LoginResponse carries an admin access token
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login handles POST /v1/admin/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req LoginRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	attempt := services.Attempt{
		ClientKey: pkghttp.ExtractClientIP(r, h.ipConfig),
		Username:  req.Username,
		UserAgent: r.UserAgent(),
	}
	event := logger.AuditEvent{
		EventType: "admin_login",
		ClientKey: attempt.ClientKey,
		Username:  attempt.Username,
		UserAgent: attempt.UserAgent,
	}

	decision, err := h.guard.Authorize(ctx, attempt.ClientKey, attempt.Username)
	if err != nil {
		event.Reason = decision.Reason
		h.audit.LogAdminLogin(event)
		h.timing.WaitFrom(start, false)
		pkghttp.WriteServiceUnavailable(w, decision.Message)
		return
	}
	if !decision.Allowed {
		event.Reason = decision.Reason
		event.LockoutUntil = decision.LockoutUntil
		h.audit.LogAdminLogin(event)
		h.timing.WaitFrom(start, false)
		writeDenied(w, decision, start)
		return
	}

	if err := pkgauth.VerifyCredentials(h.credentials.Username, h.credentials.PasswordHash, req.Username, req.Password); err != nil {
		result, recErr := h.guard.OnAuthenticationFailed(ctx, attempt)
		if recErr != nil {
			h.logger.Error("admin login: failed to record failure", slog.Any("error", recErr))
		}

		event.Reason = "invalid_credentials"
		if result != nil && result.LockoutUntil != nil {
			event.LockoutUntil = result.LockoutUntil
		}
		h.audit.LogAdminLogin(event)
		h.timing.WaitFrom(start, false)
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}

	attempt.UserID = h.credentials.Username
	if err := h.guard.OnAuthenticationSucceeded(ctx, attempt); err != nil {
		h.logger.Error("admin login: failed to record success", slog.Any("error", err))
	}

	token, err := h.tokens.GenerateAdminToken(req.Username)
	if err != nil {
		h.logger.Error("admin login: failed to issue token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	event.Success = true
	h.audit.LogAdminLogin(event)

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.tokens.Expiry().Seconds()),
	})
}

// writeDenied answers a guard deny. Blacklisted clients get 403, locked ones 429.
func writeDenied(w http.ResponseWriter, decision services.Decision, now time.Time) {
	if decision.Reason == services.ReasonBlacklisted {
		pkghttp.WriteForbidden(w, decision.Message)
		return
	}

	if decision.LockoutUntil != nil {
		if secs := int(decision.LockoutUntil.Sub(now).Seconds()); secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	pkghttp.WriteTooManyRequests(w, decision.Message)
}
