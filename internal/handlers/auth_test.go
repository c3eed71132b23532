package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/handlers"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/services"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	"github.com/BradenHooton/loginguard/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const adminPassword = "Secure-Passphrase-2026"

func newAuthHandler(t *testing.T, guard *handlers.MockGuardService, tokens handlers.TokenIssuer) *handlers.AuthHandler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	return handlers.NewAuthHandler(
		guard,
		models.AdminCredentials{Username: "ops", PasswordHash: string(hash)},
		tokens,
		auth.NewTimingDelay(auth.TimingConfig{}),
		logger.NewAuditLogger(discardLogger()),
		nil,
		discardLogger(),
	)
}

func loginRequest(t *testing.T, username, password string) *http.Request {
	req := handlers.NewTestRequest(t, "POST", "/v1/admin/login", handlers.LoginRequest{
		Username: username,
		Password: password,
	})
	req.RemoteAddr = "203.0.113.5:41234"
	return req
}

func TestLogin_Success(t *testing.T) {
	guard := &handlers.MockGuardService{}
	h := newAuthHandler(t, guard, &handlers.MockTokenIssuer{Token: "signed.jwt.token"})

	w := httptest.NewRecorder()
	h.Login(w, loginRequest(t, "ops", adminPassword))

	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "signed.jwt.token", resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(900), resp.ExpiresIn)

	require.Len(t, guard.Successes, 1)
	assert.Equal(t, "203.0.113.5", guard.Successes[0].ClientKey)
	assert.Equal(t, "ops", guard.Successes[0].UserID)
	assert.Empty(t, guard.Failures)
}

func TestLogin_WrongCredentialsRecordFailure(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "ops", "not-the-password"},
		{"unknown username", "root", adminPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := &handlers.MockGuardService{}
			h := newAuthHandler(t, guard, &handlers.MockTokenIssuer{Token: "unused"})

			w := httptest.NewRecorder()
			h.Login(w, loginRequest(t, tt.username, tt.password))

			handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")

			var resp pkghttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "Authentication failed", resp.Message)

			require.Len(t, guard.Failures, 1)
			assert.Equal(t, "203.0.113.5", guard.Failures[0].ClientKey)
			assert.Equal(t, tt.username, guard.Failures[0].Username)
			assert.Empty(t, guard.Successes)
		})
	}
}

func TestLogin_LockedClientNeverChecksPassword(t *testing.T) {
	until := time.Now().Add(10 * time.Minute)
	guard := &handlers.MockGuardService{
		AuthorizeFunc: func(ctx context.Context, clientKey, username string) (services.Decision, error) {
			return services.Decision{Allowed: false, Message: "Too many failed login attempts.", Reason: services.ReasonLocked, LockoutUntil: &until}, nil
		},
	}
	h := newAuthHandler(t, guard, &handlers.MockTokenIssuer{Token: "unused"})

	w := httptest.NewRecorder()
	h.Login(w, loginRequest(t, "ops", adminPassword))

	handlers.AssertErrorResponse(t, w, http.StatusTooManyRequests, "rate_limit_exceeded")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Empty(t, guard.Failures)
	assert.Empty(t, guard.Successes)
}

func TestLogin_BlacklistedClient(t *testing.T) {
	guard := &handlers.MockGuardService{
		AuthorizeFunc: func(ctx context.Context, clientKey, username string) (services.Decision, error) {
			return services.Decision{Allowed: false, Message: "blocked", Reason: services.ReasonBlacklisted}, nil
		},
	}
	h := newAuthHandler(t, guard, &handlers.MockTokenIssuer{Token: "unused"})

	w := httptest.NewRecorder()
	h.Login(w, loginRequest(t, "ops", adminPassword))

	handlers.AssertErrorResponse(t, w, http.StatusForbidden, "forbidden")
}

func TestLogin_GuardUnavailable(t *testing.T) {
	guard := &handlers.MockGuardService{
		AuthorizeFunc: func(ctx context.Context, clientKey, username string) (services.Decision, error) {
			return services.Decision{Allowed: false, Message: services.UnavailableMessage, Reason: services.ReasonUnavailable},
				models.NewStorageError("find client", assert.AnError)
		},
	}
	h := newAuthHandler(t, guard, &handlers.MockTokenIssuer{Token: "unused"})

	w := httptest.NewRecorder()
	h.Login(w, loginRequest(t, "ops", adminPassword))

	handlers.AssertErrorResponse(t, w, http.StatusServiceUnavailable, "service_unavailable")
	assert.Empty(t, guard.Successes)
}

func TestLogin_TokenFailure(t *testing.T) {
	h := newAuthHandler(t, &handlers.MockGuardService{}, &handlers.MockTokenIssuer{Err: assert.AnError})

	w := httptest.NewRecorder()
	h.Login(w, loginRequest(t, "ops", adminPassword))

	handlers.AssertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
}

func TestLogin_ValidatesBody(t *testing.T) {
	h := newAuthHandler(t, &handlers.MockGuardService{}, &handlers.MockTokenIssuer{})

	w := httptest.NewRecorder()
	h.Login(w, loginRequest(t, "", ""))

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}
