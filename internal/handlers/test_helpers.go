package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/services"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with a JSON body
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAdminContext injects admin claims as RequireAdmin would
func WithAdminContext(req *http.Request, username string) *http.Request {
	claims := &models.TokenClaims{Type: models.TokenTypeAdmin, Username: username, Role: models.RoleAdmin}
	ctx := context.WithValue(req.Context(), auth.ClaimsContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks status and content type, then decodes into target
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks an error body produced by pkg/http
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// MockGuardService is a mock implementation of GuardServiceInterface
type MockGuardService struct {
	AuthorizeFunc                 func(ctx context.Context, clientKey, username string) (services.Decision, error)
	OnAuthenticationFailedFunc    func(ctx context.Context, attempt services.Attempt) (*services.FailureResult, error)
	OnAuthenticationSucceededFunc func(ctx context.Context, attempt services.Attempt) error

	Failures  []services.Attempt
	Successes []services.Attempt
}

func (m *MockGuardService) Authorize(ctx context.Context, clientKey, username string) (services.Decision, error) {
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, clientKey, username)
	}
	return services.Allow(), nil
}

func (m *MockGuardService) OnAuthenticationFailed(ctx context.Context, attempt services.Attempt) (*services.FailureResult, error) {
	m.Failures = append(m.Failures, attempt)
	if m.OnAuthenticationFailedFunc != nil {
		return m.OnAuthenticationFailedFunc(ctx, attempt)
	}
	return &services.FailureResult{Outcome: services.OutcomeRecorded}, nil
}

func (m *MockGuardService) OnAuthenticationSucceeded(ctx context.Context, attempt services.Attempt) error {
	m.Successes = append(m.Successes, attempt)
	if m.OnAuthenticationSucceededFunc != nil {
		return m.OnAuthenticationSucceededFunc(ctx, attempt)
	}
	return nil
}

// MockAdminService is a mock implementation of AdminServiceInterface
type MockAdminService struct {
	ListClientsFunc           func(ctx context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error)
	GetClientFunc             func(ctx context.Context, key string) (*services.ClientView, error)
	ListDetailsFunc           func(ctx context.Context, clientID string, filter models.DetailFilter) ([]*models.AttemptDetail, error)
	DeleteDetailFunc          func(ctx context.Context, actor, id string) error
	DeleteClientFunc          func(ctx context.Context, actor, id string) error
	AddAccessListEntryFunc    func(ctx context.Context, actor, key string, listType models.ListType) (*models.AccessListEntry, error)
	RemoveAccessListEntryFunc func(ctx context.Context, actor, key string, listType models.ListType) error
	ListAccessListFunc        func(ctx context.Context, listType models.ListType) ([]*models.AccessListEntry, error)
	PolicyValue               models.RateLimitPolicy
}

func (m *MockAdminService) ListClients(ctx context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error) {
	if m.ListClientsFunc == nil {
		return []*models.ClientRecord{}, nil
	}
	return m.ListClientsFunc(ctx, filter)
}

func (m *MockAdminService) GetClient(ctx context.Context, key string) (*services.ClientView, error) {
	if m.GetClientFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetClientFunc(ctx, key)
}

func (m *MockAdminService) ListDetails(ctx context.Context, clientID string, filter models.DetailFilter) ([]*models.AttemptDetail, error) {
	if m.ListDetailsFunc == nil {
		return []*models.AttemptDetail{}, nil
	}
	return m.ListDetailsFunc(ctx, clientID, filter)
}

func (m *MockAdminService) DeleteDetail(ctx context.Context, actor, id string) error {
	if m.DeleteDetailFunc == nil {
		return nil
	}
	return m.DeleteDetailFunc(ctx, actor, id)
}

func (m *MockAdminService) DeleteClient(ctx context.Context, actor, id string) error {
	if m.DeleteClientFunc == nil {
		return nil
	}
	return m.DeleteClientFunc(ctx, actor, id)
}

func (m *MockAdminService) AddAccessListEntry(ctx context.Context, actor, key string, listType models.ListType) (*models.AccessListEntry, error) {
	if m.AddAccessListEntryFunc == nil {
		return &models.AccessListEntry{ClientKey: key, ListType: listType, CreatedAt: time.Now()}, nil
	}
	return m.AddAccessListEntryFunc(ctx, actor, key, listType)
}

func (m *MockAdminService) RemoveAccessListEntry(ctx context.Context, actor, key string, listType models.ListType) error {
	if m.RemoveAccessListEntryFunc == nil {
		return nil
	}
	return m.RemoveAccessListEntryFunc(ctx, actor, key, listType)
}

func (m *MockAdminService) ListAccessList(ctx context.Context, listType models.ListType) ([]*models.AccessListEntry, error) {
	if m.ListAccessListFunc == nil {
		return []*models.AccessListEntry{}, nil
	}
	return m.ListAccessListFunc(ctx, listType)
}

func (m *MockAdminService) Policy() models.RateLimitPolicy {
	return m.PolicyValue
}

// MockTokenIssuer is a mock implementation of TokenIssuer
type MockTokenIssuer struct {
	Token string
	Err   error
}

func (m *MockTokenIssuer) GenerateAdminToken(string) (string, error) {
	return m.Token, m.Err
}

func (m *MockTokenIssuer) Expiry() time.Duration {
	return 15 * time.Minute
}
