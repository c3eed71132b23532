package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/loginguard/internal/handlers"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminListClients_ParsesFilter(t *testing.T) {
	var got models.ClientFilter
	svc := &handlers.MockAdminService{
		ListClientsFunc: func(ctx context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error) {
			got = filter
			return []*models.ClientRecord{{ID: "c1", ClientKey: "1.2.3.4", CurrentStatus: models.StatusLocked}}, nil
		},
	}
	h := handlers.NewAdminHandler(svc, discardLogger())

	req := httptest.NewRequest("GET", "/v1/admin/clients?status=Locked,fail&limit=10&offset=20", nil)
	w := httptest.NewRecorder()
	h.ListClients(w, req)

	var resp handlers.PageResponse[*models.ClientRecord]
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "c1", resp.Items[0].ID)
	assert.Equal(t, []models.AttemptStatus{models.StatusLocked, models.StatusFail}, got.Statuses)
	assert.Equal(t, 10, got.Limit)
	assert.Equal(t, 20, got.Offset)
}

func TestAdminListClients_PagingDefaults(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", services.DefaultPageSize, 0},
		{"?limit=abc&offset=-3", services.DefaultPageSize, 0},
		{"?limit=100000", services.MaxPageSize, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var got models.ClientFilter
			svc := &handlers.MockAdminService{
				ListClientsFunc: func(ctx context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error) {
					got = filter
					return nil, nil
				},
			}
			h := handlers.NewAdminHandler(svc, discardLogger())

			w := httptest.NewRecorder()
			h.ListClients(w, httptest.NewRequest("GET", "/v1/admin/clients"+tt.query, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantLimit, got.Limit)
			assert.Equal(t, tt.wantOffset, got.Offset)
		})
	}
}

func TestAdminListClients_InvalidStatus(t *testing.T) {
	svc := &handlers.MockAdminService{
		ListClientsFunc: func(ctx context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error) {
			return nil, &models.ValidationError{Field: "status", Message: "unknown status bogus"}
		},
	}
	h := handlers.NewAdminHandler(svc, discardLogger())

	w := httptest.NewRecorder()
	h.ListClients(w, httptest.NewRequest("GET", "/v1/admin/clients?status=bogus", nil))

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestAdminLookupClient(t *testing.T) {
	svc := &handlers.MockAdminService{
		GetClientFunc: func(ctx context.Context, key string) (*services.ClientView, error) {
			if key != "2001:db8::1" {
				return nil, models.ErrNotFound
			}
			return &services.ClientView{ClientRecord: &models.ClientRecord{ID: "c1", ClientKey: key}, Locked: true}, nil
		},
	}
	h := handlers.NewAdminHandler(svc, discardLogger())

	t.Run("found", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.LookupClient(w, httptest.NewRequest("GET", "/v1/admin/clients/lookup?client_key=2001:DB8::1", nil))

		var resp map[string]any
		handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
		assert.Equal(t, "c1", resp["id"])
		assert.Equal(t, true, resp["locked"])
	})

	t.Run("unknown", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.LookupClient(w, httptest.NewRequest("GET", "/v1/admin/clients/lookup?client_key=9.9.9.9", nil))
		handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
	})

	t.Run("invalid key", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.LookupClient(w, httptest.NewRequest("GET", "/v1/admin/clients/lookup?client_key=nope", nil))
		handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	})
}

func TestAdminListDetails_UsesRouteParam(t *testing.T) {
	var gotID string
	svc := &handlers.MockAdminService{
		ListDetailsFunc: func(ctx context.Context, clientID string, filter models.DetailFilter) ([]*models.AttemptDetail, error) {
			gotID = clientID
			return []*models.AttemptDetail{{ID: "d1", Status: models.StatusFail}}, nil
		},
	}
	h := handlers.NewAdminHandler(svc, discardLogger())

	req := httptest.NewRequest("GET", "/v1/admin/clients/c1/details", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "c1"})
	w := httptest.NewRecorder()
	h.ListDetails(w, req)

	var resp handlers.PageResponse[*models.AttemptDetail]
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "c1", gotID)
	require.Len(t, resp.Items, 1)
}

func TestAdminDeleteDetail(t *testing.T) {
	var gotActor, gotID string
	svc := &handlers.MockAdminService{
		DeleteDetailFunc: func(ctx context.Context, actor, id string) error {
			gotActor, gotID = actor, id
			if id == "missing" {
				return models.ErrNotFound
			}
			return nil
		},
	}
	h := handlers.NewAdminHandler(svc, discardLogger())

	req := httptest.NewRequest("DELETE", "/v1/admin/details/d1", nil)
	req = handlers.WithAdminContext(handlers.WithChiRouteContext(req, map[string]string{"id": "d1"}), "ops")
	w := httptest.NewRecorder()
	h.DeleteDetail(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "ops", gotActor)
	assert.Equal(t, "d1", gotID)

	req = httptest.NewRequest("DELETE", "/v1/admin/details/missing", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "missing"})
	w = httptest.NewRecorder()
	h.DeleteDetail(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}

func TestAdminDeleteClient_StorageUnavailable(t *testing.T) {
	svc := &handlers.MockAdminService{
		DeleteClientFunc: func(ctx context.Context, actor, id string) error {
			return models.NewStorageError("delete client", assert.AnError)
		},
	}
	h := handlers.NewAdminHandler(svc, discardLogger())

	req := handlers.WithChiRouteContext(httptest.NewRequest("DELETE", "/v1/admin/clients/c1", nil), map[string]string{"id": "c1"})
	w := httptest.NewRecorder()
	h.DeleteClient(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusServiceUnavailable, "service_unavailable")
}

func TestAdminAddAccessListEntry(t *testing.T) {
	var gotKey string
	var gotType models.ListType
	svc := &handlers.MockAdminService{
		AddAccessListEntryFunc: func(ctx context.Context, actor, key string, listType models.ListType) (*models.AccessListEntry, error) {
			gotKey, gotType = key, listType
			return &models.AccessListEntry{ClientKey: key, ListType: listType}, nil
		},
	}
	h := handlers.NewAdminHandler(svc, discardLogger())

	req := handlers.NewTestRequest(t, "POST", "/v1/admin/access-list", handlers.AccessListRequest{
		ClientKey: "::ffff:192.0.2.9",
		ListType:  "blacklist",
	})
	w := httptest.NewRecorder()
	h.AddAccessListEntry(w, req)

	var entry models.AccessListEntry
	handlers.AssertJSONResponse(t, w, http.StatusCreated, &entry)
	assert.Equal(t, "192.0.2.9", gotKey)
	assert.Equal(t, models.ListBlacklist, gotType)
}

func TestAdminAddAccessListEntry_Invalid(t *testing.T) {
	h := handlers.NewAdminHandler(&handlers.MockAdminService{}, discardLogger())

	tests := []handlers.AccessListRequest{
		{ClientKey: "1.2.3.4", ListType: "greylist"},
		{ClientKey: "not-an-ip", ListType: "whitelist"},
		{ListType: "whitelist"},
	}

	for _, body := range tests {
		w := httptest.NewRecorder()
		h.AddAccessListEntry(w, handlers.NewTestRequest(t, "POST", "/v1/admin/access-list", body))
		handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	}
}

func TestAdminRemoveAccessListEntry(t *testing.T) {
	var gotKey string
	var gotType models.ListType
	svc := &handlers.MockAdminService{
		RemoveAccessListEntryFunc: func(ctx context.Context, actor, key string, listType models.ListType) error {
			gotKey, gotType = key, listType
			return nil
		},
	}
	h := handlers.NewAdminHandler(svc, discardLogger())

	req := httptest.NewRequest("DELETE", "/v1/admin/access-list/whitelist/10.0.0.1", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"listType": "whitelist", "clientKey": "10.0.0.1"})
	w := httptest.NewRecorder()
	h.RemoveAccessListEntry(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "10.0.0.1", gotKey)
	assert.Equal(t, models.ListWhitelist, gotType)
}

func TestAdminGetPolicy(t *testing.T) {
	svc := &handlers.MockAdminService{PolicyValue: models.DefaultPolicy()}
	h := handlers.NewAdminHandler(svc, discardLogger())

	w := httptest.NewRecorder()
	h.GetPolicy(w, httptest.NewRequest("GET", "/v1/admin/policy", nil))

	var p models.RateLimitPolicy
	handlers.AssertJSONResponse(t, w, http.StatusOK, &p)
	assert.Equal(t, models.DefaultPolicy(), p)
}
