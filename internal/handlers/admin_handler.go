package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/services"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AdminServiceInterface defines the administrative service contract
type AdminServiceInterface interface {
	ListClients(ctx context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error)
	GetClient(ctx context.Context, key string) (*services.ClientView, error)
	ListDetails(ctx context.Context, clientID string, filter models.DetailFilter) ([]*models.AttemptDetail, error)
	DeleteDetail(ctx context.Context, actor, id string) error
	DeleteClient(ctx context.Context, actor, id string) error
	AddAccessListEntry(ctx context.Context, actor, key string, listType models.ListType) (*models.AccessListEntry, error)
	RemoveAccessListEntry(ctx context.Context, actor, key string, listType models.ListType) error
	ListAccessList(ctx context.Context, listType models.ListType) ([]*models.AccessListEntry, error)
	Policy() models.RateLimitPolicy
}

// AdminHandler handles administrative HTTP requests
type AdminHandler struct {
	service AdminServiceInterface
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(service AdminServiceInterface, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: service, logger: logger}
}

// AccessListRequest adds a client key to a list
type AccessListRequest struct {
	ClientKey string `json:"client_key" validate:"required,ip"`
	ListType  string `json:"list_type" validate:"required,oneof=whitelist blacklist"`
}

// PageResponse wraps a page of results
type PageResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// parsePaging reads ?limit=&offset=. Invalid values fall back to the defaults.
func parsePaging(r *http.Request) (int, int) {
	limit := services.DefaultPageSize
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, services.MaxPageSize)
		}
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// parseStatuses reads ?status=locked,fail
func parseStatuses(r *http.Request) []models.AttemptStatus {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil
	}

	var statuses []models.AttemptStatus
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, models.AttemptStatus(strings.ToLower(s)))
		}
	}
	return statuses
}

// ListClients handles GET /v1/admin/clients
func (h *AdminHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaging(r)

	clients, err := h.service.ListClients(r.Context(), models.ClientFilter{
		Statuses: parseStatuses(r),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, PageResponse[*models.ClientRecord]{Items: clients, Limit: limit, Offset: offset})
}

// LookupClient handles GET /v1/admin/clients/lookup?client_key=
func (h *AdminHandler) LookupClient(w http.ResponseWriter, r *http.Request) {
	key, ok := pkghttp.NormalizeClientKey(r.URL.Query().Get("client_key"))
	if !ok {
		pkghttp.WriteBadRequest(w, "client_key must be a valid IP address")
		return
	}

	view, err := h.service.GetClient(r.Context(), key)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, view)
}

// ListDetails handles GET /v1/admin/clients/{id}/details
func (h *AdminHandler) ListDetails(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "id")
	limit, offset := parsePaging(r)

	details, err := h.service.ListDetails(r.Context(), clientID, models.DetailFilter{
		Statuses: parseStatuses(r),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, PageResponse[*models.AttemptDetail]{Items: details, Limit: limit, Offset: offset})
}

// DeleteClient handles DELETE /v1/admin/clients/{id}
func (h *AdminHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteClient(r.Context(), auth.ActorFromRequest(r), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteDetail handles DELETE /v1/admin/details/{id}
func (h *AdminHandler) DeleteDetail(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteDetail(r.Context(), auth.ActorFromRequest(r), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAccessList handles GET /v1/admin/access-list?list_type=
func (h *AdminHandler) ListAccessList(w http.ResponseWriter, r *http.Request) {
	listType := models.ListType(r.URL.Query().Get("list_type"))

	entries, err := h.service.ListAccessList(r.Context(), listType)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"items": entries})
}

// AddAccessListEntry handles POST /v1/admin/access-list
func (h *AdminHandler) AddAccessListEntry(w http.ResponseWriter, r *http.Request) {
	var req AccessListRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	key, _ := pkghttp.NormalizeClientKey(req.ClientKey)

	entry, err := h.service.AddAccessListEntry(r.Context(), auth.ActorFromRequest(r), key, models.ListType(req.ListType))
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, entry)
}

// RemoveAccessListEntry handles DELETE /v1/admin/access-list/{listType}/{clientKey}
func (h *AdminHandler) RemoveAccessListEntry(w http.ResponseWriter, r *http.Request) {
	key, ok := pkghttp.NormalizeClientKey(chi.URLParam(r, "clientKey"))
	if !ok {
		pkghttp.WriteBadRequest(w, "client key must be a valid IP address")
		return
	}

	err := h.service.RemoveAccessListEntry(r.Context(), auth.ActorFromRequest(r), key, models.ListType(chi.URLParam(r, "listType")))
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPolicy handles GET /v1/admin/policy
func (h *AdminHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.service.Policy())
}
