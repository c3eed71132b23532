package services

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/policy"
	"github.com/BradenHooton/loginguard/pkg/logger"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// AttemptAdminStore adds the administrative operations to AttemptStore
type AttemptAdminStore interface {
	AttemptStore
	DeleteDetail(ctx context.Context, id string) error
	ListClients(ctx context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error)
	ListDetails(ctx context.Context, clientID string, filter models.DetailFilter) ([]*models.AttemptDetail, error)
	DeleteClient(ctx context.Context, id string) error
}

// AccessListAdminStore adds list management to AccessListStore
type AccessListAdminStore interface {
	AccessListStore
	Add(ctx context.Context, key string, listType models.ListType) (*models.AccessListEntry, error)
	Remove(ctx context.Context, key string, listType models.ListType) error
	List(ctx context.Context, listType models.ListType) ([]*models.AccessListEntry, error)
}

// ClientView is a client record together with its current lock state
type ClientView struct {
	*models.ClientRecord
	Locked       bool       `json:"locked"`
	LockoutUntil *time.Time `json:"lockout_until,omitempty"`
}

// AdminService backs the administrative API
type AdminService struct {
	attempts AttemptAdminStore
	lists    AccessListAdminStore
	engine   *LockoutEngine
	policy   policy.Provider
	audit    *logger.AuditLogger
	logger   *slog.Logger
}

// NewAdminService creates a new AdminService
func NewAdminService(
	attempts AttemptAdminStore,
	lists AccessListAdminStore,
	engine *LockoutEngine,
	provider policy.Provider,
	audit *logger.AuditLogger,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		attempts: attempts,
		lists:    lists,
		engine:   engine,
		policy:   provider,
		audit:    audit,
		logger:   logger,
	}
}

// clampPage applies the default page size and caps it at MaxPageSize
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func validateStatuses(statuses []models.AttemptStatus) error {
	for _, s := range statuses {
		if !s.Valid() {
			return &models.ValidationError{Field: "status", Message: "unknown status " + string(s)}
		}
	}
	return nil
}

// ListClients returns a page of client records, most recently active first
func (s *AdminService) ListClients(ctx context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error) {
	if err := validateStatuses(filter.Statuses); err != nil {
		return nil, err
	}
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)

	clients, err := s.attempts.ListClients(ctx, filter)
	if err != nil {
		s.logger.Error("admin: failed to list clients", slog.Any("error", err))
		return nil, err
	}
	return clients, nil
}

// GetClient returns the record for a client key along with its lock state
func (s *AdminService) GetClient(ctx context.Context, key string) (*ClientView, error) {
	client, err := s.attempts.FindClientByKey(ctx, key)
	if err != nil {
		s.logger.Error("admin: failed to load client", slog.Any("error", err))
		return nil, err
	}
	if client == nil {
		return nil, models.ErrNotFound
	}

	until, err := s.engine.EffectiveLockoutUntil(ctx, key)
	if err != nil {
		return nil, err
	}
	return &ClientView{ClientRecord: client, Locked: until != nil, LockoutUntil: until}, nil
}

// ListDetails returns a page of a client's attempt details, newest first
func (s *AdminService) ListDetails(ctx context.Context, clientID string, filter models.DetailFilter) ([]*models.AttemptDetail, error) {
	if err := validateStatuses(filter.Statuses); err != nil {
		return nil, err
	}
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)

	details, err := s.attempts.ListDetails(ctx, clientID, filter)
	if err != nil {
		s.logger.Error("admin: failed to list attempt details", slog.Any("error", err))
		return nil, err
	}
	return details, nil
}

// DeleteDetail removes one attempt detail; the owning client's counter drops by one
func (s *AdminService) DeleteDetail(ctx context.Context, actor, id string) error {
	if err := s.attempts.DeleteDetail(ctx, id); err != nil {
		return err
	}
	s.audit.LogAdminAction("attempt_detail_deleted", actor, "", map[string]string{"detail_id": id})
	return nil
}

// DeleteClient removes a client and its whole attempt history
func (s *AdminService) DeleteClient(ctx context.Context, actor, id string) error {
	if err := s.attempts.DeleteClient(ctx, id); err != nil {
		return err
	}
	s.audit.LogAdminAction("client_deleted", actor, "", map[string]string{"client_id": id})
	return nil
}

// AddAccessListEntry puts key on a list. Adding an existing entry is not an error.
func (s *AdminService) AddAccessListEntry(ctx context.Context, actor, key string, listType models.ListType) (*models.AccessListEntry, error) {
	if err := validateAccessListInput(key, listType); err != nil {
		return nil, err
	}

	entry, err := s.lists.Add(ctx, key, listType)
	if err != nil {
		s.logger.Error("admin: failed to add access list entry", slog.Any("error", err))
		return nil, err
	}
	s.audit.LogAdminAction("access_list_added", actor, key, map[string]string{"list_type": string(listType)})
	return entry, nil
}

// RemoveAccessListEntry takes key off a list
func (s *AdminService) RemoveAccessListEntry(ctx context.Context, actor, key string, listType models.ListType) error {
	if err := validateAccessListInput(key, listType); err != nil {
		return err
	}

	if err := s.lists.Remove(ctx, key, listType); err != nil {
		return err
	}
	s.audit.LogAdminAction("access_list_removed", actor, key, map[string]string{"list_type": string(listType)})
	return nil
}

// ListAccessList returns the entries of one list, or of both for models.ListAny
func (s *AdminService) ListAccessList(ctx context.Context, listType models.ListType) ([]*models.AccessListEntry, error) {
	if listType != models.ListAny && !listType.Valid() {
		return nil, &models.ValidationError{Field: "list_type", Message: "must be whitelist or blacklist"}
	}
	return s.lists.List(ctx, listType)
}

// Policy returns the active policy snapshot
func (s *AdminService) Policy() models.RateLimitPolicy {
	return s.policy.Current()
}

func validateAccessListInput(key string, listType models.ListType) error {
	if !listType.Valid() {
		return &models.ValidationError{Field: "list_type", Message: "must be whitelist or blacklist"}
	}
	if net.ParseIP(key) == nil {
		return &models.ValidationError{Field: "client_key", Message: "must be an IP address"}
	}
	return nil
}
