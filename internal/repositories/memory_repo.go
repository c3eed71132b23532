package repositories

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/google/uuid"
)

// MemoryAttemptRepository keeps attempt data in process memory. It backs
// tests and single-process deployments that can afford to lose state on restart.
type MemoryAttemptRepository struct {
	mu      sync.RWMutex
	clients map[string]*models.ClientRecord   // by id
	byKey   map[string]string                 // client key -> id
	details map[string][]*models.AttemptDetail // client id -> details in insertion order
}

// NewMemoryAttemptRepository creates an empty MemoryAttemptRepository
func NewMemoryAttemptRepository() *MemoryAttemptRepository {
	return &MemoryAttemptRepository{
		clients: make(map[string]*models.ClientRecord),
		byKey:   make(map[string]string),
		details: make(map[string][]*models.AttemptDetail),
	}
}

func copyClient(c *models.ClientRecord) *models.ClientRecord {
	cp := *c
	return &cp
}

func copyDetail(d *models.AttemptDetail) *models.AttemptDetail {
	cp := *d
	if d.Username != nil {
		u := *d.Username
		cp.Username = &u
	}
	if d.UserID != nil {
		u := *d.UserID
		cp.UserID = &u
	}
	if d.LockoutUntil != nil {
		t := *d.LockoutUntil
		cp.LockoutUntil = &t
	}
	return &cp
}

func (r *MemoryAttemptRepository) FindClientByKey(_ context.Context, key string) (*models.ClientRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[key]
	if !ok {
		return nil, nil
	}
	return copyClient(r.clients[id]), nil
}

func (r *MemoryAttemptRepository) CreateClient(_ context.Context, key string, status models.AttemptStatus, attempts int) (*models.ClientRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[key]; ok {
		return nil, models.ErrConflict
	}

	now := time.Now()
	c := &models.ClientRecord{
		ID:            uuid.NewString(),
		ClientKey:     key,
		CurrentStatus: status,
		TotalAttempts: attempts,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.clients[c.ID] = c
	r.byKey[key] = c.ID
	return copyClient(c), nil
}

func applyUpdate(c *models.ClientRecord, update models.ClientUpdate) {
	if update.Status != nil {
		c.CurrentStatus = *update.Status
	}
	c.TotalAttempts = max(c.TotalAttempts+update.AttemptsDelta, 0)
	c.UpdatedAt = time.Now()
}

// appendLocked stores a copy of detail; r.mu must be held for writing
func (r *MemoryAttemptRepository) appendLocked(detail *models.AttemptDetail) *models.AttemptDetail {
	saved := copyDetail(detail)
	saved.ID = uuid.NewString()
	if saved.AttemptTime.IsZero() {
		saved.AttemptTime = time.Now()
	}
	r.details[saved.ClientRecordID] = append(r.details[saved.ClientRecordID], saved)
	return copyDetail(saved)
}

func (r *MemoryAttemptRepository) UpdateClient(_ context.Context, id string, update models.ClientUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return models.ErrNotFound
	}
	applyUpdate(c, update)
	return nil
}

func (r *MemoryAttemptRepository) AppendDetail(_ context.Context, detail *models.AttemptDetail) (*models.AttemptDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[detail.ClientRecordID]; !ok {
		return nil, models.NewStorageError("append detail", models.ErrNotFound)
	}
	return r.appendLocked(detail), nil
}

func (r *MemoryAttemptRepository) RecordAttempt(_ context.Context, detail *models.AttemptDetail, update models.ClientUpdate) (*models.AttemptDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[detail.ClientRecordID]
	if !ok {
		return nil, models.ErrNotFound
	}
	applyUpdate(c, update)
	return r.appendLocked(detail), nil
}

func (r *MemoryAttemptRepository) LatestLockedDetail(_ context.Context, clientID string) (*models.AttemptDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.AttemptDetail
	for _, d := range r.details[clientID] {
		if d.Status != models.StatusLocked {
			continue
		}
		// ties go to the later insert
		if latest == nil || !d.AttemptTime.Before(latest.AttemptTime) {
			latest = d
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyDetail(latest), nil
}

func (r *MemoryAttemptRepository) CountFailuresSince(_ context.Context, clientID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, d := range r.details[clientID] {
		if d.Status == models.StatusFail && d.AttemptTime.After(since) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryAttemptRepository) DeleteDetail(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for clientID, list := range r.details {
		for i, d := range list {
			if d.ID != id {
				continue
			}
			r.details[clientID] = slices.Delete(list, i, i+1)
			if c, ok := r.clients[clientID]; ok {
				c.TotalAttempts = max(c.TotalAttempts-1, 0)
				c.UpdatedAt = time.Now()
			}
			return nil
		}
	}
	return models.ErrNotFound
}

func (r *MemoryAttemptRepository) ListClients(_ context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*models.ClientRecord, 0, len(r.clients))
	for _, c := range r.clients {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, c.CurrentStatus) {
			continue
		}
		clients = append(clients, copyClient(c))
	}
	sort.SliceStable(clients, func(i, j int) bool {
		return clients[i].UpdatedAt.After(clients[j].UpdatedAt)
	})
	return paginate(clients, filter.Limit, filter.Offset), nil
}

func (r *MemoryAttemptRepository) ListDetails(_ context.Context, clientID string, filter models.DetailFilter) ([]*models.AttemptDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.details[clientID]
	details := make([]*models.AttemptDetail, 0, len(list))
	// newest first; walking backwards keeps insertion order for equal timestamps
	for i := len(list) - 1; i >= 0; i-- {
		d := list[i]
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, d.Status) {
			continue
		}
		details = append(details, copyDetail(d))
	}
	sort.SliceStable(details, func(i, j int) bool {
		return details[i].AttemptTime.After(details[j].AttemptTime)
	})
	return paginate(details, filter.Limit, filter.Offset), nil
}

func (r *MemoryAttemptRepository) DeleteClient(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return models.ErrNotFound
	}
	delete(r.byKey, c.ClientKey)
	delete(r.clients, id)
	delete(r.details, id)
	return nil
}

func (r *MemoryAttemptRepository) PurgeInactiveClients(_ context.Context, before, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for id, c := range r.clients {
		if !c.UpdatedAt.Before(before) {
			continue
		}
		if slices.ContainsFunc(r.details[id], func(d *models.AttemptDetail) bool { return d.ActiveAt(now) }) {
			continue
		}
		delete(r.byKey, c.ClientKey)
		delete(r.clients, id)
		delete(r.details, id)
		purged++
	}
	return purged, nil
}

// paginate applies LIMIT/OFFSET semantics; a non-positive limit returns everything after offset
func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// MemoryAccessListRepository keeps access lists in process memory
type MemoryAccessListRepository struct {
	mu      sync.RWMutex
	entries map[models.ListType]map[string]time.Time
}

// NewMemoryAccessListRepository creates an empty MemoryAccessListRepository
func NewMemoryAccessListRepository() *MemoryAccessListRepository {
	return &MemoryAccessListRepository{
		entries: map[models.ListType]map[string]time.Time{
			models.ListWhitelist: {},
			models.ListBlacklist: {},
		},
	}
}

func (r *MemoryAccessListRepository) Exists(_ context.Context, key string, listType models.ListType) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for lt, keys := range r.entries {
		if listType != models.ListAny && lt != listType {
			continue
		}
		if _, ok := keys[key]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryAccessListRepository) Add(_ context.Context, key string, listType models.ListType) (*models.AccessListEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, ok := r.entries[listType]
	if !ok {
		return nil, models.ErrBadRequest
	}
	created, ok := keys[key]
	if !ok {
		created = time.Now()
		keys[key] = created
	}
	return &models.AccessListEntry{ClientKey: key, ListType: listType, CreatedAt: created}, nil
}

func (r *MemoryAccessListRepository) Remove(_ context.Context, key string, listType models.ListType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, ok := r.entries[listType]
	if !ok {
		return models.ErrNotFound
	}
	if _, ok := keys[key]; !ok {
		return models.ErrNotFound
	}
	delete(keys, key)
	return nil
}

func (r *MemoryAccessListRepository) List(_ context.Context, listType models.ListType) ([]*models.AccessListEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*models.AccessListEntry, 0)
	for lt, keys := range r.entries {
		if listType != models.ListAny && lt != listType {
			continue
		}
		for key, created := range keys {
			entries = append(entries, &models.AccessListEntry{ClientKey: key, ListType: lt, CreatedAt: created})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ClientKey < entries[j].ClientKey
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}
