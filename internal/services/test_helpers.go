package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
)

// MockAttemptStore implements AttemptAdminStore for testing
type MockAttemptStore struct {
	FindClientByKeyFunc    func(ctx context.Context, key string) (*models.ClientRecord, error)
	CreateClientFunc       func(ctx context.Context, key string, status models.AttemptStatus, attempts int) (*models.ClientRecord, error)
	UpdateClientFunc       func(ctx context.Context, id string, update models.ClientUpdate) error
	RecordAttemptFunc      func(ctx context.Context, detail *models.AttemptDetail, update models.ClientUpdate) (*models.AttemptDetail, error)
	LatestLockedDetailFunc func(ctx context.Context, clientID string) (*models.AttemptDetail, error)
	CountFailuresSinceFunc func(ctx context.Context, clientID string, since time.Time) (int, error)
	DeleteDetailFunc       func(ctx context.Context, id string) error
	ListClientsFunc        func(ctx context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error)
	ListDetailsFunc        func(ctx context.Context, clientID string, filter models.DetailFilter) ([]*models.AttemptDetail, error)
	DeleteClientFunc       func(ctx context.Context, id string) error
}

func (m *MockAttemptStore) FindClientByKey(ctx context.Context, key string) (*models.ClientRecord, error) {
	if m.FindClientByKeyFunc != nil {
		return m.FindClientByKeyFunc(ctx, key)
	}
	return nil, nil
}

func (m *MockAttemptStore) CreateClient(ctx context.Context, key string, status models.AttemptStatus, attempts int) (*models.ClientRecord, error) {
	if m.CreateClientFunc != nil {
		return m.CreateClientFunc(ctx, key, status, attempts)
	}
	return &models.ClientRecord{ID: "client-1", ClientKey: key, CurrentStatus: status, TotalAttempts: attempts}, nil
}

func (m *MockAttemptStore) UpdateClient(ctx context.Context, id string, update models.ClientUpdate) error {
	if m.UpdateClientFunc != nil {
		return m.UpdateClientFunc(ctx, id, update)
	}
	return nil
}

// RecordAttempt defaults to UpdateClient followed by a stored copy of detail
func (m *MockAttemptStore) RecordAttempt(ctx context.Context, detail *models.AttemptDetail, update models.ClientUpdate) (*models.AttemptDetail, error) {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, detail, update)
	}
	if err := m.UpdateClient(ctx, detail.ClientRecordID, update); err != nil {
		return nil, err
	}
	saved := *detail
	saved.ID = "detail-1"
	return &saved, nil
}

func (m *MockAttemptStore) LatestLockedDetail(ctx context.Context, clientID string) (*models.AttemptDetail, error) {
	if m.LatestLockedDetailFunc != nil {
		return m.LatestLockedDetailFunc(ctx, clientID)
	}
	return nil, nil
}

func (m *MockAttemptStore) CountFailuresSince(ctx context.Context, clientID string, since time.Time) (int, error) {
	if m.CountFailuresSinceFunc != nil {
		return m.CountFailuresSinceFunc(ctx, clientID, since)
	}
	return 0, nil
}

func (m *MockAttemptStore) DeleteDetail(ctx context.Context, id string) error {
	if m.DeleteDetailFunc != nil {
		return m.DeleteDetailFunc(ctx, id)
	}
	return nil
}

func (m *MockAttemptStore) ListClients(ctx context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error) {
	if m.ListClientsFunc != nil {
		return m.ListClientsFunc(ctx, filter)
	}
	return []*models.ClientRecord{}, nil
}

func (m *MockAttemptStore) ListDetails(ctx context.Context, clientID string, filter models.DetailFilter) ([]*models.AttemptDetail, error) {
	if m.ListDetailsFunc != nil {
		return m.ListDetailsFunc(ctx, clientID, filter)
	}
	return []*models.AttemptDetail{}, nil
}

func (m *MockAttemptStore) DeleteClient(ctx context.Context, id string) error {
	if m.DeleteClientFunc != nil {
		return m.DeleteClientFunc(ctx, id)
	}
	return nil
}

// MockAccessListStore implements AccessListAdminStore for testing
type MockAccessListStore struct {
	ExistsFunc func(ctx context.Context, key string, listType models.ListType) (bool, error)
	AddFunc    func(ctx context.Context, key string, listType models.ListType) (*models.AccessListEntry, error)
	RemoveFunc func(ctx context.Context, key string, listType models.ListType) error
	ListFunc   func(ctx context.Context, listType models.ListType) ([]*models.AccessListEntry, error)
}

func (m *MockAccessListStore) Exists(ctx context.Context, key string, listType models.ListType) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, key, listType)
	}
	return false, nil
}

func (m *MockAccessListStore) Add(ctx context.Context, key string, listType models.ListType) (*models.AccessListEntry, error) {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, key, listType)
	}
	return &models.AccessListEntry{ClientKey: key, ListType: listType, CreatedAt: time.Now()}, nil
}

func (m *MockAccessListStore) Remove(ctx context.Context, key string, listType models.ListType) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, key, listType)
	}
	return nil
}

func (m *MockAccessListStore) List(ctx context.Context, listType models.ListType) ([]*models.AccessListEntry, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, listType)
	}
	return []*models.AccessListEntry{}, nil
}

// MockNotifier records every lockout event it receives
type MockNotifier struct {
	mu     sync.Mutex
	Events []LockoutEvent
	Err    error
}

func (m *MockNotifier) NotifyLockout(_ context.Context, event LockoutEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return m.Err
}

// Received returns a copy of the recorded events
func (m *MockNotifier) Received() []LockoutEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LockoutEvent(nil), m.Events...)
}

// MockPolicyProvider is a policy.Provider whose snapshot can be swapped mid-test
type MockPolicyProvider struct {
	mu     sync.RWMutex
	policy models.RateLimitPolicy
}

func NewMockPolicyProvider(p models.RateLimitPolicy) *MockPolicyProvider {
	return &MockPolicyProvider{policy: p}
}

func (m *MockPolicyProvider) Current() models.RateLimitPolicy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

func (m *MockPolicyProvider) Set(p models.RateLimitPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = p
}

// FakeClock is a manually advanced time source for WithClock
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
