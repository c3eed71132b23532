package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/services"
	"github.com/BradenHooton/loginguard/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminService(f *engineFixture) *services.AdminService {
	return services.NewAdminService(f.attempts, f.lists, f.engine, f.policy, logger.NewAuditLogger(testLogger()), testLogger())
}

func TestAdminService_ListClients_LimitClamped(t *testing.T) {
	var got models.ClientFilter
	store := &services.MockAttemptStore{
		ListClientsFunc: func(ctx context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error) {
			got = filter
			return []*models.ClientRecord{}, nil
		},
	}
	svc := services.NewAdminService(store, &services.MockAccessListStore{}, nil, services.NewMockPolicyProvider(basePolicy()),
		logger.NewAuditLogger(testLogger()), testLogger())

	_, err := svc.ListClients(context.Background(), models.ClientFilter{Limit: 0, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, services.DefaultPageSize, got.Limit)
	assert.Equal(t, 0, got.Offset)

	_, err = svc.ListClients(context.Background(), models.ClientFilter{Limit: 100000})
	require.NoError(t, err)
	assert.Equal(t, services.MaxPageSize, got.Limit)
}

func TestAdminService_ListClients_RejectsUnknownStatus(t *testing.T) {
	svc := newAdminService(newEngineFixture(t, basePolicy()))

	_, err := svc.ListClients(context.Background(), models.ClientFilter{Statuses: []models.AttemptStatus{"bogus"}})
	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestAdminService_GetClient(t *testing.T) {
	f := newEngineFixture(t, basePolicy())
	svc := newAdminService(f)
	ctx := context.Background()

	_, err := svc.GetClient(ctx, testKey)
	assert.ErrorIs(t, err, models.ErrNotFound)

	for i := 0; i < 3; i++ {
		f.fail(t)
	}

	view, err := svc.GetClient(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, view.Locked)
	assert.Equal(t, 3, view.TotalAttempts)
	assert.Equal(t, testStart.Add(30*time.Minute), *view.LockoutUntil)
}

func TestAdminService_DeleteDetailDecrements(t *testing.T) {
	f := newEngineFixture(t, basePolicy())
	svc := newAdminService(f)
	ctx := context.Background()

	f.fail(t)
	f.fail(t)
	client := f.client(t)

	details, err := svc.ListDetails(ctx, client.ID, models.DetailFilter{})
	require.NoError(t, err)
	require.Len(t, details, 2)

	require.NoError(t, svc.DeleteDetail(ctx, "admin", details[0].ID))
	assert.Equal(t, 1, f.client(t).TotalAttempts)

	assert.ErrorIs(t, svc.DeleteDetail(ctx, "admin", details[0].ID), models.ErrNotFound)
}

func TestAdminService_DeleteClient(t *testing.T) {
	f := newEngineFixture(t, basePolicy())
	svc := newAdminService(f)
	ctx := context.Background()

	f.fail(t)
	require.NoError(t, svc.DeleteClient(ctx, "admin", f.client(t).ID))

	c, err := f.attempts.FindClientByKey(ctx, testKey)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestAdminService_AccessList(t *testing.T) {
	f := newEngineFixture(t, basePolicy())
	svc := newAdminService(f)
	ctx := context.Background()

	_, err := svc.AddAccessListEntry(ctx, "admin", "not-an-ip", models.ListWhitelist)
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "client_key", ve.Field)

	_, err = svc.AddAccessListEntry(ctx, "admin", testKey, models.ListType("greylist"))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "list_type", ve.Field)

	entry, err := svc.AddAccessListEntry(ctx, "admin", "2001:db8::1", models.ListBlacklist)
	require.NoError(t, err)
	assert.Equal(t, models.ListBlacklist, entry.ListType)

	_, err = svc.AddAccessListEntry(ctx, "admin", "2001:db8::1", models.ListBlacklist)
	require.NoError(t, err, "adding twice is idempotent")

	entries, err := svc.ListAccessList(ctx, models.ListAny)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, svc.RemoveAccessListEntry(ctx, "admin", "2001:db8::1", models.ListBlacklist))
	assert.ErrorIs(t, svc.RemoveAccessListEntry(ctx, "admin", "2001:db8::1", models.ListBlacklist), models.ErrNotFound)

	_, err = svc.ListAccessList(ctx, models.ListType("greylist"))
	assert.Error(t, err)
}

func TestAdminService_Policy(t *testing.T) {
	f := newEngineFixture(t, basePolicy())
	svc := newAdminService(f)
	assert.Equal(t, 3, svc.Policy().MaxAttempts)
}
