package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// attemptStore mirrors the interface the lockout engine consumes, plus the
// administrative operations every backend implements.
type attemptStore interface {
	FindClientByKey(ctx context.Context, key string) (*models.ClientRecord, error)
	CreateClient(ctx context.Context, key string, status models.AttemptStatus, attempts int) (*models.ClientRecord, error)
	UpdateClient(ctx context.Context, id string, update models.ClientUpdate) error
	AppendDetail(ctx context.Context, detail *models.AttemptDetail) (*models.AttemptDetail, error)
	RecordAttempt(ctx context.Context, detail *models.AttemptDetail, update models.ClientUpdate) (*models.AttemptDetail, error)
	LatestLockedDetail(ctx context.Context, clientID string) (*models.AttemptDetail, error)
	CountFailuresSince(ctx context.Context, clientID string, since time.Time) (int, error)
	DeleteDetail(ctx context.Context, id string) error
	ListClients(ctx context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error)
	ListDetails(ctx context.Context, clientID string, filter models.DetailFilter) ([]*models.AttemptDetail, error)
	DeleteClient(ctx context.Context, id string) error
	PurgeInactiveClients(ctx context.Context, before, now time.Time) (int64, error)
}

type accessListStore interface {
	Exists(ctx context.Context, key string, listType models.ListType) (bool, error)
	Add(ctx context.Context, key string, listType models.ListType) (*models.AccessListEntry, error)
	Remove(ctx context.Context, key string, listType models.ListType) error
	List(ctx context.Context, listType models.ListType) ([]*models.AccessListEntry, error)
}

func timePtr(t time.Time) *time.Time { return &t }

func runAttemptStoreContract(t *testing.T, newStore func(t *testing.T) attemptStore) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	t.Run("FindClientByKey_Unknown", func(t *testing.T) {
		store := newStore(t)
		c, err := store.FindClientByKey(ctx, "203.0.113.1")
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("CreateClient_Conflict", func(t *testing.T) {
		store := newStore(t)
		c, err := store.CreateClient(ctx, "203.0.113.2", models.StatusFail, 1)
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, 1, c.TotalAttempts)

		_, err = store.CreateClient(ctx, "203.0.113.2", models.StatusFail, 1)
		assert.ErrorIs(t, err, models.ErrConflict)

		found, err := store.FindClientByKey(ctx, "203.0.113.2")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, c.ID, found.ID)
		assert.Equal(t, models.StatusFail, found.CurrentStatus)
	})

	t.Run("UpdateClient_IncrementAndStatus", func(t *testing.T) {
		store := newStore(t)
		c, err := store.CreateClient(ctx, "203.0.113.3", models.StatusFail, 1)
		require.NoError(t, err)

		locked := models.StatusLocked
		require.NoError(t, store.UpdateClient(ctx, c.ID, models.ClientUpdate{Status: &locked, AttemptsDelta: 1}))
		require.NoError(t, store.UpdateClient(ctx, c.ID, models.ClientUpdate{AttemptsDelta: 1}))

		found, err := store.FindClientByKey(ctx, "203.0.113.3")
		require.NoError(t, err)
		assert.Equal(t, models.StatusLocked, found.CurrentStatus)
		assert.Equal(t, 3, found.TotalAttempts)

		// counter is floored at zero
		require.NoError(t, store.UpdateClient(ctx, c.ID, models.ClientUpdate{AttemptsDelta: -10}))
		found, err = store.FindClientByKey(ctx, "203.0.113.3")
		require.NoError(t, err)
		assert.Equal(t, 0, found.TotalAttempts)
	})

	t.Run("UpdateClient_Missing", func(t *testing.T) {
		store := newStore(t)
		err := store.UpdateClient(ctx, "00000000-0000-0000-0000-000000000000", models.ClientUpdate{AttemptsDelta: 1})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("RecordAttempt_UpdatesClientAndAppends", func(t *testing.T) {
		store := newStore(t)
		c, err := store.CreateClient(ctx, "203.0.113.30", models.StatusFail, 0)
		require.NoError(t, err)

		locked := models.StatusLocked
		saved, err := store.RecordAttempt(ctx, &models.AttemptDetail{
			ClientRecordID: c.ID,
			Status:         models.StatusLocked,
			LockoutUntil:   timePtr(base.Add(time.Hour)),
			AttemptTime:    base,
		}, models.ClientUpdate{Status: &locked, AttemptsDelta: 1})
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)

		found, err := store.FindClientByKey(ctx, "203.0.113.30")
		require.NoError(t, err)
		assert.Equal(t, models.StatusLocked, found.CurrentStatus)
		assert.Equal(t, 1, found.TotalAttempts)

		details, err := store.ListDetails(ctx, c.ID, models.DetailFilter{Limit: 10})
		require.NoError(t, err)
		require.Len(t, details, 1)
		assert.Equal(t, saved.ID, details[0].ID)
	})

	t.Run("RecordAttempt_MissingClientWritesNothing", func(t *testing.T) {
		store := newStore(t)
		missing := "00000000-0000-0000-0000-000000000000"

		_, err := store.RecordAttempt(ctx, &models.AttemptDetail{
			ClientRecordID: missing,
			Status:         models.StatusFail,
			AttemptTime:    base,
		}, models.ClientUpdate{AttemptsDelta: 1})
		assert.ErrorIs(t, err, models.ErrNotFound)

		details, err := store.ListDetails(ctx, missing, models.DetailFilter{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, details)
	})

	t.Run("CountFailuresSince_ExclusiveBound", func(t *testing.T) {
		store := newStore(t)
		c, err := store.CreateClient(ctx, "203.0.113.4", models.StatusFail, 0)
		require.NoError(t, err)

		for _, offset := range []time.Duration{-20 * time.Minute, -15 * time.Minute, -5 * time.Minute, -1 * time.Minute} {
			_, err := store.AppendDetail(ctx, &models.AttemptDetail{
				ClientRecordID: c.ID,
				Status:         models.StatusFail,
				AttemptTime:    base.Add(offset),
			})
			require.NoError(t, err)
		}
		_, err = store.AppendDetail(ctx, &models.AttemptDetail{
			ClientRecordID: c.ID,
			Status:         models.StatusSuccess,
			AttemptTime:    base.Add(-30 * time.Second),
		})
		require.NoError(t, err)

		count, err := store.CountFailuresSince(ctx, c.ID, base.Add(-15*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 2, count, "a failure exactly at the window start is outside the window")
	})

	t.Run("LatestLockedDetail", func(t *testing.T) {
		store := newStore(t)
		c, err := store.CreateClient(ctx, "203.0.113.5", models.StatusFail, 0)
		require.NoError(t, err)

		none, err := store.LatestLockedDetail(ctx, c.ID)
		require.NoError(t, err)
		assert.Nil(t, none)

		_, err = store.AppendDetail(ctx, &models.AttemptDetail{
			ClientRecordID: c.ID,
			Status:         models.StatusLocked,
			LockoutUntil:   timePtr(base.Add(10 * time.Minute)),
			AttemptTime:    base.Add(-2 * time.Minute),
		})
		require.NoError(t, err)
		newest, err := store.AppendDetail(ctx, &models.AttemptDetail{
			ClientRecordID: c.ID,
			Username:       models.StringPtr("alice"),
			Status:         models.StatusLocked,
			IsExtended:     true,
			LockoutUntil:   timePtr(base.Add(2 * time.Hour)),
			UserAgent:      "curl/8.0",
			AttemptTime:    base.Add(-1 * time.Minute),
		})
		require.NoError(t, err)

		latest, err := store.LatestLockedDetail(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, newest.ID, latest.ID)
		assert.True(t, latest.IsExtended)
		require.NotNil(t, latest.Username)
		assert.Equal(t, "alice", *latest.Username)
		assert.Nil(t, latest.UserID)
		assert.Equal(t, "curl/8.0", latest.UserAgent)
		require.NotNil(t, latest.LockoutUntil)
		assert.WithinDuration(t, base.Add(2*time.Hour), *latest.LockoutUntil, time.Millisecond)
		assert.True(t, latest.ActiveAt(base))
	})

	t.Run("DeleteDetail_DecrementsCounter", func(t *testing.T) {
		store := newStore(t)
		c, err := store.CreateClient(ctx, "203.0.113.6", models.StatusFail, 2)
		require.NoError(t, err)

		d1, err := store.AppendDetail(ctx, &models.AttemptDetail{ClientRecordID: c.ID, Status: models.StatusFail, AttemptTime: base.Add(-time.Minute)})
		require.NoError(t, err)
		_, err = store.AppendDetail(ctx, &models.AttemptDetail{ClientRecordID: c.ID, Status: models.StatusFail, AttemptTime: base})
		require.NoError(t, err)

		require.NoError(t, store.DeleteDetail(ctx, d1.ID))

		found, err := store.FindClientByKey(ctx, "203.0.113.6")
		require.NoError(t, err)
		assert.Equal(t, 1, found.TotalAttempts)

		details, err := store.ListDetails(ctx, c.ID, models.DetailFilter{Limit: 10})
		require.NoError(t, err)
		assert.Len(t, details, 1)

		assert.ErrorIs(t, store.DeleteDetail(ctx, d1.ID), models.ErrNotFound)
	})

	t.Run("ListDetails_FilterAndOrder", func(t *testing.T) {
		store := newStore(t)
		c, err := store.CreateClient(ctx, "203.0.113.7", models.StatusFail, 0)
		require.NoError(t, err)

		statuses := []models.AttemptStatus{models.StatusFail, models.StatusSuccess, models.StatusFail}
		for i, s := range statuses {
			_, err := store.AppendDetail(ctx, &models.AttemptDetail{
				ClientRecordID: c.ID,
				Status:         s,
				AttemptTime:    base.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}

		all, err := store.ListDetails(ctx, c.ID, models.DetailFilter{Limit: 10})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.True(t, all[0].AttemptTime.After(all[1].AttemptTime))

		fails, err := store.ListDetails(ctx, c.ID, models.DetailFilter{Statuses: []models.AttemptStatus{models.StatusFail}, Limit: 10})
		require.NoError(t, err)
		assert.Len(t, fails, 2)

		page, err := store.ListDetails(ctx, c.ID, models.DetailFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, models.StatusSuccess, page[0].Status)
	})

	t.Run("ListClients_StatusFilter", func(t *testing.T) {
		store := newStore(t)
		_, err := store.CreateClient(ctx, "198.51.100.1", models.StatusFail, 1)
		require.NoError(t, err)
		_, err = store.CreateClient(ctx, "198.51.100.2", models.StatusLocked, 5)
		require.NoError(t, err)

		locked, err := store.ListClients(ctx, models.ClientFilter{Statuses: []models.AttemptStatus{models.StatusLocked}, Limit: 10})
		require.NoError(t, err)
		require.Len(t, locked, 1)
		assert.Equal(t, "198.51.100.2", locked[0].ClientKey)

		all, err := store.ListClients(ctx, models.ClientFilter{Limit: 10})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("DeleteClient_Cascades", func(t *testing.T) {
		store := newStore(t)
		c, err := store.CreateClient(ctx, "198.51.100.3", models.StatusFail, 1)
		require.NoError(t, err)
		_, err = store.AppendDetail(ctx, &models.AttemptDetail{ClientRecordID: c.ID, Status: models.StatusFail, AttemptTime: base})
		require.NoError(t, err)

		require.NoError(t, store.DeleteClient(ctx, c.ID))

		found, err := store.FindClientByKey(ctx, "198.51.100.3")
		require.NoError(t, err)
		assert.Nil(t, found)

		details, err := store.ListDetails(ctx, c.ID, models.DetailFilter{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, details)

		assert.ErrorIs(t, store.DeleteClient(ctx, c.ID), models.ErrNotFound)
	})

	t.Run("PurgeInactiveClients_KeepsActiveLocks", func(t *testing.T) {
		store := newStore(t)
		idle, err := store.CreateClient(ctx, "198.51.100.4", models.StatusFail, 1)
		require.NoError(t, err)
		_, err = store.AppendDetail(ctx, &models.AttemptDetail{ClientRecordID: idle.ID, Status: models.StatusFail, AttemptTime: base})
		require.NoError(t, err)

		locked, err := store.CreateClient(ctx, "198.51.100.5", models.StatusLocked, 1)
		require.NoError(t, err)
		_, err = store.AppendDetail(ctx, &models.AttemptDetail{
			ClientRecordID: locked.ID,
			Status:         models.StatusLocked,
			LockoutUntil:   timePtr(time.Now().Add(time.Hour)),
			AttemptTime:    base,
		})
		require.NoError(t, err)

		// every record was touched before this cutoff
		cutoff := time.Now().Add(time.Minute)
		purged, err := store.PurgeInactiveClients(ctx, cutoff, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), purged)

		gone, err := store.FindClientByKey(ctx, "198.51.100.4")
		require.NoError(t, err)
		assert.Nil(t, gone)

		kept, err := store.FindClientByKey(ctx, "198.51.100.5")
		require.NoError(t, err)
		assert.NotNil(t, kept)
	})
}

func runAccessListContract(t *testing.T, newStore func(t *testing.T) accessListStore) {
	ctx := context.Background()

	t.Run("AddIsIdempotent", func(t *testing.T) {
		store := newStore(t)
		first, err := store.Add(ctx, "192.0.2.10", models.ListWhitelist)
		require.NoError(t, err)
		second, err := store.Add(ctx, "192.0.2.10", models.ListWhitelist)
		require.NoError(t, err)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

		entries, err := store.List(ctx, models.ListWhitelist)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("ExistsByList", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Add(ctx, "192.0.2.11", models.ListBlacklist)
		require.NoError(t, err)

		onBlack, err := store.Exists(ctx, "192.0.2.11", models.ListBlacklist)
		require.NoError(t, err)
		assert.True(t, onBlack)

		onWhite, err := store.Exists(ctx, "192.0.2.11", models.ListWhitelist)
		require.NoError(t, err)
		assert.False(t, onWhite)

		onAny, err := store.Exists(ctx, "192.0.2.11", models.ListAny)
		require.NoError(t, err)
		assert.True(t, onAny)

		unknown, err := store.Exists(ctx, "192.0.2.99", models.ListAny)
		require.NoError(t, err)
		assert.False(t, unknown)
	})

	t.Run("SameKeyOnBothLists", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Add(ctx, "192.0.2.12", models.ListWhitelist)
		require.NoError(t, err)
		_, err = store.Add(ctx, "192.0.2.12", models.ListBlacklist)
		require.NoError(t, err)

		all, err := store.List(ctx, models.ListAny)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("Remove", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Add(ctx, "192.0.2.13", models.ListWhitelist)
		require.NoError(t, err)

		require.NoError(t, store.Remove(ctx, "192.0.2.13", models.ListWhitelist))
		assert.ErrorIs(t, store.Remove(ctx, "192.0.2.13", models.ListWhitelist), models.ErrNotFound)

		exists, err := store.Exists(ctx, "192.0.2.13", models.ListAny)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}
