package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
)

// SQLiteAccessListRepository stores whitelist/blacklist membership in SQLite
type SQLiteAccessListRepository struct {
	db *sql.DB
}

// NewSQLiteAccessListRepository creates a new SQLiteAccessListRepository
func NewSQLiteAccessListRepository(db *sql.DB) *SQLiteAccessListRepository {
	return &SQLiteAccessListRepository{db: db}
}

func (r *SQLiteAccessListRepository) Exists(ctx context.Context, key string, listType models.ListType) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM guard_access_list
			WHERE client_key = ? AND (? = '' OR list_type = ?)
		)
	`, key, string(listType), string(listType)).Scan(&exists)
	if err != nil {
		return false, models.NewStorageError("access list lookup", err)
	}
	return exists, nil
}

// Add inserts an entry; adding an existing entry returns the stored one unchanged
func (r *SQLiteAccessListRepository) Add(ctx context.Context, key string, listType models.ListType) (*models.AccessListEntry, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO guard_access_list (client_key, list_type, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (client_key, list_type) DO NOTHING
	`, key, string(listType), toNanos(time.Now()))
	if err != nil {
		return nil, models.NewStorageError("access list add", err)
	}

	var created int64
	err = r.db.QueryRowContext(ctx,
		`SELECT created_at FROM guard_access_list WHERE client_key = ? AND list_type = ?`,
		key, string(listType),
	).Scan(&created)
	if err != nil {
		return nil, models.NewStorageError("access list add", err)
	}
	return &models.AccessListEntry{ClientKey: key, ListType: listType, CreatedAt: fromNanos(created)}, nil
}

// Remove deletes an entry, returning models.ErrNotFound if it does not exist
func (r *SQLiteAccessListRepository) Remove(ctx context.Context, key string, listType models.ListType) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM guard_access_list WHERE client_key = ? AND list_type = ?`,
		key, string(listType))
	if err != nil {
		return models.NewStorageError("access list remove", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.NewStorageError("access list remove", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// List returns entries of listType (all entries for models.ListAny), newest first
func (r *SQLiteAccessListRepository) List(ctx context.Context, listType models.ListType) ([]*models.AccessListEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT client_key, list_type, created_at FROM guard_access_list
		WHERE (? = '' OR list_type = ?)
		ORDER BY created_at DESC
	`, string(listType), string(listType))
	if err != nil {
		return nil, models.NewStorageError("access list query", err)
	}
	defer rows.Close()

	entries := make([]*models.AccessListEntry, 0)
	for rows.Next() {
		var e models.AccessListEntry
		var lt string
		var created int64
		if err := rows.Scan(&e.ClientKey, &lt, &created); err != nil {
			return nil, models.NewStorageError("access list scan", err)
		}
		e.ListType = models.ListType(lt)
		e.CreatedAt = fromNanos(created)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStorageError("access list query", err)
	}
	return entries, nil
}
