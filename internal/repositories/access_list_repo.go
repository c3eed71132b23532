package repositories

import (
	"context"

	"github.com/BradenHooton/loginguard/internal/database"
	"github.com/BradenHooton/loginguard/internal/models"
)

// PostgresAccessListRepository stores whitelist/blacklist membership in PostgreSQL
type PostgresAccessListRepository struct {
	db *database.DB
}

// NewPostgresAccessListRepository creates a new PostgresAccessListRepository
func NewPostgresAccessListRepository(db *database.DB) *PostgresAccessListRepository {
	return &PostgresAccessListRepository{db: db}
}

// Exists reports whether key is on listType, or on any list for models.ListAny
func (r *PostgresAccessListRepository) Exists(ctx context.Context, key string, listType models.ListType) (bool, error) {
	var exists bool
	var err error
	if listType == models.ListAny {
		err = r.db.Pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM guard_access_list WHERE client_key = $1)`, key,
		).Scan(&exists)
	} else {
		err = r.db.Pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM guard_access_list WHERE client_key = $1 AND list_type = $2)`,
			key, string(listType),
		).Scan(&exists)
	}
	if err != nil {
		return false, pgStorageError("access list lookup", err)
	}
	return exists, nil
}

// Add inserts an entry; adding an existing entry returns the stored one unchanged
func (r *PostgresAccessListRepository) Add(ctx context.Context, key string, listType models.ListType) (*models.AccessListEntry, error) {
	query := `
		INSERT INTO guard_access_list (client_key, list_type)
		VALUES ($1, $2)
		ON CONFLICT (client_key, list_type) DO UPDATE SET client_key = EXCLUDED.client_key
		RETURNING client_key, list_type, created_at
	`

	var entry models.AccessListEntry
	var lt string
	err := r.db.Pool.QueryRow(ctx, query, key, string(listType)).Scan(&entry.ClientKey, &lt, &entry.CreatedAt)
	if err != nil {
		return nil, pgStorageError("access list add", err)
	}
	entry.ListType = models.ListType(lt)
	return &entry, nil
}

// Remove deletes an entry, returning models.ErrNotFound if it does not exist
func (r *PostgresAccessListRepository) Remove(ctx context.Context, key string, listType models.ListType) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM guard_access_list WHERE client_key = $1 AND list_type = $2`,
		key, string(listType))
	if err != nil {
		return pgStorageError("access list remove", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// List returns entries of listType (all entries for models.ListAny), newest first
func (r *PostgresAccessListRepository) List(ctx context.Context, listType models.ListType) ([]*models.AccessListEntry, error) {
	query := `
		SELECT client_key, list_type, created_at FROM guard_access_list
		WHERE ($1 = '' OR list_type = $1)
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, string(listType))
	if err != nil {
		return nil, pgStorageError("access list query", err)
	}
	defer rows.Close()

	entries := make([]*models.AccessListEntry, 0)
	for rows.Next() {
		var e models.AccessListEntry
		var lt string
		if err := rows.Scan(&e.ClientKey, &lt, &e.CreatedAt); err != nil {
			return nil, pgStorageError("access list scan", err)
		}
		e.ListType = models.ListType(lt)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, pgStorageError("access list query", err)
	}
	return entries, nil
}
