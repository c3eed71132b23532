package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/loginguard/internal/database"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

const clientColumns = `id, client_key, current_status, total_attempts, created_at, updated_at`

const detailColumns = `id, client_record_id, username, user_id, status, is_extended, lockout_until, user_agent, attempt_time`

// PostgresAttemptRepository stores client records and attempt details in PostgreSQL
type PostgresAttemptRepository struct {
	db *database.DB
}

// NewPostgresAttemptRepository creates a new PostgresAttemptRepository
func NewPostgresAttemptRepository(db *database.DB) *PostgresAttemptRepository {
	return &PostgresAttemptRepository{db: db}
}

func scanClientRow(row rowScanner) (*models.ClientRecord, error) {
	var c models.ClientRecord
	var status string
	if err := row.Scan(&c.ID, &c.ClientKey, &status, &c.TotalAttempts, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CurrentStatus = models.AttemptStatus(status)
	return &c, nil
}

func scanDetailRow(row rowScanner) (*models.AttemptDetail, error) {
	var d models.AttemptDetail
	var status string
	err := row.Scan(&d.ID, &d.ClientRecordID, &d.Username, &d.UserID, &status,
		&d.IsExtended, &d.LockoutUntil, &d.UserAgent, &d.AttemptTime)
	if err != nil {
		return nil, err
	}
	d.Status = models.AttemptStatus(status)
	return &d, nil
}

func statusStrings(statuses []models.AttemptStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// FindClientByKey returns the record for key, or nil if the key has never been seen
func (r *PostgresAttemptRepository) FindClientByKey(ctx context.Context, key string) (*models.ClientRecord, error) {
	query := `SELECT ` + clientColumns + ` FROM guard_clients WHERE client_key = $1`

	client, err := scanClientRow(r.db.Pool.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pgStorageError("find client", err)
	}
	return client, nil
}

// CreateClient inserts a new record. It returns models.ErrConflict if the key exists.
func (r *PostgresAttemptRepository) CreateClient(ctx context.Context, key string, status models.AttemptStatus, attempts int) (*models.ClientRecord, error) {
	query := `
		INSERT INTO guard_clients (client_key, current_status, total_attempts)
		VALUES ($1, $2, $3)
		RETURNING ` + clientColumns

	client, err := scanClientRow(r.db.Pool.QueryRow(ctx, query, key, string(status), attempts))
	if err != nil {
		if mapped := database.MapPostgresError(err); errors.Is(mapped, models.ErrConflict) {
			return nil, mapped
		}
		return nil, pgStorageError("create client", err)
	}
	return client, nil
}

const updateClientQuery = `
	UPDATE guard_clients
	SET current_status = COALESCE($2, current_status),
	    total_attempts = GREATEST(total_attempts + $3, 0),
	    updated_at = NOW()
	WHERE id = $1
`

const insertDetailQuery = `
	INSERT INTO guard_attempt_details
		(client_record_id, username, user_id, status, is_extended, lockout_until, user_agent, attempt_time)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING ` + detailColumns

func statusParam(update models.ClientUpdate) *string {
	if update.Status == nil {
		return nil
	}
	s := string(*update.Status)
	return &s
}

func detailParams(detail *models.AttemptDetail) []any {
	if detail.AttemptTime.IsZero() {
		detail.AttemptTime = time.Now()
	}
	return []any{
		detail.ClientRecordID,
		detail.Username,
		detail.UserID,
		string(detail.Status),
		detail.IsExtended,
		detail.LockoutUntil,
		detail.UserAgent,
		detail.AttemptTime,
	}
}

// UpdateClient applies a partial update; the attempt counter never drops below zero
func (r *PostgresAttemptRepository) UpdateClient(ctx context.Context, id string, update models.ClientUpdate) error {
	tag, err := r.db.Pool.Exec(ctx, updateClientQuery, id, statusParam(update), update.AttemptsDelta)
	if err != nil {
		return pgStorageError("update client", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// AppendDetail inserts an attempt detail and fills in its generated ID
func (r *PostgresAttemptRepository) AppendDetail(ctx context.Context, detail *models.AttemptDetail) (*models.AttemptDetail, error) {
	saved, err := scanDetailRow(r.db.Pool.QueryRow(ctx, insertDetailQuery, detailParams(detail)...))
	if err != nil {
		return nil, pgStorageError("append detail", err)
	}
	return saved, nil
}

// RecordAttempt updates the detail's client and inserts the detail in one
// transaction. It returns models.ErrNotFound, with nothing written, if the
// client no longer exists.
func (r *PostgresAttemptRepository) RecordAttempt(ctx context.Context, detail *models.AttemptDetail, update models.ClientUpdate) (*models.AttemptDetail, error) {
	var saved *models.AttemptDetail
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateClientQuery, detail.ClientRecordID, statusParam(update), update.AttemptsDelta)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		saved, err = scanDetailRow(tx.QueryRow(ctx, insertDetailQuery, detailParams(detail)...))
		return err
	})

	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, models.ErrNotFound):
		return nil, models.ErrNotFound
	default:
		return nil, pgStorageError("record attempt", err)
	}
}

// LatestLockedDetail returns the most recent locked detail for a client, or nil
func (r *PostgresAttemptRepository) LatestLockedDetail(ctx context.Context, clientID string) (*models.AttemptDetail, error) {
	query := `
		SELECT ` + detailColumns + `
		FROM guard_attempt_details
		WHERE client_record_id = $1 AND status = 'locked'
		ORDER BY attempt_time DESC
		LIMIT 1
	`

	detail, err := scanDetailRow(r.db.Pool.QueryRow(ctx, query, clientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pgStorageError("latest locked detail", err)
	}
	return detail, nil
}

// CountFailuresSince counts failed attempts strictly after since
func (r *PostgresAttemptRepository) CountFailuresSince(ctx context.Context, clientID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM guard_attempt_details
		WHERE client_record_id = $1 AND status = 'fail' AND attempt_time > $2
	`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, clientID, since).Scan(&count); err != nil {
		return 0, pgStorageError("count failures", err)
	}
	return count, nil
}

// DeleteDetail removes one detail and decrements its parent's attempt counter
// in the same transaction.
func (r *PostgresAttemptRepository) DeleteDetail(ctx context.Context, id string) error {
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var clientID string
		err := tx.QueryRow(ctx,
			`DELETE FROM guard_attempt_details WHERE id = $1 RETURNING client_record_id`, id,
		).Scan(&clientID)
		if err != nil {
			return database.MapPostgresError(err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE guard_clients
			SET total_attempts = GREATEST(total_attempts - 1, 0), updated_at = NOW()
			WHERE id = $1
		`, clientID)
		return err
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrBadRequest):
		return models.ErrNotFound
	default:
		return pgStorageError("delete detail", err)
	}
}

// ListClients returns clients ordered by most recent activity
func (r *PostgresAttemptRepository) ListClients(ctx context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error) {
	args := []any{filter.Limit, filter.Offset}
	where := ""
	if len(filter.Statuses) > 0 {
		where = `WHERE current_status = ANY($3::text[])`
		args = append(args, pq.Array(statusStrings(filter.Statuses)))
	}

	query := fmt.Sprintf(`
		SELECT %s FROM guard_clients
		%s
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`, clientColumns, where)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgStorageError("list clients", err)
	}
	defer rows.Close()

	clients := make([]*models.ClientRecord, 0)
	for rows.Next() {
		c, err := scanClientRow(rows)
		if err != nil {
			return nil, pgStorageError("scan client", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, pgStorageError("list clients", err)
	}
	return clients, nil
}

// ListDetails returns a client's attempt details, newest first
func (r *PostgresAttemptRepository) ListDetails(ctx context.Context, clientID string, filter models.DetailFilter) ([]*models.AttemptDetail, error) {
	args := []any{clientID, filter.Limit, filter.Offset}
	statusClause := ""
	if len(filter.Statuses) > 0 {
		statusClause = `AND status = ANY($4::text[])`
		args = append(args, pq.Array(statusStrings(filter.Statuses)))
	}

	query := fmt.Sprintf(`
		SELECT %s FROM guard_attempt_details
		WHERE client_record_id = $1 %s
		ORDER BY attempt_time DESC
		LIMIT $2 OFFSET $3
	`, detailColumns, statusClause)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgStorageError("list details", err)
	}
	defer rows.Close()

	details := make([]*models.AttemptDetail, 0)
	for rows.Next() {
		d, err := scanDetailRow(rows)
		if err != nil {
			return nil, pgStorageError("scan detail", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, pgStorageError("list details", err)
	}
	return details, nil
}

// DeleteClient removes a client and, by cascade, all of its details
func (r *PostgresAttemptRepository) DeleteClient(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM guard_clients WHERE id = $1`, id)
	if err != nil {
		if errors.Is(database.MapPostgresError(err), models.ErrBadRequest) {
			return models.ErrNotFound
		}
		return pgStorageError("delete client", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// PurgeInactiveClients deletes clients idle since before that hold no lock active at now
func (r *PostgresAttemptRepository) PurgeInactiveClients(ctx context.Context, before, now time.Time) (int64, error) {
	query := `
		DELETE FROM guard_clients c
		WHERE c.updated_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM guard_attempt_details d
			WHERE d.client_record_id = c.id AND d.status = 'locked' AND d.lockout_until > $2
		  )
	`

	tag, err := r.db.Pool.Exec(ctx, query, before, now)
	if err != nil {
		return 0, pgStorageError("purge inactive clients", err)
	}
	return tag.RowsAffected(), nil
}

// pgStorageError wraps a PostgreSQL failure, keeping serialization failures and
// deadlocks detectable as models.ErrConcurrencyConflict so callers can retry.
func pgStorageError(op string, err error) error {
	if errors.Is(database.MapPostgresError(err), models.ErrConcurrencyConflict) {
		return models.NewStorageError(op, fmt.Errorf("%w: %v", models.ErrConcurrencyConflict, err))
	}
	return models.NewStorageError(op, err)
}
