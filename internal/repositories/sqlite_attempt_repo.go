package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/google/uuid"
)

// SQLiteAttemptRepository is the single-node attempt store. Timestamps are
// kept as unix nanoseconds so window comparisons stay exact.
type SQLiteAttemptRepository struct {
	db *sql.DB
}

// NewSQLiteAttemptRepository creates a new SQLiteAttemptRepository
func NewSQLiteAttemptRepository(db *sql.DB) *SQLiteAttemptRepository {
	return &SQLiteAttemptRepository{db: db}
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func scanSQLiteClient(row rowScanner) (*models.ClientRecord, error) {
	var c models.ClientRecord
	var status string
	var created, updated int64
	if err := row.Scan(&c.ID, &c.ClientKey, &status, &c.TotalAttempts, &created, &updated); err != nil {
		return nil, err
	}
	c.CurrentStatus = models.AttemptStatus(status)
	c.CreatedAt = fromNanos(created)
	c.UpdatedAt = fromNanos(updated)
	return &c, nil
}

func scanSQLiteDetail(row rowScanner) (*models.AttemptDetail, error) {
	var d models.AttemptDetail
	var status string
	var username, userID sql.NullString
	var lockoutUntil sql.NullInt64
	var attemptTime int64
	err := row.Scan(&d.ID, &d.ClientRecordID, &username, &userID, &status,
		&d.IsExtended, &lockoutUntil, &d.UserAgent, &attemptTime)
	if err != nil {
		return nil, err
	}
	d.Status = models.AttemptStatus(status)
	if username.Valid {
		d.Username = &username.String
	}
	if userID.Valid {
		d.UserID = &userID.String
	}
	if lockoutUntil.Valid {
		t := fromNanos(lockoutUntil.Int64)
		d.LockoutUntil = &t
	}
	d.AttemptTime = fromNanos(attemptTime)
	return &d, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func statusPlaceholders(statuses []models.AttemptStatus) (string, []any) {
	marks := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		marks[i] = "?"
		args[i] = string(s)
	}
	return strings.Join(marks, ", "), args
}

// FindClientByKey returns the record for key, or nil if the key has never been seen
func (r *SQLiteAttemptRepository) FindClientByKey(ctx context.Context, key string) (*models.ClientRecord, error) {
	query := `SELECT ` + clientColumns + ` FROM guard_clients WHERE client_key = ?`

	client, err := scanSQLiteClient(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewStorageError("find client", err)
	}
	return client, nil
}

// CreateClient inserts a new record. It returns models.ErrConflict if the key exists.
func (r *SQLiteAttemptRepository) CreateClient(ctx context.Context, key string, status models.AttemptStatus, attempts int) (*models.ClientRecord, error) {
	now := time.Now().UTC()
	client := &models.ClientRecord{
		ID:            uuid.NewString(),
		ClientKey:     key,
		CurrentStatus: status,
		TotalAttempts: attempts,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO guard_clients (id, client_key, current_status, total_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, client.ID, key, string(status), attempts, toNanos(now), toNanos(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrConflict
		}
		return nil, models.NewStorageError("create client", err)
	}
	return client, nil
}

// sqlExecer is satisfied by *sql.DB and *sql.Tx
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateSQLiteClient(ctx context.Context, ex sqlExecer, id string, update models.ClientUpdate) error {
	var status sql.NullString
	if update.Status != nil {
		status = sql.NullString{String: string(*update.Status), Valid: true}
	}

	res, err := ex.ExecContext(ctx, `
		UPDATE guard_clients
		SET current_status = COALESCE(?, current_status),
		    total_attempts = MAX(total_attempts + ?, 0),
		    updated_at = ?
		WHERE id = ?
	`, status, update.AttemptsDelta, toNanos(time.Now()), id)
	if err != nil {
		return models.NewStorageError("update client", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.NewStorageError("update client", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func insertSQLiteDetail(ctx context.Context, ex sqlExecer, detail *models.AttemptDetail) (*models.AttemptDetail, error) {
	saved := *detail
	saved.ID = uuid.NewString()
	if saved.AttemptTime.IsZero() {
		saved.AttemptTime = time.Now()
	}
	saved.AttemptTime = saved.AttemptTime.UTC()

	var lockoutUntil sql.NullInt64
	if saved.LockoutUntil != nil {
		lockoutUntil = sql.NullInt64{Int64: toNanos(*saved.LockoutUntil), Valid: true}
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO guard_attempt_details
			(id, client_record_id, username, user_id, status, is_extended, lockout_until, user_agent, attempt_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		saved.ID,
		saved.ClientRecordID,
		saved.Username,
		saved.UserID,
		string(saved.Status),
		saved.IsExtended,
		lockoutUntil,
		saved.UserAgent,
		toNanos(saved.AttemptTime),
	)
	if err != nil {
		return nil, models.NewStorageError("append detail", err)
	}
	return &saved, nil
}

// UpdateClient applies a partial update; the attempt counter never drops below zero
func (r *SQLiteAttemptRepository) UpdateClient(ctx context.Context, id string, update models.ClientUpdate) error {
	return updateSQLiteClient(ctx, r.db, id, update)
}

// AppendDetail inserts an attempt detail and fills in its generated ID
func (r *SQLiteAttemptRepository) AppendDetail(ctx context.Context, detail *models.AttemptDetail) (*models.AttemptDetail, error) {
	return insertSQLiteDetail(ctx, r.db, detail)
}

// RecordAttempt updates the detail's client and inserts the detail in one
// transaction. It returns models.ErrNotFound, with nothing written, if the
// client no longer exists.
func (r *SQLiteAttemptRepository) RecordAttempt(ctx context.Context, detail *models.AttemptDetail, update models.ClientUpdate) (saved *models.AttemptDetail, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, models.NewStorageError("record attempt", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = updateSQLiteClient(ctx, tx, detail.ClientRecordID, update); err != nil {
		return nil, err
	}
	if saved, err = insertSQLiteDetail(ctx, tx, detail); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, models.NewStorageError("record attempt", err)
	}
	return saved, nil
}

// LatestLockedDetail returns the most recent locked detail for a client, or nil
func (r *SQLiteAttemptRepository) LatestLockedDetail(ctx context.Context, clientID string) (*models.AttemptDetail, error) {
	query := `
		SELECT ` + detailColumns + `
		FROM guard_attempt_details
		WHERE client_record_id = ? AND status = 'locked'
		ORDER BY attempt_time DESC
		LIMIT 1
	`

	detail, err := scanSQLiteDetail(r.db.QueryRowContext(ctx, query, clientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewStorageError("latest locked detail", err)
	}
	return detail, nil
}

// CountFailuresSince counts failed attempts strictly after since
func (r *SQLiteAttemptRepository) CountFailuresSince(ctx context.Context, clientID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM guard_attempt_details
		WHERE client_record_id = ? AND status = 'fail' AND attempt_time > ?
	`, clientID, toNanos(since)).Scan(&count)
	if err != nil {
		return 0, models.NewStorageError("count failures", err)
	}
	return count, nil
}

// DeleteDetail removes one detail and decrements its parent's attempt counter
// in the same transaction.
func (r *SQLiteAttemptRepository) DeleteDetail(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.NewStorageError("delete detail", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var clientID string
	err = tx.QueryRowContext(ctx,
		`SELECT client_record_id FROM guard_attempt_details WHERE id = ?`, id,
	).Scan(&clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return models.NewStorageError("delete detail", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM guard_attempt_details WHERE id = ?`, id); err != nil {
		return models.NewStorageError("delete detail", err)
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE guard_clients
		SET total_attempts = MAX(total_attempts - 1, 0), updated_at = ?
		WHERE id = ?
	`, toNanos(time.Now()), clientID); err != nil {
		return models.NewStorageError("delete detail", err)
	}

	if err = tx.Commit(); err != nil {
		return models.NewStorageError("delete detail", err)
	}
	return nil
}

// ListClients returns clients ordered by most recent activity
func (r *SQLiteAttemptRepository) ListClients(ctx context.Context, filter models.ClientFilter) ([]*models.ClientRecord, error) {
	query := `SELECT ` + clientColumns + ` FROM guard_clients`
	var args []any
	if len(filter.Statuses) > 0 {
		marks, statusArgs := statusPlaceholders(filter.Statuses)
		query += ` WHERE current_status IN (` + marks + `)`
		args = append(args, statusArgs...)
	}
	query += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.NewStorageError("list clients", err)
	}
	defer rows.Close()

	clients := make([]*models.ClientRecord, 0)
	for rows.Next() {
		c, err := scanSQLiteClient(rows)
		if err != nil {
			return nil, models.NewStorageError("scan client", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStorageError("list clients", err)
	}
	return clients, nil
}

// ListDetails returns a client's attempt details, newest first
func (r *SQLiteAttemptRepository) ListDetails(ctx context.Context, clientID string, filter models.DetailFilter) ([]*models.AttemptDetail, error) {
	query := `SELECT ` + detailColumns + ` FROM guard_attempt_details WHERE client_record_id = ?`
	args := []any{clientID}
	if len(filter.Statuses) > 0 {
		marks, statusArgs := statusPlaceholders(filter.Statuses)
		query += ` AND status IN (` + marks + `)`
		args = append(args, statusArgs...)
	}
	query += ` ORDER BY attempt_time DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.NewStorageError("list details", err)
	}
	defer rows.Close()

	details := make([]*models.AttemptDetail, 0)
	for rows.Next() {
		d, err := scanSQLiteDetail(rows)
		if err != nil {
			return nil, models.NewStorageError("scan detail", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStorageError("list details", err)
	}
	return details, nil
}

// DeleteClient removes a client and, by cascade, all of its details
func (r *SQLiteAttemptRepository) DeleteClient(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM guard_clients WHERE id = ?`, id)
	if err != nil {
		return models.NewStorageError("delete client", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.NewStorageError("delete client", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// PurgeInactiveClients deletes clients idle since before that hold no lock active at now
func (r *SQLiteAttemptRepository) PurgeInactiveClients(ctx context.Context, before, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM guard_clients
		WHERE updated_at < ?
		  AND NOT EXISTS (
			SELECT 1 FROM guard_attempt_details d
			WHERE d.client_record_id = guard_clients.id AND d.status = 'locked' AND d.lockout_until > ?
		  )
	`, toNanos(before), toNanos(now))
	if err != nil {
		return 0, models.NewStorageError("purge inactive clients", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, models.NewStorageError("purge inactive clients", err)
	}
	return n, nil
}
