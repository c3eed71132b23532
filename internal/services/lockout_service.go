package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/policy"
	"github.com/BradenHooton/loginguard/pkg/logger"
)

// AttemptStore defines the persistence operations the lockout engine needs
type AttemptStore interface {
	FindClientByKey(ctx context.Context, key string) (*models.ClientRecord, error)
	CreateClient(ctx context.Context, key string, status models.AttemptStatus, attempts int) (*models.ClientRecord, error)
	UpdateClient(ctx context.Context, id string, update models.ClientUpdate) error
	// RecordAttempt applies update to the detail's client and appends the detail
	// atomically. It returns models.ErrNotFound, with nothing written, if the
	// client is gone.
	RecordAttempt(ctx context.Context, detail *models.AttemptDetail, update models.ClientUpdate) (*models.AttemptDetail, error)
	LatestLockedDetail(ctx context.Context, clientID string) (*models.AttemptDetail, error)
	CountFailuresSince(ctx context.Context, clientID string, since time.Time) (int, error)
}

// AccessListStore answers access-list membership questions
type AccessListStore interface {
	Exists(ctx context.Context, key string, listType models.ListType) (bool, error)
}

// FailureOutcome describes what RecordFailure did with an attempt
type FailureOutcome string

const (
	OutcomeRecorded        FailureOutcome = "recorded"
	OutcomeLockoutStarted  FailureOutcome = "lockout_started"
	OutcomeLockoutExtended FailureOutcome = "lockout_extended"
	OutcomeStillLocked     FailureOutcome = "still_locked"
	OutcomeIgnored         FailureOutcome = "ignored"
	OutcomeWhitelisted     FailureOutcome = "whitelisted"
)

// FailureResult is returned by RecordFailure.
// LockoutUntil is set for lockout_started, lockout_extended and still_locked.
type FailureResult struct {
	Outcome      FailureOutcome `json:"outcome"`
	LockoutUntil *time.Time     `json:"lockout_until,omitempty"`
}

// Attempt identifies a single authentication attempt
type Attempt struct {
	ClientKey string
	Username  string
	UserID    string
	UserAgent string
}

// LockoutEngine tracks attempts per client key and decides lock state
type LockoutEngine struct {
	attempts AttemptStore
	lists    AccessListStore
	policy   policy.Provider
	logger   *slog.Logger
	keys     *keyedMutex
	now      func() time.Time
}

// LockoutEngineOption customizes a LockoutEngine
type LockoutEngineOption func(*LockoutEngine)

// WithClock replaces the engine's time source
func WithClock(now func() time.Time) LockoutEngineOption {
	return func(e *LockoutEngine) {
		e.now = now
	}
}

// NewLockoutEngine creates a new LockoutEngine
func NewLockoutEngine(attempts AttemptStore, lists AccessListStore, provider policy.Provider, logger *slog.Logger, opts ...LockoutEngineOption) *LockoutEngine {
	e := &LockoutEngine{
		attempts: attempts,
		lists:    lists,
		policy:   provider,
		logger:   logger,
		keys:     newKeyedMutex(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the snapshot the next decision will use
func (e *LockoutEngine) Policy() models.RateLimitPolicy {
	return e.policy.Current()
}

// IsWhitelisted reports whether key is on the whitelist
func (e *LockoutEngine) IsWhitelisted(ctx context.Context, key string) (bool, error) {
	ok, err := e.lists.Exists(ctx, key, models.ListWhitelist)
	if err != nil {
		return false, models.NewStorageError("whitelist lookup", err)
	}
	return ok, nil
}

// IsBlacklisted reports whether key is on the blacklist
func (e *LockoutEngine) IsBlacklisted(ctx context.Context, key string) (bool, error) {
	ok, err := e.lists.Exists(ctx, key, models.ListBlacklist)
	if err != nil {
		return false, models.NewStorageError("blacklist lookup", err)
	}
	return ok, nil
}

// RecordFailure records a failed authentication and applies the lockout rules.
// Calls for the same client key are serialized.
func (e *LockoutEngine) RecordFailure(ctx context.Context, attempt Attempt) (*FailureResult, error) {
	unlock := e.keys.Lock(attempt.ClientKey)
	defer unlock()

	now := e.now()
	p := e.policy.Current()

	whitelisted, err := e.IsWhitelisted(ctx, attempt.ClientKey)
	if err != nil {
		return nil, err
	}

	client, err := e.ensureClient(ctx, attempt.ClientKey)
	if err != nil {
		return nil, err
	}

	if whitelisted {
		if err := e.appendAndCount(ctx, client, attempt, models.StatusFail, now, nil, false); err != nil {
			return nil, err
		}
		return &FailureResult{Outcome: OutcomeWhitelisted}, nil
	}

	if client.CurrentStatus == models.StatusLocked {
		if !p.LockoutEnabled {
			// a lock taken under an earlier policy stays until it is observed as expired
			return &FailureResult{Outcome: OutcomeIgnored}, nil
		}

		latest, err := e.attempts.LatestLockedDetail(ctx, client.ID)
		if err != nil {
			return nil, err
		}

		if latest.ActiveAt(now) {
			if p.ExtensionActive() && !latest.IsExtended {
				until := latest.LockoutUntil.Add(p.ExtensionDuration())
				if err := e.appendAndCount(ctx, client, attempt, models.StatusLocked, now, &until, true); err != nil {
					return nil, err
				}
				e.logger.Warn("lockout extended",
					slog.String("client_key", attempt.ClientKey),
					slog.String("username", logger.SanitizedUsername(attempt.Username)),
					slog.Time("lockout_until", until))
				return &FailureResult{Outcome: OutcomeLockoutExtended, LockoutUntil: &until}, nil
			}

			if err := e.attempts.UpdateClient(ctx, client.ID, models.ClientUpdate{AttemptsDelta: 1}); err != nil {
				return nil, clientGone("update client", client.ID, err)
			}
			until := *latest.LockoutUntil
			return &FailureResult{Outcome: OutcomeStillLocked, LockoutUntil: &until}, nil
		}
	}

	failures, err := e.attempts.CountFailuresSince(ctx, client.ID, now.Add(-p.Window()))
	if err != nil {
		return nil, err
	}

	// the attempt being recorded counts toward the threshold
	if p.LockoutEnabled && failures+1 >= p.MaxAttempts {
		d, extended := p.NewLockoutDuration()
		until := now.Add(d)
		if err := e.appendAndCount(ctx, client, attempt, models.StatusLocked, now, &until, extended); err != nil {
			return nil, err
		}
		e.logger.Warn("lockout started",
			slog.String("client_key", attempt.ClientKey),
			slog.String("username", logger.SanitizedUsername(attempt.Username)),
			slog.Int("failures", failures+1),
			slog.Time("lockout_until", until))
		return &FailureResult{Outcome: OutcomeLockoutStarted, LockoutUntil: &until}, nil
	}

	if err := e.appendAndCount(ctx, client, attempt, models.StatusFail, now, nil, false); err != nil {
		return nil, err
	}
	e.logger.Debug("failed attempt recorded",
		slog.String("client_key", attempt.ClientKey),
		slog.Int("failures", failures+1))
	return &FailureResult{Outcome: OutcomeRecorded}, nil
}

// RecordSuccess records a successful authentication. It does not reset the
// lifetime attempt counter.
func (e *LockoutEngine) RecordSuccess(ctx context.Context, attempt Attempt) error {
	unlock := e.keys.Lock(attempt.ClientKey)
	defer unlock()

	client, err := e.ensureClient(ctx, attempt.ClientKey)
	if err != nil {
		return err
	}
	return e.appendAndCount(ctx, client, attempt, models.StatusSuccess, e.now(), nil, false)
}

// IsLocked reports whether key is currently blocked by an active lock or by the
// number of failures in the trailing window. An expired lock is moved to the
// unlocked status as a side effect.
func (e *LockoutEngine) IsLocked(ctx context.Context, key string) (bool, error) {
	whitelisted, err := e.IsWhitelisted(ctx, key)
	if err != nil || whitelisted {
		return false, err
	}

	unlock := e.keys.Lock(key)
	defer unlock()

	client, err := e.attempts.FindClientByKey(ctx, key)
	if err != nil || client == nil {
		return false, err
	}

	now := e.now()
	p := e.policy.Current()

	latest, err := e.attempts.LatestLockedDetail(ctx, client.ID)
	if err != nil {
		return false, err
	}
	if latest.ActiveAt(now) {
		return true, nil
	}

	failures, err := e.attempts.CountFailuresSince(ctx, client.ID, now.Add(-p.Window()))
	if err != nil {
		return false, err
	}
	if failures >= p.MaxAttempts {
		return true, nil
	}

	if client.CurrentStatus == models.StatusLocked {
		unlocked := models.StatusUnlocked
		err := e.attempts.UpdateClient(ctx, client.ID, models.ClientUpdate{Status: &unlocked})
		if errors.Is(err, models.ErrNotFound) {
			// deleted since it was read; a missing client is never locked
			return false, nil
		}
		if err != nil {
			return false, err
		}
		e.logger.Info("lockout expired",
			slog.String("client_key", key))
	}

	return false, nil
}

// EffectiveLockoutUntil returns when the block on key ends, or nil if the key
// is not blocked. Without an active lock the expiry is projected from the
// policy and not persisted.
func (e *LockoutEngine) EffectiveLockoutUntil(ctx context.Context, key string) (*time.Time, error) {
	whitelisted, err := e.IsWhitelisted(ctx, key)
	if err != nil || whitelisted {
		return nil, err
	}

	client, err := e.attempts.FindClientByKey(ctx, key)
	if err != nil || client == nil {
		return nil, err
	}

	now := e.now()
	p := e.policy.Current()

	latest, err := e.attempts.LatestLockedDetail(ctx, client.ID)
	if err != nil {
		return nil, err
	}
	if latest.ActiveAt(now) {
		until := *latest.LockoutUntil
		return &until, nil
	}

	failures, err := e.attempts.CountFailuresSince(ctx, client.ID, now.Add(-p.Window()))
	if err != nil {
		return nil, err
	}
	if failures >= p.MaxAttempts {
		until := now.Add(p.BlockDuration())
		return &until, nil
	}
	return nil, nil
}

// ensureClient loads the record for key, creating an empty one on first sight.
// A concurrent creator winning the insert is not an error.
func (e *LockoutEngine) ensureClient(ctx context.Context, key string) (*models.ClientRecord, error) {
	client, err := e.attempts.FindClientByKey(ctx, key)
	if err != nil || client != nil {
		return client, err
	}

	client, err = e.attempts.CreateClient(ctx, key, models.StatusFail, 0)
	if errors.Is(err, models.ErrConflict) {
		client, err = e.attempts.FindClientByKey(ctx, key)
		if err == nil && client == nil {
			err = models.NewStorageError("create client", fmt.Errorf("client %q vanished after conflict", key))
		}
	}
	return client, err
}

// appendAndCount writes one attempt detail and moves the client's status and
// counter to match it, in a single store operation.
func (e *LockoutEngine) appendAndCount(ctx context.Context, client *models.ClientRecord, attempt Attempt, status models.AttemptStatus, at time.Time, until *time.Time, extended bool) error {
	detail := &models.AttemptDetail{
		ClientRecordID: client.ID,
		Username:       models.StringPtr(attempt.Username),
		Status:         status,
		IsExtended:     extended,
		LockoutUntil:   until,
		UserAgent:      attempt.UserAgent,
		AttemptTime:    at,
	}
	if status == models.StatusSuccess {
		detail.UserID = models.StringPtr(attempt.UserID)
	}

	_, err := e.attempts.RecordAttempt(ctx, detail, models.ClientUpdate{Status: &status, AttemptsDelta: 1})
	return clientGone("record attempt", client.ID, err)
}

// clientGone reports a client deleted between read and write as a
// concurrency conflict, so the decision is retried against a fresh record.
func clientGone(op, clientID string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return models.NewStorageError(op, fmt.Errorf("client %s removed: %w", clientID, models.ErrConcurrencyConflict))
	}
	return err
}
