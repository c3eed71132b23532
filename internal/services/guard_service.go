package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/pkg/logger"
)

// UnavailableMessage is returned with a deny decision when lock state cannot be verified
const UnavailableMessage = "Login is temporarily unavailable. Please try again later."

const notifyTimeout = 5 * time.Second

// Deny reasons
const (
	ReasonBlacklisted = "blacklisted"
	ReasonLocked      = "locked"
	ReasonUnavailable = "unavailable"
)

// Decision is the answer to "may this client attempt to authenticate now?"
type Decision struct {
	Allowed      bool       `json:"allowed"`
	Message      string     `json:"message,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	LockoutUntil *time.Time `json:"lockout_until,omitempty"`
}

// Allow is the decision for a client that may proceed
func Allow() Decision {
	return Decision{Allowed: true}
}

// GuardService is the entry point used by transports around an authenticator
type GuardService struct {
	engine   *LockoutEngine
	notifier LockoutNotifier
	audit    *logger.AuditLogger
	logger   *slog.Logger
}

// NewGuardService creates a new GuardService. A nil notifier disables notifications.
func NewGuardService(engine *LockoutEngine, notifier LockoutNotifier, audit *logger.AuditLogger, logger *slog.Logger) *GuardService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &GuardService{
		engine:   engine,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
	}
}

// Authorize decides whether clientKey may attempt authentication. When lock
// state cannot be read the decision is a deny and the error is returned.
func (s *GuardService) Authorize(ctx context.Context, clientKey, username string) (Decision, error) {
	var decision Decision
	err := retryOnConflict(func() error {
		var err error
		decision, err = s.authorize(ctx, clientKey)
		return err
	})
	if err != nil {
		s.logger.Error("guard decision failed, denying",
			slog.String("client_key", clientKey),
			slog.Any("error", err))
		return Decision{Allowed: false, Message: UnavailableMessage, Reason: ReasonUnavailable}, err
	}

	if !decision.Allowed {
		s.audit.LogGuardEvent(logger.AuditEvent{
			EventType:    "access_denied",
			ClientKey:    clientKey,
			Username:     username,
			Reason:       decision.Reason,
			LockoutUntil: decision.LockoutUntil,
		})
	}
	return decision, nil
}

func (s *GuardService) authorize(ctx context.Context, clientKey string) (Decision, error) {
	p := s.engine.Policy()

	whitelisted, err := s.engine.IsWhitelisted(ctx, clientKey)
	if err != nil {
		return Decision{}, err
	}
	if whitelisted {
		return Allow(), nil
	}

	blacklisted, err := s.engine.IsBlacklisted(ctx, clientKey)
	if err != nil {
		return Decision{}, err
	}
	if blacklisted {
		return Decision{Allowed: false, Message: p.BlacklistDenyMessage(), Reason: ReasonBlacklisted}, nil
	}

	locked, err := s.engine.IsLocked(ctx, clientKey)
	if err != nil {
		return Decision{}, err
	}
	if !locked {
		return Allow(), nil
	}

	until, err := s.engine.EffectiveLockoutUntil(ctx, clientKey)
	if err != nil {
		return Decision{}, err
	}
	if until == nil {
		// the lock lapsed between the two reads; report the shortest block
		t := s.engine.now().Add(p.BlockDuration())
		until = &t
	}

	return Decision{
		Allowed:      false,
		Message:      p.LockoutMessage(*until),
		Reason:       ReasonLocked,
		LockoutUntil: until,
	}, nil
}

// OnAuthenticationFailed records a failed authentication
func (s *GuardService) OnAuthenticationFailed(ctx context.Context, attempt Attempt) (*FailureResult, error) {
	var result *FailureResult
	err := retryOnConflict(func() error {
		var err error
		result, err = s.engine.RecordFailure(ctx, attempt)
		return err
	})
	if err != nil {
		s.logger.Error("failed to record authentication failure",
			slog.String("client_key", attempt.ClientKey),
			slog.Any("error", err))
		return nil, err
	}

	switch result.Outcome {
	case OutcomeLockoutStarted, OutcomeLockoutExtended:
		s.audit.LogGuardEvent(logger.AuditEvent{
			EventType:    string(result.Outcome),
			ClientKey:    attempt.ClientKey,
			Username:     attempt.Username,
			UserAgent:    attempt.UserAgent,
			LockoutUntil: result.LockoutUntil,
		})
		s.notify(ctx, attempt, result)
	}

	return result, nil
}

// OnAuthenticationSucceeded records a successful authentication
func (s *GuardService) OnAuthenticationSucceeded(ctx context.Context, attempt Attempt) error {
	err := retryOnConflict(func() error {
		return s.engine.RecordSuccess(ctx, attempt)
	})
	if err != nil {
		s.logger.Error("failed to record authentication success",
			slog.String("client_key", attempt.ClientKey),
			slog.Any("error", err))
		return err
	}
	return nil
}

// notify never fails the caller; the lock is already durable at this point
func (s *GuardService) notify(ctx context.Context, attempt Attempt, result *FailureResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	err := s.notifier.NotifyLockout(ctx, LockoutEvent{
		ClientKey:    attempt.ClientKey,
		Username:     attempt.Username,
		Outcome:      result.Outcome,
		LockoutUntil: *result.LockoutUntil,
	})
	if err != nil {
		s.logger.Warn("lockout notification failed",
			slog.String("client_key", attempt.ClientKey),
			slog.Any("error", err))
	}
}

// retryOnConflict runs fn again once if it reports a concurrency conflict
func retryOnConflict(fn func() error) error {
	err := fn()
	if errors.Is(err, models.ErrConcurrencyConflict) {
		err = fn()
	}
	return err
}
