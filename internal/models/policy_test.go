package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy_IsValid(t *testing.T) {
	assert.NoError(t, models.DefaultPolicy().Validate())
}

func TestPolicyValidate_RejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *models.RateLimitPolicy)
		field  string
	}{
		{"zero max attempts", func(p *models.RateLimitPolicy) { p.MaxAttempts = 0 }, "max_attempts"},
		{"negative window", func(p *models.RateLimitPolicy) { p.TimeWindowMinutes = -5 }, "time_window_minutes"},
		{"negative lockout duration", func(p *models.RateLimitPolicy) { p.LockoutDurationMinutes = -1 }, "lockout_duration_minutes"},
		{"zero lockout duration while enabled", func(p *models.RateLimitPolicy) { p.LockoutDurationMinutes = 0 }, "lockout_duration_minutes"},
		{"negative extension", func(p *models.RateLimitPolicy) { p.ExtendLockoutDurationHours = -2 }, "extend_lockout_duration_hours"},
		{"message without placeholder", func(p *models.RateLimitPolicy) { p.CustomErrorMessage = "Go away" }, "custom_error_message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := models.DefaultPolicy()
			tt.mutate(&p)

			err := p.Validate()
			require.Error(t, err)

			var ve *models.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestPolicyValidate_ZeroLockoutAllowedWhenDisabled(t *testing.T) {
	p := models.DefaultPolicy()
	p.LockoutEnabled = false
	p.LockoutDurationMinutes = 0

	assert.NoError(t, p.Validate())
}

func TestNewLockoutDuration(t *testing.T) {
	p := models.DefaultPolicy()
	p.LockoutDurationMinutes = 30
	p.TimeWindowMinutes = 15

	d, extended := p.NewLockoutDuration()
	assert.Equal(t, 30*time.Minute, d)
	assert.False(t, extended)

	p.LockoutExtensionEnabled = true
	p.ExtendLockoutDurationHours = 2
	d, extended = p.NewLockoutDuration()
	assert.Equal(t, 30*time.Minute+2*time.Hour, d)
	assert.True(t, extended)

	// Extension enabled with no duration budgets nothing
	p.ExtendLockoutDurationHours = 0
	d, extended = p.NewLockoutDuration()
	assert.Equal(t, 30*time.Minute, d)
	assert.False(t, extended)

	// Without lockout the window is the blocking period
	p.LockoutEnabled = false
	d, _ = p.NewLockoutDuration()
	assert.Equal(t, 15*time.Minute, d)
}

func TestLockoutMessage_SubstitutesExpiry(t *testing.T) {
	p := models.DefaultPolicy()
	p.CustomErrorMessage = "Locked until {{locked_out_until}}, sorry."
	until := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	assert.Equal(t, "Locked until 2026-03-04 05:06:07 UTC, sorry.", p.LockoutMessage(until))
}

func TestLockoutMessage_FallsBackToDefault(t *testing.T) {
	p := models.DefaultPolicy()
	p.CustomErrorMessage = ""
	until := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	msg := p.LockoutMessage(until)
	assert.Contains(t, msg, "2026-03-04 05:06:07 UTC")
	assert.NotContains(t, msg, models.LockedOutUntilPlaceholder)
}

func TestAttemptDetailActiveAt(t *testing.T) {
	now := time.Now()
	until := now.Add(time.Minute)

	locked := &models.AttemptDetail{Status: models.StatusLocked, LockoutUntil: &until}
	assert.True(t, locked.ActiveAt(now))
	assert.False(t, locked.ActiveAt(until))

	fail := &models.AttemptDetail{Status: models.StatusFail}
	assert.False(t, fail.ActiveAt(now))

	var missing *models.AttemptDetail
	assert.False(t, missing.ActiveAt(now))
}
