package models

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// LockedOutUntilPlaceholder is substituted with the lockout expiry in user-facing messages
const LockedOutUntilPlaceholder = "{{locked_out_until}}"

// LockoutTimeLayout formats lockout expiry times in user-facing messages
const LockoutTimeLayout = "2006-01-02 15:04:05 MST"

const (
	DefaultLockoutMessage   = "Too many failed login attempts. Please try again after " + LockedOutUntilPlaceholder + "."
	DefaultBlacklistMessage = "Access from your address has been blocked."
)

// RateLimitPolicy is an immutable snapshot of the guard thresholds.
// The engine reads one snapshot per decision and never mutates it.
type RateLimitPolicy struct {
	MaxAttempts                int    `toml:"max_attempts" json:"max_attempts" validate:"gte=1,lte=10000"`
	TimeWindowMinutes          int    `toml:"time_window_minutes" json:"time_window_minutes" validate:"gte=1,lte=525600"`
	LockoutEnabled             bool   `toml:"lockout_enabled" json:"lockout_enabled"`
	LockoutDurationMinutes     int    `toml:"lockout_duration_minutes" json:"lockout_duration_minutes" validate:"gte=0,lte=525600"`
	LockoutExtensionEnabled    bool   `toml:"lockout_extension_enabled" json:"lockout_extension_enabled"`
	ExtendLockoutDurationHours int    `toml:"extend_lockout_duration_hours" json:"extend_lockout_duration_hours" validate:"gte=0,lte=8760"`
	CustomErrorMessage         string `toml:"custom_error_message" json:"custom_error_message" validate:"max=1000"`
	BlacklistMessage           string `toml:"blacklist_message" json:"blacklist_message" validate:"max=1000"`
}

// DefaultPolicy returns the policy used when no configuration overrides it
func DefaultPolicy() RateLimitPolicy {
	return RateLimitPolicy{
		MaxAttempts:                5,
		TimeWindowMinutes:          15,
		LockoutEnabled:             true,
		LockoutDurationMinutes:     30,
		LockoutExtensionEnabled:    false,
		ExtendLockoutDurationHours: 24,
		CustomErrorMessage:         DefaultLockoutMessage,
		BlacklistMessage:           DefaultBlacklistMessage,
	}
}

var policyValidator = newPolicyValidator()

func newPolicyValidator() *validator.Validate {
	v := validator.New()
	// Report option names as they appear in config files
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate rejects malformed policy values. It returns a *ValidationError.
func (p RateLimitPolicy) Validate() error {
	if err := policyValidator.Struct(p); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			return &ValidationError{Field: fe.Field(), Message: describeFieldError(fe)}
		}
		return &ValidationError{Message: err.Error()}
	}

	if p.LockoutEnabled && p.LockoutDurationMinutes < 1 {
		return &ValidationError{Field: "lockout_duration_minutes", Message: "must be at least 1 when lockout is enabled"}
	}
	if p.CustomErrorMessage != "" && !strings.Contains(p.CustomErrorMessage, LockedOutUntilPlaceholder) {
		return &ValidationError{Field: "custom_error_message", Message: "must contain " + LockedOutUntilPlaceholder}
	}

	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "max":
		return "must have a maximum of " + fe.Param() + " characters"
	default:
		return "failed validation: " + fe.Tag()
	}
}

// Window is the trailing period in which failures are counted
func (p RateLimitPolicy) Window() time.Duration {
	return time.Duration(p.TimeWindowMinutes) * time.Minute
}

// ExtensionActive reports whether lockouts may be extended by a non-zero amount
func (p RateLimitPolicy) ExtensionActive() bool {
	return p.LockoutExtensionEnabled && p.ExtendLockoutDurationHours > 0
}

// ExtensionDuration is the amount added to a lock when it is extended
func (p RateLimitPolicy) ExtensionDuration() time.Duration {
	return time.Duration(p.ExtendLockoutDurationHours) * time.Hour
}

// BlockDuration is the base blocking period: the lockout duration when lockout
// is enabled, otherwise the counting window.
func (p RateLimitPolicy) BlockDuration() time.Duration {
	if p.LockoutEnabled {
		return time.Duration(p.LockoutDurationMinutes) * time.Minute
	}
	return p.Window()
}

// NewLockoutDuration returns the duration of a freshly triggered lock and whether
// the extension budget is already included in it.
func (p RateLimitPolicy) NewLockoutDuration() (time.Duration, bool) {
	d := p.BlockDuration()
	if p.ExtensionActive() {
		return d + p.ExtensionDuration(), true
	}
	return d, false
}

// LockoutMessage renders the user-facing lockout message for the given expiry
func (p RateLimitPolicy) LockoutMessage(until time.Time) string {
	msg := p.CustomErrorMessage
	if msg == "" {
		msg = DefaultLockoutMessage
	}
	return strings.ReplaceAll(msg, LockedOutUntilPlaceholder, until.Format(LockoutTimeLayout))
}

// BlacklistDenyMessage returns the message shown to blacklisted clients
func (p RateLimitPolicy) BlacklistDenyMessage() string {
	if p.BlacklistMessage == "" {
		return DefaultBlacklistMessage
	}
	return p.BlacklistMessage
}
