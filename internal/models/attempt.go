package models

import "time"

// AttemptStatus is the outcome recorded for a client or a single attempt
type AttemptStatus string

const (
	StatusFail     AttemptStatus = "fail"
	StatusSuccess  AttemptStatus = "success"
	StatusLocked   AttemptStatus = "locked"
	StatusUnlocked AttemptStatus = "unlocked"
)

// Valid reports whether s is one of the known statuses
func (s AttemptStatus) Valid() bool {
	switch s {
	case StatusFail, StatusSuccess, StatusLocked, StatusUnlocked:
		return true
	}
	return false
}

// ClientRecord summarizes every attempt made from one client key (IP address).
// There is exactly one record per key.
type ClientRecord struct {
	ID            string        `db:"id" json:"id"`
	ClientKey     string        `db:"client_key" json:"client_key"`
	CurrentStatus AttemptStatus `db:"current_status" json:"current_status"`
	TotalAttempts int           `db:"total_attempts" json:"total_attempts"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// ClientUpdate is a partial update of a ClientRecord.
// AttemptsDelta is applied as an increment so concurrent writers never lose counts.
type ClientUpdate struct {
	Status        *AttemptStatus
	AttemptsDelta int
}

// AttemptDetail is a single, append-only authentication event
type AttemptDetail struct {
	ID             string        `db:"id" json:"id"`
	ClientRecordID string        `db:"client_record_id" json:"client_record_id"`
	Username       *string       `db:"username" json:"username,omitempty"`
	UserID         *string       `db:"user_id" json:"user_id,omitempty"`
	Status         AttemptStatus `db:"status" json:"status"`
	IsExtended     bool          `db:"is_extended" json:"is_extended"`
	LockoutUntil   *time.Time    `db:"lockout_until" json:"lockout_until,omitempty"`
	UserAgent      string        `db:"user_agent" json:"user_agent"`
	AttemptTime    time.Time     `db:"attempt_time" json:"attempt_time"`
}

// ActiveAt reports whether the detail is a lock that is still in force at t
func (d *AttemptDetail) ActiveAt(t time.Time) bool {
	return d != nil && d.Status == StatusLocked && d.LockoutUntil != nil && t.Before(*d.LockoutUntil)
}

// ClientFilter narrows administrative client listings
type ClientFilter struct {
	Statuses []AttemptStatus
	Limit    int
	Offset   int
}

// DetailFilter narrows administrative attempt-detail listings
type DetailFilter struct {
	Statuses []AttemptStatus
	Limit    int
	Offset   int
}

// StringPtr returns nil for an empty string, otherwise a pointer to s
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
