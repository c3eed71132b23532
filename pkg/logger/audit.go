package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType    string
	ClientKey    string
	Username     string
	UserAgent    string
	Success      bool
	Reason       string
	LockoutUntil *time.Time
	Metadata     map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogGuardEvent logs lockout transitions and guard denials
func (al *AuditLogger) LogGuardEvent(event AuditEvent) {
	al.log("guard", event)
}

// LogAdminLogin logs administrative login attempts
func (al *AuditLogger) LogAdminLogin(event AuditEvent) {
	al.log("admin_auth", event)
}

// LogAdminAction logs changes made through the administrative API
func (al *AuditLogger) LogAdminAction(eventType, actor, clientKey string, metadata map[string]string) {
	al.log("admin", AuditEvent{
		EventType: eventType,
		Username:  actor,
		ClientKey: clientKey,
		Success:   true,
		Metadata:  metadata,
	})
}

func (al *AuditLogger) log(auditType string, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.ClientKey != "" {
		attrs = append(attrs, slog.String("client_key", event.ClientKey))
	}
	if event.Username != "" {
		attrs = append(attrs, slog.String("username", SanitizedUsername(event.Username)))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if event.LockoutUntil != nil {
		attrs = append(attrs, slog.String("lockout_until", event.LockoutUntil.UTC().Format(time.RFC3339)))
	}

	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}
