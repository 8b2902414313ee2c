package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditAuthFailure       AuditEvent = "auth_failure"
	AuditIssuerCreated     AuditEvent = "issuer_created"
	AuditIssuerUpdated     AuditEvent = "issuer_updated"
	AuditIssuerDeleted     AuditEvent = "issuer_deleted"
	AuditStepCompleted     AuditEvent = "step_completed"
	AuditStepFailed        AuditEvent = "step_failed"
	AuditCertIssued        AuditEvent = "cert_issued"
	AuditCertDeleted       AuditEvent = "cert_deleted"
	AuditIssuerLogAccessed AuditEvent = "issuer_log_accessed"
)

// auditLogger wraps slog.Logger for structured audit logging.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if userID := userIDFromContext(r.Context()); userID != "" {
		baseAttrs = append(baseAttrs, slog.String("user_id", userID))
	}
	baseAttrs = append(baseAttrs, attrs...)

	level := slog.LevelInfo
	if event == AuditAuthFailure || event == AuditStepFailed {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(r.Context(), level, "audit", baseAttrs...)
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
}

// logIssuer is a convenience for events concerning one issuer.
func (al *auditLogger) logIssuer(event AuditEvent, r *http.Request, issuerID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("issuer_id", issuerID),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a rejected request.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
