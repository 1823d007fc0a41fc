// Package logger provides structured logging with trace-ID and audit
// helpers shared by every component of the governance core.
package logger

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys used to thread request-scoped
// identifiers through logging calls.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	AgentIDKey ContextKey = "agent_id"
)

// Logger wraps logrus.Logger with governance-specific helpers.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for the given component with an explicit level and
// format ("json" or "text").
func New(component, level, format string) *Logger {
	base := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if format == "json" {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
	base.SetOutput(os.Stdout)

	return &Logger{Logger: base, component: component}
}

// NewFromEnv builds a logger from LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json when unset.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext returns an entry carrying trace/agent fields from ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(AgentIDKey); v != nil {
		entry = entry.WithField("agent_id", v)
	}
	return entry
}

// NewTraceID returns a fresh correlation identifier.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithAgentID attaches an acting agent identifier to ctx.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, AgentIDKey, agentID)
}

// LogAudit records a governance audit line: action taken, on what
// resource, with what result. The dispatcher does not call it.
func (l *Logger) LogAudit(ctx context.Context, action, resource, result string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"action":   action,
		"resource": resource,
		"result":   result,
		"audit":    true,
	}).Info("governance audit")
}

// LogSecurityEvent records a security-relevant occurrence (tamper
// detection, quarantine, manipulation track) at warn level.
func (l *Logger) LogSecurityEvent(ctx context.Context, eventType string, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["event_type"] = eventType
	fields["severity"] = "security"
	l.WithContext(ctx).WithFields(fields).Warn("security event")
}

// LogCryptoOperation records a signing/verification/encryption outcome.
func (l *Logger) LogCryptoOperation(ctx context.Context, operation string, success bool, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"operation": operation,
		"success":   success,
	})
	if err != nil {
		entry.WithError(err).Error("cryptographic operation failed")
		return
	}
	entry.Debug("cryptographic operation completed")
}

// LogLedgerAppend records a committed ledger entry.
func (l *Logger) LogLedgerAppend(ctx context.Context, seq int64, kind string, riskGrade string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"sequence":   seq,
		"event_kind": kind,
		"risk_grade": riskGrade,
	}).Info("ledger entry appended")
}
