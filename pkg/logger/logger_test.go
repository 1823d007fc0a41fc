package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MythologIQ/QoreLogic-sub000/pkg/logger"
)

func newCapturingLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	l := logger.New("test-component", "debug", "json")
	var buf bytes.Buffer
	l.Logger.SetOutput(&buf)
	return l, &buf
}

func TestNewParsesLevelAndFormat(t *testing.T) {
	l := logger.New("svc", "warn", "text")
	assert.Equal(t, logrus.WarnLevel, l.Logger.GetLevel())
}

func TestNewDefaultsToInfoOnInvalidLevel(t *testing.T) {
	l := logger.New("svc", "not-a-level", "json")
	assert.Equal(t, logrus.InfoLevel, l.Logger.GetLevel())
}

func TestWithContextAttachesTraceAndAgentIDs(t *testing.T) {
	l, buf := newCapturingLogger(t)
	ctx := logger.WithTraceID(context.Background(), "trace-123")
	ctx = logger.WithAgentID(ctx, "agent-1")

	l.WithContext(ctx).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "trace-123", line["trace_id"])
	assert.Equal(t, "agent-1", line["agent_id"])
	assert.Equal(t, "test-component", line["component"])
}

func TestLogAuditSetsAuditField(t *testing.T) {
	l, buf := newCapturingLogger(t)
	l.LogAudit(context.Background(), "audit_code", "README.md", "verified")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, true, line["audit"])
	assert.Equal(t, "audit_code", line["action"])
}

func TestLogSecurityEventSetsSeverity(t *testing.T) {
	l, buf := newCapturingLogger(t)
	l.LogSecurityEvent(context.Background(), "hash_tampering", nil)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "security", line["severity"])
	assert.Equal(t, "hash_tampering", line["event_type"])
}

func TestNewTraceIDIsUnique(t *testing.T) {
	a := logger.NewTraceID()
	b := logger.NewTraceID()
	assert.NotEqual(t, a, b)
}
