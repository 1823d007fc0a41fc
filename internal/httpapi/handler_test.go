package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/httpapi"
	"github.com/MythologIQ/QoreLogic-sub000/internal/mode"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store/memory"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/logger"
)

func testThresholds() mode.Thresholds {
	return mode.Thresholds{CPUHighWatermark: 70, CPULowWatermark: 50, QueueSoft: 30, QueueHard: 40, QueueCapacity: 40}
}

func TestHealthzReturnsOK(t *testing.T) {
	modeC, err := mode.New(context.Background(), memory.New(), logger.New("test", "fatal", "json"), testThresholds())
	require.NoError(t, err)
	h := httpapi.NewHandler(modeC, mode.NewQueue(testThresholds()))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestSystemStatusReflectsModeAndQueueDepth(t *testing.T) {
	modeC, err := mode.New(context.Background(), memory.New(), logger.New("test", "fatal", "json"), testThresholds())
	require.NoError(t, err)
	queue := mode.NewQueue(testThresholds())
	_, err = queue.Admit(mode.PriorityInteractive, domain.RiskL1)
	require.NoError(t, err)

	h := httpapi.NewHandler(modeC, queue)
	req := httptest.NewRequest(http.MethodGet, "/system/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Mode       string `json:"mode"`
		QueueDepth int    `json:"queue_depth"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NORMAL", body.Mode)
	assert.Equal(t, 1, body.QueueDepth)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	modeC, err := mode.New(context.Background(), memory.New(), logger.New("test", "fatal", "json"), testThresholds())
	require.NoError(t, err)
	h := httpapi.NewHandler(modeC, mode.NewQueue(testThresholds()))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
