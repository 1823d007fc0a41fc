// Package httpapi exposes the engine's debug surface: liveness,
// Prometheus metrics, and a read-only system status snapshot. It is
// deliberately not a general RPC gateway — every governance operation
// is reached through internal/dispatch directly (by an in-process CLI
// or an embedding application), not over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MythologIQ/QoreLogic-sub000/internal/mode"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/metrics"
)

// handler bundles the debug endpoints.
type handler struct {
	modeC     *mode.Controller
	queue     *mode.Queue
	startedAt time.Time
}

// NewHandler builds the debug mux.
func NewHandler(modeC *mode.Controller, queue *mode.Queue) http.Handler {
	h := &handler{modeC: modeC, queue: queue, startedAt: time.Now()}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/system/status", h.systemStatus)
	return mux
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type systemStatusResponse struct {
	Mode        string `json:"mode"`
	QueueDepth  int    `json:"queue_depth"`
	UptimeSecs  int64  `json:"uptime_seconds"`
}

func (h *handler) systemStatus(w http.ResponseWriter, r *http.Request) {
	resp := systemStatusResponse{
		Mode:       string(h.modeC.Current()),
		QueueDepth: h.queue.Depth(),
		UptimeSecs: int64(time.Since(h.startedAt).Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
