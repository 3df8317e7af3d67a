// Package transport exposes the HTTP status surface of the exporter.
package transport

import (
	"net/http"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	"github.com/goodnatureofminers/blockexport-backend/internal/export/service/syncer"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// staleAfter marks the loop unhealthy when no cycle finished for this long.
const staleAfter = 10 * time.Minute

type StatusResponse struct {
	Sync   syncer.Snapshot `json:"sync"`
	Alerts []model.Alert   `json:"alerts"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// StatusHandler serves the loop snapshot and the recent alerts.
type StatusHandler struct {
	state  SyncState
	alerts AlertLog
	now    func() time.Time
	logger *zap.Logger
}

func NewStatusHandler(state SyncState, alerts AlertLog, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		state:  state,
		alerts: alerts,
		now:    time.Now,
		logger: logger.Named("statusHandler"),
	}
}

// Register mounts /status and /healthz on mux.
func (h *StatusHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/status", h.Status)
	mux.HandleFunc("/healthz", h.Health)
}

func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := StatusResponse{
		Sync:   h.state.Snapshot(r.Context()),
		Alerts: []model.Alert{},
	}
	if h.alerts != nil {
		if recent := h.alerts.Recent(); recent != nil {
			resp.Alerts = recent
		}
	}
	h.write(w, http.StatusOK, resp)
}

// Health reports unhealthy when the loop stopped, or when it is running but no cycle finished recently.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.state.Snapshot(r.Context())
	switch {
	case snap.State == syncer.StateStopped:
		h.write(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Reason: "sync loop stopped"})
	case snap.State == syncer.StateRunning && !snap.LastCycleAt.IsZero() && h.now().Sub(snap.LastCycleAt) > staleAfter:
		h.write(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Reason: "no cycle since " + snap.LastCycleAt.Format(time.RFC3339)})
	default:
		h.write(w, http.StatusOK, HealthResponse{Status: "healthy"})
	}
}

func (h *StatusHandler) write(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("write response", zap.Error(err))
	}
}
