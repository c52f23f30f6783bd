package api

import (
	"net/http"
)

type statsResponse struct {
	DLQSize      int64 `json:"dlq_size"`
	Destinations int   `json:"destinations"`
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dlqCount, err := h.pipeline.DLQ().Count(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dests, err := h.pipeline.Store().ListDestinations(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		DLQSize:      dlqCount,
		Destinations: len(dests),
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.Store().Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
