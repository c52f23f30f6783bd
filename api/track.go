package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/beaconhq/beacon"
	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/event"
	"github.com/beaconhq/beacon/ratelimit"
)

type trackResponse struct {
	OK       bool               `json:"ok"`
	ID       string             `json:"id"`
	Deduped  bool               `json:"deduped"`
	Intended []destination.Type `json:"intended"`
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, ratelimit.Tracking) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	defer r.Body.Close()

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.pipeline.ValidateTrack(raw); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	var evt event.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.pipeline.Ingest(r.Context(), &evt)
	if err != nil {
		if errors.Is(err, beacon.ErrEventNameRequired) {
			writeFailure(w, http.StatusBadRequest, "name is required")
			return
		}
		h.logger.ErrorContext(r.Context(), "ingest failed", "error", err)
		writeFailure(w, http.StatusInternalServerError, "internal server error")
		return
	}

	intended := res.Intended
	if intended == nil {
		intended = []destination.Type{}
	}
	writeJSON(w, http.StatusOK, trackResponse{
		OK:       true,
		ID:       res.Event.ID.String(),
		Deduped:  res.Deduped,
		Intended: intended,
	})
}
