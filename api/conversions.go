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
	"github.com/beaconhq/beacon/signature"
)

type conversionResponse struct {
	OK       bool               `json:"ok"`
	ID       string             `json:"id"`
	EventID  string             `json:"event_id"`
	Intended []destination.Type `json:"intended"`
}

func (h *Handler) recordConversion(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	defer r.Body.Close()

	// The signature gate runs before anything is parsed or admitted.
	if h.config.WebhookSecret != "" {
		sig := r.Header.Get(signature.HeaderSignature)
		ts := r.Header.Get(signature.HeaderTimestamp)
		if err := signature.Verify(body, sig, h.config.WebhookSecret, ts, 0); err != nil {
			h.logger.WarnContext(r.Context(), "webhook signature rejected", "error", err)
			writeFailure(w, http.StatusUnauthorized, err.Error())
			return
		}
	}

	if !h.allow(w, r, ratelimit.Conversions) {
		return
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.pipeline.ValidateConversion(raw); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	var conv event.Conversion
	if err := json.Unmarshal(body, &conv); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.pipeline.RecordConversion(r.Context(), &conv)
	if err != nil {
		if errors.Is(err, beacon.ErrConversionStatusRequired) {
			writeFailure(w, http.StatusBadRequest, "status is required")
			return
		}
		h.logger.ErrorContext(r.Context(), "record conversion failed", "error", err)
		writeFailure(w, http.StatusInternalServerError, "internal server error")
		return
	}

	intended := res.Intended
	if intended == nil {
		intended = []destination.Type{}
	}
	writeJSON(w, http.StatusOK, conversionResponse{
		OK:       true,
		ID:       conv.ID.String(),
		EventID:  res.Event.ID.String(),
		Intended: intended,
	})
}
