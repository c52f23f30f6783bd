package api

import (
	"errors"
	"net/http"

	"github.com/beaconhq/beacon"
	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/id"
)

func (h *Handler) upsertDestination(w http.ResponseWriter, r *http.Request) {
	var in destination.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := h.pipeline.Destinations().Upsert(r.Context(), in)
	if err != nil {
		var verr *destination.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) listDestinations(w http.ResponseWriter, r *http.Request) {
	dests, err := h.pipeline.Destinations().List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dests)
}

func (h *Handler) getDestination(w http.ResponseWriter, r *http.Request) {
	destID, err := id.ParseDestinationID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid destination ID")
		return
	}

	d, getErr := h.pipeline.Destinations().Get(r.Context(), destID)
	if getErr != nil {
		if errors.Is(getErr, beacon.ErrDestinationNotFound) {
			writeError(w, http.StatusNotFound, "destination not found")
			return
		}
		writeError(w, http.StatusInternalServerError, getErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) deleteDestination(w http.ResponseWriter, r *http.Request) {
	destID, err := id.ParseDestinationID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid destination ID")
		return
	}

	if delErr := h.pipeline.Destinations().Delete(r.Context(), destID); delErr != nil {
		if errors.Is(delErr, beacon.ErrDestinationNotFound) {
			writeError(w, http.StatusNotFound, "destination not found")
			return
		}
		writeError(w, http.StatusInternalServerError, delErr.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
