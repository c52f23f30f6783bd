package api

import (
	"errors"
	"net/http"

	"github.com/beaconhq/beacon"
	"github.com/beaconhq/beacon/forward"
	"github.com/beaconhq/beacon/id"
)

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	opts := forward.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}

	if s := queryParam(r, "state"); s != "" {
		state := forward.State(s)
		switch state {
		case forward.StateQueued, forward.StateCompleted, forward.StateFailed:
			opts.State = &state
		default:
			writeError(w, http.StatusBadRequest, "invalid state filter")
			return
		}
	}

	jobs, err := h.pipeline.Store().ListJobs(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	j, getErr := h.pipeline.Store().GetJob(r.Context(), jobID)
	if getErr != nil {
		if errors.Is(getErr, beacon.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, getErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) purgeJobs(w http.ResponseWriter, r *http.Request) {
	purged, err := h.pipeline.Store().PurgeCompletedJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"purged": purged})
}
