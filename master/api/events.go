package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/isabella232/sdc-amon/pkg/amonerr"
	"github.com/isabella232/sdc-amon/pkg/event"
)

// handleAddEvents ingests one event from a relay. Ingest is idempotent on
// the event uuid: a replay inside the de-duplication window is acknowledged
// without running dispatch again. Envelope failures are the caller's fault
// and come back as a plain 400.
func (h *Handler) handleAddEvents(w http.ResponseWriter, r *http.Request) {
	var ev event.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeBadEvent(w, amonerr.InvalidArgument("invalid event body: %v", err))
		return
	}
	if err := ev.Validate(); err != nil {
		writeBadEvent(w, amonerr.InvalidArgument("invalid event: %v", err))
		return
	}

	eventsReceived.WithLabelValues(string(ev.Type)).Inc()
	if _, seen := h.dedup.Get(ev.UUID); seen {
		h.log.Debug("duplicate event, skipping dispatch", "event", ev.UUID)
		eventsDuplicate.Inc()
		w.WriteHeader(http.StatusAccepted)
		return
	}
	h.dedup.Add(ev.UUID, time.Now())

	h.dispatch(r.Context(), &ev)
	w.WriteHeader(http.StatusAccepted)
}

// writeBadEvent writes the usual wire form but with a 400: event producers
// are internal components, not API clients, and the contract pins this
// status for malformed envelopes.
func writeBadEvent(w http.ResponseWriter, e *amonerr.Error) {
	body, _ := json.Marshal(e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write(body)
}
