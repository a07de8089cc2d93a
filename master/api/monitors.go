package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/isabella232/sdc-amon/pkg/amonerr"
	"github.com/isabella232/sdc-amon/pkg/event"
	"github.com/isabella232/sdc-amon/pkg/model"
)

func (h *Handler) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())
	monitors, err := h.monitors(acct.UUID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]model.MonitorView, 0, len(monitors))
	for _, m := range monitors {
		views = append(views, m.View())
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())
	m, err := h.monitor(acct.UUID, chi.URLParam(r, "monitor"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.View())
}

func (h *Handler) handlePutMonitor(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())

	var in model.MonitorInput
	if err := decodeMerged(r, map[string]interface{}{"name": chi.URLParam(r, "monitor")}, &in); err != nil {
		h.writeError(w, err)
		return
	}
	m, err := model.NewMonitor(acct.UUID, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.putMonitor(m); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.View())
}

func (h *Handler) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())
	if err := h.deleteMonitor(acct.UUID, chi.URLParam(r, "monitor")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMonitorAction serves POST /pub/{login}/monitors/{monitor}. The only
// action is fakefault: synthesize an event and push it through the same
// dispatch path a relayed event takes.
func (h *Handler) handleMonitorAction(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())
	name := chi.URLParam(r, "monitor")

	action := r.URL.Query().Get("action")
	if action != "fakefault" {
		h.writeError(w, amonerr.InvalidArgument("unknown action %q", action))
		return
	}
	clear := r.URL.Query().Get("clear") == "true"

	msg := fmt.Sprintf("Fake fault on monitor %q.", name)
	if clear {
		msg = fmt.Sprintf("Fake fault on monitor %q cleared.", name)
	}
	ev := event.New(event.TypeFake, acct.UUID, name, map[string]interface{}{"message": msg})
	ev.Clear = clear

	h.dispatch(r.Context(), ev)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
