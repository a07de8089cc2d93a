package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/isabella232/sdc-amon/pkg/model"
)

func (h *Handler) handleListProbes(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())
	monitor := chi.URLParam(r, "monitor")

	if _, err := h.monitor(acct.UUID, monitor); err != nil {
		h.writeError(w, err)
		return
	}
	probes, err := h.probeList(acct.UUID, monitor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]model.ProbeView, 0, len(probes))
	for _, p := range probes {
		views = append(views, p.View(false))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGetProbe(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())
	p, err := h.probe(acct.UUID, chi.URLParam(r, "monitor"), chi.URLParam(r, "probe"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.View(false))
}

func (h *Handler) handlePutProbe(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())
	monitor := chi.URLParam(r, "monitor")

	// A probe cannot exist under a monitor that does not.
	if _, err := h.monitor(acct.UUID, monitor); err != nil {
		h.writeError(w, err)
		return
	}

	var in model.ProbeInput
	if err := decodeMerged(r, map[string]interface{}{"name": chi.URLParam(r, "probe")}, &in); err != nil {
		h.writeError(w, err)
		return
	}
	p, err := model.NewProbe(h.types, acct.UUID, monitor, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.authorizeProbePut(r.Context(), acct, p); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.putProbe(p); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.View(false))
}

// handleDeleteProbe fetches the stored probe first: authorization runs
// against what is actually stored, not against anything the caller sent.
func (h *Handler) handleDeleteProbe(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())

	p, err := h.dir.GetProbe(acct.UUID, chi.URLParam(r, "monitor"), chi.URLParam(r, "probe"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.authorizeProbeDelete(r.Context(), acct, p); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.deleteProbe(p); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
