package api

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/isabella232/sdc-amon/pkg/amonerr"
	"github.com/isabella232/sdc-amon/pkg/model"
)

// handleAgentProbes serves the probe manifest for one relay target. A
// machine target gets the probes bound to it minus the global ones (those
// run on the node); a server target gets the probes bound to the node plus
// the global probes of every machine hosted there.
func (h *Handler) handleAgentProbes(w http.ResponseWriter, r *http.Request) {
	machine := r.URL.Query().Get("machine")
	server := r.URL.Query().Get("server")

	var probes []*model.Probe
	switch {
	case machine != "" && server != "":
		h.writeError(w, amonerr.InvalidArgument(`cannot specify both "machine" and "server"`))
		return
	case machine != "":
		if !model.ValidUUID(machine) {
			h.writeError(w, amonerr.InvalidArgument("machine: %q is not a UUID", machine))
			return
		}
		all, err := h.dir.ProbesByMachine(machine)
		if err != nil {
			h.writeError(w, err)
			return
		}
		for _, p := range all {
			if !p.Global {
				probes = append(probes, p)
			}
		}
	case server != "":
		if !model.ValidUUID(server) {
			h.writeError(w, amonerr.InvalidArgument("server: %q is not a UUID", server))
			return
		}
		var err error
		probes, err = h.serverManifest(r, server)
		if err != nil {
			h.writeError(w, err)
			return
		}
	default:
		h.writeError(w, amonerr.MissingParameter(`one of "machine" or "server" is required`))
		return
	}

	views := make([]model.ProbeView, 0, len(probes))
	for _, p := range probes {
		views = append(views, p.View(true))
	}
	model.SortProbeViews(views)

	body, err := json.Marshal(views)
	if err != nil {
		h.writeError(w, amonerr.Internal("manifest encoding failed").WithCause(err))
		return
	}
	sum := md5.Sum(body)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-MD5", base64.StdEncoding.EncodeToString(sum[:]))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(body)
}

func (h *Handler) serverManifest(r *http.Request, server string) ([]*model.Probe, error) {
	probes, err := h.dir.ProbesByServer(server)
	if err != nil {
		return nil, err
	}
	machines, err := h.machines.ListMachines(r.Context(), server)
	if err != nil {
		return nil, err
	}
	uuids := make([]string, 0, len(machines))
	for _, m := range machines {
		uuids = append(uuids, m.UUID)
	}
	global, err := h.dir.GlobalProbesByMachines(uuids)
	if err != nil {
		return nil, err
	}
	return append(probes, global...), nil
}
