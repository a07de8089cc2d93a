package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/isabella232/sdc-amon/pkg/model"
)

func (h *Handler) handleListContacts(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())
	contacts, err := h.contacts(acct.UUID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]model.ContactView, 0, len(contacts))
	for _, ct := range contacts {
		views = append(views, ct.View())
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGetContact(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())
	ct, err := h.contact(acct.UUID, chi.URLParam(r, "contact"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ct.View())
}

func (h *Handler) handlePutContact(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())

	var in model.ContactInput
	if err := decodeMerged(r, map[string]interface{}{"name": chi.URLParam(r, "contact")}, &in); err != nil {
		h.writeError(w, err)
		return
	}
	ct, err := model.NewContact(acct.UUID, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.putContact(ct); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ct.View())
}

func (h *Handler) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())
	if err := h.deleteContact(acct.UUID, chi.URLParam(r, "contact")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
