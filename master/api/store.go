package api

import (
	"context"

	"github.com/isabella232/sdc-amon/master/cache"
	"github.com/isabella232/sdc-amon/master/mapi"
	"github.com/isabella232/sdc-amon/master/ufds"
	"github.com/isabella232/sdc-amon/pkg/amonerr"
	"github.com/isabella232/sdc-amon/pkg/model"
)

// Cached reads. Each accessor funnels through the cache; the fetch closure
// runs on a miss. Writes below invalidate the entity's get entry and its
// parent's list entry. Deletes fetch the entity first, bypassing the cache,
// so a stale entry can never satisfy a delete.

func (h *Handler) account(login string) (*ufds.Account, error) {
	v, err := h.accounts.Through(cache.AccountByLogin, login, func() (interface{}, error) {
		return h.dir.AccountByLogin(login)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ufds.Account), nil
}

func (h *Handler) isOperator(accountDN string) (bool, error) {
	v, err := h.accounts.Through(cache.OperatorStatus, accountDN, func() (interface{}, error) {
		return h.dir.IsOperator(accountDN)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (h *Handler) machine(ctx context.Context, uuid string) (*mapi.Machine, error) {
	v, err := h.accounts.Through(cache.MachineOwnership, uuid, func() (interface{}, error) {
		return h.machines.GetMachine(ctx, uuid)
	})
	if err != nil {
		return nil, err
	}
	return v.(*mapi.Machine), nil
}

func (h *Handler) serverExists(ctx context.Context, uuid string) (bool, error) {
	v, err := h.accounts.Through(cache.ServerExists, uuid, func() (interface{}, error) {
		return h.machines.ServerExists(ctx, uuid)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// --- Contacts ---

func (h *Handler) contact(user, name string) (*model.Contact, error) {
	v, err := h.probes.Through(cache.ContactGet, model.ContactDN(user, name), func() (interface{}, error) {
		return h.dir.GetContact(user, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Contact), nil
}

func (h *Handler) contacts(user string) ([]*model.Contact, error) {
	v, err := h.probes.Through(cache.ContactList, model.AccountDN(user), func() (interface{}, error) {
		return h.dir.ListContacts(user)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.Contact), nil
}

func (h *Handler) putContact(ct *model.Contact) error {
	if err := h.dir.PutContact(ct); err != nil {
		return err
	}
	h.probes.Invalidate(cache.ContactGet, ct.DN())
	h.probes.Invalidate(cache.ContactList, model.AccountDN(ct.User))
	return nil
}

func (h *Handler) deleteContact(user, name string) error {
	ct, err := h.dir.GetContact(user, name)
	if err != nil {
		return err
	}
	if err := h.dir.DeleteContact(user, name); err != nil {
		return err
	}
	h.probes.Invalidate(cache.ContactGet, ct.DN())
	h.probes.Invalidate(cache.ContactList, model.AccountDN(user))
	return nil
}

// --- Monitors ---

func (h *Handler) monitor(user, name string) (*model.Monitor, error) {
	v, err := h.probes.Through(cache.MonitorGet, model.MonitorDN(user, name), func() (interface{}, error) {
		return h.dir.GetMonitor(user, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Monitor), nil
}

func (h *Handler) monitors(user string) ([]*model.Monitor, error) {
	v, err := h.probes.Through(cache.MonitorList, model.AccountDN(user), func() (interface{}, error) {
		return h.dir.ListMonitors(user)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.Monitor), nil
}

func (h *Handler) putMonitor(m *model.Monitor) error {
	if err := h.dir.PutMonitor(m); err != nil {
		return err
	}
	h.probes.Invalidate(cache.MonitorGet, m.DN())
	h.probes.Invalidate(cache.MonitorList, model.AccountDN(m.User))
	return nil
}

// deleteMonitor refuses to orphan probes: a monitor with probes remaining
// must have them deleted first.
func (h *Handler) deleteMonitor(user, name string) error {
	m, err := h.dir.GetMonitor(user, name)
	if err != nil {
		return err
	}
	probes, err := h.dir.ListProbes(user, name)
	if err != nil {
		return err
	}
	if len(probes) > 0 {
		return amonerr.Constraint("monitor %q still has %d probe(s); delete them first", name, len(probes))
	}
	if err := h.dir.DeleteMonitor(user, name); err != nil {
		return err
	}
	h.probes.Invalidate(cache.MonitorGet, m.DN())
	h.probes.Invalidate(cache.MonitorList, model.AccountDN(user))
	return nil
}

// --- Probes ---

func (h *Handler) probe(user, monitor, name string) (*model.Probe, error) {
	v, err := h.probes.Through(cache.ProbeGet, model.ProbeDN(user, monitor, name), func() (interface{}, error) {
		return h.dir.GetProbe(user, monitor, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Probe), nil
}

func (h *Handler) probeList(user, monitor string) ([]*model.Probe, error) {
	v, err := h.probes.Through(cache.ProbeList, model.MonitorDN(user, monitor), func() (interface{}, error) {
		return h.dir.ListProbes(user, monitor)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.Probe), nil
}

func (h *Handler) putProbe(p *model.Probe) error {
	if err := h.dir.PutProbe(p); err != nil {
		return err
	}
	h.probes.Invalidate(cache.ProbeGet, p.DN())
	h.probes.Invalidate(cache.ProbeList, model.MonitorDN(p.User, p.Monitor))
	return nil
}

func (h *Handler) deleteProbe(p *model.Probe) error {
	if err := h.dir.DeleteProbe(p.User, p.Monitor, p.Name); err != nil {
		return err
	}
	h.probes.Invalidate(cache.ProbeGet, p.DN())
	h.probes.Invalidate(cache.ProbeList, model.MonitorDN(p.User, p.Monitor))
	return nil
}
