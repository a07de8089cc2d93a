package ufds

import (
	"github.com/go-ldap/ldap/v3"

	"github.com/isabella232/sdc-amon/pkg/amonerr"
	"github.com/isabella232/sdc-amon/pkg/model"
)

// Account is the external identity record amon reads but never writes.
type Account struct {
	UUID  string
	Login string
	Email string
	CN    string
	SN    string
	DN    string
}

// AccountView is the public serialization of an account summary.
type AccountView struct {
	UUID  string `json:"uuid"`
	Login string `json:"login"`
	Email string `json:"email,omitempty"`
	CN    string `json:"cn,omitempty"`
	SN    string `json:"sn,omitempty"`
}

func (a *Account) View() AccountView {
	return AccountView{UUID: a.UUID, Login: a.Login, Email: a.Email, CN: a.CN, SN: a.SN}
}

var accountAttrs = []string{"uuid", "login", "email", "cn", "sn"}

// AccountByLogin resolves a login to its account record.
func (c *Client) AccountByLogin(login string) (*Account, error) {
	entries, err := c.search(
		model.UsersBase,
		ldap.ScopeSingleLevel,
		filterAnd("(objectclass=sdcperson)", filterEq("login", login)),
		accountAttrs,
	)
	if err != nil {
		return nil, err
	}
	switch len(entries) {
	case 0:
		return nil, amonerr.NotFound("no such account: %q", login)
	case 1:
	default:
		return nil, amonerr.Internal("login %q matches %d accounts", login, len(entries))
	}
	e := entries[0]
	attrs := entryAttrs(e)
	acct := &Account{
		UUID:  singleValue(attrs, "uuid"),
		Login: singleValue(attrs, "login"),
		Email: singleValue(attrs, "email"),
		CN:    singleValue(attrs, "cn"),
		SN:    singleValue(attrs, "sn"),
		DN:    e.DN,
	}
	if acct.UUID == "" || acct.Login == "" {
		return nil, amonerr.Internal("corrupt account entry %q", e.DN)
	}
	return acct, nil
}

// IsOperator reports whether the account DN is a member of the operators
// group. A missing group means nobody is an operator.
func (c *Client) IsOperator(accountDN string) (bool, error) {
	entries, err := c.search(
		model.OperatorsGroupDN,
		ldap.ScopeBaseObject,
		filterEq("uniquemember", accountDN),
		[]string{"cn"},
	)
	if amonerr.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// --- Contacts ---

func (c *Client) GetContact(user, name string) (*model.Contact, error) {
	dn := model.ContactDN(user, name)
	entries, err := c.search(dn, ldap.ScopeBaseObject, "(objectclass=amoncontact)", nil)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, amonerr.NotFound("no such contact: %q", name)
	}
	return model.ContactFromEntry(entries[0].DN, entryAttrs(entries[0]))
}

func (c *Client) ListContacts(user string) ([]*model.Contact, error) {
	entries, err := c.search(
		model.AccountDN(user),
		ldap.ScopeSingleLevel,
		"(objectclass=amoncontact)",
		nil,
	)
	if err != nil {
		return nil, err
	}
	contacts := make([]*model.Contact, 0, len(entries))
	for _, e := range entries {
		ct, err := model.ContactFromEntry(e.DN, entryAttrs(e))
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, ct)
	}
	return contacts, nil
}

func (c *Client) PutContact(ct *model.Contact) error {
	return c.upsert(ct.DN(), ct.Attributes(), "amoncontact")
}

func (c *Client) DeleteContact(user, name string) error {
	return c.delete(model.ContactDN(user, name))
}

// --- Monitors ---

func (c *Client) GetMonitor(user, name string) (*model.Monitor, error) {
	dn := model.MonitorDN(user, name)
	entries, err := c.search(dn, ldap.ScopeBaseObject, "(objectclass=amonmonitor)", nil)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, amonerr.NotFound("no such monitor: %q", name)
	}
	return model.MonitorFromEntry(entries[0].DN, entryAttrs(entries[0]))
}

func (c *Client) ListMonitors(user string) ([]*model.Monitor, error) {
	entries, err := c.search(
		model.AccountDN(user),
		ldap.ScopeSingleLevel,
		"(objectclass=amonmonitor)",
		nil,
	)
	if err != nil {
		return nil, err
	}
	monitors := make([]*model.Monitor, 0, len(entries))
	for _, e := range entries {
		m, err := model.MonitorFromEntry(e.DN, entryAttrs(e))
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, nil
}

func (c *Client) PutMonitor(m *model.Monitor) error {
	return c.upsert(m.DN(), m.Attributes(), "amonmonitor", "contact")
}

func (c *Client) DeleteMonitor(user, name string) error {
	return c.delete(model.MonitorDN(user, name))
}

// --- Probes ---

func (c *Client) GetProbe(user, monitor, name string) (*model.Probe, error) {
	dn := model.ProbeDN(user, monitor, name)
	entries, err := c.search(dn, ldap.ScopeBaseObject, "(objectclass=amonprobe)", nil)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, amonerr.NotFound("no such probe: %q", name)
	}
	return model.ProbeFromEntry(c.cfg.Registry, entries[0].DN, entryAttrs(entries[0]))
}

func (c *Client) ListProbes(user, monitor string) ([]*model.Probe, error) {
	entries, err := c.search(
		model.MonitorDN(user, monitor),
		ldap.ScopeSingleLevel,
		"(objectclass=amonprobe)",
		nil,
	)
	if err != nil {
		return nil, err
	}
	return c.probesFromEntries(entries)
}

func (c *Client) PutProbe(p *model.Probe) error {
	return c.upsert(p.DN(), p.Attributes(), "amonprobe", "machine", "server")
}

func (c *Client) DeleteProbe(user, monitor, name string) error {
	return c.delete(model.ProbeDN(user, monitor, name))
}

// ProbesByMachine returns every probe across all accounts that targets the
// machine directly.
func (c *Client) ProbesByMachine(machine string) ([]*model.Probe, error) {
	entries, err := c.search(
		model.UsersBase,
		ldap.ScopeWholeSubtree,
		filterAnd("(objectclass=amonprobe)", filterEq("machine", machine)),
		nil,
	)
	if err != nil {
		return nil, err
	}
	return c.probesFromEntries(entries)
}

// ProbesByServer returns every probe targeting the compute node itself.
func (c *Client) ProbesByServer(server string) ([]*model.Probe, error) {
	entries, err := c.search(
		model.UsersBase,
		ldap.ScopeWholeSubtree,
		filterAnd("(objectclass=amonprobe)", filterEq("server", server)),
		nil,
	)
	if err != nil {
		return nil, err
	}
	return c.probesFromEntries(entries)
}

// GlobalProbesByMachines returns global-flagged probes whose machine is one
// of the given UUIDs. Used to assemble a compute node's manifest: global
// machine probes run on the node, not in the tenant sandbox.
func (c *Client) GlobalProbesByMachines(machines []string) ([]*model.Probe, error) {
	if len(machines) == 0 {
		return nil, nil
	}
	or := "(|"
	for _, m := range machines {
		or += filterEq("machine", m)
	}
	or += ")"
	entries, err := c.search(
		model.UsersBase,
		ldap.ScopeWholeSubtree,
		filterAnd("(objectclass=amonprobe)", "(global=true)", or),
		nil,
	)
	if err != nil {
		return nil, err
	}
	return c.probesFromEntries(entries)
}

func (c *Client) probesFromEntries(entries []*ldap.Entry) ([]*model.Probe, error) {
	probes := make([]*model.Probe, 0, len(entries))
	for _, e := range entries {
		p, err := model.ProbeFromEntry(c.cfg.Registry, e.DN, entryAttrs(e))
		if err != nil {
			return nil, err
		}
		probes = append(probes, p)
	}
	return probes, nil
}

func singleValue(attrs map[string][]string, name string) string {
	if vals := attrs[name]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}
