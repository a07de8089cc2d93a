package model

import (
	"github.com/isabella232/sdc-amon/pkg/amonerr"
)

const MonitorObjectClass = "amonmonitor"

// Monitor is a named alert group. Its contacts list names contacts of the
// same account; resolution happens at dispatch time, so a monitor may
// reference a contact that no longer exists.
type Monitor struct {
	User     string
	Name     string
	Contacts []string
}

// MonitorInput is the API write form of a monitor.
type MonitorInput struct {
	Name     string   `json:"name" mapstructure:"name"`
	Contacts []string `json:"contacts" mapstructure:"contacts"`
}

// MonitorView is the API read form of a monitor.
type MonitorView struct {
	User     string   `json:"user"`
	Name     string   `json:"name"`
	Contacts []string `json:"contacts"`
}

// NewMonitor builds a monitor from API input.
func NewMonitor(user string, in MonitorInput) (*Monitor, error) {
	if in.Contacts == nil {
		return nil, amonerr.MissingParameter("contacts is required")
	}
	m := &Monitor{
		User:     user,
		Name:     in.Name,
		Contacts: append([]string(nil), in.Contacts...),
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// MonitorFromEntry builds a monitor from its raw directory entry. The
// contact attribute is multi-valued; the directory preserves value order.
func MonitorFromEntry(dn string, attrs map[string][]string) (*Monitor, error) {
	if !hasObjectClass(attrs, MonitorObjectClass) {
		return nil, amonerr.Internal("entry %q is not an %s", dn, MonitorObjectClass)
	}
	user, name, err := ParseMonitorDN(dn)
	if err != nil {
		return nil, amonerr.Internal("monitor entry: %v", err)
	}
	m := &Monitor{
		User:     user,
		Name:     name,
		Contacts: append([]string(nil), attrs["contact"]...),
	}
	if err := m.validate(); err != nil {
		return nil, amonerr.Internal("corrupt monitor entry %q: %v", dn, err)
	}
	return m, nil
}

func (m *Monitor) validate() error {
	if m.Name == "" {
		return amonerr.MissingParameter("name is required")
	}
	if !ValidName(m.Name) {
		return amonerr.InvalidArgument("name: %q is not a valid name", m.Name)
	}
	if !ValidUUID(m.User) {
		return amonerr.InvalidArgument("user: %q is not a UUID", m.User)
	}
	seen := map[string]bool{}
	for _, contact := range m.Contacts {
		if !ValidName(contact) {
			return amonerr.InvalidArgument("contacts: %q is not a valid contact name", contact)
		}
		if seen[contact] {
			return amonerr.InvalidArgument("contacts: %q is listed twice", contact)
		}
		seen[contact] = true
	}
	return nil
}

func (m *Monitor) DN() string {
	return MonitorDN(m.User, m.Name)
}

// Attributes returns the entry form written to the directory.
func (m *Monitor) Attributes() map[string][]string {
	return map[string][]string{
		"objectclass": {MonitorObjectClass},
		"amonmonitor": {m.Name},
		"contact":     append([]string(nil), m.Contacts...),
	}
}

func (m *Monitor) View() MonitorView {
	return MonitorView{
		User:     m.User,
		Name:     m.Name,
		Contacts: append([]string(nil), m.Contacts...),
	}
}
