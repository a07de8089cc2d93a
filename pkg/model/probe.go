package model

import (
	"encoding/json"
	"sort"

	"github.com/isabella232/sdc-amon/pkg/amonerr"
	"github.com/isabella232/sdc-amon/pkg/probetype"
)

const ProbeObjectClass = "amonprobe"

// Probe is one check to run on behalf of a monitor. It targets exactly one
// machine or one server; Global is never set by callers, it is derived from
// the probe type's registry entry.
type Probe struct {
	User    string
	Monitor string
	Name    string
	Type    string
	Machine string
	Server  string
	Config  map[string]interface{}
	Global  bool
}

// ProbeInput is the API write form of a probe.
type ProbeInput struct {
	Name    string                 `json:"name" mapstructure:"name"`
	Type    string                 `json:"type" mapstructure:"type"`
	Machine string                 `json:"machine,omitempty" mapstructure:"machine"`
	Server  string                 `json:"server,omitempty" mapstructure:"server"`
	Config  map[string]interface{} `json:"config" mapstructure:"config"`
}

// ProbeView is the read form of a probe. Global is operational detail: it is
// present in the internal view served to relays and absent from the public
// API view.
type ProbeView struct {
	User    string                 `json:"user"`
	Monitor string                 `json:"monitor"`
	Name    string                 `json:"name"`
	Type    string                 `json:"type"`
	Machine string                 `json:"machine,omitempty"`
	Server  string                 `json:"server,omitempty"`
	Config  map[string]interface{} `json:"config"`
	Global  *bool                  `json:"global,omitempty"`
}

// NewProbe builds a probe from API input. The registry supplies type
// existence, config validation and the global flag.
func NewProbe(reg *probetype.Registry, user, monitor string, in ProbeInput) (*Probe, error) {
	p := &Probe{
		User:    user,
		Monitor: monitor,
		Name:    in.Name,
		Type:    in.Type,
		Machine: in.Machine,
		Server:  in.Server,
		Config:  in.Config,
	}
	if p.Config == nil {
		p.Config = map[string]interface{}{}
	}
	if err := p.validate(reg); err != nil {
		return nil, err
	}
	return p, nil
}

// ProbeFromEntry builds a probe from its raw directory entry. The stored
// global attribute is informational; the registry remains the source of
// truth for it.
func ProbeFromEntry(reg *probetype.Registry, dn string, attrs map[string][]string) (*Probe, error) {
	if !hasObjectClass(attrs, ProbeObjectClass) {
		return nil, amonerr.Internal("entry %q is not an %s", dn, ProbeObjectClass)
	}
	user, monitor, name, err := ParseProbeDN(dn)
	if err != nil {
		return nil, amonerr.Internal("probe entry: %v", err)
	}
	config := map[string]interface{}{}
	if raw := singleAttr(attrs, "config"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &config); err != nil {
			return nil, amonerr.Internal("corrupt probe entry %q: bad config: %v", dn, err)
		}
	}
	p := &Probe{
		User:    user,
		Monitor: monitor,
		Name:    name,
		Type:    singleAttr(attrs, "type"),
		Machine: singleAttr(attrs, "machine"),
		Server:  singleAttr(attrs, "server"),
		Config:  config,
	}
	if err := p.validate(reg); err != nil {
		return nil, amonerr.Internal("corrupt probe entry %q: %v", dn, err)
	}
	return p, nil
}

// validate also derives Global, so both construction paths agree with the
// registry.
func (p *Probe) validate(reg *probetype.Registry) error {
	if p.Name == "" {
		return amonerr.MissingParameter("name is required")
	}
	if !ValidName(p.Name) {
		return amonerr.InvalidArgument("name: %q is not a valid name", p.Name)
	}
	if !ValidName(p.Monitor) {
		return amonerr.InvalidArgument("monitor: %q is not a valid name", p.Monitor)
	}
	if !ValidUUID(p.User) {
		return amonerr.InvalidArgument("user: %q is not a UUID", p.User)
	}
	if p.Machine == "" && p.Server == "" {
		return amonerr.MissingParameter(`one of "machine" or "server" is required`)
	}
	if p.Machine != "" && p.Server != "" {
		return amonerr.InvalidArgument(`only one of "machine" or "server" may be set`)
	}
	if p.Machine != "" && !ValidUUID(p.Machine) {
		return amonerr.InvalidArgument("machine: %q is not a UUID", p.Machine)
	}
	if p.Server != "" && !ValidUUID(p.Server) {
		return amonerr.InvalidArgument("server: %q is not a UUID", p.Server)
	}
	if p.Type == "" {
		return amonerr.MissingParameter("type is required")
	}
	t, ok := reg.Lookup(p.Type)
	if !ok {
		return amonerr.InvalidArgument("unknown probe type %q", p.Type)
	}
	if err := t.ValidateConfig(p.Config); err != nil {
		return amonerr.InvalidArgument("config: %v", err)
	}
	p.Global = t.RunInGlobal()
	return nil
}

func (p *Probe) DN() string {
	return ProbeDN(p.User, p.Monitor, p.Name)
}

// Attributes returns the entry form written to the directory. Config is
// stored as a JSON string; global is stored for the benefit of directory
// tooling even though reads recompute it.
func (p *Probe) Attributes() map[string][]string {
	attrs := map[string][]string{
		"objectclass": {ProbeObjectClass},
		"amonprobe":   {p.Name},
		"type":        {p.Type},
		"global":      {boolString(p.Global)},
	}
	if p.Machine != "" {
		attrs["machine"] = []string{p.Machine}
	}
	if p.Server != "" {
		attrs["server"] = []string{p.Server}
	}
	raw, _ := json.Marshal(p.Config)
	attrs["config"] = []string{string(raw)}
	return attrs
}

// View renders the probe for clients. Internal consumers (relays fetching
// manifests) additionally see the global flag.
func (p *Probe) View(internal bool) ProbeView {
	v := ProbeView{
		User:    p.User,
		Monitor: p.Monitor,
		Name:    p.Name,
		Type:    p.Type,
		Machine: p.Machine,
		Server:  p.Server,
		Config:  p.Config,
	}
	if internal {
		global := p.Global
		v.Global = &global
	}
	return v
}

// SortProbeViews orders views by (user, monitor, name) so manifests are
// byte-stable for hashing.
func SortProbeViews(views []ProbeView) {
	sort.Slice(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if a.User != b.User {
			return a.User < b.User
		}
		if a.Monitor != b.Monitor {
			return a.Monitor < b.Monitor
		}
		return a.Name < b.Name
	})
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
