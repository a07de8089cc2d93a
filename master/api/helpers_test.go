package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isabella232/sdc-amon/master/mapi"
	"github.com/isabella232/sdc-amon/master/ufds"
	"github.com/isabella232/sdc-amon/pkg/amonerr"
	"github.com/isabella232/sdc-amon/pkg/event"
	"github.com/isabella232/sdc-amon/pkg/model"
	"github.com/isabella232/sdc-amon/pkg/notify"
	"github.com/isabella232/sdc-amon/pkg/probetype"
)

const (
	userAlice = "a5bf38a4-3392-4d3c-b427-f28c9e4e0d21"
	userBob   = "b7c93c3d-0a04-4d4d-9cc1-33a3a9c3b6d2"
	userAdmin = "0b267b56-6d43-4b5a-9d0e-45fb9ffa1e38"

	machAlice = "7b80e2a5-9a11-4d34-8b2b-3babcec0e66a"
	machBob   = "91ee0c2f-5c41-4f63-bf2a-7d2a8f9b3c11"
	serverA   = "564d4d2c-3b9a-4a7d-8f43-0d9a5ee318bb"
)

// fakeDir is an in-memory Directory. It counts calls per method so cache
// tests can assert how often the backing store was actually hit.
type fakeDir struct {
	mu        sync.Mutex
	accounts  map[string]*ufds.Account
	operators map[string]bool
	contacts  map[string]*model.Contact
	monitors  map[string]*model.Monitor
	probes    map[string]*model.Probe
	calls     map[string]int
	err       error
}

func newFakeDir() *fakeDir {
	return &fakeDir{
		accounts:  map[string]*ufds.Account{},
		operators: map[string]bool{},
		contacts:  map[string]*model.Contact{},
		monitors:  map[string]*model.Monitor{},
		probes:    map[string]*model.Probe{},
		calls:     map[string]int{},
	}
}

func (f *fakeDir) called(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.err
}

func (f *fakeDir) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeDir) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeDir) addAccount(uuid, login string, operator bool) *ufds.Account {
	acct := &ufds.Account{
		UUID:  uuid,
		Login: login,
		Email: login + "@example.com",
		DN:    model.AccountDN(uuid),
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[login] = acct
	f.operators[acct.DN] = operator
	return acct
}

func (f *fakeDir) AccountByLogin(login string) (*ufds.Account, error) {
	if err := f.called("AccountByLogin"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[login]
	if !ok {
		return nil, amonerr.NotFound("no such account: %q", login)
	}
	return acct, nil
}

func (f *fakeDir) IsOperator(accountDN string) (bool, error) {
	if err := f.called("IsOperator"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.operators[accountDN], nil
}

func (f *fakeDir) GetContact(user, name string) (*model.Contact, error) {
	if err := f.called("GetContact"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ct, ok := f.contacts[model.ContactDN(user, name)]
	if !ok {
		return nil, amonerr.NotFound("no such contact: %q", name)
	}
	return ct, nil
}

func (f *fakeDir) ListContacts(user string) ([]*model.Contact, error) {
	if err := f.called("ListContacts"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Contact
	for _, ct := range f.contacts {
		if ct.User == user {
			out = append(out, ct)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeDir) PutContact(ct *model.Contact) error {
	if err := f.called("PutContact"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contacts[ct.DN()] = ct
	return nil
}

func (f *fakeDir) DeleteContact(user, name string) error {
	if err := f.called("DeleteContact"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dn := model.ContactDN(user, name)
	if _, ok := f.contacts[dn]; !ok {
		return amonerr.NotFound("no such contact: %q", name)
	}
	delete(f.contacts, dn)
	return nil
}

func (f *fakeDir) GetMonitor(user, name string) (*model.Monitor, error) {
	if err := f.called("GetMonitor"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.monitors[model.MonitorDN(user, name)]
	if !ok {
		return nil, amonerr.NotFound("no such monitor: %q", name)
	}
	return m, nil
}

func (f *fakeDir) ListMonitors(user string) ([]*model.Monitor, error) {
	if err := f.called("ListMonitors"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Monitor
	for _, m := range f.monitors {
		if m.User == user {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeDir) PutMonitor(m *model.Monitor) error {
	if err := f.called("PutMonitor"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitors[m.DN()] = m
	return nil
}

func (f *fakeDir) DeleteMonitor(user, name string) error {
	if err := f.called("DeleteMonitor"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dn := model.MonitorDN(user, name)
	if _, ok := f.monitors[dn]; !ok {
		return amonerr.NotFound("no such monitor: %q", name)
	}
	delete(f.monitors, dn)
	return nil
}

func (f *fakeDir) GetProbe(user, monitor, name string) (*model.Probe, error) {
	if err := f.called("GetProbe"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.probes[model.ProbeDN(user, monitor, name)]
	if !ok {
		return nil, amonerr.NotFound("no such probe: %q", name)
	}
	return p, nil
}

func (f *fakeDir) ListProbes(user, monitor string) ([]*model.Probe, error) {
	if err := f.called("ListProbes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Probe
	for _, p := range f.probes {
		if p.User == user && p.Monitor == monitor {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeDir) PutProbe(p *model.Probe) error {
	if err := f.called("PutProbe"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes[p.DN()] = p
	return nil
}

func (f *fakeDir) DeleteProbe(user, monitor, name string) error {
	if err := f.called("DeleteProbe"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dn := model.ProbeDN(user, monitor, name)
	if _, ok := f.probes[dn]; !ok {
		return amonerr.NotFound("no such probe: %q", name)
	}
	delete(f.probes, dn)
	return nil
}

func (f *fakeDir) ProbesByMachine(machine string) ([]*model.Probe, error) {
	if err := f.called("ProbesByMachine"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Probe
	for _, p := range f.probes {
		if p.Machine == machine {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeDir) ProbesByServer(server string) ([]*model.Probe, error) {
	if err := f.called("ProbesByServer"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Probe
	for _, p := range f.probes {
		if p.Server == server {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeDir) GlobalProbesByMachines(machines []string) ([]*model.Probe, error) {
	if err := f.called("GlobalProbesByMachines"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[string]bool{}
	for _, m := range machines {
		want[m] = true
	}
	var out []*model.Probe
	for _, p := range f.probes {
		if p.Global && want[p.Machine] {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakeMAPI is an in-memory MachineInfo.
type fakeMAPI struct {
	mu       sync.Mutex
	machines map[string]*mapi.Machine
	servers  map[string]bool
	calls    map[string]int
}

func newFakeMAPI() *fakeMAPI {
	return &fakeMAPI{
		machines: map[string]*mapi.Machine{},
		servers:  map[string]bool{},
		calls:    map[string]int{},
	}
}

func (f *fakeMAPI) addMachine(uuid, owner, server string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.machines[uuid] = &mapi.Machine{UUID: uuid, Owner: owner, Server: server, State: "running"}
	f.servers[server] = true
}

func (f *fakeMAPI) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeMAPI) GetMachine(ctx context.Context, machine string) (*mapi.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetMachine"]++
	m, ok := f.machines[machine]
	if !ok {
		return nil, amonerr.NotFound("no such machine: %q", machine)
	}
	return m, nil
}

func (f *fakeMAPI) ServerExists(ctx context.Context, server string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ServerExists"]++
	return f.servers[server], nil
}

func (f *fakeMAPI) ListMachines(ctx context.Context, server string) ([]*mapi.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListMachines"]++
	var out []*mapi.Machine
	for _, m := range f.machines {
		if m.Server == server {
			out = append(out, m)
		}
	}
	return out, nil
}

// fakeNotifier records deliveries and optionally fails them all.
type fakeNotifier struct {
	medium string

	mu       sync.Mutex
	events   []*event.Event
	contacts []*model.Contact
	err      error
}

func (f *fakeNotifier) Medium() string { return f.medium }

func (f *fakeNotifier) Notify(ctx context.Context, ev *event.Event, ct *model.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	f.contacts = append(f.contacts, ct)
	return f.err
}

func (f *fakeNotifier) deliveries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeNotifier) lastEvent() *event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil
	}
	return f.events[len(f.events)-1]
}

// fixture wires a Handler to in-memory fakes with a populated world: alice
// and bob own one machine each on serverA, admin is an operator.
type fixture struct {
	h     *Handler
	dir   *fakeDir
	mapi  *fakeMAPI
	email *fakeNotifier
	web   *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := newFakeDir()
	dir.addAccount(userAlice, "alice", false)
	dir.addAccount(userBob, "bob", false)
	dir.addAccount(userAdmin, "admin", true)

	mc := newFakeMAPI()
	mc.addMachine(machAlice, userAlice, serverA)
	mc.addMachine(machBob, userBob, serverA)

	email := &fakeNotifier{medium: "email"}
	web := &fakeNotifier{medium: "webhook"}
	notifiers, err := notify.NewRegistry(email, web)
	require.NoError(t, err)

	h, err := New(Config{
		Directory:  dir,
		Machines:   mc,
		ProbeTypes: probetype.Default(),
		Notifiers:  notifiers,
	})
	require.NoError(t, err)

	return &fixture{h: h, dir: dir, mapi: mc, email: email, web: web}
}

// do runs one request against the handler and returns the recorded response.
func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e struct {
		Code string `json:"code"`
	}
	decodeBody(t, w, &e)
	return e.Code
}

// seedMonitor stores a monitor directly in the fake, bypassing the API.
func (f *fixture) seedMonitor(t *testing.T, user, name string, contacts ...string) {
	t.Helper()
	m, err := model.NewMonitor(user, model.MonitorInput{Name: name, Contacts: contacts})
	require.NoError(t, err)
	require.NoError(t, f.dir.PutMonitor(m))
}

func (f *fixture) seedContact(t *testing.T, user, name, medium, data string) {
	t.Helper()
	ct, err := model.NewContact(user, model.ContactInput{Name: name, Medium: medium, Data: data})
	require.NoError(t, err)
	require.NoError(t, f.dir.PutContact(ct))
}

func (f *fixture) seedProbe(t *testing.T, user, monitor string, in model.ProbeInput) *model.Probe {
	t.Helper()
	p, err := model.NewProbe(probetype.Default(), user, monitor, in)
	require.NoError(t, err)
	require.NoError(t, f.dir.PutProbe(p))
	return p
}

func logscanConfig() map[string]interface{} {
	return map[string]interface{}{
		"path":   "/var/log/app.log",
		"regex":  "ERROR",
		"period": float64(60),
	}
}
