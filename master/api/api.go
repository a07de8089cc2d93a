// Package api is the master's HTTP surface: the public REST object model
// under /pub/{login}, the manifest endpoint relays poll, and the event
// ingest that fans out to notification plugins. Handlers validate through
// pkg/model, authorize against the machine API and the operators group, and
// persist through the directory adapter; reads go through the TTL+LRU
// caches, writes invalidate them.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/isabella232/sdc-amon/master/cache"
	"github.com/isabella232/sdc-amon/master/mapi"
	"github.com/isabella232/sdc-amon/master/ufds"
	"github.com/isabella232/sdc-amon/pkg/model"
	"github.com/isabella232/sdc-amon/pkg/notify"
	"github.com/isabella232/sdc-amon/pkg/probetype"
)

// Event replays within this window are acknowledged without re-dispatch.
const (
	dedupWindow = 10 * time.Minute
	dedupSize   = 8192
)

// Directory is the slice of the directory adapter the API uses. ufds.Client
// implements it; tests substitute a fake.
type Directory interface {
	AccountByLogin(login string) (*ufds.Account, error)
	IsOperator(accountDN string) (bool, error)

	GetContact(user, name string) (*model.Contact, error)
	ListContacts(user string) ([]*model.Contact, error)
	PutContact(ct *model.Contact) error
	DeleteContact(user, name string) error

	GetMonitor(user, name string) (*model.Monitor, error)
	ListMonitors(user string) ([]*model.Monitor, error)
	PutMonitor(m *model.Monitor) error
	DeleteMonitor(user, name string) error

	GetProbe(user, monitor, name string) (*model.Probe, error)
	ListProbes(user, monitor string) ([]*model.Probe, error)
	PutProbe(p *model.Probe) error
	DeleteProbe(user, monitor, name string) error

	ProbesByMachine(machine string) ([]*model.Probe, error)
	ProbesByServer(server string) ([]*model.Probe, error)
	GlobalProbesByMachines(machines []string) ([]*model.Probe, error)
}

// MachineInfo is the slice of the machine API client the API uses.
type MachineInfo interface {
	GetMachine(ctx context.Context, machine string) (*mapi.Machine, error)
	ServerExists(ctx context.Context, server string) (bool, error)
	ListMachines(ctx context.Context, server string) ([]*mapi.Machine, error)
}

type Config struct {
	Directory  Directory
	Machines   MachineInfo
	ProbeTypes *probetype.Registry
	Notifiers  *notify.Registry

	// AccountCache holds account, operator and machine-API outcomes;
	// ProbeCache holds contact/monitor/probe gets and lists.
	AccountCache *cache.Cache
	ProbeCache   *cache.Cache

	Log hclog.Logger
}

// Handler is the master's http.Handler.
type Handler struct {
	dir       Directory
	machines  MachineInfo
	types     *probetype.Registry
	notifiers *notify.Registry
	accounts  *cache.Cache
	probes    *cache.Cache
	log       hclog.Logger

	dedup  *expirable.LRU[string, time.Time]
	router chi.Router
}

func New(cfg Config) (*Handler, error) {
	if cfg.Directory == nil {
		return nil, errors.New("api: directory is required")
	}
	if cfg.Machines == nil {
		return nil, errors.New("api: machine API client is required")
	}
	if cfg.ProbeTypes == nil {
		return nil, errors.New("api: probe type registry is required")
	}
	if cfg.Notifiers == nil {
		return nil, errors.New("api: notifier registry is required")
	}
	log := cfg.Log
	if log == nil {
		log = hclog.NewNullLogger()
	}
	accounts := cfg.AccountCache
	if accounts == nil {
		accounts = cache.New(1000, 5*time.Minute)
	}
	probes := cfg.ProbeCache
	if probes == nil {
		probes = cache.New(1000, 5*time.Minute)
	}

	h := &Handler{
		dir:       cfg.Directory,
		machines:  cfg.Machines,
		types:     cfg.ProbeTypes,
		notifiers: cfg.Notifiers,
		accounts:  accounts,
		probes:    probes,
		log:       log.Named("api"),
		dedup:     expirable.NewLRU[string, time.Time](dedupSize, nil, dedupWindow),
	}
	h.router = h.routes()
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(newRequestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/ping", h.handlePing)
	r.Get("/agentprobes", h.handleAgentProbes)
	r.Head("/agentprobes", h.handleAgentProbes)
	r.Post("/events", h.handleAddEvents)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/pub/{login}", func(r chi.Router) {
		r.Use(h.accountCtx)
		r.Get("/", h.handleGetAccount)

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", h.handleListContacts)
			r.Get("/{contact}", h.handleGetContact)
			r.Put("/{contact}", h.handlePutContact)
			r.Delete("/{contact}", h.handleDeleteContact)
		})

		r.Route("/monitors", func(r chi.Router) {
			r.Get("/", h.handleListMonitors)
			r.Get("/{monitor}", h.handleGetMonitor)
			r.Put("/{monitor}", h.handlePutMonitor)
			r.Delete("/{monitor}", h.handleDeleteMonitor)
			r.Post("/{monitor}", h.handleMonitorAction)

			r.Route("/{monitor}/probes", func(r chi.Router) {
				r.Get("/", h.handleListProbes)
				r.Get("/{probe}", h.handleGetProbe)
				r.Put("/{probe}", h.handlePutProbe)
				r.Delete("/{probe}", h.handleDeleteProbe)
			})
		})
	})
	return r
}

func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"ping": "pong"})
}

type ctxKey int

const accountCtxKey ctxKey = iota

// accountCtx resolves {login} to its account record and stores it in the
// request context. Everything under /pub/{login} relies on it.
func (h *Handler) accountCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, err := h.account(chi.URLParam(r, "login"))
		if err != nil {
			h.writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), accountCtxKey, acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountFrom(ctx context.Context) *ufds.Account {
	acct, _ := ctx.Value(accountCtxKey).(*ufds.Account)
	return acct
}

type accountSummary struct {
	ufds.AccountView
	Contacts int `json:"contacts"`
	Monitors int `json:"monitors"`
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r.Context())
	contacts, err := h.contacts(acct.UUID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	monitors, err := h.monitors(acct.UUID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountSummary{
		AccountView: acct.View(),
		Contacts:    len(contacts),
		Monitors:    len(monitors),
	})
}
