package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/isabella232/sdc-amon/pkg/amonerr"
	"github.com/isabella232/sdc-amon/pkg/event"
)

const maxEventBody = 1 << 20

// SocketServer is one target's agent-facing HTTP server on a unix socket.
// Agents poll /agentprobes here instead of reaching the master, and push
// their events here for forwarding.
type SocketServer struct {
	target    Target
	store     *ManifestStore
	forwarder *Forwarder
	path      string
	log       logrus.FieldLogger

	server http.Server
}

func NewSocketServer(tgt Target, socketDir string, store *ManifestStore, fwd *Forwarder, log logrus.FieldLogger) *SocketServer {
	return &SocketServer{
		target:    tgt,
		store:     store,
		forwarder: fwd,
		path:      tgt.SocketPath(socketDir),
		log:       log.WithField("target", tgt.String()),
	}
}

func (s *SocketServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(newSocketLogger(s.path))
	r.Use(middleware.Recoverer)

	r.Get("/agentprobes", s.handleAgentProbes)
	r.Head("/agentprobes", s.handleAgentProbes)
	r.Post("/events", s.handleAddEvents)
	return r
}

// Start listens on the socket and serves in the background. A stale socket
// file from a previous run is removed first.
func (s *SocketServer) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("socket dir: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket %q: %w", s.path, err)
	}
	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on %q: %w", s.path, err)
	}

	s.server = http.Server{Handler: s.routes()}
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("agent socket server failed")
		}
	}()
	s.log.WithField("socket", s.path).Info("agent socket up")
	return nil
}

// Stop shuts the server down and removes the socket file.
func (s *SocketServer) Stop(ctx context.Context) {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.WithError(err).Warn("agent socket shutdown")
	}
	_ = os.Remove(s.path)
}

func (s *SocketServer) handleAgentProbes(w http.ResponseWriter, r *http.Request) {
	body, sum, err := s.store.Read(s.target)
	if err != nil {
		amonerr.WriteHTTP(w, amonerr.Internal("manifest read failed").WithCause(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-MD5", sum)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(body)
}

// handleAddEvents takes one event from the agent. The envelope is checked
// here so garbage never reaches the queue or the spool; the bytes forwarded
// are the bytes received.
func (s *SocketServer) handleAddEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		writeEventError(w, amonerr.InvalidArgument("unreadable body: %v", err))
		return
	}
	var ev event.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		writeEventError(w, amonerr.InvalidArgument("invalid event body: %v", err))
		return
	}
	if err := ev.Validate(); err != nil {
		writeEventError(w, amonerr.InvalidArgument("invalid event: %v", err))
		return
	}

	s.forwarder.Enqueue(body)
	w.WriteHeader(http.StatusAccepted)
}

// writeEventError writes the wire error form with a 400, mirroring the
// master's events endpoint.
func writeEventError(w http.ResponseWriter, e *amonerr.Error) {
	body, _ := json.Marshal(e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write(body)
}

// newSocketLogger adapts chi's RequestLogger to logrus, tagged with the
// socket name.
func newSocketLogger(socketPath string) func(http.Handler) http.Handler {
	name := strings.TrimSuffix(filepath.Base(socketPath), ".sock")
	return middleware.RequestLogger(&socketLogger{name: name})
}

type socketLogger struct {
	name string
}

func (l *socketLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &socketLogEntry{name: l.name, method: r.Method, uri: r.RequestURI}
}

type socketLogEntry struct {
	name   string
	method string
	uri    string
}

func (e *socketLogEntry) Write(status, bytes int, _ http.Header, _ time.Duration, _ interface{}) {
	logrus.Debugf("%s: %s %s %d", e.name, e.method, e.uri, status)
}

func (e *socketLogEntry) Panic(v interface{}, stack []byte) {
	logrus.Errorf("%s: %s %s panic: %v\n%s", e.name, e.method, e.uri, v, string(stack))
}
