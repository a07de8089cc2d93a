package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/isabella232/sdc-amon/pkg/config"
)

// Relay ties the pieces together: one poller and one socket server per
// target, a shared forwarder with its spool, and an optional metrics
// listener.
type Relay struct {
	cfg       *config.RelayConfigV1
	targets   []Target
	spool     *Spool
	forwarder *Forwarder
	poller    *Poller
	sockets   []*SocketServer
	log       logrus.FieldLogger
}

func New(cfg *config.RelayConfigV1, log logrus.FieldLogger) (*Relay, error) {
	targets, err := TargetsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	master, err := NewMasterClient(cfg.MasterURL)
	if err != nil {
		return nil, err
	}
	store, err := NewManifestStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	spool, err := OpenSpool(cfg.Spool.Path, cfg.Spool.MaxEvents, time.Duration(cfg.Spool.MaxAge)*time.Second)
	if err != nil {
		return nil, err
	}

	forwarder := NewForwarder(master, spool, log)
	poller := NewPoller(master, store, targets, time.Duration(cfg.PollInterval)*time.Second, log)

	sockets := make([]*SocketServer, 0, len(targets))
	for _, tgt := range targets {
		sockets = append(sockets, NewSocketServer(tgt, cfg.SocketDir, store, forwarder, log))
	}

	return &Relay{
		cfg:       cfg,
		targets:   targets,
		spool:     spool,
		forwarder: forwarder,
		poller:    poller,
		sockets:   sockets,
		log:       log,
	}, nil
}

// Run starts every component and blocks until the context is cancelled or
// a component fails. Sockets come up first so agents can connect while the
// first manifests sync.
func (r *Relay) Run(ctx context.Context) error {
	started := 0
	for _, s := range r.sockets {
		if err := s.Start(); err != nil {
			r.stopSockets(started)
			return err
		}
		started++
	}
	r.log.WithField("targets", len(r.targets)).Info("relay up")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.poller.Run(ctx) })
	g.Go(func() error { return r.forwarder.Run(ctx) })
	g.Go(func() error { return r.forwarder.RunDrainer(ctx) })
	if r.cfg.MetricsAddr != "" {
		g.Go(func() error { return r.serveMetrics(ctx) })
	}

	err := g.Wait()

	r.stopSockets(len(r.sockets))
	if cerr := r.spool.Close(); cerr != nil {
		r.log.WithError(cerr).Warn("spool close failed")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *Relay) stopSockets(n int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range r.sockets[:n] {
		s.Stop(ctx)
	}
}

func (r *Relay) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: r.cfg.MetricsAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("metrics listener: %w", err)
	}
}
