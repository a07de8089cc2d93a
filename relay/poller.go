package relay

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Poller keeps every target's manifest mirror in sync with the master.
// Each target gets its own loop; ticks are jittered ±10% so a fleet of
// relays does not stampede the master, and a tick that fires while the
// previous poll is still in flight is skipped.
type Poller struct {
	master   *MasterClient
	store    *ManifestStore
	interval time.Duration
	clock    clockwork.Clock
	log      logrus.FieldLogger

	targets []Target
	running map[Target]*int32
}

func NewPoller(master *MasterClient, store *ManifestStore, targets []Target, interval time.Duration, log logrus.FieldLogger) *Poller {
	running := make(map[Target]*int32, len(targets))
	for _, tgt := range targets {
		running[tgt] = new(int32)
	}
	return &Poller{
		master:   master,
		store:    store,
		interval: interval,
		clock:    clockwork.NewRealClock(),
		log:      log,
		targets:  targets,
		running:  running,
	}
}

// Run polls until the context is cancelled. Every target syncs once
// immediately so agents come up with current manifests.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, tgt := range p.targets {
		tgt := tgt
		g.Go(func() error {
			return p.runTarget(ctx, tgt)
		})
	}
	return g.Wait()
}

func (p *Poller) runTarget(ctx context.Context, tgt Target) error {
	p.PollOnce(ctx, tgt)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(p.jittered()):
			p.PollOnce(ctx, tgt)
		}
	}
}

// PollOnce syncs one target. It reports false when the poll was skipped
// because another poll of the same target was still in flight.
func (p *Poller) PollOnce(ctx context.Context, tgt Target) bool {
	flag := p.running[tgt]
	if !atomic.CompareAndSwapInt32(flag, 0, 1) {
		p.log.WithField("target", tgt.String()).Debug("poll still in flight, skipping tick")
		return false
	}
	defer atomic.StoreInt32(flag, 0)

	m, err := p.master.FetchAgentProbes(ctx, tgt)
	if err != nil {
		pollFailures.Inc()
		p.log.WithField("target", tgt.String()).WithError(err).Warn("manifest poll failed, keeping current mirror")
		return true
	}

	current, err := p.store.MD5(tgt)
	if err != nil {
		p.log.WithField("target", tgt.String()).WithError(err).Warn("unreadable stored checksum, rewriting")
		current = ""
	}
	if current == m.MD5 {
		return true
	}

	if err := p.store.Write(tgt, m.Body, m.MD5); err != nil {
		p.log.WithField("target", tgt.String()).WithError(err).Error("manifest write failed")
		return true
	}
	manifestUpdates.Inc()
	p.log.WithFields(logrus.Fields{"target": tgt.String(), "md5": m.MD5}).Info("manifest updated")
	return true
}

func (p *Poller) jittered() time.Duration {
	spread := 0.9 + 0.2*rand.Float64()
	return time.Duration(float64(p.interval) * spread)
}
