package relay

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	forwardQueueSize = 1024
	drainInterval    = time.Minute
	drainBatch       = 100
)

// Forwarder moves event bodies from agent sockets to the master. Delivery
// retries with exponential backoff for a few minutes; events that still
// cannot be delivered go to the spool, and the drainer retries those once
// a minute. A rejected event (master said 400) is dropped, never retried.
type Forwarder struct {
	master       *MasterClient
	spool        *Spool
	queue        chan []byte
	retryInitial time.Duration
	maxElapsed   time.Duration
	clock        clockwork.Clock
	log          logrus.FieldLogger
}

func NewForwarder(master *MasterClient, spool *Spool, log logrus.FieldLogger) *Forwarder {
	return &Forwarder{
		master:       master,
		spool:        spool,
		queue:        make(chan []byte, forwardQueueSize),
		retryInitial: backoff.DefaultInitialInterval,
		maxElapsed:   3 * time.Minute,
		clock:        clockwork.NewRealClock(),
		log:          log,
	}
}

// Enqueue accepts one event body for delivery. It never blocks the socket
// handler: when the in-memory queue is full the event goes straight to the
// spool.
func (f *Forwarder) Enqueue(body []byte) {
	select {
	case f.queue <- body:
	default:
		if err := f.spool.Insert(body); err != nil {
			eventsDropped.WithLabelValues("spool_failed").Inc()
			f.log.WithError(err).Error("event lost: queue full and spool insert failed")
			return
		}
		eventsSpooled.Inc()
	}
}

// Run consumes the queue until the context is cancelled. Deliveries are
// sequential: events from one node arrive at the master in the order its
// agents sent them.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case body := <-f.queue:
			f.deliver(ctx, body)
		}
	}
}

func (f *Forwarder) deliver(ctx context.Context, body []byte) {
	op := func() error {
		err := f.master.PostEvent(ctx, body)
		if IsRejected(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.retryInitial
	bo.MaxElapsedTime = f.maxElapsed

	err := backoff.Retry(op, backoff.WithContext(bo, ctx))
	switch {
	case err == nil:
		eventsForwarded.Inc()
	case IsRejected(err):
		eventsDropped.WithLabelValues("rejected").Inc()
		f.log.WithError(err).Warn("event dropped, master rejected it")
	default:
		if serr := f.spool.Insert(body); serr != nil {
			eventsDropped.WithLabelValues("spool_failed").Inc()
			f.log.WithError(serr).Error("event lost: spool insert failed")
			return
		}
		eventsSpooled.Inc()
		f.log.WithError(err).Warn("master unreachable, event spooled")
	}
}

// RunDrainer retries spooled events until the context is cancelled.
func (f *Forwarder) RunDrainer(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.clock.After(drainInterval):
			f.DrainOnce(ctx)
		}
	}
}

// DrainOnce sheds expired events, then replays a batch oldest-first. The
// first delivery failure ends the round: the master is likely still down.
func (f *Forwarder) DrainOnce(ctx context.Context) {
	if _, err := f.spool.DropExpired(); err != nil {
		f.log.WithError(err).Error("spool expiry failed")
	}

	batch, err := f.spool.Oldest(drainBatch)
	if err != nil {
		f.log.WithError(err).Error("spool read failed")
		return
	}
	for _, ev := range batch {
		err := f.master.PostEvent(ctx, ev.Body)
		switch {
		case err == nil:
			eventsForwarded.Inc()
		case IsRejected(err):
			eventsDropped.WithLabelValues("rejected").Inc()
		default:
			return
		}
		if derr := f.spool.Delete(ev.ID); derr != nil {
			f.log.WithError(derr).Error("spool delete failed")
			return
		}
	}
}
