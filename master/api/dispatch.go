package api

import (
	"context"
	"fmt"
	"sync"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/isabella232/sdc-amon/pkg/amonerr"
	"github.com/isabella232/sdc-amon/pkg/event"
	"github.com/isabella232/sdc-amon/pkg/model"
	"github.com/isabella232/sdc-amon/pkg/notify"
)

// dispatch fans one event out to the contacts of its monitor. An unknown
// monitor drops the event; an unknown contact or medium skips that contact.
// Deliveries run concurrently and dispatch waits for all of them, so a 202
// means every notifier has been given its chance. Delivery failures are
// logged, never surfaced to the relay: retrying a notification from the
// relay would re-notify the contacts that did succeed.
func (h *Handler) dispatch(ctx context.Context, ev *event.Event) {
	m, err := h.monitor(ev.User, ev.Monitor)
	if err != nil {
		if amonerr.IsNotFound(err) {
			h.log.Warn("dropping event for unknown monitor",
				"user", ev.User, "monitor", ev.Monitor, "event", ev.UUID)
			eventsDropped.WithLabelValues("unknown_monitor").Inc()
		} else {
			h.log.Error("dropping event, monitor lookup failed",
				"user", ev.User, "monitor", ev.Monitor, "event", ev.UUID, "error", err)
			eventsDropped.WithLabelValues("monitor_lookup").Inc()
		}
		return
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		merr *multierror.Error
	)
	for _, name := range m.Contacts {
		ct, err := h.contact(ev.User, name)
		if err != nil {
			h.log.Warn("skipping unresolvable contact",
				"user", ev.User, "monitor", ev.Monitor, "contact", name, "error", err)
			continue
		}
		n, ok := h.notifiers.Lookup(ct.Medium)
		if !ok {
			h.log.Warn("skipping contact with unsupported medium",
				"user", ev.User, "contact", ct.Name, "medium", ct.Medium)
			continue
		}
		wg.Add(1)
		go func(n notify.Notifier, ct *model.Contact) {
			defer wg.Done()
			if err := n.Notify(ctx, ev, ct); err != nil {
				notificationsTotal.WithLabelValues(ct.Medium, "error").Inc()
				mu.Lock()
				merr = multierror.Append(merr, fmt.Errorf("%s to contact %q: %w", ct.Medium, ct.Name, err))
				mu.Unlock()
				return
			}
			notificationsTotal.WithLabelValues(ct.Medium, "ok").Inc()
		}(n, ct)
	}
	wg.Wait()

	if err := merr.ErrorOrNil(); err != nil {
		h.log.Warn("notification failures",
			"user", ev.User, "monitor", ev.Monitor, "event", ev.UUID, "error", err)
	}
}
