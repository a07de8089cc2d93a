// Package notify holds the notification plugins the master dispatches
// events through. A contact's medium selects the plugin; the contact's data
// is the plugin-specific address (an email address, a webhook URL, a kafka
// topic).
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/isabella232/sdc-amon/pkg/event"
	"github.com/isabella232/sdc-amon/pkg/model"
)

// Notifier delivers one event to one contact.
type Notifier interface {
	Medium() string
	Notify(ctx context.Context, ev *event.Event, contact *model.Contact) error
}

// Registry maps contact media to notifiers. Built once at startup,
// read-only afterwards.
type Registry struct {
	notifiers map[string]Notifier
}

func NewRegistry(notifiers ...Notifier) (*Registry, error) {
	r := &Registry{notifiers: map[string]Notifier{}}
	for _, n := range notifiers {
		if _, ok := r.notifiers[n.Medium()]; ok {
			return nil, fmt.Errorf("duplicate notification medium %q", n.Medium())
		}
		r.notifiers[n.Medium()] = n
	}
	return r, nil
}

func (r *Registry) Lookup(medium string) (Notifier, bool) {
	n, ok := r.notifiers[medium]
	return n, ok
}

func (r *Registry) Media() []string {
	media := make([]string, 0, len(r.notifiers))
	for m := range r.notifiers {
		media = append(media, m)
	}
	sort.Strings(media)
	return media
}

// Subject renders the one-line summary used by plugins that need one.
func Subject(ev *event.Event) string {
	state := "ALARM"
	if ev.Clear {
		state = "OK"
	}
	return fmt.Sprintf("[%s] monitor %q", state, ev.Monitor)
}

// Body renders the long form: the event message followed by the raw event
// for tooling on the receiving end.
func Body(ev *event.Event) string {
	raw, _ := json.MarshalIndent(ev, "", "  ")
	msg := ev.Message()
	if msg == "" {
		msg = "(no message)"
	}
	return fmt.Sprintf("%s\n\n--\n%s\n", msg, raw)
}
