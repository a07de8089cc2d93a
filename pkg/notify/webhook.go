package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/isabella232/sdc-amon/pkg/event"
	"github.com/isabella232/sdc-amon/pkg/model"
)

const webhookTimeout = 10 * time.Second

type webhookNotifier struct {
	client *http.Client
}

// NewWebhook returns the notifier behind the "webhook" medium. The contact
// data is the URL; the event is POSTed to it as JSON and any 2xx response
// counts as delivered.
func NewWebhook() Notifier {
	client := cleanhttp.DefaultClient()
	client.Timeout = webhookTimeout
	return &webhookNotifier{client: client}
}

func (n *webhookNotifier) Medium() string { return "webhook" }

func (n *webhookNotifier) Notify(ctx context.Context, ev *event.Event, contact *model.Contact) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, contact.Data, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("wrong response: %d", resp.StatusCode)
	}
	return nil
}
