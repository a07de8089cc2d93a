package relay

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-cleanhttp"
)

// Manifest is one fetched probe manifest: the body as the master sent it
// and the base64 md5 of exactly those bytes.
type Manifest struct {
	Body []byte
	MD5  string
}

// RejectedError reports an event the master refused with a 400. Retrying
// the same bytes can never succeed.
type RejectedError struct {
	Body string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("master rejected event: %s", e.Body)
}

// IsRejected reports whether err is a permanent rejection by the master.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// MasterClient talks to the master's relay-facing endpoints.
type MasterClient struct {
	base   *url.URL
	client *http.Client
}

func NewMasterClient(rawURL string) (*MasterClient, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("master url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("master url %q: scheme must be http or https", rawURL)
	}
	return &MasterClient{
		base:   base,
		client: cleanhttp.DefaultPooledClient(),
	}, nil
}

// FetchAgentProbes retrieves the manifest for one target. The checksum is
// computed from the received bytes and cross-checked against the master's
// Content-MD5 so a torn response is caught here, not written to disk.
func (c *MasterClient) FetchAgentProbes(ctx context.Context, tgt Target) (*Manifest, error) {
	u := *c.base
	u.Path = "/agentprobes"
	u.RawQuery = tgt.Query().Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", tgt, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch %s: master returned %d: %s", tgt, resp.StatusCode, body)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", tgt, err)
	}

	sum := md5.Sum(body)
	got := base64.StdEncoding.EncodeToString(sum[:])
	if want := resp.Header.Get("Content-MD5"); want != "" && want != got {
		return nil, fmt.Errorf("fetch %s: body checksum %s does not match Content-MD5 %s", tgt, got, want)
	}
	return &Manifest{Body: body, MD5: got}, nil
}

// PostEvent submits one event body upstream. A 400 comes back as a
// *RejectedError; anything else non-202 is a retryable failure.
func (c *MasterClient) PostEvent(ctx context.Context, body []byte) error {
	u := *c.base
	u.Path = "/events"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusBadRequest:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RejectedError{Body: string(msg)}
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("post event: master returned %d: %s", resp.StatusCode, msg)
	}
}
