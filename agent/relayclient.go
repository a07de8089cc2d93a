// Package agent implements the in-sandbox probe runner: it mirrors its
// probe manifest from the relay socket, runs one instance per probe, and
// pushes the events those instances emit back through the socket.
package agent

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/isabella232/sdc-amon/pkg/event"
)

// RelayClient talks to the relay over the agent's unix socket. The host in
// request URLs is a placeholder; the dialer always connects to the socket.
type RelayClient struct {
	socketPath string
	client     *http.Client
}

func NewRelayClient(socketPath string) *RelayClient {
	return &RelayClient{
		socketPath: socketPath,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
					return net.Dial("unix", socketPath)
				},
			},
		},
	}
}

// ManifestMD5 asks the relay for the current manifest checksum without
// transferring the body.
func (c *RelayClient) ManifestMD5(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "http://unix/agentprobes", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("head agentprobes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("head agentprobes: relay returned %d", resp.StatusCode)
	}
	return resp.Header.Get("Content-MD5"), nil
}

// FetchManifest retrieves the manifest body. The returned checksum is
// computed from the received bytes.
func (c *RelayClient) FetchManifest(ctx context.Context) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/agentprobes", nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("get agentprobes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("get agentprobes: relay returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("get agentprobes: %w", err)
	}
	sum := md5.Sum(body)
	return body, base64.StdEncoding.EncodeToString(sum[:]), nil
}

// PostEvent pushes one event to the relay for forwarding.
func (c *RelayClient) PostEvent(ctx context.Context, ev *event.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://unix/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("post event: relay returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}
