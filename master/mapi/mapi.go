// Package mapi is a client for the cloud's machine API. The master asks it
// three questions: who owns a machine and where does it run, does a compute
// server exist, and which machines live on a server.
package mapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"

	"github.com/isabella232/sdc-amon/pkg/amonerr"
)

// Machine is the subset of the machine API's record the master cares about.
type Machine struct {
	UUID   string `json:"uuid"`
	Owner  string `json:"owner_uuid"`
	Server string `json:"server_uuid"`
	State  string `json:"state"`
}

type Config struct {
	// URL is the machine API base, e.g. "http://mapi.example.com".
	URL string
	// Username and Password are sent as basic auth when set.
	Username string
	Password string

	Log hclog.Logger
}

type Client struct {
	base     string
	username string
	password string
	client   *http.Client
	log      hclog.Logger
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse machine API url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("machine API url %q: scheme must be http or https", cfg.URL)
	}
	log := cfg.Log
	if log == nil {
		log = hclog.NewNullLogger()
	}
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = 10 * time.Second
	return &Client{
		base:     strings.TrimSuffix(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		client:   client,
		log:      log.Named("mapi"),
	}, nil
}

// GetMachine looks up one machine by uuid.
func (c *Client) GetMachine(ctx context.Context, machine string) (*Machine, error) {
	var m Machine
	err := c.getJSON(ctx, "/machines/"+url.PathEscape(machine), &m)
	if amonerr.IsNotFound(err) {
		return nil, amonerr.NotFound("no such machine: %q", machine)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ServerExists reports whether the given compute server is known.
func (c *Client) ServerExists(ctx context.Context, server string) (bool, error) {
	var s struct {
		UUID string `json:"uuid"`
	}
	err := c.getJSON(ctx, "/servers/"+url.PathEscape(server), &s)
	if amonerr.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListMachines returns the machines running on the given compute server.
func (c *Client) ListMachines(ctx context.Context, server string) ([]*Machine, error) {
	var ms []*Machine
	path := "/machines?server_uuid=" + url.QueryEscape(server)
	if err := c.getJSON(ctx, path, &ms); err != nil {
		return nil, err
	}
	return ms, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		return amonerr.Internal("machine API request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		return amonerr.Unavailable("machine API unreachable").WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return amonerr.Unavailable("machine API read: %v", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return amonerr.NotFound("machine API: %s", http.StatusText(http.StatusNotFound))
	case resp.StatusCode >= 500:
		c.log.Warn("machine API error", "status", resp.StatusCode, "path", path)
		return amonerr.Unavailable("machine API: wrong response: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return amonerr.Internal("machine API: wrong response: %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return amonerr.Internal("machine API: decode %s: %v", path, err)
	}
	return nil
}
