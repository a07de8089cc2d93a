package agent

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isabella232/sdc-amon/pkg/event"
)

func TestRelayClientManifestMD5(t *testing.T) {
	relay := newFakeRelay(t)
	body := manifestJSON(t, logscanView("webapp", "applog"))
	relay.set(body)
	c := NewRelayClient(relay.path)

	got, err := c.ManifestMD5(context.Background())
	require.NoError(t, err)
	sum := md5.Sum(body)
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), got)
}

func TestRelayClientFetchManifest(t *testing.T) {
	relay := newFakeRelay(t)
	body := manifestJSON(t, logscanView("webapp", "applog"))
	relay.set(body)
	c := NewRelayClient(relay.path)

	got, sum, err := c.FetchManifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, body, got)

	want := md5.Sum(body)
	assert.Equal(t, base64.StdEncoding.EncodeToString(want[:]), sum)
}

func TestRelayClientReportsErrorStatus(t *testing.T) {
	relay := newFakeRelay(t)
	relay.setFail(true)
	c := NewRelayClient(relay.path)

	_, err := c.ManifestMD5(context.Background())
	assert.ErrorContains(t, err, "503")

	_, _, err = c.FetchManifest(context.Background())
	assert.ErrorContains(t, err, "503")
}

func TestRelayClientPostEvent(t *testing.T) {
	relay := newFakeRelay(t)
	c := NewRelayClient(relay.path)

	ev := event.New(event.TypeProbe, testUser, "webapp", map[string]interface{}{"message": "boom"})
	ev.Probe = &event.ProbeRef{User: testUser, Monitor: "webapp", Name: "applog", Type: "logscan"}
	require.NoError(t, c.PostEvent(context.Background(), ev))
	assert.Equal(t, 1, relay.eventCount())

	// The relay validates the envelope; a rejected event surfaces as an
	// error carrying the response.
	bad := event.New(event.TypeProbe, testUser, "webapp", nil)
	err := c.PostEvent(context.Background(), bad)
	require.Error(t, err)
	assert.ErrorContains(t, err, "400")
	assert.Equal(t, 1, relay.eventCount())
}

func TestRelayClientSocketGone(t *testing.T) {
	c := NewRelayClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := c.ManifestMD5(context.Background())
	require.Error(t, err)
}
