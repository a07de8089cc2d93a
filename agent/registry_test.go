package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(monitor, name string) *runningProbe {
	return &runningProbe{
		User:    testUser,
		Monitor: monitor,
		Name:    name,
		Type:    "logscan",
		Machine: testMachine,
		State:   StatePending,
	}
}

func TestProbeRegistryRoundTrip(t *testing.T) {
	r, err := newProbeRegistry()
	require.NoError(t, err)

	require.NoError(t, r.Insert(testRecord("webapp", "http")))
	require.NoError(t, r.Insert(testRecord("db", "disk")))

	got, ok := r.Get(testUser, "webapp", "http")
	require.True(t, ok)
	assert.Equal(t, "http", got.Name)

	_, ok = r.Get(testUser, "webapp", "nope")
	assert.False(t, ok)

	var keys []string
	for _, p := range r.All() {
		keys = append(keys, p.key())
	}
	assert.Equal(t, []string{
		testUser + "/db/disk",
		testUser + "/webapp/http",
	}, keys)
}

func TestProbeRegistryByMonitor(t *testing.T) {
	r, err := newProbeRegistry()
	require.NoError(t, err)

	require.NoError(t, r.Insert(testRecord("webapp", "http")))
	require.NoError(t, r.Insert(testRecord("webapp", "disk")))
	require.NoError(t, r.Insert(testRecord("db", "disk")))

	probes := r.ByMonitor(testUser, "webapp")
	require.Len(t, probes, 2)
	assert.Equal(t, "disk", probes[0].Name)
	assert.Equal(t, "http", probes[1].Name)
}

func TestProbeRegistrySetStateKeepsHandles(t *testing.T) {
	r, err := newProbeRegistry()
	require.NoError(t, err)

	rec := testRecord("webapp", "http")
	rec.stop = func() {}
	rec.done = make(chan struct{})
	require.NoError(t, r.Insert(rec))

	require.NoError(t, r.SetState(testUser, "webapp", "http", StateRunning))

	got, ok := r.Get(testUser, "webapp", "http")
	require.True(t, ok)
	assert.Equal(t, StateRunning, got.State)
	// Records are replaced, never mutated; the handles carry over.
	assert.Equal(t, StatePending, rec.State)
	assert.Equal(t, rec.done, got.done)

	err = r.SetState(testUser, "webapp", "nope", StateRunning)
	assert.Error(t, err)
}

func TestProbeRegistryDelete(t *testing.T) {
	r, err := newProbeRegistry()
	require.NoError(t, err)

	require.NoError(t, r.Insert(testRecord("webapp", "http")))
	require.NoError(t, r.Delete(testUser, "webapp", "http"))
	_, ok := r.Get(testUser, "webapp", "http")
	assert.False(t, ok)

	// Deleting an absent record is not an error.
	require.NoError(t, r.Delete(testUser, "webapp", "http"))
}
