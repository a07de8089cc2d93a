package relay

import (
	"crypto/md5"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64md5(body []byte) string {
	sum := md5.Sum(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func TestManifestStoreRoundTrip(t *testing.T) {
	store, err := NewManifestStore(t.TempDir())
	require.NoError(t, err)
	tgt := Target{Type: TargetMachine, UUID: testMachine}

	body := []byte(`[{"name":"errors"}]`)
	require.NoError(t, store.Write(tgt, body, b64md5(body)))

	got, sum, err := store.Read(tgt)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.Equal(t, b64md5(body), sum)

	onDisk, err := store.MD5(tgt)
	require.NoError(t, err)
	assert.Equal(t, sum, onDisk)
}

func TestManifestStoreEmptyFallback(t *testing.T) {
	store, err := NewManifestStore(t.TempDir())
	require.NoError(t, err)
	tgt := Target{Type: TargetServer, UUID: testServer}

	body, sum, err := store.Read(tgt)
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), body)
	assert.Equal(t, EmptyManifestMD5, sum)
	assert.Equal(t, b64md5([]byte("[]")), sum)

	// Absence is distinct from the empty list: the poller must sync on
	// first run even when the master serves [].
	onDisk, err := store.MD5(tgt)
	require.NoError(t, err)
	assert.Equal(t, "", onDisk)
}

func TestManifestStoreRewriteLeavesNoDebris(t *testing.T) {
	dir := t.TempDir()
	store, err := NewManifestStore(dir)
	require.NoError(t, err)
	tgt := Target{Type: TargetMachine, UUID: testMachine}

	for i := 0; i < 5; i++ {
		body := []byte(`[{"rev":` + string(rune('0'+i)) + `}]`)
		require.NoError(t, store.Write(tgt, body, b64md5(body)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"machine-" + testMachine + ".json",
		"machine-" + testMachine + ".json.content-md5",
	}, names, "atomic replace must not leave temp files behind")
}

func TestManifestStoreBodyMatchesChecksumAfterWrite(t *testing.T) {
	store, err := NewManifestStore(t.TempDir())
	require.NoError(t, err)
	tgt := Target{Type: TargetMachine, UUID: testMachine}

	old := []byte(`["old"]`)
	require.NoError(t, store.Write(tgt, old, b64md5(old)))
	updated := []byte(`["new","longer","body"]`)
	require.NoError(t, store.Write(tgt, updated, b64md5(updated)))

	body, sum, err := store.Read(tgt)
	require.NoError(t, err)
	assert.Equal(t, b64md5(body), sum)
	assert.Equal(t, updated, body)
}

func TestManifestStoreRemove(t *testing.T) {
	dir := t.TempDir()
	store, err := NewManifestStore(dir)
	require.NoError(t, err)
	tgt := Target{Type: TargetMachine, UUID: testMachine}

	body := []byte(`[]`)
	require.NoError(t, store.Write(tgt, body, b64md5(body)))
	require.NoError(t, store.Remove(tgt))
	require.NoError(t, store.Remove(tgt), "removing an absent mirror is not an error")

	_, err = os.Stat(filepath.Join(dir, tgt.String()+".json"))
	assert.True(t, os.IsNotExist(err))
}
