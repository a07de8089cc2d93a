package relay

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSocket(t *testing.T, tgt Target) (*SocketServer, *ManifestStore, *Forwarder) {
	t.Helper()
	master := newFakeMaster(t, []byte(`[]`))
	mc, err := NewMasterClient(master.srv.URL)
	require.NoError(t, err)

	store, err := NewManifestStore(t.TempDir())
	require.NoError(t, err)
	fwd := NewForwarder(mc, openTestSpool(t, 100, time.Hour), testLogger())

	return NewSocketServer(tgt, t.TempDir(), store, fwd, testLogger()), store, fwd
}

func TestSocketServesManifest(t *testing.T) {
	tgt := Target{Type: TargetMachine, UUID: testMachine}
	s, store, _ := newTestSocket(t, tgt)

	manifest := []byte(`[{"name":"errors"}]`)
	require.NoError(t, store.Write(tgt, manifest, b64md5(manifest)))

	router := s.routes()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/agentprobes", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, manifest, w.Body.Bytes())
	assert.Equal(t, b64md5(manifest), w.Header().Get("Content-MD5"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/agentprobes", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.Bytes())
	assert.Equal(t, b64md5(manifest), w.Header().Get("Content-MD5"))
}

func TestSocketServesEmptyListBeforeFirstSync(t *testing.T) {
	tgt := Target{Type: TargetServer, UUID: testServer}
	s, _, _ := newTestSocket(t, tgt)

	w := httptest.NewRecorder()
	s.routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/agentprobes", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
	assert.Equal(t, EmptyManifestMD5, w.Header().Get("Content-MD5"))
}

func TestSocketAcceptsEventForForwarding(t *testing.T) {
	tgt := Target{Type: TargetMachine, UUID: testMachine}
	s, _, fwd := newTestSocket(t, tgt)

	body := testEventBody(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	s.routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	select {
	case queued := <-fwd.queue:
		assert.Equal(t, body, queued, "forwarded bytes must be the received bytes")
	default:
		t.Fatal("event did not reach the forward queue")
	}
}

func TestSocketRejectsBadEvents(t *testing.T) {
	tgt := Target{Type: TargetMachine, UUID: testMachine}
	s, _, fwd := newTestSocket(t, tgt)
	router := s.routes()

	bad := [][]byte{
		[]byte(`not json`),
		[]byte(`{"v":99}`),
		[]byte(`{"v":1,"uuid":"nope","type":"probe"}`),
	}
	for _, body := range bad {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "InvalidArgument")
	}
	assert.Empty(t, fwd.queue)
}

func TestSocketLifecycle(t *testing.T) {
	tgt := Target{Type: TargetMachine, UUID: testMachine}
	socketDir := t.TempDir()

	master := newFakeMaster(t, []byte(`[]`))
	mc, err := NewMasterClient(master.srv.URL)
	require.NoError(t, err)
	store, err := NewManifestStore(t.TempDir())
	require.NoError(t, err)
	fwd := NewForwarder(mc, openTestSpool(t, 100, time.Hour), testLogger())

	s := NewSocketServer(tgt, socketDir, store, fwd, testLogger())
	require.NoError(t, s.Start())

	path := tgt.SocketPath(socketDir)
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", path)
			},
		},
	}

	resp, err := client.Get("http://unix/agentprobes")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, EmptyManifestMD5, resp.Header.Get("Content-MD5"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	_, err = os.Stat(filepath.Join(socketDir, tgt.String()+".sock"))
	assert.True(t, os.IsNotExist(err), "socket file must be cleaned up")
}

func TestSocketStartReplacesStaleSocket(t *testing.T) {
	tgt := Target{Type: TargetMachine, UUID: testMachine}
	socketDir := t.TempDir()

	// A crashed relay leaves the socket file behind.
	stale := tgt.SocketPath(socketDir)
	require.NoError(t, os.WriteFile(stale, nil, 0o644))

	master := newFakeMaster(t, []byte(`[]`))
	mc, err := NewMasterClient(master.srv.URL)
	require.NoError(t, err)
	store, err := NewManifestStore(t.TempDir())
	require.NoError(t, err)
	fwd := NewForwarder(mc, openTestSpool(t, 100, time.Hour), testLogger())

	s := NewSocketServer(tgt, socketDir, store, fwd, testLogger())
	require.NoError(t, s.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
