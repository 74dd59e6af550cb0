package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IceFireDB/IceFireDB-Resolver/pkg/contenthash"
)

// fakeNode mimics the add and version endpoints of an IPFS node API.
type fakeNode struct {
	mu       sync.Mutex
	failures int
	adds     int
	bodies   []string
	hash     string
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v0/version":
		_ = json.NewEncoder(w).Encode(map[string]string{"Version": "0.30.0", "Commit": "test"})
	case "/api/v0/add":
		n.mu.Lock()
		defer n.mu.Unlock()
		n.adds++
		if n.failures > 0 {
			n.failures--
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{"Message": "blockstore busy", "Code": 0, "Type": "error"})
			return
		}
		body, _ := io.ReadAll(r.Body)
		n.bodies = append(n.bodies, string(body))
		_ = json.NewEncoder(w).Encode(map[string]string{"Name": "", "Hash": n.hash, "Size": "5"})
	default:
		http.NotFound(w, r)
	}
}

func (n *fakeNode) stats() (int, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.adds, append([]string(nil), n.bodies...)
}

func testCid(t *testing.T) cid.Cid {
	t.Helper()
	mh, err := multihash.Sum([]byte("hello"), multihash.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, mh)
}

func newTestClient(t *testing.T, node *fakeNode) *Client {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		Endpoint:         srv.URL,
		RetryInitialWait: time.Millisecond,
		RetryMaxWait:     5 * time.Millisecond,
		HealthCheck:      true,
	})
	require.NoError(t, c.Init(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestUpload(t *testing.T) {
	want := testCid(t)
	node := &fakeNode{hash: want.String()}
	c := newTestClient(t, node)

	got, err := c.Upload(context.Background(), strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, want.String(), got)
	_, bodies := node.stats()
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], "hello")
}

func TestUploadRetriesTransientFailures(t *testing.T) {
	want := testCid(t)
	node := &fakeNode{hash: want.String(), failures: 2}
	c := newTestClient(t, node)

	got, err := c.Upload(context.Background(), strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, want.String(), got)
	adds, bodies := node.stats()
	assert.Equal(t, 3, adds)
	// the body is replayed on every attempt
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], "hello")
}

func TestUploadGivesUpAfterMaxRetries(t *testing.T) {
	node := &fakeNode{hash: testCid(t).String(), failures: 100}
	c := newTestClient(t, node)

	_, err := c.Upload(context.Background(), strings.NewReader("hello"))
	require.Error(t, err)
	adds, _ := node.stats()
	assert.Equal(t, DefaultMaxRetries+1, adds)
}

func TestUploadRejectsInvalidCid(t *testing.T) {
	node := &fakeNode{hash: "not-a-cid"}
	c := newTestClient(t, node)

	_, err := c.Upload(context.Background(), strings.NewReader("hello"))
	require.Error(t, err)
	adds, _ := node.stats()
	assert.Equal(t, 1, adds)
}

func TestUploadJSON(t *testing.T) {
	want := testCid(t)
	node := &fakeNode{hash: want.String()}
	c := newTestClient(t, node)

	up, err := c.UploadJSON(context.Background(), map[string]any{"images": []string{"bafy"}})
	require.NoError(t, err)
	assert.Equal(t, want.String(), up.Cid)

	decoded, err := contenthash.ToCid(up.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, want.String(), decoded)
	_, bodies := node.stats()
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], `{"images":["bafy"]}`)
}

func TestClientLifecycle(t *testing.T) {
	node := &fakeNode{hash: testCid(t).String()}
	srv := httptest.NewServer(node)
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})
	_, err := c.Upload(context.Background(), strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrClientNotInit)

	require.NoError(t, c.Init(context.Background()))
	require.NoError(t, c.Refresh(context.Background()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Upload(context.Background(), strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.ErrorIs(t, c.Init(context.Background()), ErrClientClosed)
	assert.ErrorIs(t, c.Refresh(context.Background()), ErrClientClosed)
}

func TestInitHealthCheckFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, HealthCheck: true})
	assert.Error(t, c.Init(context.Background()))
}

func TestNormaliseEndpoint(t *testing.T) {
	for in, want := range map[string]string{
		"http://localhost:5001":     "http://localhost:5001",
		"/ip4/127.0.0.1/tcp/5001":   "http://127.0.0.1:5001",
		"/ip6/::1/tcp/5001":         "http://[::1]:5001",
		"/dns4/ipfs.local/tcp/5001": "http://ipfs.local:5001",
	} {
		got, err := normaliseEndpoint(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"/ip4/127.0.0.1", "/garbage"} {
		_, err := normaliseEndpoint(in)
		assert.Error(t, err, in)
	}
}
