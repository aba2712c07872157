package static

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestServerRoutes(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<p>panel</p>"), 0o644))
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_total", Help: "probe"})
	reg.MustRegister(c)
	c.Inc()

	ts := httptest.NewServer(New("", root, reg, nil).Handler())
	defer ts.Close()

	code, body := get(t, ts.URL+HealthPath)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, ts.URL+"/index.html")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "<p>panel</p>", body)

	code, body = get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "probe_total 1")

	code, _ = get(t, ts.URL+"/missing.html")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStartAndWaitReady(t *testing.T) {
	s := New("127.0.0.1:0", t.TempDir(), nil, nil)
	require.NoError(t, s.Start())
	defer s.Shutdown(context.Background())

	require.NoError(t, WaitReady(context.Background(), s.URL(), 2*time.Second))
}

func TestStartPortInUse(t *testing.T) {
	a := New("127.0.0.1:0", t.TempDir(), nil, nil)
	require.NoError(t, a.Start())
	defer a.Shutdown(context.Background())

	b := New(a.Addr(), t.TempDir(), nil, nil)
	assert.Error(t, b.Start())
}

func TestWaitReadyTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	err := WaitReady(context.Background(), ts.URL, 300*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestMaterializer(t *testing.T) {
	root := filepath.Join(t.TempDir(), "webroot")
	m := NewMaterializer(root, "http://127.0.0.1:9999/", nil)

	u1, err := m.Host("<h1>one</h1>")
	require.NoError(t, err)
	u2, err := m.Host("<h1>two</h1>")
	require.NoError(t, err)
	assert.NotEqual(t, u1, u2)
	assert.True(t, strings.HasPrefix(u1, "http://127.0.0.1:9999/response-"))
	assert.True(t, strings.HasSuffix(u1, ".html"))

	data, err := os.ReadFile(filepath.Join(root, strings.TrimPrefix(u1, "http://127.0.0.1:9999/")))
	require.NoError(t, err)
	assert.Equal(t, "<h1>one</h1>", string(data))

	assert.Equal(t, 2, m.Cleanup())
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, m.Cleanup())
}
