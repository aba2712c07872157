package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"cdprepeater/internal/config"
	"cdprepeater/internal/protocol"
)

// fakeBrowser 按方法名应答命令，Fetch.enable 之后推送一个被拦截的请求
func fakeBrowser(t *testing.T) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	var base string
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"Browser":              "Fake/1.0",
			"webSocketDebuggerUrl": "ws" + strings.TrimPrefix(base, "http") + "/devtools/browser/fake",
		})
	})
	mux.HandleFunc("/devtools/browser/fake", func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		targets := 0
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			cmd := gjson.ParseBytes(msg)
			result := `{}`
			switch cmd.Get("method").String() {
			case protocol.MethodBrowserGetVersion:
				result = `{"userAgent":"Fake-UA"}`
			case protocol.MethodTargetCreateTarget:
				targets++
				result = fmt.Sprintf(`{"targetId":"T%d"}`, targets)
			case protocol.MethodTargetAttachToTarget:
				result = `{"sessionId":"S1"}`
			case protocol.MethodNetworkGetAllCookies:
				result = `{"cookies":[{"name":"sid","value":"42"}]}`
			case protocol.MethodRuntimeEvaluate:
				result = `{"result":{"type":"object","value":{"status":200,"statusText":"OK","headers":{},"body":"pong"}}}`
			}
			sess := ""
			if s := cmd.Get("sessionId"); s.Exists() {
				sess = fmt.Sprintf(`"sessionId":%q,`, s.String())
			}
			reply := fmt.Sprintf(`{"id":%d,%s"result":%s}`, cmd.Get("id").Int(), sess, result)
			if err := c.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
			if cmd.Get("method").String() == protocol.MethodFetchEnable {
				ev := `{"method":"Fetch.requestPaused","sessionId":"S1","params":{"requestId":"f1","request":{"url":"http://example.test/","method":"GET","headers":{}}}}`
				_ = c.WriteMessage(websocket.TextMessage, []byte(ev))
			}
		}
	})
	ts := httptest.NewServer(mux)
	base = ts.URL
	t.Cleanup(ts.Close)
	return ts
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T, devtools string) *config.Config {
	cfg := config.NewConfig()
	cfg.DevTools.URL = devtools
	cfg.DevTools.Retries = 2
	cfg.DevTools.RetryDelay = 10 * time.Millisecond
	cfg.Server.HTTPPort = freePort(t)
	cfg.Server.WSPort = freePort(t)
	cfg.Server.Root = t.TempDir()
	cfg.Journal.Dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.History.Limit = 0
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cfg = config.NewConfig()
	cfg.Scope.Include = []string{"regex:("}
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestRunEndToEnd(t *testing.T) {
	browser := fakeBrowser(t)
	cfg := testConfig(t, browser.URL)
	svc, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		qctx, qcancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer qcancel()
		h, err := svc.History(qctx)
		return err == nil && len(h) == 1
	}, 5*time.Second, 20*time.Millisecond)

	h, err := svc.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/", h[0].URL)
	require.NotNil(t, h[0].Response)
	assert.Equal(t, "[Cached/Internal Request - No Network Body]", *h[0].Response)

	ui, _, err := websocket.DefaultDialer.Dial("ws://"+cfg.WSAddr()+"/", nil)
	require.NoError(t, err)
	defer ui.Close()
	require.NoError(t, ui.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"repeat_request","data":"GET http://example.test/ping HTTP/1.1\n\n","render":false}`)))

	_ = ui.SetReadDeadline(time.Now().Add(5 * time.Second))
	var repeated string
	for repeated == "" {
		_, msg, err := ui.ReadMessage()
		require.NoError(t, err)
		if gjson.GetBytes(msg, "type").String() == "repeated_response" {
			repeated = gjson.GetBytes(msg, "data").String()
		}
	}
	assert.Equal(t, "HTTP/1.1 200 OK\n\n\npong", repeated)

	require.Eventually(t, func() bool {
		recs, err := svc.Repeats(ctx, 0)
		return err == nil && len(recs) == 1
	}, 2*time.Second, 20*time.Millisecond)
	recs, err := svc.Repeats(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK", recs[0].StatusLine)
	assert.Equal(t, "http://example.test/ping", recs[0].URL)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestRunUnreachableBrowser(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	svc, err := New(testConfig(t, dead.URL), nil)
	require.NoError(t, err)

	err = svc.Run(context.Background())
	assert.Error(t, err)
}
