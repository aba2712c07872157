package cdp

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdprepeater/internal/protocol"
	"cdprepeater/pkg/traffic"
)

type fakeMaterializer struct {
	mu     sync.Mutex
	bodies []string
}

func (m *fakeMaterializer) Host(body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies = append(m.bodies, body)
	return fmt.Sprintf("http://127.0.0.1:9999/response-%d.html", len(m.bodies)), nil
}

const cookieReply = `{"cookies":[{"name":"a","value":"1"},{"name":"b","value":"2"},{"name":"a","value":"3"}]}`

func (h *harness) repeat(raw string, render bool) <-chan string {
	out := make(chan string, 1)
	go func() { out <- h.engine.Repeat(context.Background(), raw, render) }()
	return out
}

func TestRepeatWithoutSession(t *testing.T) {
	h := newHarness(t, "")
	got := h.engine.Repeat(context.Background(), "GET http://x/ HTTP/1.1\n\n", false)

	assert.Equal(t, NoSessionMessage, got)
	assert.Equal(t, int64(firstCommandID), h.snapshot().LastID)
	h.expectNoFrame()
	assert.Equal(t, float64(1), testutil.ToFloat64(h.engine.metrics.Repeats.WithLabelValues("no_session")))
}

func TestRepeatInjectsCookiesAndUserAgent(t *testing.T) {
	h := newHarness(t, "S")
	h.engine.Session().SetUserAgent("UA/1")
	out := h.repeat("POST http://x/api HTTP/1.1\nContent-Type: application/json\nCookie: old=1\n\n{\"a\":1}", false)

	cookies := h.expect(protocol.MethodNetworkGetAllCookies, cookieReply)
	assert.False(t, cookies.Get("sessionId").Exists())

	eval := h.expect(protocol.MethodRuntimeEvaluate,
		`{"result":{"type":"object","value":{"status":201,"statusText":"Created","headers":{"content-type":"text/plain"},"body":"done"}}}`)
	assert.Equal(t, "S", eval.Get("sessionId").String())
	assert.True(t, eval.Get("params.awaitPromise").Bool())
	assert.True(t, eval.Get("params.returnByValue").Bool())
	expr := eval.Get("params.expression").String()
	assert.Contains(t, expr, `fetch("http://x/api"`)
	assert.Contains(t, expr, `"Cookie":"a=3; b=2"`)
	assert.NotContains(t, expr, "old=1")
	assert.Contains(t, expr, `"User-Agent":"UA/1"`)
	assert.Contains(t, expr, `"method":"POST"`)
	assert.Contains(t, expr, `"body":"{\"a\":1}"`)
	assert.Contains(t, expr, `"credentials":"include"`)

	assert.Equal(t, "HTTP/1.1 201 Created\ncontent-type: text/plain\n\ndone", <-out)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.engine.metrics.Repeats.WithLabelValues("ok")))
}

func TestRepeatBrowserError(t *testing.T) {
	h := newHarness(t, "S")
	out := h.repeat("GET http://x/ HTTP/1.1\n\n", false)
	h.expect(protocol.MethodNetworkGetAllCookies, `{"cookies":[]}`)
	h.expect(protocol.MethodRuntimeEvaluate, `{"result":{"type":"object","value":{"error":"TypeError: Failed to fetch"}}}`)

	assert.Equal(t, "Error executing fetch in browser: TypeError: Failed to fetch", <-out)
}

func TestRepeatException(t *testing.T) {
	h := newHarness(t, "S")
	out := h.repeat("GET http://x/ HTTP/1.1\n\n", false)
	h.expect(protocol.MethodNetworkGetAllCookies, `{"cookies":[]}`)
	h.expect(protocol.MethodRuntimeEvaluate, `{"result":{"type":"undefined"},"exceptionDetails":{"text":"Uncaught","exception":{"description":"SyntaxError: bad"}}}`)

	assert.Equal(t, "Error executing fetch in browser: SyntaxError: bad", <-out)
}

func TestRepeatProtocolError(t *testing.T) {
	h := newHarness(t, "S")
	out := h.repeat("GET http://x/ HTTP/1.1\n\n", false)
	h.expect(protocol.MethodNetworkGetAllCookies, `{"cookies":[]}`)
	frame := h.next()
	h.send(fmt.Sprintf(`{"id":%d,"error":{"code":-32000,"message":"Execution context was destroyed"}}`, frame.Get("id").Int()))

	got := <-out
	assert.Contains(t, got, "Failed to get a valid response from browser. CDP Result: ")
	assert.Contains(t, got, "Execution context was destroyed")
}

func TestRepeatMalformedRequest(t *testing.T) {
	h := newHarness(t, "S")
	out := h.repeat("nonsense", false)
	h.expect(protocol.MethodNetworkGetAllCookies, `{"cookies":[]}`)

	assert.Contains(t, <-out, "Error processing repeat request")
	h.expectNoFrame()
}

func TestRepeatRender(t *testing.T) {
	mat := &fakeMaterializer{}
	h := newHarness(t, "S", func(o *Options) { o.Materializer = mat })
	out := h.repeat("GET http://x/page HTTP/1.1\n\n", true)
	h.expect(protocol.MethodNetworkGetAllCookies, `{"cookies":[]}`)
	h.expect(protocol.MethodRuntimeEvaluate,
		`{"result":{"type":"object","value":{"status":200,"statusText":"OK","headers":{},"body":"<h1>hi</h1>"}}}`)

	assert.Equal(t, "HTTP/1.1 200 OK\n\n\n<h1>hi</h1>", <-out)
	frame := h.next()
	assert.Equal(t, protocol.MethodTargetCreateTarget, frame.Get("method").String())
	assert.Equal(t, "http://127.0.0.1:9999/response-1.html", frame.Get("params.url").String())
	// 无头部时状态行后的空行属于主体
	assert.Equal(t, []string{"\n<h1>hi</h1>"}, mat.bodies)
}

func TestFetchExpressionOmitsBodyForGet(t *testing.T) {
	for _, method := range []string{"GET", "head"} {
		req := traffic.NewRequest()
		req.Method = method
		req.URL = "http://x/"
		req.Body = "ignored"
		expr, err := fetchExpression(req)
		require.NoError(t, err)
		assert.NotContains(t, expr, `"body":`, method)
	}

	req := traffic.NewRequest()
	req.Method = "PUT"
	req.URL = `http://x/"quoted"`
	req.Body = "x=1"
	expr, err := fetchExpression(req)
	require.NoError(t, err)
	assert.Contains(t, expr, `"body":"x=1"`)
	assert.Contains(t, expr, `fetch("http://x/\"quoted\""`)
}
