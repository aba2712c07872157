package traffic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	raw := "POST http://x/login HTTP/1.1\nHost: x\nContent-Type: application/json\nbroken line\n\n{\"a\":1}\n\nmore"
	req, err := ParseRequest(raw)
	require.NoError(t, err)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "http://x/login", req.URL)
	assert.Equal(t, "HTTP/1.1", req.Proto)
	assert.Equal(t, Header{{"Host", "x"}, {"Content-Type", "application/json"}}, req.Headers)
	assert.Equal(t, "{\"a\":1}\n\nmore", req.Body)
}

func TestParseRequestWithoutBlankLine(t *testing.T) {
	req, err := ParseRequest("GET /a HTTP/1.1\nAccept: */*")
	require.NoError(t, err)
	assert.Equal(t, "*/*", req.Headers.Get("accept"))
	assert.Empty(t, req.Body)
}

func TestParseRequestCRLF(t *testing.T) {
	req, err := ParseRequest("PUT http://x/ HTTP/1.1\r\nX-A: 1\r\n\r\nbody")
	require.NoError(t, err)
	assert.Equal(t, "1", req.Headers.Get("X-A"))
	assert.Equal(t, "body", req.Body)
}

func TestParseRequestMalformed(t *testing.T) {
	for _, raw := range []string{"", "GET", "\n\nbody"} {
		_, err := ParseRequest(raw)
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	cases := []string{
		"GET http://x/a HTTP/1.1\n\n",
		"POST http://x/a HTTP/1.1\nA: 1\nB: two: parts\n\nbody",
		"DELETE http://x/a?q=1 HTTP/2\nCookie: a=b; c=d\n\n",
	}
	for _, raw := range cases {
		req, err := ParseRequest(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, req.Raw())

		again, err := ParseRequest(req.Raw())
		require.NoError(t, err)
		assert.Equal(t, req, again)
	}
}

func TestHeaderSetReplacesCaseVariants(t *testing.T) {
	h := Header{{"cookie", "old"}, {"Accept", "*/*"}, {"COOKIE", "dup"}}
	h.Set("Cookie", "new")
	assert.Equal(t, Header{{"cookie", "new"}, {"Accept", "*/*"}}, h)

	h.Set("User-Agent", "ua")
	assert.Equal(t, "ua", h.Get("user-agent"))
	h.Del("ACCEPT")
	assert.False(t, h.Has("accept"))
	assert.Equal(t, "cookie: new\nUser-Agent: ua", h.Text())
}

func TestResponseRaw(t *testing.T) {
	res := &Response{Proto: "HTTP/1.1", StatusCode: 200}
	res.Body = "hello"
	assert.Equal(t, "HTTP/1.1 200 OK\n\n\nhello", res.Raw())

	res.Headers.Add("Content-Type", "text/plain")
	assert.Equal(t, "HTTP/1.1 200 OK\nContent-Type: text/plain\n\nhello", res.Raw())
}

func TestParseResponse(t *testing.T) {
	res, err := ParseResponse("HTTP/2 404 Not Found\nX: y\n\nnope")
	require.NoError(t, err)
	assert.Equal(t, "HTTP/2", res.Proto)
	assert.Equal(t, 404, res.StatusCode)
	assert.Equal(t, "Not Found", res.StatusText)
	assert.Equal(t, "nope", res.Body)

	_, err = ParseResponse("Error: no monitored tab")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNormalizeProto(t *testing.T) {
	assert.Equal(t, "HTTP/1.1", NormalizeProto(""))
	assert.Equal(t, "HTTP/1.1", NormalizeProto("http/1.1"))
	assert.Equal(t, "HTTP/1.0", NormalizeProto("HTTP/1.0"))
	assert.Equal(t, "HTTP/2", NormalizeProto("h2"))
	assert.Equal(t, "HTTP/3", NormalizeProto("h3-29"))
	assert.Equal(t, "HTTP/1.1", NormalizeProto("quic"))
}

func TestStatusLineFallback(t *testing.T) {
	assert.Equal(t, "HTTP/2 204 No Content", StatusLine("HTTP/2", 204, ""))
	assert.Equal(t, "HTTP/1.1 200 Fine", StatusLine("", 200, "Fine"))
}
