package cdp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cdprepeater/internal/protocol"
	"cdprepeater/pkg/traffic"
)

func TestToRecordCopiesInput(t *testing.T) {
	body := "a=1"
	ev := &protocol.RequestPaused{
		RequestID: "f1",
		Method:    "POST",
		URL:       "http://x/a",
		Headers:   traffic.Header{{Name: "A", Value: "1"}},
		PostData:  &body,
	}
	r := ToRecord(ev)
	body = "changed"
	ev.Headers[0].Value = "changed"

	assert.EqualValues(t, "f1", r.ID)
	assert.Equal(t, "a=1", *r.Body)
	assert.Equal(t, "1", r.Headers.Get("A"))
	assert.Equal(t, "POST http://x/a HTTP/1.1\nA: 1\n\na=1", r.Raw())
}

func TestResponseHead(t *testing.T) {
	assert.Equal(t, "HTTP/1.1 200 OK\n", ResponseHead(&protocol.ResponseReceived{Status: 200}))

	head := ResponseHead(&protocol.ResponseReceived{
		Status:   302,
		Protocol: "h2",
		Headers:  traffic.Header{{Name: "location", Value: "/b"}, {Name: "x-a", Value: "1"}},
	})
	assert.Equal(t, "HTTP/2 302 Found\nlocation: /b\nx-a: 1", head)
}
