package cdp

import (
	"cdprepeater/internal/protocol"
	"cdprepeater/pkg/model"
	"cdprepeater/pkg/traffic"
)

// ToRecord 将 Fetch.requestPaused 转换为历史记录
func ToRecord(ev *protocol.RequestPaused) *model.InterceptedRequest {
	r := &model.InterceptedRequest{
		ID:      ev.RequestID,
		Method:  ev.Method,
		URL:     ev.URL,
		Headers: append(traffic.Header(nil), ev.Headers...),
	}
	if ev.PostData != nil {
		body := *ev.PostData
		r.Body = &body
	}
	return r
}

// ToNeutralResponse 将 Network.responseReceived 转换为中立 Response 模型（无主体）
func ToNeutralResponse(ev *protocol.ResponseReceived) *traffic.Response {
	return &traffic.Response{
		Proto:      traffic.NormalizeProto(ev.Protocol),
		StatusCode: ev.Status,
		StatusText: ev.StatusText,
		Headers:    append(traffic.Header(nil), ev.Headers...),
	}
}

// ResponseHead 状态行加头部文本，主体在 getResponseBody 返回后拼接
func ResponseHead(ev *protocol.ResponseReceived) string {
	return ToNeutralResponse(ev).Head()
}
