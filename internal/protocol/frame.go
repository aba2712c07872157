// Package protocol 描述调试协议连接上的帧：出站命令与入站回复/事件。
//
// 入站帧在边界处一次性解析为有限的几种类型，其余一律归为 Ignored。
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"cdprepeater/pkg/model"
	"cdprepeater/pkg/traffic"
)

// ErrMalformedFrame 帧不是合法的 JSON 对象或缺少必需字段
var ErrMalformedFrame = errors.New("malformed frame")

// Command 出站命令帧 {id, method, params, sessionId?}
type Command struct {
	ID        int64           `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	SessionID model.SessionID `json:"sessionId,omitempty"`
}

// Encode 序列化命令，params 为空时发送 {}
func (c Command) Encode() ([]byte, error) {
	if len(c.Params) == 0 {
		c.Params = json.RawMessage("{}")
	}
	return json.Marshal(c)
}

// ReplyError 命令级错误
type ReplyError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *ReplyError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("cdp error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// Inbound 入站帧的解析结果
type Inbound interface {
	Session() model.SessionID
}

// Reply 命令回复
type Reply struct {
	SessionID model.SessionID
	ID        int64
	Result    json.RawMessage
	Error     *ReplyError
	Raw       []byte
}

// RequestPaused Fetch.requestPaused
type RequestPaused struct {
	SessionID    model.SessionID
	RequestID    model.InterceptionID
	NetworkID    model.NetworkID // 可能为空
	Method       string
	URL          string
	Headers      traffic.Header
	PostData     *string
	ResourceType string
}

// ResponseReceived Network.responseReceived
type ResponseReceived struct {
	SessionID  model.SessionID
	NetworkID  model.NetworkID
	Status     int
	StatusText string
	Protocol   string
	Headers    traffic.Header
}

// LoadingFinished Network.loadingFinished
type LoadingFinished struct {
	SessionID model.SessionID
	NetworkID model.NetworkID
}

// LoadingFailed Network.loadingFailed
type LoadingFailed struct {
	SessionID model.SessionID
	NetworkID model.NetworkID
	ErrorText string
}

// Ignored 不处理的事件
type Ignored struct {
	SessionID model.SessionID
	Method    string
}

func (r *Reply) Session() model.SessionID            { return r.SessionID }
func (e *RequestPaused) Session() model.SessionID    { return e.SessionID }
func (e *ResponseReceived) Session() model.SessionID { return e.SessionID }
func (e *LoadingFinished) Session() model.SessionID  { return e.SessionID }
func (e *LoadingFailed) Session() model.SessionID    { return e.SessionID }
func (e *Ignored) Session() model.SessionID          { return e.SessionID }

// Decode 解析一个入站帧
func Decode(raw []byte) (Inbound, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedFrame)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedFrame)
	}
	session := model.SessionID(root.Get("sessionId").String())

	if id := root.Get("id"); id.Exists() {
		if id.Type != gjson.Number {
			return nil, fmt.Errorf("%w: non-numeric id", ErrMalformedFrame)
		}
		rep := &Reply{SessionID: session, ID: id.Int(), Raw: raw}
		if e := root.Get("error"); e.Exists() {
			rep.Error = &ReplyError{
				Code:    e.Get("code").Int(),
				Message: e.Get("message").String(),
				Data:    e.Get("data").String(),
			}
			if rep.Error.Message == "" {
				rep.Error.Message = "Unknown"
			}
		} else if r := root.Get("result"); r.Exists() {
			rep.Result = json.RawMessage(r.Raw)
		}
		return rep, nil
	}

	method := root.Get("method").String()
	params := root.Get("params")
	switch method {
	case EventRequestPaused:
		req := params.Get("request")
		ev := &RequestPaused{
			SessionID:    session,
			RequestID:    model.InterceptionID(params.Get("requestId").String()),
			NetworkID:    model.NetworkID(params.Get("networkId").String()),
			Method:       req.Get("method").String(),
			URL:          req.Get("url").String(),
			Headers:      headers(req.Get("headers")),
			ResourceType: params.Get("resourceType").String(),
		}
		if pd := req.Get("postData"); pd.Exists() && pd.Type == gjson.String {
			s := pd.String()
			ev.PostData = &s
		}
		if ev.RequestID == "" {
			return nil, fmt.Errorf("%w: %s without requestId", ErrMalformedFrame, method)
		}
		return ev, nil
	case EventResponseReceived:
		res := params.Get("response")
		ev := &ResponseReceived{
			SessionID:  session,
			NetworkID:  model.NetworkID(params.Get("requestId").String()),
			Status:     int(res.Get("status").Int()),
			StatusText: res.Get("statusText").String(),
			Protocol:   res.Get("protocol").String(),
			Headers:    headers(res.Get("headers")),
		}
		if ev.NetworkID == "" {
			return nil, fmt.Errorf("%w: %s without requestId", ErrMalformedFrame, method)
		}
		return ev, nil
	case EventLoadingFinished:
		ev := &LoadingFinished{SessionID: session, NetworkID: model.NetworkID(params.Get("requestId").String())}
		if ev.NetworkID == "" {
			return nil, fmt.Errorf("%w: %s without requestId", ErrMalformedFrame, method)
		}
		return ev, nil
	case EventLoadingFailed:
		ev := &LoadingFailed{
			SessionID: session,
			NetworkID: model.NetworkID(params.Get("requestId").String()),
			ErrorText: params.Get("errorText").String(),
		}
		if ev.ErrorText == "" {
			ev.ErrorText = "Unknown Error"
		}
		if ev.NetworkID == "" {
			return nil, fmt.Errorf("%w: %s without requestId", ErrMalformedFrame, method)
		}
		return ev, nil
	default:
		return &Ignored{SessionID: session, Method: method}, nil
	}
}

// headers 按 JSON 中的顺序读取头部对象，非字符串值取其原始文本
func headers(obj gjson.Result) traffic.Header {
	if !obj.IsObject() {
		return nil
	}
	var h traffic.Header
	obj.ForEach(func(k, v gjson.Result) bool {
		h.Add(k.String(), v.String())
		return true
	})
	return h
}
