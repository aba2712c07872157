package model

import (
	"cdprepeater/pkg/traffic"
)

type SessionID string
type TargetID string
type InterceptionID string
type NetworkID string

// InterceptedRequest 领域模型：被拦截的请求及其响应注解
type InterceptedRequest struct {
	ID      InterceptionID
	Method  string
	URL     string
	Headers traffic.Header
	Body    *string

	// 响应阶段
	ResponseHead *string // 状态行加头部
	Response     *string // 完整响应文本或占位
	ErrorText    *string // 网络加载失败原因
}

// Clone 深拷贝，供快照使用
func (r *InterceptedRequest) Clone() *InterceptedRequest {
	c := *r
	c.Headers = append(traffic.Header(nil), r.Headers...)
	return &c
}

// Raw 规范格式的原始请求文本
func (r *InterceptedRequest) Raw() string {
	req := traffic.NewRequest()
	req.Method = r.Method
	req.URL = r.URL
	req.Headers = r.Headers
	if r.Body != nil {
		req.Body = *r.Body
	}
	return req.Raw()
}

// NotificationType UI 通知类型
type NotificationType string

const (
	NotifyNewRequest       NotificationType = "new_request"
	NotifyResponseData     NotificationType = "response_data"
	NotifyRepeatedResponse NotificationType = "repeated_response"
	NotifyRemoveRequest    NotificationType = "remove_request"
)

// Notification 发往 UI 的消息 {type, data}
type Notification struct {
	Type NotificationType `json:"type"`
	Data any              `json:"data"`
}

// RequestData new_request 的载荷
type RequestData struct {
	ID       InterceptionID    `json:"id"`
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers"`
	PostData *string           `json:"postData"`
	Raw      string            `json:"raw"`
}

// ResponseData response_data 的载荷
type ResponseData struct {
	ID   InterceptionID `json:"id"`
	Body string         `json:"body"`
}

// RemoveData remove_request 的载荷
type RemoveData struct {
	ID InterceptionID `json:"id"`
}

// NewRequestNotification 由记录构造 new_request
func NewRequestNotification(r *InterceptedRequest) Notification {
	return Notification{Type: NotifyNewRequest, Data: RequestData{
		ID:       r.ID,
		URL:      r.URL,
		Method:   r.Method,
		Headers:  r.Headers.Map(),
		PostData: r.Body,
		Raw:      r.Raw(),
	}}
}

// ResponseNotification 构造 response_data
func ResponseNotification(id InterceptionID, body string) Notification {
	return Notification{Type: NotifyResponseData, Data: ResponseData{ID: id, Body: body}}
}

// RemoveNotification 构造 remove_request
func RemoveNotification(id InterceptionID) Notification {
	return Notification{Type: NotifyRemoveRequest, Data: RemoveData{ID: id}}
}

// RepeatedNotification 构造 repeated_response
func RepeatedNotification(text string) Notification {
	return Notification{Type: NotifyRepeatedResponse, Data: text}
}

// InboundType UI 发来的消息类型
type InboundType string

const InboundRepeatRequest InboundType = "repeat_request"

// Inbound UI 入站消息
type Inbound struct {
	Type   InboundType `json:"type"`
	Data   string      `json:"data"`
	Render bool        `json:"render"`
}
