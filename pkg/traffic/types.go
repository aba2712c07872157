package traffic

import (
	"strings"
)

// Field 单个头部字段，保留原始名称
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Header 有序头部集合，名称比较大小写不敏感
type Header []Field

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, key) {
			return f.Value
		}
	}
	return ""
}

// Has 判断是否存在指定 Header
func (h Header) Has(key string) bool {
	for _, f := range h {
		if strings.EqualFold(f.Name, key) {
			return true
		}
	}
	return false
}

// Set 设置 Header，已存在的同名字段（任意大小写）被替换为单个字段
func (h *Header) Set(key, value string) {
	out := (*h)[:0]
	replaced := false
	for _, f := range *h {
		if strings.EqualFold(f.Name, key) {
			if replaced {
				continue
			}
			f.Value = value
			replaced = true
		}
		out = append(out, f)
	}
	if !replaced {
		out = append(out, Field{Name: key, Value: value})
	}
	*h = out
}

// Add 追加字段，不做去重
func (h *Header) Add(key, value string) {
	*h = append(*h, Field{Name: key, Value: value})
}

// Del 删除指定 Header
func (h *Header) Del(key string) {
	out := (*h)[:0]
	for _, f := range *h {
		if !strings.EqualFold(f.Name, key) {
			out = append(out, f)
		}
	}
	*h = out
}

// Map 转换为名称到值的映射，重复名称取最后一个
func (h Header) Map() map[string]string {
	m := make(map[string]string, len(h))
	for _, f := range h {
		m[f.Name] = f.Value
	}
	return m
}

// Text 按 "Name: value" 逐行输出
func (h Header) Text() string {
	var b strings.Builder
	for i, f := range h {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	return b.String()
}

// Request 中立的请求模型
type Request struct {
	ID           string // 拦截 ID，重放请求为空
	Method       string // HTTP方法
	URL          string // 完整URL
	Proto        string // 请求行中的协议版本
	Headers      Header // 请求头
	Body         string // 请求体文本
	ResourceType string // 资源类型 (如 Document, XHR)
}

// Response 中立的响应模型
type Response struct {
	Proto      string // 如 HTTP/1.1
	StatusCode int    // 状态码
	StatusText string // 原因短语
	Headers    Header // 响应头
	Body       string // 响应体文本
}

// NewRequest 创建初始化请求对象
func NewRequest() *Request {
	return &Request{Proto: DefaultProto}
}

// NewResponse 创建初始化响应对象
func NewResponse() *Response {
	return &Response{Proto: DefaultProto, StatusCode: 200, StatusText: "OK"}
}
