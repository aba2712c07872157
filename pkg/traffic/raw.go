package traffic

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// DefaultProto 请求行与状态行的默认协议版本
const DefaultProto = "HTTP/1.1"

// ErrMalformed 原始报文无法解析
var ErrMalformed = errors.New("malformed raw message")

// SplitHead 以第一个空行拆分头部与主体，不存在空行时 body 为空
func SplitHead(raw string) (head, body string, hasBody bool) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	head, body, hasBody = strings.Cut(raw, "\n\n")
	return head, body, hasBody
}

// ParseRequest 解析规范格式的原始请求文本
//
//	<METHOD> <URL> HTTP/1.1
//	<Header-Name>: <value>
//
//	<body>
func ParseRequest(raw string) (*Request, error) {
	head, body, _ := SplitHead(raw)
	lines := strings.Split(head, "\n")
	parts := strings.SplitN(strings.TrimSpace(lines[0]), " ", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: request line %q", ErrMalformed, lines[0])
	}
	req := NewRequest()
	req.Method = parts[0]
	req.URL = parts[1]
	if len(parts) == 3 && parts[2] != "" {
		req.Proto = parts[2]
	}
	req.Headers = parseHeaderLines(lines[1:])
	req.Body = body
	return req, nil
}

// ParseResponse 解析规范格式的原始响应文本
func ParseResponse(raw string) (*Response, error) {
	head, body, _ := SplitHead(raw)
	lines := strings.Split(head, "\n")
	parts := strings.SplitN(strings.TrimSpace(lines[0]), " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return nil, fmt.Errorf("%w: status line %q", ErrMalformed, lines[0])
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: status code %q", ErrMalformed, parts[1])
	}
	res := &Response{Proto: parts[0], StatusCode: code}
	if len(parts) == 3 {
		res.StatusText = parts[2]
	}
	res.Headers = parseHeaderLines(lines[1:])
	res.Body = body
	return res, nil
}

func parseHeaderLines(lines []string) Header {
	var h Header
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ": ")
		if !ok || name == "" {
			continue
		}
		h.Add(name, value)
	}
	return h
}

// Raw 输出规范格式的原始请求文本
func (r *Request) Raw() string {
	proto := r.Proto
	if proto == "" {
		proto = DefaultProto
	}
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte(' ')
	b.WriteString(r.URL)
	b.WriteByte(' ')
	b.WriteString(proto)
	for _, f := range r.Headers {
		b.WriteByte('\n')
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	b.WriteString("\n\n")
	b.WriteString(r.Body)
	return b.String()
}

// StatusLine 如 "HTTP/1.1 200 OK"，原因短语为空时使用标准短语
func (r *Response) StatusLine() string {
	return StatusLine(r.Proto, r.StatusCode, r.StatusText)
}

// Head 状态行加头部，不含主体
func (r *Response) Head() string {
	return r.StatusLine() + "\n" + r.Headers.Text()
}

// Raw 输出规范格式的原始响应文本
func (r *Response) Raw() string {
	return r.Head() + "\n\n" + r.Body
}

// StatusLine 组装状态行
func StatusLine(proto string, code int, text string) string {
	if proto == "" {
		proto = DefaultProto
	}
	if text == "" {
		text = http.StatusText(code)
	}
	return fmt.Sprintf("%s %d %s", proto, code, text)
}

// NormalizeProto 将浏览器上报的协议名转换为状态行格式
func NormalizeProto(p string) string {
	lp := strings.ToLower(strings.TrimSpace(p))
	switch {
	case lp == "":
		return DefaultProto
	case strings.HasPrefix(lp, "http/"):
		return "HTTP/" + lp[len("http/"):]
	case lp == "h2" || lp == "h2c":
		return "HTTP/2"
	case lp == "h3" || strings.HasPrefix(lp, "h3-"):
		return "HTTP/3"
	default:
		return DefaultProto
	}
}
