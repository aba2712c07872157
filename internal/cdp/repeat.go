package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mafredri/cdp/protocol/network"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"cdprepeater/internal/protocol"
	"cdprepeater/pkg/traffic"
)

// NoSessionMessage 没有监控会话时重放返回的文本
const NoSessionMessage = "Error: No monitored tab is available to send the request from."

// fetchScript 在页面中执行 fetch，返回状态、头部与文本主体，失败时返回 {error}
const fetchScript = `(async () => { try { const response = await fetch(%s, %s); ` +
	`const body = await response.text(); const headers = {}; ` +
	`for (const [key, value] of response.headers.entries()) { headers[key] = value; } ` +
	`return { status: response.status, statusText: response.statusText, headers: headers, body: body }; ` +
	`} catch (e) { return { error: e.toString() }; } })()`

// Repeat 通过浏览器重放原始请求文本，返回规范格式的响应文本或错误描述。
// render 为 true 时将响应主体写为资源并在新页面中打开。
func (e *Engine) Repeat(ctx context.Context, raw string, render bool) string {
	sid, ok := e.session.Monitored()
	if !ok {
		e.metrics.Repeats.WithLabelValues("no_session").Inc()
		return NoSessionMessage
	}

	cookie, err := e.cookieHeader(ctx)
	if err != nil {
		e.metrics.Repeats.WithLabelValues("protocol_error").Inc()
		return fmt.Sprintf("Error processing repeat request: %v", err)
	}

	req, err := traffic.ParseRequest(raw)
	if err != nil {
		e.metrics.Repeats.WithLabelValues("invalid_request").Inc()
		return fmt.Sprintf("Error processing repeat request: %v", err)
	}
	req.Headers.Set("Cookie", cookie)
	if ua := e.session.UserAgent(); ua != "" {
		req.Headers.Set("User-Agent", ua)
	}

	expr, err := fetchExpression(req)
	if err != nil {
		e.metrics.Repeats.WithLabelValues("invalid_request").Inc()
		return fmt.Sprintf("Error processing repeat request: %v", err)
	}

	e.log.Info("重放请求", "method", req.Method, "url", req.URL)
	rep, err := e.Call(ctx, protocol.Evaluate(expr, sid))
	if err != nil {
		e.metrics.Repeats.WithLabelValues("protocol_error").Inc()
		if rep != nil {
			return fmt.Sprintf("Failed to get a valid response from browser. CDP Result: %s", rep.Raw)
		}
		return fmt.Sprintf("Error processing repeat request: %v", err)
	}

	text, ok := composeRepeatResponse(rep)
	if !ok {
		e.metrics.Repeats.WithLabelValues("browser_error").Inc()
		return text
	}
	e.metrics.Repeats.WithLabelValues("ok").Inc()

	if render {
		e.materialize(ctx, text)
	}
	return text
}

// cookieHeader 获取浏览器全部 Cookie 并拼接为一个 Cookie 头，同名取最后一个
func (e *Engine) cookieHeader(ctx context.Context) (string, error) {
	rep, err := e.Call(ctx, protocol.GetAllCookies())
	if err != nil {
		return "", fmt.Errorf("get cookies: %w", err)
	}
	var r network.GetAllCookiesReply
	if err := json.Unmarshal(rep.Result, &r); err != nil {
		return "", fmt.Errorf("decode cookies: %w", err)
	}
	index := make(map[string]int, len(r.Cookies))
	var names, values []string
	for _, c := range r.Cookies {
		if i, ok := index[c.Name]; ok {
			values[i] = c.Value
			continue
		}
		index[c.Name] = len(names)
		names = append(names, c.Name)
		values = append(values, c.Value)
	}
	pairs := make([]string, len(names))
	for i := range names {
		pairs[i] = names[i] + "=" + values[i]
	}
	return strings.Join(pairs, "; "), nil
}

// fetchExpression 生成页面内执行的 fetch 表达式，GET/HEAD 不带主体
func fetchExpression(req *traffic.Request) (string, error) {
	init := `{"credentials":"include","mode":"cors"}`
	var err error
	if init, err = sjson.Set(init, "method", req.Method); err != nil {
		return "", err
	}
	if init, err = sjson.Set(init, "headers", req.Headers.Map()); err != nil {
		return "", err
	}
	if allowsBody(req.Method) {
		if init, err = sjson.Set(init, "body", req.Body); err != nil {
			return "", err
		}
	}
	u, err := json.Marshal(req.URL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(fetchScript, u, init), nil
}

func allowsBody(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		return false
	}
	return true
}

// composeRepeatResponse 将 Runtime.evaluate 的结果转换为规范响应文本
func composeRepeatResponse(rep *protocol.Reply) (string, bool) {
	res := gjson.ParseBytes(rep.Result)
	if ex := res.Get("exceptionDetails"); ex.Exists() {
		msg := ex.Get("exception.description").String()
		if msg == "" {
			msg = ex.Get("text").String()
		}
		return fmt.Sprintf("Error executing fetch in browser: %s", msg), false
	}
	val := res.Get("result.value")
	if !val.IsObject() {
		return fmt.Sprintf("Failed to get a valid response from browser. CDP Result: %s", rep.Raw), false
	}
	if e := val.Get("error"); e.Exists() {
		return fmt.Sprintf("Error executing fetch in browser: %s", e.String()), false
	}
	out := &traffic.Response{
		Proto:      traffic.DefaultProto,
		StatusCode: int(val.Get("status").Int()),
		StatusText: val.Get("statusText").String(),
		Body:       val.Get("body").String(),
	}
	val.Get("headers").ForEach(func(k, v gjson.Result) bool {
		out.Headers.Add(k.String(), v.String())
		return true
	})
	return out.Raw(), true
}

// materialize 托管响应主体并在新页面中打开，不等待结果
func (e *Engine) materialize(ctx context.Context, text string) {
	if e.materializer == nil {
		return
	}
	_, body, _ := traffic.SplitHead(text)
	u, err := e.materializer.Host(body)
	if err != nil {
		e.log.Err(err, "托管响应主体失败")
		return
	}
	if err := e.Send(ctx, protocol.CreateTarget(u)); err != nil {
		e.log.Warn("打开渲染页失败", "url", u, "error", err)
	}
}
