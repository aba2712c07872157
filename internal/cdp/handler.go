package cdp

import (
	"encoding/json"
	"fmt"

	"github.com/mafredri/cdp/protocol/network"

	adapter "cdprepeater/internal/adapter/cdp"
	"cdprepeater/internal/protocol"
	"cdprepeater/internal/rules"
	"cdprepeater/pkg/model"
)

const (
	unknownResponseHead = "HTTP/1.1 000 Unknown"
	noNetworkBody       = "[Cached/Internal Request - No Network Body]"
	bodyNotAvailable    = "[Response body not available]"
)

// handleFrame 解析一个入站帧并分发，非法帧只记录日志
func (e *Engine) handleFrame(raw []byte) {
	in, err := protocol.Decode(raw)
	if err != nil {
		e.log.Debug("忽略无法解析的帧", "error", err)
		e.metrics.IgnoredFrames.WithLabelValues("malformed").Inc()
		return
	}
	if !e.session.Accepts(in.Session()) {
		e.metrics.SessionFiltered.Inc()
		return
	}
	switch ev := in.(type) {
	case *protocol.Reply:
		e.handleReply(ev)
	case *protocol.RequestPaused:
		e.onRequestPaused(ev)
	case *protocol.ResponseReceived:
		e.onResponseReceived(ev)
	case *protocol.LoadingFinished:
		e.onLoadingFinished(ev)
	case *protocol.LoadingFailed:
		e.onLoadingFailed(ev)
	case *protocol.Ignored:
		e.metrics.IgnoredFrames.WithLabelValues("event").Inc()
	}
}

// handleReply 完成等待中的命令，或解析响应体
func (e *Engine) handleReply(rep *protocol.Reply) {
	if ch, ok := e.tables.takePending(rep.ID); ok {
		e.metrics.PendingCommands.Set(float64(len(e.tables.pending)))
		var err error
		if rep.Error != nil {
			err = rep.Error
		}
		ch <- result{reply: rep, err: err}
		return
	}
	if fid, ok := e.tables.takeBodyFetch(rep.ID); ok {
		e.resolveBody(fid, rep)
		return
	}
	// continueRequest 等无需回复的命令
	if rep.Error != nil {
		e.log.Debug("命令返回错误", "id", rep.ID, "error", rep.Error.Message)
	}
}

// onRequestPaused 先放行请求，再记录历史并通知 UI
func (e *Engine) onRequestPaused(ev *protocol.RequestPaused) {
	monitored, _ := e.session.Monitored()
	e.enqueue(e.nextID(), protocol.ContinueRequest(ev.RequestID, monitored))
	e.metrics.Intercepted.Inc()

	if !e.scope.InScope(rules.Ctx{URL: ev.URL, Method: ev.Method}) {
		e.log.Debug("请求不在捕获范围内", "id", string(ev.RequestID), "url", ev.URL)
		return
	}

	if ev.NetworkID != "" {
		e.tables.network[ev.NetworkID] = ev.RequestID
	}
	rec := adapter.ToRecord(ev)
	if evicted, ok := e.store.Append(rec); ok {
		e.metrics.Evictions.Inc()
		e.notify(model.RemoveNotification(evicted))
	}
	e.metrics.HistorySize.Set(float64(e.store.Len()))
	e.notify(model.NewRequestNotification(rec))

	if ev.NetworkID == "" {
		// 没有网络加载，不会再有后续事件
		e.store.SetResponse(ev.RequestID, noNetworkBody)
		e.notify(model.ResponseNotification(ev.RequestID, noNetworkBody))
	}
	e.log.Debug("已拦截请求", "id", string(ev.RequestID), "method", ev.Method, "url", ev.URL)
}

// onResponseReceived 保存状态行与头部，主体稍后获取
func (e *Engine) onResponseReceived(ev *protocol.ResponseReceived) {
	fid, ok := e.tables.network[ev.NetworkID]
	if !ok {
		return
	}
	e.store.SetResponseHead(fid, adapter.ResponseHead(ev))
}

func (e *Engine) onLoadingFinished(ev *protocol.LoadingFinished) {
	fid, ok := e.tables.takeNetwork(ev.NetworkID)
	if !ok {
		return
	}
	if _, ok := e.store.Get(fid); !ok {
		return
	}
	e.requestBody(fid, ev.NetworkID)
}

func (e *Engine) onLoadingFailed(ev *protocol.LoadingFailed) {
	fid, ok := e.tables.takeNetwork(ev.NetworkID)
	if !ok {
		return
	}
	if !e.store.SetErrorText(fid, ev.ErrorText) {
		return
	}
	e.requestBody(fid, ev.NetworkID)
}

// requestBody 发送 getResponseBody 并登记回复对应的拦截 ID
func (e *Engine) requestBody(fid model.InterceptionID, nid model.NetworkID) {
	monitored, _ := e.session.Monitored()
	id := e.nextID()
	e.tables.bodyFetch[id] = fid
	e.enqueue(id, protocol.GetResponseBody(nid, monitored))
}

// resolveBody 拼接完整响应文本并通知 UI
func (e *Engine) resolveBody(fid model.InterceptionID, rep *protocol.Reply) {
	rec, ok := e.store.Get(fid)
	if !ok {
		e.metrics.BodyFetches.WithLabelValues("evicted").Inc()
		return
	}
	body, outcome := composeBody(rec, rep)
	e.metrics.BodyFetches.WithLabelValues(outcome).Inc()

	head := unknownResponseHead
	if rec.ResponseHead != nil {
		head = *rec.ResponseHead
	}
	full := head + "\n\n" + body
	e.store.SetResponse(fid, full)
	e.notify(model.ResponseNotification(fid, full))
}

// composeBody 根据 getResponseBody 的回复生成主体或占位文本
func composeBody(rec *model.InterceptedRequest, rep *protocol.Reply) (body, outcome string) {
	if rep.Error != nil {
		if rec.ErrorText != nil {
			return fmt.Sprintf("[Request Failed: %s]", *rec.ErrorText), "failed"
		}
		return fmt.Sprintf("[No Content / Body Unavailable (CDP Error: %s)]", rep.Error.Message), "unavailable"
	}
	var r network.GetResponseBodyReply
	if err := json.Unmarshal(rep.Result, &r); err != nil {
		return bodyNotAvailable, "unavailable"
	}
	if r.Base64Encoded {
		return fmt.Sprintf("[Binary Content (%d bytes, base64)]", len(r.Body)), "binary"
	}
	return r.Body, "text"
}
