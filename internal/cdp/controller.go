package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/browser"
	"github.com/mafredri/cdp/protocol/target"

	"cdprepeater/internal/logger"
	"cdprepeater/internal/protocol"
	"cdprepeater/pkg/model"
)

// ErrUnreachable 调试端点在重试后仍不可用
var ErrUnreachable = errors.New("devtools endpoint unreachable")

// BlankURL 供用户浏览的空白页
const BlankURL = "about:blank"

// Bootstrap 启动序列：获取 UA → 创建控制面板页 → 创建空白页 → 附加 → 启用 Network 与 Fetch。
// 获取监控会话失败时返回 ErrNoSession。
func (e *Engine) Bootstrap(ctx context.Context, controlPanelURL string) error {
	if rep, err := e.Call(ctx, protocol.GetVersion()); err != nil {
		e.log.Warn("获取浏览器版本失败", "error", err)
	} else {
		var v browser.GetVersionReply
		if err := json.Unmarshal(rep.Result, &v); err == nil && v.UserAgent != "" {
			e.session.SetUserAgent(v.UserAgent)
			e.log.Info("已获取浏览器 User-Agent", "userAgent", v.UserAgent)
		}
	}

	if controlPanelURL != "" {
		if _, err := e.Call(ctx, protocol.CreateTarget(controlPanelURL)); err != nil {
			e.log.Warn("创建控制面板页失败", "url", controlPanelURL, "error", err)
		}
	}

	rep, err := e.Call(ctx, protocol.CreateTarget(BlankURL))
	if err != nil {
		return fmt.Errorf("%w: create target: %v", ErrNoSession, err)
	}
	var created target.CreateTargetReply
	if err := json.Unmarshal(rep.Result, &created); err != nil || created.TargetID == "" {
		return fmt.Errorf("%w: create target returned no targetId", ErrNoSession)
	}
	targetID := model.TargetID(created.TargetID)
	e.log.Info("已创建浏览页", "target", string(targetID))

	rep, err = e.Call(ctx, protocol.AttachToTarget(targetID))
	if err != nil {
		return fmt.Errorf("%w: attach: %v", ErrNoSession, err)
	}
	var attached target.AttachToTargetReply
	if err := json.Unmarshal(rep.Result, &attached); err != nil || attached.SessionID == "" {
		return fmt.Errorf("%w: attach returned no sessionId", ErrNoSession)
	}
	sid := model.SessionID(attached.SessionID)
	if err := e.session.SetMonitored(targetID, sid); err != nil {
		return err
	}

	if _, err := e.Call(ctx, protocol.NetworkEnable(sid)); err != nil {
		return fmt.Errorf("enable network: %w", err)
	}
	if _, err := e.Call(ctx, protocol.FetchEnable(sid)); err != nil {
		return fmt.Errorf("enable fetch: %w", err)
	}
	e.log.Info("已启用请求拦截", "sessionID", string(sid))
	return nil
}

// Discover 探测浏览器调试端点，固定间隔重试 retries 次
func Discover(ctx context.Context, devtoolsURL string, retries int, delay time.Duration, l logger.Logger) (*devtool.Version, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if retries <= 0 {
		retries = 1
	}
	dt := devtool.New(devtoolsURL)
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		v, err := dt.Version(ctx)
		if err == nil && v.WebSocketDebuggerURL != "" {
			l.Info("已发现调试端点", "browser", v.Browser, "ws", v.WebSocketDebuggerURL)
			return v, nil
		}
		if err == nil {
			err = errors.New("empty webSocketDebuggerUrl")
		}
		lastErr = err
		if attempt == retries {
			break
		}
		l.Warn("连接调试端点失败，稍后重试", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrUnreachable, retries, lastErr)
}

// Dial 连接浏览器级 websocket 端点
func Dial(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := d.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return conn, nil
}
