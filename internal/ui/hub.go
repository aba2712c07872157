// Package ui 与显示界面之间的 websocket 通道：下发通知，接收重放请求。
package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"cdprepeater/internal/logger"
	"cdprepeater/pkg/model"
)

// ErrNoClient 当前没有已连接的界面
var ErrNoClient = errors.New("no ui client connected")

const writeTimeout = 2 * time.Second

// RepeatFunc 处理界面发来的重放请求
type RepeatFunc func(ctx context.Context, raw string, render bool)

// Hub 界面连接，同一时刻只保留最新的一个
type Hub struct {
	upgrader websocket.Upgrader
	log      logger.Logger
	onRepeat RepeatFunc

	mu   sync.Mutex
	conn *websocket.Conn
	wmu  sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once

	base context.Context
	srv  *http.Server
	ln   net.Listener
}

// New 创建 Hub，onRepeat 可为空
func New(l logger.Logger, onRepeat RepeatFunc) *Hub {
	if l == nil {
		l = logger.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		log:      l,
		onRepeat: onRepeat,
		ready:    make(chan struct{}),
		base:     context.Background(),
	}
}

// SetRepeatHandler 设置重放请求处理函数，需在 Start 之前调用
func (h *Hub) SetRepeatHandler(fn RepeatFunc) { h.onRepeat = fn }

// Ready 第一个界面连接后关闭
func (h *Hub) Ready() <-chan struct{} { return h.ready }

// Connected 是否有界面连接
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

// ServeHTTP 升级为 websocket，替换旧连接后循环读取入站消息
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("界面连接升级失败", "error", err)
		return
	}
	h.mu.Lock()
	old := h.conn
	h.conn = c
	h.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	h.readyOnce.Do(func() { close(h.ready) })
	h.log.Info("界面已连接", "remote", r.RemoteAddr)

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			break
		}
		h.handle(msg)
	}

	h.mu.Lock()
	if h.conn == c {
		h.conn = nil
	}
	h.mu.Unlock()
	_ = c.Close()
	h.log.Info("界面已断开", "remote", r.RemoteAddr)
}

func (h *Hub) handle(msg []byte) {
	var in model.Inbound
	if err := json.Unmarshal(msg, &in); err != nil {
		h.log.Warn("忽略无法解析的界面消息", "error", err)
		return
	}
	switch in.Type {
	case model.InboundRepeatRequest:
		if h.onRepeat == nil {
			h.log.Warn("未设置重放处理")
			return
		}
		go h.onRepeat(h.base, in.Data, in.Render)
	default:
		h.log.Debug("忽略未知的界面消息", "type", string(in.Type))
	}
}

// Send 向当前界面发送通知
func (h *Hub) Send(_ context.Context, n model.Notification) error {
	h.mu.Lock()
	c := h.conn
	h.mu.Unlock()
	if c == nil {
		return ErrNoClient
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	h.wmu.Lock()
	defer h.wmu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.WriteMessage(websocket.TextMessage, data)
}

// Start 在 addr 上监听界面连接，ctx 作为重放请求的上下文
func (h *Hub) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	h.base = ctx
	h.ln = ln
	r := chi.NewRouter()
	r.Get("/", h.ServeHTTP)
	h.srv = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Err(err, "界面服务异常退出")
		}
	}()
	h.log.Info("界面服务已启动", "addr", ln.Addr().String())
	return nil
}

// Addr 实际监听地址
func (h *Hub) Addr() string {
	if h.ln == nil {
		return ""
	}
	return h.ln.Addr().String()
}

// Shutdown 关闭当前连接并停止服务
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	c := h.conn
	h.conn = nil
	h.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
	if h.srv == nil {
		return nil
	}
	return h.srv.Shutdown(ctx)
}
