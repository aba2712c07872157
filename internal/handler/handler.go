// Package handler 协调一次重放：执行、通知界面、写入重放记录。
package handler

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"cdprepeater/internal/logger"
	"cdprepeater/internal/storage"
	"cdprepeater/pkg/model"
	"cdprepeater/pkg/traffic"
)

// Repeater 在浏览器中重放原始请求
type Repeater interface {
	Repeat(ctx context.Context, raw string, render bool) string
}

// Notifier 发送界面通知，不得阻塞
type Notifier interface {
	Push(n model.Notification)
}

// Recorder 保存重放记录
type Recorder interface {
	Record(ctx context.Context, rec *storage.RepeatRecord) error
}

// Handler 重放请求处理器
type Handler struct {
	repeater Repeater
	notifier Notifier
	journal  Recorder
	log      logger.Logger
}

// Config 配置选项
type Config struct {
	Repeater Repeater
	Notifier Notifier
	Journal  Recorder // 可为空
	Logger   logger.Logger
}

// New 创建重放处理器
func New(cfg Config) *Handler {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Handler{
		repeater: cfg.Repeater,
		notifier: cfg.Notifier,
		journal:  cfg.Journal,
		log:      l,
	}
}

// HandleRepeat 执行重放并把结果作为 repeated_response 发给界面，返回结果文本
func (h *Handler) HandleRepeat(ctx context.Context, raw string, render bool) string {
	id := uuid.NewString()
	ctx = storage.WithRepeatID(ctx, id)
	l := h.log.With("repeatId", id)

	start := time.Now()
	text := h.repeater.Repeat(ctx, raw, render)
	elapsed := time.Since(start)
	l.Info("重放完成", "durationMs", elapsed.Milliseconds(), "render", render)

	if h.notifier != nil {
		h.notifier.Push(model.RepeatedNotification(text))
	}
	if h.journal != nil {
		if err := h.journal.Record(ctx, buildRecord(id, raw, text, elapsed)); err != nil {
			l.Err(err, "保存重放记录失败")
		}
	}
	return text
}

// buildRecord 结果以状态行开头视为成功，否则整段文本作为错误
func buildRecord(id, raw, text string, elapsed time.Duration) *storage.RepeatRecord {
	rec := &storage.RepeatRecord{
		RepeatID:   id,
		Request:    raw,
		DurationMS: elapsed.Milliseconds(),
	}
	if req, err := traffic.ParseRequest(raw); err == nil {
		rec.Method = req.Method
		rec.URL = req.URL
	}
	if strings.HasPrefix(text, "HTTP/") {
		line, _, _ := strings.Cut(text, "\n")
		rec.StatusLine = line
		rec.Response = text
	} else {
		rec.Error = text
	}
	return rec
}
