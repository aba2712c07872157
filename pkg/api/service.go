package api

import (
	"context"

	"cdprepeater/internal/config"
	"cdprepeater/internal/logger"
	"cdprepeater/internal/service"
	"cdprepeater/internal/storage"
	"cdprepeater/pkg/model"
)

// Service 服务接口
type Service interface {
	// Run 连接浏览器并开始拦截，阻塞到 ctx 结束或连接断开
	Run(ctx context.Context) error

	// Repeat 在监控页中重放原始请求，返回响应文本或错误描述
	Repeat(ctx context.Context, raw string, render bool) string

	// History 按到达顺序返回请求历史
	History(ctx context.Context) ([]*model.InterceptedRequest, error)

	// Repeats 最近的重放记录，limit <= 0 时返回全部
	Repeats(ctx context.Context, limit int) ([]storage.RepeatRecord, error)
}

// NewService 创建并返回服务接口实现
func NewService(cfg *config.Config, l logger.Logger) (Service, error) {
	s, err := service.New(cfg, l)
	if err != nil {
		return nil, err
	}
	return s, nil
}
