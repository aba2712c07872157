// Package service 组装各组件并管理启动与退出顺序。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cdprepeater/internal/cdp"
	"cdprepeater/internal/config"
	"cdprepeater/internal/handler"
	"cdprepeater/internal/logger"
	"cdprepeater/internal/metrics"
	"cdprepeater/internal/relay"
	"cdprepeater/internal/rules"
	"cdprepeater/internal/session"
	"cdprepeater/internal/static"
	"cdprepeater/internal/storage"
	"cdprepeater/internal/ui"
	"cdprepeater/pkg/model"
)

// ControlPanelPath 控制面板页面路径
const ControlPanelPath = "/index.html"

const shutdownTimeout = 3 * time.Second

// Service 服务实现
type Service struct {
	cfg *config.Config
	log logger.Logger

	metrics *metrics.Metrics
	engine  *cdp.Engine
	relay   *relay.Relay
	hub     *ui.Hub
	static  *static.Server
	mat     *static.Materializer
	journal *storage.Journal
	repeats *handler.Handler
}

// New 创建服务，重放记录库在此打开
func New(cfg *config.Config, l logger.Logger) (*Service, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	scope, err := rules.New(cfg.Scope.Include, cfg.Scope.Exclude, cfg.Scope.Methods)
	if err != nil {
		return nil, fmt.Errorf("capture scope: %w", err)
	}
	journal, err := storage.Open(cfg.Journal, l.With("module", "journal"))
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	hub := ui.New(l.With("module", "ui"), nil)
	rel := relay.New(hub, cfg.Relay.Capacity, l.With("module", "relay"), m)
	mat := static.NewMaterializer(cfg.Server.Root, cfg.BaseURL(), l.With("module", "static"))
	engine := cdp.New(cdp.Options{
		HistoryLimit: cfg.History.Limit,
		Notifier:     rel,
		Session:      session.NewState(l.With("module", "session")),
		Scope:        scope,
		Materializer: mat,
		Logger:       l.With("module", "cdp"),
		Metrics:      m,
	})
	repeats := handler.New(handler.Config{
		Repeater: engine,
		Notifier: rel,
		Journal:  journal,
		Logger:   l.With("module", "handler"),
	})
	hub.SetRepeatHandler(func(ctx context.Context, raw string, render bool) {
		repeats.HandleRepeat(ctx, raw, render)
	})

	return &Service{
		cfg:     cfg,
		log:     l,
		metrics: m,
		engine:  engine,
		relay:   rel,
		hub:     hub,
		static:  static.New(cfg.HTTPAddr(), cfg.Server.Root, m.Registry(), l.With("module", "static")),
		mat:     mat,
		journal: journal,
		repeats: repeats,
	}, nil
}

// Run 启动全部组件并阻塞，直到 ctx 结束或调试连接断开
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.shutdown()

	if err := s.static.Start(); err != nil {
		return err
	}
	if err := static.WaitReady(ctx, s.cfg.BaseURL(), s.cfg.Server.ReadyTimeout); err != nil {
		return err
	}
	if err := s.hub.Start(ctx, s.cfg.WSAddr()); err != nil {
		return err
	}
	go s.relay.Run(ctx)

	v, err := cdp.Discover(ctx, s.cfg.DevTools.URL, s.cfg.DevTools.Retries, s.cfg.DevTools.RetryDelay, s.log)
	if err != nil {
		return err
	}
	conn, err := cdp.Dial(ctx, v.WebSocketDebuggerURL)
	if err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- s.engine.Run(ctx, conn) }()

	if err := s.engine.Bootstrap(ctx, s.cfg.BaseURL()+ControlPanelPath); err != nil {
		cancel()
		<-runErr
		return err
	}
	s.log.Info("已就绪，等待界面连接", "ui", "ws://"+s.cfg.WSAddr())
	go func() {
		select {
		case <-s.hub.Ready():
			s.log.Info("界面已就绪")
		case <-ctx.Done():
		}
	}()

	select {
	case <-ctx.Done():
		<-runErr
		return nil
	case err := <-runErr:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

// shutdown 清理渲染文件并关闭各服务
func (s *Service) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if n := s.mat.Cleanup(); n > 0 {
		s.log.Info("已清理渲染文件", "count", n)
	}
	if err := s.hub.Shutdown(ctx); err != nil {
		s.log.Warn("关闭界面服务失败", "error", err)
	}
	if err := s.static.Shutdown(ctx); err != nil {
		s.log.Warn("关闭静态服务失败", "error", err)
	}
	if err := s.journal.Close(); err != nil {
		s.log.Warn("关闭重放记录库失败", "error", err)
	}
}

// Repeat 重放原始请求
func (s *Service) Repeat(ctx context.Context, raw string, render bool) string {
	return s.repeats.HandleRepeat(ctx, raw, render)
}

// History 当前请求历史
func (s *Service) History(ctx context.Context) ([]*model.InterceptedRequest, error) {
	return s.engine.History(ctx)
}

// Repeats 最近的重放记录
func (s *Service) Repeats(ctx context.Context, limit int) ([]storage.RepeatRecord, error) {
	return s.journal.List(ctx, limit)
}
