// Package static 提供静态资源服务：控制面板页面、渲染后的响应文件、健康检查与指标。
package static

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cdprepeater/internal/logger"
)

// ErrNotReady 服务在超时内未就绪
var ErrNotReady = errors.New("static server not ready")

// HealthPath 就绪探测路径
const HealthPath = "/healthz"

// Server 静态资源 HTTP 服务
type Server struct {
	addr     string
	root     string
	registry *prometheus.Registry
	log      logger.Logger

	srv *http.Server
	ln  net.Listener
}

// New 创建服务，registry 为空时不暴露 /metrics
func New(addr, root string, registry *prometheus.Registry, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNop()
	}
	return &Server{addr: addr, root: root, registry: registry, log: l}
}

// Handler 路由
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	r.Handle("/*", http.FileServer(http.Dir(s.root)))
	return r
}

// Start 监听端口并在后台提供服务，端口被占用时立即返回错误
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Err(err, "静态服务异常退出")
		}
	}()
	s.log.Info("静态服务已启动", "addr", ln.Addr().String(), "root", s.root)
	return nil
}

// Addr 实际监听地址
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// URL 服务根地址
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// Shutdown 停止服务
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// WaitReady 轮询健康检查直到返回 200 或超时
func WaitReady(ctx context.Context, baseURL string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client := &http.Client{Timeout: time.Second}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+HealthPath, nil)
		if err != nil {
			return err
		}
		if resp, err := client.Do(req); err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrNotReady, baseURL)
		case <-ticker.C:
		}
	}
}
