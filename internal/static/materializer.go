package static

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"cdprepeater/internal/logger"
)

// Materializer 将重放响应主体写入静态目录，供浏览器渲染
type Materializer struct {
	root    string
	baseURL string
	log     logger.Logger

	mu    sync.Mutex
	files []string
}

// NewMaterializer baseURL 为静态服务根地址
func NewMaterializer(root, baseURL string, l logger.Logger) *Materializer {
	if l == nil {
		l = logger.NewNop()
	}
	return &Materializer{root: root, baseURL: strings.TrimRight(baseURL, "/"), log: l}
}

// Host 写入 response-<uuid>.html 并返回其 URL
func (m *Materializer) Host(body string) (string, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", fmt.Errorf("create root: %w", err)
	}
	name := "response-" + uuid.NewString() + ".html"
	path := filepath.Join(m.root, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	m.mu.Lock()
	m.files = append(m.files, path)
	m.mu.Unlock()
	m.log.Debug("已写入渲染文件", "file", name)
	return m.baseURL + "/" + name, nil
}

// Cleanup 删除所有已写入的文件，返回删除数量
func (m *Materializer) Cleanup() int {
	m.mu.Lock()
	files := m.files
	m.files = nil
	m.mu.Unlock()

	n := 0
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			m.log.Warn("删除渲染文件失败", "file", f, "error", err)
			continue
		}
		n++
	}
	return n
}
