package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid 配置校验失败
var ErrInvalid = errors.New("invalid config")

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	DevTools DevTools `yaml:"devtools"`
	History  History  `yaml:"history"`
	Relay    Relay    `yaml:"relay"`
	Server   Server   `yaml:"server"`
	Scope    Scope    `yaml:"scope"`
	Journal  Journal  `yaml:"journal"`
	Log      Log      `yaml:"log"`
}

// DevTools 浏览器调试端点
type DevTools struct {
	URL        string        `yaml:"url"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retryDelay"`
}

// History 请求历史
type History struct {
	Limit int `yaml:"limit"`
}

// Relay 通知队列
type Relay struct {
	Capacity int `yaml:"capacity"`
}

// Server 静态资源与 UI websocket 服务
type Server struct {
	Host         string        `yaml:"host"`
	HTTPPort     int           `yaml:"httpPort"`
	WSPort       int           `yaml:"wsPort"`
	Root         string        `yaml:"root"`
	ReadyTimeout time.Duration `yaml:"readyTimeout"`
}

// Scope 捕获范围，空表示全部记录
type Scope struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
	Methods []string `yaml:"methods"`
}

// Journal 重放记录
type Journal struct {
	Dsn    string `yaml:"dsn"`
	Prefix string `yaml:"prefix"`
}

// Log 日志
type Log struct {
	Level      string   `yaml:"level"`
	Writer     []string `yaml:"writer"`
	File       string   `yaml:"file"`
	MaxSizeMB  int      `yaml:"maxSizeMB"`
	MaxBackups int      `yaml:"maxBackups"`
	MaxAgeDays int      `yaml:"maxAgeDays"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Version: "1.0.0",
		DevTools: DevTools{
			URL:        "http://127.0.0.1:9222",
			Retries:    10,
			RetryDelay: 2 * time.Second,
		},
		History: History{Limit: 500},
		Relay:   Relay{Capacity: 4096},
		Server: Server{
			Host:         "127.0.0.1",
			HTTPPort:     9999,
			WSPort:       8765,
			Root:         "webroot",
			ReadyTimeout: 5 * time.Second,
		},
		Journal: Journal{
			Dsn:    "file::memory:?cache=shared",
			Prefix: "cdprepeater_",
		},
		Log: Log{
			Level:      "info",
			Writer:     []string{"console"},
			File:       "cdprepeater.log",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load 读取 YAML 配置文件并覆盖默认值，path 为空时返回默认配置
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	switch {
	case c.DevTools.URL == "":
		return fmt.Errorf("%w: devtools.url is empty", ErrInvalid)
	case c.DevTools.Retries <= 0:
		return fmt.Errorf("%w: devtools.retries must be positive", ErrInvalid)
	case c.History.Limit <= 0:
		return fmt.Errorf("%w: history.limit must be positive", ErrInvalid)
	case c.Relay.Capacity <= 0:
		return fmt.Errorf("%w: relay.capacity must be positive", ErrInvalid)
	case c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535:
		return fmt.Errorf("%w: server.httpPort out of range", ErrInvalid)
	case c.Server.WSPort <= 0 || c.Server.WSPort > 65535:
		return fmt.Errorf("%w: server.wsPort out of range", ErrInvalid)
	case c.Server.HTTPPort == c.Server.WSPort:
		return fmt.Errorf("%w: server.httpPort and server.wsPort collide", ErrInvalid)
	}
	return nil
}

// HTTPAddr 静态服务监听地址
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}

// WSAddr UI websocket 监听地址
func (c *Config) WSAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.WSPort)
}

// BaseURL 静态服务根地址
func (c *Config) BaseURL() string {
	return "http://" + c.HTTPAddr()
}
