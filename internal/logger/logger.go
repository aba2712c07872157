package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 统一日志接口，键值对形式的结构化字段
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	// Err 以 error 字段记录错误
	Err(err error, msg string, kv ...any)
	With(kv ...any) Logger
}

// Options 日志配置
type Options struct {
	Level      string
	Writer     []string // console / file
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type zlog struct {
	z zerolog.Logger
}

// New 根据配置创建基于 zerolog 的日志实现
func New(opts Options) Logger {
	var writers []io.Writer
	for _, w := range opts.Writer {
		switch strings.ToLower(w) {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
		case "file":
			if opts.File == "" {
				continue
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAgeDays,
			})
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}
	z := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(opts.Level)).
		With().Timestamp().Logger()
	return &zlog{z: z}
}

// NewWriter 输出到指定 writer，测试中使用
func NewWriter(w io.Writer, level string) Logger {
	return &zlog{z: zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()}
}

// NewNop 丢弃所有输出
func NewNop() Logger {
	return &zlog{z: zerolog.Nop()}
}

// ParseLevel 解析日志级别，无法识别时返回 info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func (l *zlog) Debug(msg string, kv ...any) { fields(l.z.Debug(), kv).Msg(msg) }
func (l *zlog) Info(msg string, kv ...any)  { fields(l.z.Info(), kv).Msg(msg) }
func (l *zlog) Warn(msg string, kv ...any)  { fields(l.z.Warn(), kv).Msg(msg) }
func (l *zlog) Error(msg string, kv ...any) { fields(l.z.Error(), kv).Msg(msg) }

func (l *zlog) Err(err error, msg string, kv ...any) {
	fields(l.z.Error().Err(err), kv).Msg(msg)
}

func (l *zlog) With(kv ...any) Logger {
	c := l.z.With()
	for i := 0; i+1 < len(kv); i += 2 {
		c = c.Interface(key(kv[i]), kv[i+1])
	}
	return &zlog{z: c.Logger()}
}

func fields(e *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			e = e.Interface("!BADKEY", kv[i])
			break
		}
		switch v := kv[i+1].(type) {
		case string:
			e = e.Str(key(kv[i]), v)
		case int:
			e = e.Int(key(kv[i]), v)
		case int64:
			e = e.Int64(key(kv[i]), v)
		case bool:
			e = e.Bool(key(kv[i]), v)
		case time.Duration:
			e = e.Dur(key(kv[i]), v)
		case error:
			e = e.AnErr(key(kv[i]), v)
		default:
			e = e.Interface(key(kv[i]), v)
		}
	}
	return e
}

func key(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return "!BADKEY"
}
