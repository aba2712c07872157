// Package storage 重放记录的持久化。
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"cdprepeater/internal/config"
	applog "cdprepeater/internal/logger"
)

// DefaultDSN 内存数据库，进程退出后不保留
const DefaultDSN = "file::memory:?cache=shared"

// ErrClosed 记录库已关闭
var ErrClosed = errors.New("journal closed")

// RepeatRecord 一次重放的记录
type RepeatRecord struct {
	ID         uint      `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"index"`
	RepeatID   string    `gorm:"size:36;uniqueIndex"`
	Method     string    `gorm:"size:16"`
	URL        string
	Request    string
	StatusLine string
	Response   string
	Error      string
	DurationMS int64
}

// Journal 重放记录库
type Journal struct {
	db  *gorm.DB
	log applog.Logger
}

// Open 打开记录库并迁移表结构
func Open(cfg config.Journal, l applog.Logger) (*Journal, error) {
	if l == nil {
		l = applog.NewNop()
	}
	dsn := cfg.Dsn
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: cfg.Prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// 内存库每个连接各自独立
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&RepeatRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	l.Info("重放记录库已就绪", "dsn", dsn)
	return &Journal{db: db, log: l}, nil
}

// Record 保存一条重放记录
func (j *Journal) Record(ctx context.Context, rec *RepeatRecord) error {
	if j == nil || j.db == nil {
		return ErrClosed
	}
	if err := j.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("record repeat: %w", err)
	}
	return nil
}

// List 按时间倒序返回最近的记录，limit <= 0 时返回全部
func (j *Journal) List(ctx context.Context, limit int) ([]RepeatRecord, error) {
	if j == nil || j.db == nil {
		return nil, ErrClosed
	}
	var out []RepeatRecord
	q := j.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list repeats: %w", err)
	}
	return out, nil
}

// Close 关闭底层连接
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	j.db = nil
	return sqlDB.Close()
}
