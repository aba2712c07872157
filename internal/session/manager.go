package session

import (
	"errors"
	"sync"

	"cdprepeater/internal/logger"
	"cdprepeater/pkg/model"
)

// ErrAlreadySet 监控会话只能设置一次
var ErrAlreadySet = errors.New("monitored session already set")

// State 监控会话状态，启动时写入一次，此后只读
type State struct {
	mu        sync.RWMutex
	monitored model.SessionID
	target    model.TargetID
	userAgent string
	log       logger.Logger
}

// NewState 创建会话状态
func NewState(l logger.Logger) *State {
	if l == nil {
		l = logger.NewNop()
	}
	return &State{log: l}
}

// SetMonitored 记录被监控的目标与会话
func (s *State) SetMonitored(target model.TargetID, id model.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monitored != "" {
		return ErrAlreadySet
	}
	s.monitored = id
	s.target = target
	s.log.Info("已设置监控会话", "sessionID", string(id), "target", string(target))
	return nil
}

// Monitored 获取监控会话
func (s *State) Monitored() (model.SessionID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.monitored, s.monitored != ""
}

// Target 获取监控目标
func (s *State) Target() model.TargetID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}

// SetUserAgent 记录浏览器 User-Agent，只接受第一次非空值
func (s *State) SetUserAgent(ua string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userAgent == "" {
		s.userAgent = ua
	}
}

// UserAgent 获取浏览器 User-Agent
func (s *State) UserAgent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userAgent
}

// Accepts 判断帧是否属于监控会话：不带会话标识的帧总是接受
func (s *State) Accepts(id model.SessionID) bool {
	if id == "" {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return id == s.monitored
}
