// Package history 保存拦截请求的有界有序记录。
//
// Store 不加锁，只允许引擎的事件循环协程访问。
package history

import (
	"cdprepeater/pkg/model"
)

// DefaultLimit 默认历史上限
const DefaultLimit = 500

// Store 按到达顺序保存记录，超过上限时淘汰最早的记录
type Store struct {
	limit   int
	records map[model.InterceptionID]*model.InterceptedRequest
	order   []model.InterceptionID
}

// New 创建 Store，limit 非正时使用默认值
func New(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		limit:   limit,
		records: make(map[model.InterceptionID]*model.InterceptedRequest),
	}
}

// Limit 历史上限
func (s *Store) Limit() int { return s.limit }

// Len 当前记录数
func (s *Store) Len() int { return len(s.records) }

// Append 追加记录并返回被淘汰的 ID
//
// 同一 ID 重复追加时替换原记录并移到队尾。
func (s *Store) Append(r *model.InterceptedRequest) (evicted model.InterceptionID, ok bool) {
	if _, exists := s.records[r.ID]; exists {
		s.removeOrder(r.ID)
	}
	s.records[r.ID] = r
	s.order = append(s.order, r.ID)
	if len(s.order) <= s.limit {
		return "", false
	}
	evicted = s.order[0]
	s.order = s.order[1:]
	delete(s.records, evicted)
	return evicted, true
}

// Get 获取记录
func (s *Store) Get(id model.InterceptionID) (*model.InterceptedRequest, bool) {
	r, ok := s.records[id]
	return r, ok
}

// SetResponseHead 保存状态行与头部
func (s *Store) SetResponseHead(id model.InterceptionID, head string) bool {
	r, ok := s.records[id]
	if ok {
		r.ResponseHead = &head
	}
	return ok
}

// SetErrorText 保存加载失败原因
func (s *Store) SetErrorText(id model.InterceptionID, text string) bool {
	r, ok := s.records[id]
	if ok {
		r.ErrorText = &text
	}
	return ok
}

// SetResponse 保存完整响应文本
func (s *Store) SetResponse(id model.InterceptionID, text string) bool {
	r, ok := s.records[id]
	if ok {
		r.Response = &text
	}
	return ok
}

// IDs 按到达顺序返回 ID 副本
func (s *Store) IDs() []model.InterceptionID {
	return append([]model.InterceptionID(nil), s.order...)
}

// Snapshot 按到达顺序返回记录的深拷贝
func (s *Store) Snapshot() []*model.InterceptedRequest {
	out := make([]*model.InterceptedRequest, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return out
}

func (s *Store) removeOrder(id model.InterceptionID) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			return
		}
	}
}
