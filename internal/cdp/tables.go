package cdp

import (
	"cdprepeater/internal/protocol"
	"cdprepeater/pkg/model"
)

// result 命令完成结果
type result struct {
	reply *protocol.Reply
	err   error
}

// tables 三张关联表，只由事件循环访问
type tables struct {
	// 命令 ID -> 完成通道（容量为 1，只写一次）
	pending map[int64]chan result
	// getResponseBody 命令 ID -> 拦截 ID
	bodyFetch map[int64]model.InterceptionID
	// 网络 ID -> 拦截 ID
	network map[model.NetworkID]model.InterceptionID
}

func newTables() *tables {
	return &tables{
		pending:   make(map[int64]chan result),
		bodyFetch: make(map[int64]model.InterceptionID),
		network:   make(map[model.NetworkID]model.InterceptionID),
	}
}

func (t *tables) takePending(id int64) (chan result, bool) {
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	return ch, ok
}

func (t *tables) takeBodyFetch(id int64) (model.InterceptionID, bool) {
	fid, ok := t.bodyFetch[id]
	if ok {
		delete(t.bodyFetch, id)
	}
	return fid, ok
}

// takeNetwork 取出并删除映射，网络 ID 在结束事件后不会复用
func (t *tables) takeNetwork(id model.NetworkID) (model.InterceptionID, bool) {
	fid, ok := t.network[id]
	if ok {
		delete(t.network, id)
	}
	return fid, ok
}

// drain 连接断开时让所有等待者返回 err 并清空各表
func (t *tables) drain(err error) int {
	n := len(t.pending)
	for id, ch := range t.pending {
		ch <- result{err: err}
		delete(t.pending, id)
	}
	clear(t.bodyFetch)
	clear(t.network)
	return n
}
