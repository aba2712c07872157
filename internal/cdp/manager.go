// Package cdp 持有唯一的调试协议连接，负责命令分发、事件解复用与请求关联。
//
// 请求历史与三张关联表只在 Engine.Run 的事件循环协程中读写，不加锁；
// 其他协程通过通道提交命令或查询。
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"cdprepeater/internal/history"
	"cdprepeater/internal/logger"
	"cdprepeater/internal/metrics"
	"cdprepeater/internal/protocol"
	"cdprepeater/internal/rules"
	"cdprepeater/internal/session"
	"cdprepeater/pkg/model"
)

var (
	// ErrConnectionClosed 连接断开时未完成的命令返回该错误
	ErrConnectionClosed = errors.New("cdp connection closed")
	// ErrEngineStopped 事件循环已退出
	ErrEngineStopped = errors.New("engine stopped")
	// ErrNoSession 未能获得监控会话
	ErrNoSession = errors.New("no monitored session")
	// ErrAlreadyRunning Run 只能调用一次
	ErrAlreadyRunning = errors.New("engine already running")
)

// firstCommandID 命令 ID 从该值之后递增
const firstCommandID = 1000

// Transport 协议连接，*websocket.Conn 满足该接口
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Notifier 接收 UI 通知，Push 不得阻塞
type Notifier interface {
	Push(n model.Notification)
}

// Materializer 将响应主体写为可访问的资源并返回其 URL
type Materializer interface {
	Host(body string) (string, error)
}

// Options 引擎配置
type Options struct {
	HistoryLimit int
	Notifier     Notifier
	Session      *session.State
	Scope        *rules.Engine
	Materializer Materializer
	Logger       logger.Logger
	Metrics      *metrics.Metrics
}

type submission struct {
	spec  protocol.Spec
	reply chan result // nil 表示不关心回复
}

// Engine 协议关联引擎
type Engine struct {
	notifier     Notifier
	session      *session.State
	scope        *rules.Engine
	materializer Materializer
	log          logger.Logger
	metrics      *metrics.Metrics

	// 以下字段只由事件循环访问
	store  *history.Store
	tables *tables
	lastID int64

	submit   chan submission
	queries  chan func()
	outbound *frameQueue

	started atomic.Bool
	done    chan struct{}
}

// New 创建引擎
func New(opts Options) *Engine {
	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}
	st := opts.Session
	if st == nil {
		st = session.NewState(l)
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Engine{
		notifier:     opts.Notifier,
		session:      st,
		scope:        opts.Scope,
		materializer: opts.Materializer,
		log:          l,
		metrics:      m,
		store:        history.New(opts.HistoryLimit),
		tables:       newTables(),
		lastID:       firstCommandID,
		submit:       make(chan submission),
		queries:      make(chan func()),
		outbound:     newFrameQueue(),
		done:         make(chan struct{}),
	}
}

// Session 会话状态
func (e *Engine) Session() *session.State { return e.session }

// Done 事件循环退出后关闭
func (e *Engine) Done() <-chan struct{} { return e.done }

// Run 启动读写协程并运行事件循环，直到连接断开或 ctx 结束。只能调用一次。
func (e *Engine) Run(ctx context.Context, t Transport) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	return e.run(ctx, t)
}

func (e *Engine) run(ctx context.Context, t Transport) error {
	stop := make(chan struct{})
	inbound := make(chan []byte, 256)
	readErr := make(chan error, 1)
	writeErr := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.readLoop(t, inbound, readErr, stop)
	}()
	go func() {
		defer wg.Done()
		e.writeLoop(t, writeErr, stop)
	}()

	e.log.Info("事件循环已启动")
	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case err = <-readErr:
			err = fmt.Errorf("%w: read: %v", ErrConnectionClosed, err)
			break loop
		case err = <-writeErr:
			err = fmt.Errorf("%w: write: %v", ErrConnectionClosed, err)
			break loop
		case raw := <-inbound:
			e.handleFrame(raw)
		case s := <-e.submit:
			e.dispatch(s)
		case q := <-e.queries:
			q()
		}
	}

	close(stop)
	_ = t.Close()
	n := e.tables.drain(ErrConnectionClosed)
	e.metrics.PendingCommands.Set(0)
	close(e.done)
	wg.Wait()
	e.log.Warn("事件循环已退出", "error", err, "abandoned", n)
	return err
}

func (e *Engine) readLoop(t Transport, inbound chan<- []byte, errc chan<- error, stop <-chan struct{}) {
	for {
		_, msg, err := t.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		select {
		case inbound <- msg:
		case <-stop:
			return
		}
	}
}

func (e *Engine) writeLoop(t Transport, errc chan<- error, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-e.outbound.ready():
		}
		for _, frame := range e.outbound.take() {
			if err := t.WriteMessage(websocket.TextMessage, frame); err != nil {
				errc <- err
				return
			}
		}
	}
}

// nextID 分配新的关联 ID
func (e *Engine) nextID() int64 {
	e.lastID++
	return e.lastID
}

// dispatch 分配 ID，需要回复时先登记完成通道再入队发送
func (e *Engine) dispatch(s submission) {
	id := e.nextID()
	if s.reply != nil {
		e.tables.pending[id] = s.reply
		e.metrics.PendingCommands.Set(float64(len(e.tables.pending)))
	}
	e.enqueue(id, s.spec)
}

func (e *Engine) enqueue(id int64, s protocol.Spec) {
	frame, err := protocol.Command{ID: id, Method: s.Method, Params: s.Params, SessionID: s.SessionID}.Encode()
	if err != nil {
		e.log.Err(err, "命令序列化失败", "method", s.Method)
		if ch, ok := e.tables.takePending(id); ok {
			ch <- result{err: err}
		}
		return
	}
	e.outbound.push(frame)
	e.log.Debug("命令已入队", "id", id, "method", s.Method)
}

// Call 发送命令并等待回复。协议层错误以 *protocol.ReplyError 返回，同时返回原始回复。
func (e *Engine) Call(ctx context.Context, s protocol.Spec) (*protocol.Reply, error) {
	ch := make(chan result, 1)
	select {
	case e.submit <- submission{spec: s, reply: ch}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, ErrEngineStopped
	}
	select {
	case r := <-ch:
		return r.reply, r.err
	case <-ctx.Done():
		// 回复到达时写入带缓冲的通道后即被丢弃
		return nil, ctx.Err()
	case <-e.done:
		select {
		case r := <-ch:
			return r.reply, r.err
		default:
			return nil, ErrConnectionClosed
		}
	}
}

// Send 发送命令，不等待回复
func (e *Engine) Send(ctx context.Context, s protocol.Spec) error {
	select {
	case e.submit <- submission{spec: s}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineStopped
	}
}

// do 在事件循环中执行 fn 并等待完成
func (e *Engine) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		fn()
		close(finished)
	}
	select {
	case e.queries <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineStopped
	}
	<-finished
	return nil
}

// Snapshot 引擎状态快照
type Snapshot struct {
	Records   []*model.InterceptedRequest
	Pending   []int64
	BodyFetch map[int64]model.InterceptionID
	Network   map[model.NetworkID]model.InterceptionID
	LastID    int64
}

// Snapshot 获取历史与关联表的副本
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	err := e.do(ctx, func() {
		snap = &Snapshot{
			Records:   e.store.Snapshot(),
			BodyFetch: make(map[int64]model.InterceptionID, len(e.tables.bodyFetch)),
			Network:   make(map[model.NetworkID]model.InterceptionID, len(e.tables.network)),
			LastID:    e.lastID,
		}
		for id := range e.tables.pending {
			snap.Pending = append(snap.Pending, id)
		}
		for k, v := range e.tables.bodyFetch {
			snap.BodyFetch[k] = v
		}
		for k, v := range e.tables.network {
			snap.Network[k] = v
		}
	})
	return snap, err
}

// History 按到达顺序返回历史记录副本
func (e *Engine) History(ctx context.Context) ([]*model.InterceptedRequest, error) {
	var out []*model.InterceptedRequest
	err := e.do(ctx, func() { out = e.store.Snapshot() })
	return out, err
}

func (e *Engine) notify(n model.Notification) {
	if e.notifier != nil {
		e.notifier.Push(n)
	}
}

// frameQueue 无界 FIFO 出站帧队列，push 永不阻塞
type frameQueue struct {
	mu     sync.Mutex
	frames [][]byte
	signal chan struct{}
}

func newFrameQueue() *frameQueue {
	return &frameQueue{signal: make(chan struct{}, 1)}
}

func (q *frameQueue) push(frame []byte) {
	q.mu.Lock()
	q.frames = append(q.frames, frame)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *frameQueue) ready() <-chan struct{} { return q.signal }

func (q *frameQueue) take() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.frames
	q.frames = nil
	return out
}
