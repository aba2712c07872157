// Package relay 在事件循环与 UI 传输之间做解耦。
//
// Push 永不阻塞；队列满时丢弃最旧的通知。投递失败直接丢弃。
package relay

import (
	"context"
	"sync"

	"cdprepeater/internal/logger"
	"cdprepeater/internal/metrics"
	"cdprepeater/pkg/model"
)

// DefaultCapacity 默认队列容量
const DefaultCapacity = 4096

// Sink UI 传输
type Sink interface {
	Send(ctx context.Context, n model.Notification) error
}

// Relay 单消费者的有界通知队列
type Relay struct {
	mu       sync.Mutex
	queue    []model.Notification
	capacity int
	signal   chan struct{}
	sink     Sink
	log      logger.Logger
	metrics  *metrics.Metrics
}

// New 创建 Relay
func New(sink Sink, capacity int, l logger.Logger, m *metrics.Metrics) *Relay {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Relay{
		capacity: capacity,
		signal:   make(chan struct{}, 1),
		sink:     sink,
		log:      l,
		metrics:  m,
	}
}

// Push 入队通知
func (r *Relay) Push(n model.Notification) {
	r.mu.Lock()
	if len(r.queue) >= r.capacity {
		dropped := r.queue[0]
		r.queue = r.queue[1:]
		r.log.Debug("通知队列已满，丢弃最旧通知", "type", string(dropped.Type))
		if r.metrics != nil {
			r.metrics.RelayDrops.Inc()
		}
	}
	r.queue = append(r.queue, n)
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Len 队列中待投递的通知数
func (r *Relay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Run 持续投递通知直到 ctx 结束
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.signal:
		}
		for {
			batch := r.take()
			if len(batch) == 0 {
				break
			}
			for _, n := range batch {
				if ctx.Err() != nil {
					return
				}
				r.deliver(ctx, n)
			}
		}
	}
}

func (r *Relay) take() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := r.queue
	r.queue = nil
	return batch
}

func (r *Relay) deliver(ctx context.Context, n model.Notification) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Send(ctx, n); err != nil {
		r.log.Debug("通知投递失败，已丢弃", "type", string(n.Type), "error", err)
		if r.metrics != nil {
			r.metrics.RelayFailures.Inc()
		}
	}
}
