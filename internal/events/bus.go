package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "events")

// Handler 事件处理函数
type Handler func(Event)

// Bus 有界事件总线
// 发布方非阻塞：队列满了就丢弃并计数，绝不让周期检查被慢观察者卡住。
// 所有 handler 在单一派发 goroutine 中顺序执行。
type Bus struct {
	ch      chan Event
	dropped atomic.Int64

	mu       sync.RWMutex
	handlers []Handler

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewBus 创建事件总线
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{
		ch:   make(chan Event, bufferSize),
		done: make(chan struct{}),
	}
}

// Subscribe 注册事件处理函数（应在 Start 之前完成注册）
func (b *Bus) Subscribe(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish 发布事件（非阻塞，队列满则丢弃）
func (b *Bus) Publish(e Event) {
	select {
	case b.ch <- e:
	default:
		n := b.dropped.Add(1)
		if n%100 == 1 {
			log.Warnf("⚠️ 事件队列已满，累计丢弃 %d 个事件（最新: %s）", n, e.EventName())
		}
	}
}

// Dropped 返回累计丢弃的事件数
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Start 启动派发循环
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.dispatchLoop(ctx)
	})
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			// 退出前把队列里剩余的事件派发完
			for {
				select {
				case e := <-b.ch:
					b.dispatch(e)
				default:
					return
				}
			}
		case e := <-b.ch:
			b.dispatch(e)
		}
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("事件处理函数 panic: event=%s err=%v", e.EventName(), r)
				}
			}()
			h(e)
		}()
	}
}

// Wait 等待派发循环退出（Stop 之后调用）
func (b *Bus) Wait() {
	<-b.done
}
