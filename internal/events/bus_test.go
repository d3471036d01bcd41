package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type testEvent struct {
	ts time.Time
}

func (e testEvent) EventName() string     { return "test" }
func (e testEvent) OccurredAt() time.Time { return e.ts }

// TestPublishDispatch 发布的事件按顺序送达所有订阅者
func TestPublishDispatch(t *testing.T) {
	bus := NewBus(16)

	var got atomic.Int64
	bus.Subscribe(func(e Event) { got.Add(1) })
	bus.Subscribe(func(e Event) { got.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	bus.Start(ctx)

	for i := 0; i < 5; i++ {
		bus.Publish(testEvent{ts: time.Now()})
	}

	// 等待派发完成
	deadline := time.After(2 * time.Second)
	for got.Load() < 10 {
		select {
		case <-deadline:
			t.Fatalf("应该派发 10 次，实际为 %d", got.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	bus.Wait()
}

// TestPublishNonBlocking 队列满时发布不阻塞，丢弃并计数
func TestPublishNonBlocking(t *testing.T) {
	bus := NewBus(2)
	// 不启动派发循环，队列只能装 2 个

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(testEvent{ts: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("发布不应该阻塞")
	}
	if bus.Dropped() != 8 {
		t.Errorf("应该丢弃 8 个事件，实际为 %d", bus.Dropped())
	}
}

// TestHandlerPanicIsolated 处理函数 panic 不影响其他订阅者和派发循环
func TestHandlerPanicIsolated(t *testing.T) {
	bus := NewBus(16)

	var survived atomic.Int64
	bus.Subscribe(func(e Event) { panic("boom") })
	bus.Subscribe(func(e Event) { survived.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	bus.Start(ctx)

	bus.Publish(testEvent{ts: time.Now()})
	bus.Publish(testEvent{ts: time.Now()})

	deadline := time.After(2 * time.Second)
	for survived.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("panic 不应该影响后续派发，实际送达 %d", survived.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	bus.Wait()
}

// TestDrainOnCancel 取消后把队列剩余事件派发完再退出
func TestDrainOnCancel(t *testing.T) {
	bus := NewBus(16)

	var got atomic.Int64
	bus.Subscribe(func(e Event) { got.Add(1) })

	for i := 0; i < 8; i++ {
		bus.Publish(testEvent{ts: time.Now()})
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus.Start(ctx)
	cancel()
	bus.Wait()

	if got.Load() != 8 {
		t.Errorf("退出前应该派发完 8 个事件，实际为 %d", got.Load())
	}
}
