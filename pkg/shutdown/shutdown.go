package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/fleet/pkg/logger"
)

// Handler 关闭处理函数。实现方完成清理后直接返回即可；
// wg 供需要派生后台清理 goroutine 的 handler 使用。
type Handler func(ctx context.Context, wg *sync.WaitGroup)

// Manager 收集各组件注册的关闭回调，在进程退出时统一并发执行。
// Shutdown 只会生效一次，重复调用是 no-op。
type Manager struct {
	mu       sync.Mutex
	handlers []Handler
	done     bool
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调。Shutdown 开始后的注册会被忽略。
func (m *Manager) OnShutdown(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		logger.Warn("关闭流程已开始，忽略新注册的回调")
		return
	}
	m.handlers = append(m.handlers, h)
}

// Shutdown 并发执行所有回调，等待全部完成或 ctx 超时。
// 调用方应该传入带超时的 ctx，否则挂住的回调会让退出流程停在这里。
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	handlers := m.handlers
	m.mu.Unlock()

	if len(handlers) == 0 {
		return
	}
	logger.Infof("🛑 优雅关闭开始，回调数: %d", len(handlers))

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(ctx, &wg)
		}(h)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		logger.Info("✅ 所有关闭回调已完成")
	case <-ctx.Done():
		logger.Warnf("⚠️ 关闭超时，放弃等待剩余回调: %v", ctx.Err())
	}
}
