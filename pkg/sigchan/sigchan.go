package sigchan

// Chan 是一个带缓冲的边沿触发信号 channel。
// 只表示"有事发生"，不携带数据；缓冲满时重复信号会被合并。
type Chan struct {
	c chan struct{}
}

// New 创建信号 channel，bufferSize 决定最多积压多少个未消费的信号。
// 大多数场景传 1 即可：已有一个待处理信号时，再触发也只会处理一次。
func New(bufferSize int) *Chan {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 触发一次信号。缓冲已满时直接丢弃，永不阻塞调用方。
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 暴露只读 channel，供消费方在 select 中等待
func (c *Chan) C() <-chan struct{} {
	return c.c
}
