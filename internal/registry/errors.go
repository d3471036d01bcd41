package registry

import "errors"

var (
	// ErrInvalidConfiguration 账户创建参数非法，未产生任何状态变更
	ErrInvalidConfiguration = errors.New("invalid account configuration")

	// ErrAccountNotFound 账户不存在，操作为 no-op
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountInactive 对非 Active 账户的操作，状态恢复后可重试
	ErrAccountInactive = errors.New("account not active")

	// ErrInvalidTransition 非法状态机迁移，只影响本次请求
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAccountCapReached 船队账户数量已达上限
	ErrAccountCapReached = errors.New("account cap reached")

	// ErrInvariantBreach 注册表自身不变量被破坏（如扣款后余额为负）
	// 该账户被转入 Error 状态停止后续变更，不影响船队其他账户。
	ErrInvariantBreach = errors.New("account invariant breach")

	// ErrCheckConflict 同一账户上扩容与提取检查撞车
	// 分片锁正确串行化时不应浮出到调用方，保留在分类中用于完备性测试。
	ErrCheckConflict = errors.New("extraction/scaling check conflict")

	// ErrThresholdNotReached 锁内复核时触发条件已不成立（幂等保护，调用方按跳过处理）
	ErrThresholdNotReached = errors.New("threshold not reached")
)
