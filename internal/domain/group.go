package domain

import "time"

// AccountGroup 协同交易分组
// 一个账户可以属于零个或多个分组，入组不代表策略独占。
type AccountGroup struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Strategy string `json:"strategy"` // 分组共享的策略标签

	AccountIDs []string `json:"account_ids"`

	CoordinatedTrades int     `json:"coordinated_trades"` // 协同交易次数
	GroupPnL          float64 `json:"group_pnl"`          // 累计分组盈亏

	CreatedAt time.Time `json:"created_at"`
}

// Contains 检查账户是否在分组内
func (g *AccountGroup) Contains(accountID string) bool {
	for _, id := range g.AccountIDs {
		if id == accountID {
			return true
		}
	}
	return false
}

// Clone 返回分组的深拷贝
func (g *AccountGroup) Clone() *AccountGroup {
	if g == nil {
		return nil
	}
	cp := *g
	cp.AccountIDs = append([]string(nil), g.AccountIDs...)
	return &cp
}

// GroupAllocation 单个成员分到的协同交易份额
type GroupAllocation struct {
	AccountID     string  `json:"account_id"`
	Size          float64 `json:"size"`           // 分配到的规模
	CapitalShare  float64 `json:"capital_share"`  // 资金占比
	AppliedPnL    float64 `json:"applied_pnl"`    // 实际入账的盈亏
	Applied       bool    `json:"applied"`        // 是否成功入账
	FailureReason string  `json:"failure_reason"` // 失败原因（未成功时）
}

// GroupTradeResult 一次协同交易的执行结果
// 账户之间是独立的经济实体，部分失败不回滚已入账的成员（尽力而为语义）。
type GroupTradeResult struct {
	GroupID     string            `json:"group_id"`
	TotalSize   float64           `json:"total_size"`
	Allocations []GroupAllocation `json:"allocations"`
	TotalPnL    float64           `json:"total_pnl"`
	Partial     bool              `json:"partial"` // 是否存在失败成员
	ExecutedAt  time.Time         `json:"executed_at"`
}
