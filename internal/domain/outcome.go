package domain

import (
	"context"
	"time"
)

// TradeOutcome 一笔已结算交易的结果（由外部策略/执行协作方上报）
type TradeOutcome struct {
	AccountID string            `json:"account_id"`
	PnL       float64           `json:"pnl"`
	Strategy  string            `json:"strategy,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// GroupOpportunity 针对分组的协同交易机会
type GroupOpportunity struct {
	GroupID        string            `json:"group_id"`
	TotalSize      float64           `json:"total_size"`      // 机会总规模
	ExpectedReturn float64           `json:"expected_return"` // 预期收益率（相对分配规模）
	Strategy       string            `json:"strategy,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// OutcomeSource 交易结果来源
// 编排核心不关心结果来自模拟、回测回放还是实盘执行，绩效周期只管拉取并入账。
type OutcomeSource interface {
	Poll(ctx context.Context) ([]TradeOutcome, error)
}
