package domain

import "time"

// PlanStatus 扩容计划状态
type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusFailed    PlanStatus = "failed"
	PlanStatusPaused    PlanStatus = "paused" // 账户被暂停时计划挂起，恢复后原样续跑
)

// Milestone 扩容计划里程碑（纯观测用途，不触发任何副作用）
type Milestone struct {
	Seq           int        `json:"seq"`
	TargetBalance float64    `json:"target_balance"`
	TargetDate    time.Time  `json:"target_date"`
	Achieved      bool       `json:"achieved"`
	AchievedAt    *time.Time `json:"achieved_at,omitempty"`
}

// ScalingPlan 扩容计划（每个账户同时最多一个活跃计划）
type ScalingPlan struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`

	CurrentTier Tier `json:"current_tier"`
	TargetTier  Tier `json:"target_tier"`

	CurrentBalance     float64 `json:"current_balance"` // 创建计划时的资金
	TargetBalance      float64 `json:"target_balance"`  // 档位边界
	RequiredReturnRate float64 `json:"required_return_rate"`
	ExpectedDays       int     `json:"expected_days"` // 启发式估算的预期天数

	Milestones []Milestone `json:"milestones"`
	Status     PlanStatus  `json:"status"`

	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// IsOpen 计划是否仍在跑（含挂起）
func (p *ScalingPlan) IsOpen() bool {
	return p.Status == PlanStatusActive || p.Status == PlanStatusPaused
}

// AchievedCount 已达成的里程碑数量
func (p *ScalingPlan) AchievedCount() int {
	n := 0
	for _, m := range p.Milestones {
		if m.Achieved {
			n++
		}
	}
	return n
}

// Close 关闭计划（completed/failed 保留做审计，不删除）
func (p *ScalingPlan) Close(status PlanStatus) {
	now := time.Now()
	p.Status = status
	p.ClosedAt = &now
}
