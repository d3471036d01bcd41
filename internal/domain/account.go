package domain

import (
	"fmt"
	"time"
)

// AccountStatus 账户状态
type AccountStatus string

const (
	StatusActive     AccountStatus = "active"     // 活跃，可接收交易结果
	StatusScaling    AccountStatus = "scaling"    // 分裂扩容中
	StatusExtracting AccountStatus = "extracting" // 利润提取中
	StatusSuspended  AccountStatus = "suspended"  // 人工/紧急暂停
	StatusLiquidated AccountStatus = "liquidated" // 已清算（终态）
	StatusError      AccountStatus = "error"      // 异常（终态，需人工恢复）
)

// statusTransitions 状态机合法迁移表
// Active⇄Scaling、Active⇄Extracting、Active→Suspended、Suspended→Active（恢复）、
// Active→Liquidated（终态）；任意状态→Error（终态）。
var statusTransitions = map[AccountStatus][]AccountStatus{
	StatusActive:     {StatusScaling, StatusExtracting, StatusSuspended, StatusLiquidated, StatusError},
	StatusScaling:    {StatusActive, StatusError},
	StatusExtracting: {StatusActive, StatusError},
	StatusSuspended:  {StatusActive, StatusError},
	StatusLiquidated: {StatusError},
	StatusError:      {},
}

// CanTransitionTo 检查状态迁移是否合法
func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal 终态账户不再参与任何周期检查
func (s AccountStatus) IsTerminal() bool {
	return s == StatusLiquidated || s == StatusError
}

// RiskLevel 账户风险等级
type RiskLevel string

const (
	RiskConservative RiskLevel = "conservative"
	RiskBalanced     RiskLevel = "balanced"
	RiskAggressive   RiskLevel = "aggressive"
)

// AllocationMode 资金分配模式
type AllocationMode string

const (
	AllocationProportional AllocationMode = "proportional" // 按资金占比分配
	AllocationFixed        AllocationMode = "fixed"        // 固定额度分配
)

// Account 资金容器领域模型
type Account struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ExchangeID string `json:"exchange_id"` // 所属交易所标识

	Balance          float64 `json:"balance"`           // 当前资金
	InitialBalance   float64 `json:"initial_balance"`   // 基线资金（盈亏与提取的基准）
	AvailableBalance float64 `json:"available_balance"` // 未被持仓占用的资金
	TotalPnL         float64 `json:"total_pnl"`         // 累计盈亏
	PeriodPnL        float64 `json:"period_pnl"`        // 当期盈亏

	Tier           Tier           `json:"tier"`
	Status         AccountStatus  `json:"status"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	AllocationMode AllocationMode `json:"allocation_mode"`

	ScalingTarget       float64 `json:"scaling_target"`       // 触发分裂的资金目标
	ExtractionThreshold float64 `json:"extraction_threshold"` // 触发利润提取的资金阈值

	ActiveStrategies []string `json:"active_strategies"` // 分配给该账户的策略集合

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Notes        []string  `json:"notes"` // 只追加的备注日志
}

// Profit 相对基线的利润
func (a *Account) Profit() float64 {
	return a.Balance - a.InitialBalance
}

// IsActive 只有 Active 账户可以接收新的交易结果
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// AppendNote 追加一条带时间戳的备注
func (a *Account) AppendNote(format string, args ...interface{}) {
	note := fmt.Sprintf("[%s] %s", time.Now().Format("06-01-02 15:04:05"), fmt.Sprintf(format, args...))
	a.Notes = append(a.Notes, note)
}

// HasStrategy 检查账户是否分配了指定策略
func (a *Account) HasStrategy(name string) bool {
	for _, s := range a.ActiveStrategies {
		if s == name {
			return true
		}
	}
	return false
}

// Clone 返回账户的深拷贝
// 注册表对外只交出拷贝，外部组件不得跨周期持有并修改账户。
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	cp.ActiveStrategies = append([]string(nil), a.ActiveStrategies...)
	cp.Notes = append([]string(nil), a.Notes...)
	return &cp
}
