package events

import (
	"time"

	"github.com/betbot/fleet/internal/domain"
)

// Event 船队事件（封闭集合，见本文件内各事件类型）
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// AccountCreatedEvent 账户创建事件
type AccountCreatedEvent struct {
	Account   *domain.Account
	Seeded    bool   // 是否由分裂/提取再投资自动创建
	SourceID  string // 来源账户 ID（自动创建时）
	Timestamp time.Time
}

// TierUpgradeEvent 档位变化事件（降档也走这里，From > To）
type TierUpgradeEvent struct {
	AccountID string
	From      domain.Tier
	To        domain.Tier
	Balance   float64
	Timestamp time.Time
}

// AccountScaledEvent 账户分裂扩容事件
type AccountScaledEvent struct {
	SourceID     string
	NewAccountID string
	SeedAmount   float64
	SourceTier   domain.Tier
	Timestamp    time.Time
}

// ProfitExtractedEvent 利润提取事件
type ProfitExtractedEvent struct {
	Extraction *domain.ProfitExtraction
	Timestamp  time.Time
}

// MilestoneAchievedEvent 里程碑达成事件
type MilestoneAchievedEvent struct {
	AccountID     string
	PlanID        string
	Seq           int
	TargetBalance float64
	Timestamp     time.Time
}

// GroupTradeExecutedEvent 协同交易执行事件
type GroupTradeExecutedEvent struct {
	Result    *domain.GroupTradeResult
	Timestamp time.Time
}

// EmergencyStopEvent 紧急停机事件
type EmergencyStopEvent struct {
	SuspendedCount int
	Reason         string
	Timestamp      time.Time
}

func (e AccountCreatedEvent) EventName() string     { return "accountCreated" }
func (e TierUpgradeEvent) EventName() string        { return "tierUpgrade" }
func (e AccountScaledEvent) EventName() string      { return "accountScaled" }
func (e ProfitExtractedEvent) EventName() string    { return "profitExtracted" }
func (e MilestoneAchievedEvent) EventName() string  { return "milestoneAchieved" }
func (e GroupTradeExecutedEvent) EventName() string { return "groupTradeExecuted" }
func (e EmergencyStopEvent) EventName() string      { return "emergencyStop" }

func (e AccountCreatedEvent) OccurredAt() time.Time     { return e.Timestamp }
func (e TierUpgradeEvent) OccurredAt() time.Time        { return e.Timestamp }
func (e AccountScaledEvent) OccurredAt() time.Time      { return e.Timestamp }
func (e ProfitExtractedEvent) OccurredAt() time.Time    { return e.Timestamp }
func (e MilestoneAchievedEvent) OccurredAt() time.Time  { return e.Timestamp }
func (e GroupTradeExecutedEvent) OccurredAt() time.Time { return e.Timestamp }
func (e EmergencyStopEvent) OccurredAt() time.Time      { return e.Timestamp }
