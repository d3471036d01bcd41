package scaling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/fleet/internal/domain"
	"github.com/betbot/fleet/internal/events"
	"github.com/betbot/fleet/internal/registry"
)

var log = logrus.WithField("module", "scaling")

// Config 扩容计划器配置
type Config struct {
	SeedFraction   float64 // 分裂时划给新账户的余额比例（默认0.30）
	MilestoneSteps int     // 里程碑数量（默认5）
	BaseDays       float64 // 预期时长启发式的基准天数（默认90，纯观测估算，可调参数）
}

// Failure 单账户检查失败记录
type Failure struct {
	AccountID string
	Err       error
}

// Report 一轮扩容检查的汇总
// 单账户失败从不中断整轮检查，只记录下来供观测。
type Report struct {
	Checked    int
	Splits     int
	Milestones int
	Failures   []Failure
}

// Planner 扩容计划器
// 为每个账户维护至多一个活跃的扩容计划，并在余额达到扩容目标时执行分裂。
// 所有账户资金变更都通过注册表的原子操作完成，计划器自身不直接改账户字段。
type Planner struct {
	mu  sync.Mutex
	reg *registry.Registry
	bus *events.Bus
	cfg Config

	plans    map[string]*domain.ScalingPlan // accountID -> 当前计划（含挂起）
	history  []*domain.ScalingPlan          // 已关闭的计划，保留做审计
	splitSeq int
}

// New 创建扩容计划器
func New(reg *registry.Registry, bus *events.Bus, cfg Config) *Planner {
	if cfg.SeedFraction <= 0 || cfg.SeedFraction >= 1 {
		cfg.SeedFraction = 0.30
	}
	if cfg.MilestoneSteps <= 0 {
		cfg.MilestoneSteps = 5
	}
	if cfg.BaseDays <= 0 {
		cfg.BaseDays = 90
	}
	return &Planner{
		reg:   reg,
		bus:   bus,
		cfg:   cfg,
		plans: make(map[string]*domain.ScalingPlan),
	}
}

// Start 订阅档位变化事件：档位一变立刻重建计划，不用等下一轮检查
func (p *Planner) Start() {
	if p.bus == nil {
		return
	}
	p.bus.Subscribe(func(e events.Event) {
		if tu, ok := e.(events.TierUpgradeEvent); ok {
			if acct, err := p.reg.Get(tu.AccountID); err == nil && acct.IsActive() {
				p.mu.Lock()
				p.regeneratePlan(acct)
				p.mu.Unlock()
			}
		}
	})
}

// Plan 返回账户当前计划的拷贝
func (p *Planner) Plan(accountID string) *domain.ScalingPlan {
	p.mu.Lock()
	defer p.mu.Unlock()
	return clonePlan(p.plans[accountID])
}

// History 返回已关闭的计划拷贝
func (p *Planner) History() []*domain.ScalingPlan {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*domain.ScalingPlan, 0, len(p.history))
	for _, plan := range p.history {
		out = append(out, clonePlan(plan))
	}
	return out
}

// RunCheck 扩容检查周期入口
// 幂等：没有新的入账时连跑两轮不会产生第二次分裂。
func (p *Planner) RunCheck(ctx context.Context) Report {
	var report Report
	for _, acct := range p.reg.List() {
		select {
		case <-ctx.Done():
			return report
		default:
		}

		if acct.Status.IsTerminal() {
			continue
		}
		report.Checked++

		p.mu.Lock()
		switch acct.Status {
		case domain.StatusSuspended:
			// 账户暂停，计划挂起；里程碑达成状态原样保留
			if plan := p.plans[acct.ID]; plan != nil && plan.Status == domain.PlanStatusActive {
				plan.Status = domain.PlanStatusPaused
				log.Infof("扩容计划挂起: account=%s plan=%s", acct.ID, plan.ID)
			}
			p.mu.Unlock()
			continue
		case domain.StatusActive:
			if plan := p.plans[acct.ID]; plan != nil && plan.Status == domain.PlanStatusPaused {
				plan.Status = domain.PlanStatusActive
				log.Infof("扩容计划恢复: account=%s plan=%s", acct.ID, plan.ID)
			}
		default:
			p.mu.Unlock()
			continue
		}

		p.ensurePlan(acct)
		report.Milestones += p.observeMilestones(acct)
		p.mu.Unlock()

		if acct.Balance >= acct.ScalingTarget {
			split, err := p.split(acct)
			if err != nil {
				if errors.Is(err, registry.ErrThresholdNotReached) {
					// 锁内复核没过：余额在检查间隙变了，下一轮再说
					continue
				}
				report.Failures = append(report.Failures, Failure{AccountID: acct.ID, Err: err})
				log.Warnf("⚠️ 账户分裂失败: id=%s err=%v", acct.ID, err)
				continue
			}
			if split {
				report.Splits++
			}
		}
	}
	return report
}

// ensurePlan 确保账户有一个打开的计划（调用方需持有 p.mu）
func (p *Planner) ensurePlan(acct *domain.Account) {
	if plan := p.plans[acct.ID]; plan != nil && plan.IsOpen() {
		return
	}
	p.regeneratePlan(acct)
}

// regeneratePlan 关闭旧计划并按当前状态新建（调用方需持有 p.mu）
func (p *Planner) regeneratePlan(acct *domain.Account) {
	if old := p.plans[acct.ID]; old != nil && old.IsOpen() {
		// 目标已达成按完成归档；档位/余额回落说明目标落空，按失败归档
		status := domain.PlanStatusFailed
		if acct.Tier >= old.TargetTier || acct.Balance >= old.TargetBalance {
			status = domain.PlanStatusCompleted
		}
		old.Close(status)
		p.history = append(p.history, old)
	}
	plan := p.buildPlan(acct)
	p.plans[acct.ID] = plan
	log.Debugf("扩容计划创建: account=%s target=%.2f days=%d", acct.ID, plan.TargetBalance, plan.ExpectedDays)
}

// buildPlan 构建扩容计划：余额缺口等分为 N 个里程碑，日期按预期时长线性插值
func (p *Planner) buildPlan(acct *domain.Account) *domain.ScalingPlan {
	targetTier, _ := acct.Tier.Next()
	targetBalance := acct.ScalingTarget

	required := 0.0
	if acct.Balance > 0 {
		required = (targetBalance - acct.Balance) / acct.Balance
	}
	days := expectedDays(p.cfg.BaseDays, required, len(acct.ActiveStrategies))

	now := time.Now()
	steps := p.cfg.MilestoneSteps
	gap := targetBalance - acct.Balance
	milestones := make([]domain.Milestone, 0, steps)
	for i := 1; i <= steps; i++ {
		milestones = append(milestones, domain.Milestone{
			Seq:           i,
			TargetBalance: acct.Balance + gap*float64(i)/float64(steps),
			TargetDate:    now.AddDate(0, 0, days*i/steps),
		})
	}

	return &domain.ScalingPlan{
		ID:                 uuid.NewString(),
		AccountID:          acct.ID,
		CurrentTier:        acct.Tier,
		TargetTier:         targetTier,
		CurrentBalance:     acct.Balance,
		TargetBalance:      targetBalance,
		RequiredReturnRate: required,
		ExpectedDays:       days,
		Milestones:         milestones,
		Status:             domain.PlanStatusActive,
		CreatedAt:          now,
	}
}

// expectedDays 预期时长启发式
// 基准天数被策略数量摊薄、被所需收益率的对数放大，结果钳制在 [7, 365] 天。
func expectedDays(base, requiredReturn float64, strategyCount int) int {
	d := base / (1 + 0.1*float64(strategyCount))
	if requiredReturn > 0 {
		d *= 1 + math.Log1p(requiredReturn)
	}
	return int(math.Round(math.Min(365, math.Max(7, d))))
}

// observeMilestones 观测里程碑达成（调用方需持有 p.mu）
// 纯观测，无副作用；达成标记单调，余额回落也不撤销。
func (p *Planner) observeMilestones(acct *domain.Account) int {
	plan := p.plans[acct.ID]
	if plan == nil || plan.Status != domain.PlanStatusActive {
		return 0
	}

	achieved := 0
	now := time.Now()
	for i := range plan.Milestones {
		m := &plan.Milestones[i]
		if m.Achieved || acct.Balance < m.TargetBalance {
			continue
		}
		m.Achieved = true
		m.AchievedAt = &now
		achieved++
		log.Infof("🎯 里程碑达成: account=%s seq=%d target=%.2f", acct.ID, m.Seq, m.TargetBalance)
		if p.bus != nil {
			p.bus.Publish(events.MilestoneAchievedEvent{
				AccountID:     acct.ID,
				PlanID:        plan.ID,
				Seq:           m.Seq,
				TargetBalance: m.TargetBalance,
				Timestamp:     now,
			})
		}
	}
	return achieved
}

// split 执行分裂：划出余额的 SeedFraction，上限为下一档下界
func (p *Planner) split(acct *domain.Account) (bool, error) {
	seedAmount := acct.Balance * p.cfg.SeedFraction
	if next, ok := acct.Tier.Next(); ok {
		if floor := next.Floor(); seedAmount > floor {
			seedAmount = floor
		}
	}
	if seedAmount <= 0 || seedAmount >= acct.Balance {
		return false, nil
	}

	p.mu.Lock()
	p.splitSeq++
	name := fmt.Sprintf("%s-split-%d", acct.Name, p.splitSeq)
	p.mu.Unlock()

	src, newAcct, err := p.reg.SplitAccount(acct.ID, registry.SeedSpec{
		Name:       name,
		ExchangeID: acct.ExchangeID,
		Amount:     seedAmount,
		Strategies: acct.ActiveStrategies,
	})
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	if plan := p.plans[acct.ID]; plan != nil && plan.IsOpen() {
		plan.Close(domain.PlanStatusCompleted)
		p.history = append(p.history, plan)
		delete(p.plans, acct.ID)
	}
	// 分裂后两边都按新状态重建计划
	p.regeneratePlan(src)
	p.regeneratePlan(newAcct)
	p.mu.Unlock()

	log.Infof("✅ 分裂扩容: source=%s new=%s seed=%.2f", src.ID, newAcct.ID, seedAmount)
	if p.bus != nil {
		p.bus.Publish(events.AccountScaledEvent{
			SourceID:     src.ID,
			NewAccountID: newAcct.ID,
			SeedAmount:   seedAmount,
			SourceTier:   src.Tier,
			Timestamp:    time.Now(),
		})
	}
	return true, nil
}

// PausePlan 账户被暂停时挂起计划（控制器在状态变更后调用）
func (p *Planner) PausePlan(accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if plan := p.plans[accountID]; plan != nil && plan.Status == domain.PlanStatusActive {
		plan.Status = domain.PlanStatusPaused
	}
}

// Snapshot 导出计划状态（重启恢复用）
func (p *Planner) Snapshot() (open map[string]*domain.ScalingPlan, history []*domain.ScalingPlan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	open = make(map[string]*domain.ScalingPlan, len(p.plans))
	for id, plan := range p.plans {
		open[id] = clonePlan(plan)
	}
	history = make([]*domain.ScalingPlan, 0, len(p.history))
	for _, plan := range p.history {
		history = append(history, clonePlan(plan))
	}
	return open, history
}

// Restore 从快照恢复计划状态
func (p *Planner) Restore(open map[string]*domain.ScalingPlan, history []*domain.ScalingPlan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plans = make(map[string]*domain.ScalingPlan, len(open))
	for id, plan := range open {
		p.plans[id] = clonePlan(plan)
	}
	p.history = p.history[:0]
	for _, plan := range history {
		p.history = append(p.history, clonePlan(plan))
	}
}

func clonePlan(plan *domain.ScalingPlan) *domain.ScalingPlan {
	if plan == nil {
		return nil
	}
	cp := *plan
	cp.Milestones = append([]domain.Milestone(nil), plan.Milestones...)
	return &cp
}
