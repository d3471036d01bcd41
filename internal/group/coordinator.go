package group

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/fleet/internal/domain"
	"github.com/betbot/fleet/internal/events"
	"github.com/betbot/fleet/internal/registry"
)

var log = logrus.WithField("module", "group")

var (
	// ErrGroupNotFound 分组不存在，操作为 no-op
	ErrGroupNotFound = errors.New("group not found")

	// ErrInsufficientGroupCapacity 活跃成员不足 2 个，协同交易跳过（记录日志，不升级为错误）
	ErrInsufficientGroupCapacity = errors.New("insufficient group capacity")
)

// Coordinator 协同交易协调器
// 维护共享策略倾向的账户分组，把单个机会按资金占比分摊到各活跃成员。
// 账户入账只通过注册表操作，协调器不缓存账户状态跨周期使用。
type Coordinator struct {
	mu     sync.Mutex
	reg    *registry.Registry
	bus    *events.Bus
	bonus  float64 // 协同收益加成倍数
	groups map[string]*domain.AccountGroup
}

// New 创建协调器
func New(reg *registry.Registry, bus *events.Bus, coordinationBonus float64) *Coordinator {
	if coordinationBonus <= 0 {
		coordinationBonus = 1.2
	}
	return &Coordinator{
		reg:    reg,
		bus:    bus,
		bonus:  coordinationBonus,
		groups: make(map[string]*domain.AccountGroup),
	}
}

// CreateGroup 创建分组
// 账户可以同时属于多个分组，入组不独占策略分配。
func (c *Coordinator) CreateGroup(name, strategy string, accountIDs []string) (*domain.AccountGroup, error) {
	if name == "" {
		return nil, fmt.Errorf("分组名不能为空")
	}

	members := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		if _, err := c.reg.Get(id); err != nil {
			log.Warnf("分组成员不存在，已跳过: group=%s account=%s", name, id)
			continue
		}
		members = append(members, id)
	}

	g := &domain.AccountGroup{
		ID:         uuid.NewString(),
		Name:       name,
		Strategy:   strategy,
		AccountIDs: members,
		CreatedAt:  time.Now(),
	}

	c.mu.Lock()
	c.groups[g.ID] = g
	c.mu.Unlock()

	log.Infof("分组已创建: id=%s name=%s strategy=%s members=%d", g.ID, name, strategy, len(members))
	return g.Clone(), nil
}

// Get 获取分组拷贝
func (c *Coordinator) Get(groupID string) (*domain.AccountGroup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("%w: id=%s", ErrGroupNotFound, groupID)
	}
	return g.Clone(), nil
}

// List 返回所有分组的拷贝
func (c *Coordinator) List() []*domain.AccountGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.AccountGroup, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, g.Clone())
	}
	return out
}

// AddAccount 向分组添加成员
func (c *Coordinator) AddAccount(groupID, accountID string) error {
	if _, err := c.reg.Get(accountID); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.groups[groupID]
	if !ok {
		return fmt.Errorf("%w: id=%s", ErrGroupNotFound, groupID)
	}
	if g.Contains(accountID) {
		return nil
	}
	g.AccountIDs = append(g.AccountIDs, accountID)
	return nil
}

// GroupCapital 分组聚合资金（读取时实时计算，不落地存储）
func (c *Coordinator) GroupCapital(groupID string) (float64, error) {
	g, err := c.Get(groupID)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, id := range g.AccountIDs {
		if acct, err := c.reg.Get(id); err == nil {
			total += acct.Balance
		}
	}
	return total, nil
}

// Execute 执行协同交易
// 机会规模按活跃成员资金占比分摊（Σ分配 == TotalSize），
// 模拟收益乘以协同加成后逐个入账。
// 部分成员入账失败不回滚已成功的成员（账户是独立经济实体），
// 只逐成员记录失败并把本次交易标记为部分成功。
func (c *Coordinator) Execute(ctx context.Context, opp domain.GroupOpportunity) (*domain.GroupTradeResult, error) {
	_ = ctx

	g, err := c.Get(opp.GroupID)
	if err != nil {
		return nil, err
	}
	if opp.TotalSize <= 0 {
		return nil, fmt.Errorf("机会规模必须大于 0: size=%.2f", opp.TotalSize)
	}

	// 采集活跃成员与余额快照
	type member struct {
		id      string
		balance float64
	}
	var members []member
	totalCapital := 0.0
	for _, id := range g.AccountIDs {
		acct, err := c.reg.Get(id)
		if err != nil || !acct.IsActive() {
			continue
		}
		members = append(members, member{id: id, balance: acct.Balance})
		totalCapital += acct.Balance
	}

	if len(members) < 2 || totalCapital <= 0 {
		log.Infof("协同交易跳过: group=%s 活跃成员不足 (%d)", opp.GroupID, len(members))
		return nil, fmt.Errorf("%w: group=%s active=%d", ErrInsufficientGroupCapacity, opp.GroupID, len(members))
	}

	result := &domain.GroupTradeResult{
		GroupID:    opp.GroupID,
		TotalSize:  opp.TotalSize,
		ExecutedAt: time.Now(),
	}

	for _, mb := range members {
		share := mb.balance / totalCapital
		size := opp.TotalSize * share
		pnl := size * opp.ExpectedReturn * c.bonus

		alloc := domain.GroupAllocation{
			AccountID:    mb.id,
			Size:         size,
			CapitalShare: share,
		}
		if _, err := c.reg.ApplyOutcome(mb.id, pnl); err != nil {
			alloc.FailureReason = err.Error()
			result.Partial = true
			log.Warnf("⚠️ 协同交易成员入账失败: group=%s account=%s err=%v", opp.GroupID, mb.id, err)
		} else {
			alloc.Applied = true
			alloc.AppliedPnL = pnl
			result.TotalPnL += pnl
		}
		result.Allocations = append(result.Allocations, alloc)
	}

	// 分组统计只在全部成员入账成功后更新
	if !result.Partial {
		c.mu.Lock()
		if grp, ok := c.groups[opp.GroupID]; ok {
			grp.CoordinatedTrades++
			grp.GroupPnL += result.TotalPnL
		}
		c.mu.Unlock()
	}

	log.Infof("✅ 协同交易完成: group=%s size=%.2f pnl=%.2f partial=%v",
		opp.GroupID, opp.TotalSize, result.TotalPnL, result.Partial)
	if c.bus != nil {
		c.bus.Publish(events.GroupTradeExecutedEvent{Result: result, Timestamp: time.Now()})
	}
	return result, nil
}

// Snapshot 导出分组状态（重启恢复用）
func (c *Coordinator) Snapshot() []*domain.AccountGroup {
	return c.List()
}

// Restore 从快照恢复分组状态
func (c *Coordinator) Restore(groups []*domain.AccountGroup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = make(map[string]*domain.AccountGroup, len(groups))
	for _, g := range groups {
		c.groups[g.ID] = g.Clone()
	}
}
