package group

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/betbot/fleet/internal/domain"
	"github.com/betbot/fleet/internal/registry"
)

func newTestCoordinator(maxAccounts int) (*Coordinator, *registry.Registry) {
	reg := registry.New(registry.Policy{ScalingMultiplier: 1.5, ExtractionMultiplier: 2.0, MaxAccounts: maxAccounts}, nil)
	return New(reg, nil, 1.2), reg
}

// TestCreateGroupSkipsMissing 创建分组时跳过不存在的账户
func TestCreateGroupSkipsMissing(t *testing.T) {
	c, reg := newTestCoordinator(10)
	a, _ := reg.CreateAccount("a", "sim", 100, nil)

	g, err := c.CreateGroup("pair", "arbitrage", []string{a.ID, "ghost"})
	if err != nil {
		t.Fatalf("创建分组失败: %v", err)
	}
	if len(g.AccountIDs) != 1 {
		t.Errorf("不存在的成员应该被跳过，实际成员数为 %d", len(g.AccountIDs))
	}
}

// TestExecuteProportionalAllocation 机会按资金占比分摊：100/300 → 10/30 of 40
func TestExecuteProportionalAllocation(t *testing.T) {
	c, reg := newTestCoordinator(10)
	a, _ := reg.CreateAccount("small", "sim", 100, nil)
	b, _ := reg.CreateAccount("big", "sim", 300, nil)
	g, _ := c.CreateGroup("pair", "arbitrage", []string{a.ID, b.ID})

	result, err := c.Execute(context.Background(), domain.GroupOpportunity{
		GroupID:        g.ID,
		TotalSize:      40,
		ExpectedReturn: 0.10,
	})
	if err != nil {
		t.Fatalf("协同交易失败: %v", err)
	}

	if len(result.Allocations) != 2 {
		t.Fatalf("应该有 2 个分配，实际为 %d", len(result.Allocations))
	}
	if result.Allocations[0].Size != 10 {
		t.Errorf("资金 100/400 应该分到 10，实际为 %.2f", result.Allocations[0].Size)
	}
	if result.Allocations[1].Size != 30 {
		t.Errorf("资金 300/400 应该分到 30，实际为 %.2f", result.Allocations[1].Size)
	}

	// Σ分配 == TotalSize
	sum := 0.0
	for _, alloc := range result.Allocations {
		sum += alloc.Size
	}
	if math.Abs(sum-40) > 1e-9 {
		t.Errorf("分配总和应该等于机会规模 40，实际为 %.2f", sum)
	}

	// 每个成员的盈亏 = 分配规模 × 预期收益 × 加成
	if got := result.Allocations[0].AppliedPnL; math.Abs(got-10*0.10*1.2) > 1e-9 {
		t.Errorf("成员盈亏应该为 1.2，实际为 %.4f", got)
	}
	if result.Partial {
		t.Error("全部成员入账成功时不应该为部分成功")
	}

	// 分组统计已更新
	updated, _ := c.Get(g.ID)
	if updated.CoordinatedTrades != 1 {
		t.Errorf("协同交易次数应该为 1，实际为 %d", updated.CoordinatedTrades)
	}
	if math.Abs(updated.GroupPnL-result.TotalPnL) > 1e-9 {
		t.Errorf("分组盈亏应该为 %.4f，实际为 %.4f", result.TotalPnL, updated.GroupPnL)
	}
}

// TestExecuteInsufficientMembers 活跃成员不足 2 个时跳过
func TestExecuteInsufficientMembers(t *testing.T) {
	c, reg := newTestCoordinator(10)
	a, _ := reg.CreateAccount("lonely", "sim", 100, nil)
	b, _ := reg.CreateAccount("paused", "sim", 100, nil)
	_ = reg.SetStatus(b.ID, domain.StatusSuspended)
	g, _ := c.CreateGroup("pair", "arbitrage", []string{a.ID, b.ID})

	_, err := c.Execute(context.Background(), domain.GroupOpportunity{
		GroupID: g.ID, TotalSize: 40, ExpectedReturn: 0.10,
	})
	if !errors.Is(err, ErrInsufficientGroupCapacity) {
		t.Errorf("活跃成员不足应该返回 ErrInsufficientGroupCapacity，实际为 %v", err)
	}
}

// TestExecutePartialNoRollback 部分成员失败不回滚已成功的成员
func TestExecutePartialNoRollback(t *testing.T) {
	c, reg := newTestCoordinator(10)
	a, _ := reg.CreateAccount("a", "sim", 100, nil)
	b, _ := reg.CreateAccount("b", "sim", 100, nil)
	x, _ := reg.CreateAccount("x", "sim", 100, nil)
	g, _ := c.CreateGroup("trio", "arbitrage", []string{a.ID, b.ID, x.ID})

	// 快照采集后把 x 暂停，使其入账失败
	// Execute 内部逐个入账，这里直接用暂停模拟竞态后的失败
	_ = reg.SetStatus(x.ID, domain.StatusSuspended)

	result, err := c.Execute(context.Background(), domain.GroupOpportunity{
		GroupID: g.ID, TotalSize: 30, ExpectedReturn: 0.10,
	})
	if err != nil {
		t.Fatalf("协同交易不应该整体失败: %v", err)
	}
	// x 在采集时已经被过滤掉，剩两个活跃成员均摊
	if len(result.Allocations) != 2 {
		t.Fatalf("应该有 2 个分配，实际为 %d", len(result.Allocations))
	}
	if result.Partial {
		t.Error("两个活跃成员都成功时不应该为部分成功")
	}

	gotA, _ := reg.Get(a.ID)
	if gotA.Balance <= 100 {
		t.Error("成功成员的入账不应该被回滚")
	}
}

// TestGroupCapitalDerived 分组资金实时聚合
func TestGroupCapitalDerived(t *testing.T) {
	c, reg := newTestCoordinator(10)
	a, _ := reg.CreateAccount("a", "sim", 100, nil)
	b, _ := reg.CreateAccount("b", "sim", 300, nil)
	g, _ := c.CreateGroup("pair", "arbitrage", []string{a.ID, b.ID})

	capital, err := c.GroupCapital(g.ID)
	if err != nil {
		t.Fatalf("聚合资金失败: %v", err)
	}
	if capital != 400 {
		t.Errorf("分组资金应该为 400，实际为 %.2f", capital)
	}

	// 成员入账后实时反映
	_, _ = reg.ApplyOutcome(a.ID, 50)
	capital, _ = c.GroupCapital(g.ID)
	if capital != 450 {
		t.Errorf("入账后分组资金应该为 450，实际为 %.2f", capital)
	}
}

// TestAddAccountIdempotent 重复添加成员为 no-op
func TestAddAccountIdempotent(t *testing.T) {
	c, reg := newTestCoordinator(10)
	a, _ := reg.CreateAccount("a", "sim", 100, nil)
	g, _ := c.CreateGroup("solo", "arbitrage", nil)

	if err := c.AddAccount(g.ID, a.ID); err != nil {
		t.Fatalf("添加成员失败: %v", err)
	}
	if err := c.AddAccount(g.ID, a.ID); err != nil {
		t.Fatalf("重复添加应该为 no-op: %v", err)
	}
	got, _ := c.Get(g.ID)
	if len(got.AccountIDs) != 1 {
		t.Errorf("成员数应该为 1，实际为 %d", len(got.AccountIDs))
	}

	if err := c.AddAccount("ghost", a.ID); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("不存在的分组应该返回 ErrGroupNotFound，实际为 %v", err)
	}
}
