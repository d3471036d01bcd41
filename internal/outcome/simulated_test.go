package outcome

import (
	"context"
	"math"
	"testing"

	"github.com/betbot/fleet/internal/domain"
)

type staticLister struct {
	accounts []*domain.Account
}

func (l *staticLister) ActiveAccounts() []*domain.Account { return l.accounts }

// TestSimulatedPollBounded 模拟盈亏幅度受单账户风险比例约束
func TestSimulatedPollBounded(t *testing.T) {
	lister := &staticLister{accounts: []*domain.Account{
		{ID: "a", Balance: 1000, ActiveStrategies: []string{"arbitrage"}},
		{ID: "b", Balance: 500},
	}}
	src := NewSimulated(lister, 0.02, 42)

	for i := 0; i < 50; i++ {
		outcomes, err := src.Poll(context.Background())
		if err != nil {
			t.Fatalf("拉取失败: %v", err)
		}
		for _, oc := range outcomes {
			var balance float64
			switch oc.AccountID {
			case "a":
				balance = 1000
			case "b":
				balance = 500
			default:
				t.Fatalf("未知账户: %s", oc.AccountID)
			}
			// |pnl| ≤ balance × risk × 1.1（漂移上界）
			if math.Abs(oc.PnL) > balance*0.02*1.1+1e-9 {
				t.Errorf("盈亏超出风险约束: account=%s pnl=%.4f", oc.AccountID, oc.PnL)
			}
			if oc.Timestamp.IsZero() {
				t.Error("模拟结果应该带时间戳")
			}
		}
	}
}

// TestSimulatedDeterministicSeed 相同种子产生相同序列
func TestSimulatedDeterministicSeed(t *testing.T) {
	lister := &staticLister{accounts: []*domain.Account{{ID: "a", Balance: 1000}}}

	a := NewSimulated(lister, 0.02, 7)
	b := NewSimulated(lister, 0.02, 7)

	for i := 0; i < 10; i++ {
		oa, _ := a.Poll(context.Background())
		ob, _ := b.Poll(context.Background())
		if len(oa) != len(ob) {
			t.Fatalf("相同种子应该产生相同数量的结果: %d vs %d", len(oa), len(ob))
		}
		for j := range oa {
			if oa[j].PnL != ob[j].PnL {
				t.Errorf("相同种子应该产生相同盈亏: %.6f vs %.6f", oa[j].PnL, ob[j].PnL)
			}
		}
	}
}

// TestSimulatedEmptyFleet 空船队拉取为空
func TestSimulatedEmptyFleet(t *testing.T) {
	src := NewSimulated(&staticLister{}, 0.02, 1)
	outcomes, err := src.Poll(context.Background())
	if err != nil {
		t.Fatalf("拉取失败: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("空船队不应该产生结果，实际为 %d", len(outcomes))
	}
}
