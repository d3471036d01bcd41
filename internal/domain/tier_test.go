package domain

import (
	"testing"
	"testing/quick"
)

// TestDeriveTier 测试余额到档位的映射
func TestDeriveTier(t *testing.T) {
	cases := []struct {
		balance float64
		want    Tier
	}{
		{0, TierMicro},
		{50, TierMicro},
		{99.99, TierMicro},
		{100, TierMini},
		{999.99, TierMini},
		{1_000, TierStandard},
		{10_000, TierPremium},
		{99_999, TierPremium},
		{100_000, TierElite},
		{1_000_000, TierWhale},
		{5_000_000, TierWhale},
		{-10, TierMicro}, // 负余额归入最低档
	}
	for _, c := range cases {
		if got := DeriveTier(c.balance); got != c.want {
			t.Errorf("DeriveTier(%.2f) = %s，应该为 %s", c.balance, got, c.want)
		}
	}
}

// TestDeriveTierMonotonic 属性：余额越大档位不会降低
func TestDeriveTierMonotonic(t *testing.T) {
	property := func(a, b float64) bool {
		if a < 0 || b < 0 || a > 1e9 || b > 1e9 {
			return true
		}
		lo, hi := a, b
		if lo > hi {
			lo, hi = hi, lo
		}
		return DeriveTier(lo) <= DeriveTier(hi)
	}
	if err := quick.Check(property, nil); err != nil {
		t.Errorf("档位单调性被破坏: %v", err)
	}
}

// TestTierFloorAndNext 测试档位下界和下一档
func TestTierFloorAndNext(t *testing.T) {
	if TierMini.Floor() != 100 {
		t.Errorf("Mini 下界应该为 100，实际为 %.2f", TierMini.Floor())
	}
	next, ok := TierStandard.Next()
	if !ok || next != TierPremium {
		t.Errorf("Standard 的下一档应该为 Premium，实际为 %s (ok=%v)", next, ok)
	}
	if _, ok := TierWhale.Next(); ok {
		t.Error("Whale 不应该有下一档")
	}
}

// TestScalingTargetFor 测试扩容目标计算
func TestScalingTargetFor(t *testing.T) {
	// 目标取 min(下一档下界, 余额×倍数)
	if got := ScalingTargetFor(TierMicro, 50, 1.5); got != 75 {
		t.Errorf("Micro@50 的扩容目标应该为 75，实际为 %.2f", got)
	}
	// 余额×倍数超过下一档下界时取下界
	if got := ScalingTargetFor(TierMicro, 90, 1.5); got != 100 {
		t.Errorf("Micro@90 的扩容目标应该为 100，实际为 %.2f", got)
	}
	// Whale 没有下一档，目标为余额翻倍
	if got := ScalingTargetFor(TierWhale, 2_000_000, 1.5); got != 4_000_000 {
		t.Errorf("Whale@2M 的扩容目标应该为 4M，实际为 %.2f", got)
	}
}

// TestStatusTransitions 测试状态机迁移规则
func TestStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to AccountStatus }{
		{StatusActive, StatusScaling},
		{StatusScaling, StatusActive},
		{StatusActive, StatusExtracting},
		{StatusExtracting, StatusActive},
		{StatusActive, StatusSuspended},
		{StatusSuspended, StatusActive},
		{StatusActive, StatusLiquidated},
		{StatusSuspended, StatusError},
	}
	for _, c := range allowed {
		if !c.from.CanTransitionTo(c.to) {
			t.Errorf("%s → %s 应该合法", c.from, c.to)
		}
	}

	forbidden := []struct{ from, to AccountStatus }{
		{StatusSuspended, StatusScaling},
		{StatusScaling, StatusExtracting},
		{StatusLiquidated, StatusActive},
		{StatusError, StatusActive}, // Error 为终态，需人工恢复
		{StatusExtracting, StatusSuspended},
	}
	for _, c := range forbidden {
		if c.from.CanTransitionTo(c.to) {
			t.Errorf("%s → %s 应该非法", c.from, c.to)
		}
	}
}

// TestIsTerminal 测试终态判断
func TestIsTerminal(t *testing.T) {
	if !StatusError.IsTerminal() {
		t.Error("Error 应该为终态")
	}
	if !StatusLiquidated.IsTerminal() {
		t.Error("Liquidated 应该为终态")
	}
	if StatusActive.IsTerminal() {
		t.Error("Active 不应该为终态")
	}
}

// TestDefaultStrategiesFor 测试各档位默认策略集
func TestDefaultStrategiesFor(t *testing.T) {
	for tier := TierMicro; tier <= TierWhale; tier++ {
		strategies := DefaultStrategiesFor(tier)
		if len(strategies) == 0 {
			t.Errorf("%s 档位的默认策略集不应该为空", tier)
		}
	}
	// 档位越高策略越多
	if len(DefaultStrategiesFor(TierWhale)) < len(DefaultStrategiesFor(TierMicro)) {
		t.Error("Whale 档位的策略数不应该少于 Micro")
	}
}
