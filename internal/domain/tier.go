package domain

// Tier 账户资金档位（按资金规模排序的分类桶）
type Tier int

const (
	TierMicro Tier = iota
	TierMini
	TierStandard
	TierPremium
	TierElite
	TierWhale
)

// tierFloors 各档位的最低资金边界（升序，含下界）
var tierFloors = [...]float64{
	TierMicro:    0,
	TierMini:     100,
	TierStandard: 1_000,
	TierPremium:  10_000,
	TierElite:    100_000,
	TierWhale:    1_000_000,
}

var tierNames = [...]string{
	TierMicro:    "micro",
	TierMini:     "mini",
	TierStandard: "standard",
	TierPremium:  "premium",
	TierElite:    "elite",
	TierWhale:    "whale",
}

func (t Tier) String() string {
	if t < TierMicro || t > TierWhale {
		return "unknown"
	}
	return tierNames[t]
}

// Floor 返回档位的最低资金边界
func (t Tier) Floor() float64 {
	if t < TierMicro || t > TierWhale {
		return 0
	}
	return tierFloors[t]
}

// Next 返回上一档位；Whale 已是最高档，返回 false
func (t Tier) Next() (Tier, bool) {
	if t >= TierWhale {
		return TierWhale, false
	}
	return t + 1, true
}

// DeriveTier 根据资金推导档位
// 对任意 balance >= 0 恰好命中一个档位，且随 balance 单调不减。
func DeriveTier(balance float64) Tier {
	tier := TierMicro
	for t := TierWhale; t > TierMicro; t-- {
		if balance >= tierFloors[t] {
			tier = t
			break
		}
	}
	return tier
}

// ScalingTargetFor 计算档位对应的扩容目标资金
// 普通档位：min(下一档下界, balance × multiplier)；Whale 档没有下一档，目标为 balance × 2。
func ScalingTargetFor(tier Tier, balance, multiplier float64) float64 {
	next, ok := tier.Next()
	if !ok {
		return balance * 2
	}
	target := balance * multiplier
	if floor := next.Floor(); target > floor {
		return floor
	}
	return target
}

// DefaultStrategiesFor 返回档位默认的策略集合
// 提取再投资创建的新账户使用，低档位只跑低风险策略。
func DefaultStrategiesFor(tier Tier) []string {
	switch {
	case tier >= TierElite:
		return []string{"arbitrage", "momentum", "sentiment"}
	case tier >= TierStandard:
		return []string{"arbitrage", "momentum"}
	default:
		return []string{"arbitrage"}
	}
}
