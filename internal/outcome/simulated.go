package outcome

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/fleet/internal/domain"
)

var log = logrus.WithField("module", "outcome")

// AccountLister 提供当前活跃账户列表（由注册表实现）
type AccountLister interface {
	ActiveAccounts() []*domain.Account
}

// SimulatedSource 模拟收益源
// 每次拉取按账户余额和单账户风险比例生成随机盈亏，带轻微正向漂移。
// 编排核心对收益来源无感知，这里只是默认的仿真实现。
type SimulatedSource struct {
	mu     sync.Mutex
	lister AccountLister
	risk   float64
	rng    *rand.Rand
}

// NewSimulated 创建模拟收益源（seed=0 时使用当前时间）
func NewSimulated(lister AccountLister, riskPerAccount float64, seed int64) *SimulatedSource {
	if riskPerAccount <= 0 {
		riskPerAccount = 0.02
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedSource{
		lister: lister,
		risk:   riskPerAccount,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Poll 生成一批模拟交易结果
func (s *SimulatedSource) Poll(ctx context.Context) ([]domain.TradeOutcome, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var outcomes []domain.TradeOutcome
	now := time.Now()
	for _, acct := range s.lister.ActiveAccounts() {
		// 并非每个周期每个账户都有成交
		if s.rng.Float64() > 0.6 {
			continue
		}

		// [-1, 1) 区间，+0.1 的正向漂移
		move := s.rng.Float64()*2 - 1 + 0.1
		pnl := acct.Balance * s.risk * move

		strategy := ""
		if len(acct.ActiveStrategies) > 0 {
			strategy = acct.ActiveStrategies[s.rng.Intn(len(acct.ActiveStrategies))]
		}

		outcomes = append(outcomes, domain.TradeOutcome{
			AccountID: acct.ID,
			PnL:       pnl,
			Strategy:  strategy,
			Timestamp: now,
		})
	}

	log.Debugf("模拟收益源: 生成 %d 笔结果", len(outcomes))
	return outcomes, nil
}
