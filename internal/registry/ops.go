package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/betbot/fleet/internal/domain"
	"github.com/betbot/fleet/internal/events"
)

// SeedSpec 自动创建新账户的参数（分裂或提取再投资）
type SeedSpec struct {
	Name       string
	ExchangeID string
	Amount     float64
	Strategies []string
}

// SplitAccount 账户分裂：从源账户划出 seed.Amount 创建新账户
// 扣款与新账户入账是一个逻辑事务：所有校验先于任何变更，
// 校验不通过则源账户分文未动（全有或全无）。
// 源账户分片锁保证与同账户的提取检查互斥，不会重复计算同一笔余额。
func (r *Registry) SplitAccount(sourceID string, seed SeedSpec) (*domain.Account, *domain.Account, error) {
	mu := r.lockFor(sourceID)
	mu.Lock()
	defer mu.Unlock()

	src := r.get(sourceID)
	if src == nil {
		return nil, nil, fmt.Errorf("%w: id=%s", ErrAccountNotFound, sourceID)
	}
	if src.Status == domain.StatusScaling || src.Status == domain.StatusExtracting {
		return nil, nil, fmt.Errorf("%w: id=%s status=%s", ErrCheckConflict, sourceID, src.Status)
	}
	if !src.IsActive() {
		return nil, nil, fmt.Errorf("%w: id=%s status=%s", ErrAccountInactive, sourceID, src.Status)
	}

	// 锁内复核触发条件：上一轮检查到现在余额可能已经变了
	if src.Balance < src.ScalingTarget {
		return nil, nil, fmt.Errorf("%w: balance=%.2f target=%.2f", ErrThresholdNotReached, src.Balance, src.ScalingTarget)
	}
	if seed.Amount <= 0 || seed.Amount >= src.Balance {
		return nil, nil, fmt.Errorf("%w: 分裂金额非法 amount=%.2f balance=%.2f", ErrInvalidConfiguration, seed.Amount, src.Balance)
	}

	// 新账户构造与容量校验都在扣款之前
	newAcct, err := r.newAccount(seed.Name, seed.ExchangeID, seed.Amount, seed.Strategies)
	if err != nil {
		return nil, nil, err
	}
	if err := r.insert(newAcct); err != nil {
		return nil, nil, err
	}

	src.Status = domain.StatusScaling
	balanceBefore := src.Balance
	src.Balance -= seed.Amount
	src.AvailableBalance = clamp(src.AvailableBalance-seed.Amount, 0, src.Balance)
	src.LastActivity = time.Now()
	src.AppendNote("分裂扩容: 划出 %.2f 创建账户 %s (余额 %.2f -> %.2f)", seed.Amount, newAcct.ID, balanceBefore, src.Balance)
	r.rederiveTier(src)
	src.Status = domain.StatusActive

	newAcct.AppendNote("由账户 %s 分裂创建", sourceID)

	log.Infof("✅ 账户分裂完成: source=%s new=%s seed=%.2f", sourceID, newAcct.ID, seed.Amount)
	r.publish(events.AccountCreatedEvent{Account: newAcct.Clone(), Seeded: true, SourceID: sourceID, Timestamp: time.Now()})

	return src.Clone(), newAcct.Clone(), nil
}

// ExtractionRequest 利润提取请求
type ExtractionRequest struct {
	AccountID string
	Reinvest  *SeedSpec // 再投资参数；nil 表示全额出金
}

// ExtractProfit 利润提取：提走基线以上的全部利润，余额重置回基线
// 基线 initialBalance 不变，提取阈值按原规则重算。
// {扣款、提取记录、可选的新账户创建}是一个逻辑事务，校验先于变更。
func (r *Registry) ExtractProfit(req ExtractionRequest) (*domain.ProfitExtraction, *domain.Account, error) {
	mu := r.lockFor(req.AccountID)
	mu.Lock()
	defer mu.Unlock()

	acct := r.get(req.AccountID)
	if acct == nil {
		return nil, nil, fmt.Errorf("%w: id=%s", ErrAccountNotFound, req.AccountID)
	}
	if acct.Status == domain.StatusScaling || acct.Status == domain.StatusExtracting {
		return nil, nil, fmt.Errorf("%w: id=%s status=%s", ErrCheckConflict, req.AccountID, acct.Status)
	}
	if !acct.IsActive() {
		return nil, nil, fmt.Errorf("%w: id=%s status=%s", ErrAccountInactive, req.AccountID, acct.Status)
	}

	// 锁内复核：阈值与正利润必须同时成立（提取/扩容互斥的幂等保护）
	profit := acct.Profit()
	if acct.Balance < acct.ExtractionThreshold || profit <= 0 {
		return nil, nil, fmt.Errorf("%w: balance=%.2f threshold=%.2f", ErrThresholdNotReached, acct.Balance, acct.ExtractionThreshold)
	}

	var seeded *domain.Account
	if req.Reinvest != nil {
		if req.Reinvest.Amount <= 0 || req.Reinvest.Amount > profit {
			return nil, nil, fmt.Errorf("%w: 再投资金额非法 amount=%.2f profit=%.2f", ErrInvalidConfiguration, req.Reinvest.Amount, profit)
		}
		newAcct, err := r.newAccount(req.Reinvest.Name, req.Reinvest.ExchangeID, req.Reinvest.Amount, req.Reinvest.Strategies)
		if err != nil {
			return nil, nil, err
		}
		if err := r.insert(newAcct); err != nil {
			return nil, nil, err
		}
		seeded = newAcct
	}

	acct.Status = domain.StatusExtracting
	balanceBefore := acct.Balance
	acct.Balance = acct.InitialBalance
	acct.AvailableBalance = clamp(acct.AvailableBalance, 0, acct.Balance)
	acct.ExtractionThreshold = acct.InitialBalance * r.policy.ExtractionMultiplier
	acct.LastActivity = time.Now()
	acct.AppendNote("利润提取: %.2f (余额 %.2f -> %.2f)", profit, balanceBefore, acct.Balance)
	r.rederiveTier(acct)
	acct.Status = domain.StatusActive

	record := &domain.ProfitExtraction{
		ID:              uuid.NewString(),
		AccountID:       acct.ID,
		Amount:          profit,
		Percent:         profit / balanceBefore * 100,
		Timestamp:       time.Now(),
		WithdrawnAmount: profit,
	}
	if seeded != nil {
		record.Reinvested = true
		record.SeededAccountID = seeded.ID
		record.SeededAmount = seeded.InitialBalance
		record.WithdrawnAmount = profit - seeded.InitialBalance
		seeded.AppendNote("由账户 %s 的利润提取再投资创建", acct.ID)
		r.publish(events.AccountCreatedEvent{Account: seeded.Clone(), Seeded: true, SourceID: acct.ID, Timestamp: time.Now()})
	}

	log.Infof("✅ 利润提取完成: id=%s amount=%.2f reinvested=%v", acct.ID, profit, record.Reinvested)
	return record, acct.Clone(), nil
}
