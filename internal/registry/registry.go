package registry

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/fleet/internal/domain"
	"github.com/betbot/fleet/internal/events"
)

var log = logrus.WithField("module", "registry")

// lockShards 账户锁分片数
const lockShards = 64

// Policy 注册表策略参数
type Policy struct {
	ScalingMultiplier    float64 // 扩容目标倍数
	ExtractionMultiplier float64 // 提取阈值倍数
	MaxAccounts          int     // 账户数量上限
}

// Registry 账户注册表
// 账户状态的唯一属主：所有账户字段的变更只能经过这里的操作，
// 保证任何写入之后档位推导不变量始终成立。
// 同一账户的变更经分片锁串行化，不同账户可以并发推进。
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	order    []string // 创建顺序，保证 List 输出稳定

	shards [lockShards]sync.Mutex

	policy Policy
	bus    *events.Bus
}

// New 创建账户注册表
func New(policy Policy, bus *events.Bus) *Registry {
	if policy.ScalingMultiplier <= 1 {
		policy.ScalingMultiplier = 1.5
	}
	if policy.ExtractionMultiplier <= 1 {
		policy.ExtractionMultiplier = 2.0
	}
	if policy.MaxAccounts <= 0 {
		policy.MaxAccounts = 50
	}
	return &Registry{
		accounts: make(map[string]*domain.Account),
		policy:   policy,
		bus:      bus,
	}
}

// lockFor 返回账户对应的分片锁
func (r *Registry) lockFor(accountID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(accountID))
	return &r.shards[h.Sum32()%lockShards]
}

// CreateAccount 创建账户
// initialBalance < 0 返回 ErrInvalidConfiguration，不产生任何状态变更。
func (r *Registry) CreateAccount(name, exchangeID string, initialBalance float64, strategies []string) (*domain.Account, error) {
	acct, err := r.newAccount(name, exchangeID, initialBalance, strategies)
	if err != nil {
		return nil, err
	}

	if err := r.insert(acct); err != nil {
		return nil, err
	}

	log.Infof("账户已创建: id=%s name=%s tier=%s balance=%.2f", acct.ID, acct.Name, acct.Tier, acct.Balance)
	r.publish(events.AccountCreatedEvent{Account: acct.Clone(), Timestamp: time.Now()})
	return acct.Clone(), nil
}

// newAccount 构造账户（不插入注册表）
func (r *Registry) newAccount(name, exchangeID string, initialBalance float64, strategies []string) (*domain.Account, error) {
	if initialBalance < 0 {
		return nil, fmt.Errorf("%w: 初始资金不能为负数 (%.2f)", ErrInvalidConfiguration, initialBalance)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: 账户名不能为空", ErrInvalidConfiguration)
	}

	now := time.Now()
	tier := domain.DeriveTier(initialBalance)
	acct := &domain.Account{
		ID:                  uuid.NewString(),
		Name:                name,
		ExchangeID:          exchangeID,
		Balance:             initialBalance,
		InitialBalance:      initialBalance,
		AvailableBalance:    initialBalance,
		Tier:                tier,
		Status:              domain.StatusActive,
		RiskLevel:           domain.RiskBalanced,
		AllocationMode:      domain.AllocationProportional,
		ScalingTarget:       domain.ScalingTargetFor(tier, initialBalance, r.policy.ScalingMultiplier),
		ExtractionThreshold: initialBalance * r.policy.ExtractionMultiplier,
		ActiveStrategies:    append([]string(nil), strategies...),
		CreatedAt:           now,
		LastActivity:        now,
	}
	acct.AppendNote("账户创建: balance=%.2f tier=%s", initialBalance, tier)
	return acct, nil
}

// insert 插入账户（检查数量上限）
func (r *Registry) insert(acct *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.accounts) >= r.policy.MaxAccounts {
		return fmt.Errorf("%w: max=%d", ErrAccountCapReached, r.policy.MaxAccounts)
	}
	r.accounts[acct.ID] = acct
	r.order = append(r.order, acct.ID)
	return nil
}

// get 返回账户内部指针（调用方需持有对应分片锁才能修改）
func (r *Registry) get(accountID string) *domain.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.accounts[accountID]
}

// Get 获取账户拷贝
func (r *Registry) Get(accountID string) (*domain.Account, error) {
	acct := r.get(accountID)
	if acct == nil {
		return nil, fmt.Errorf("%w: id=%s", ErrAccountNotFound, accountID)
	}
	mu := r.lockFor(accountID)
	mu.Lock()
	defer mu.Unlock()
	return acct.Clone(), nil
}

// List 按创建顺序返回所有账户的拷贝
// 逐个账户取分片锁做快照，不要求整个船队的同一时刻一致性。
func (r *Registry) List() []*domain.Account {
	r.mu.RLock()
	ids := append([]string(nil), r.order...)
	r.mu.RUnlock()

	out := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		mu := r.lockFor(id)
		mu.Lock()
		if acct := r.get(id); acct != nil {
			out = append(out, acct.Clone())
		}
		mu.Unlock()
	}
	return out
}

// Count 当前账户数量
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}

// HasCapacity 是否还能再创建账户
func (r *Registry) HasCapacity() bool {
	return r.Count() < r.policy.MaxAccounts
}

// ApplyOutcome 将一笔结算盈亏入账
// 账户不存在返回 ErrAccountNotFound；状态非 Active 返回 ErrAccountInactive，余额不变。
// 入账后重新推导档位，档位变化会发布 TierUpgradeEvent。
func (r *Registry) ApplyOutcome(accountID string, pnl float64) (*domain.Account, error) {
	mu := r.lockFor(accountID)
	mu.Lock()
	defer mu.Unlock()

	acct := r.get(accountID)
	if acct == nil {
		return nil, fmt.Errorf("%w: id=%s", ErrAccountNotFound, accountID)
	}
	if !acct.IsActive() {
		return nil, fmt.Errorf("%w: id=%s status=%s", ErrAccountInactive, accountID, acct.Status)
	}

	newBalance := acct.Balance + pnl
	if newBalance < 0 {
		// 注册表不变量被破坏：这只账户转入 Error，不拖垮船队其他账户
		acct.Status = domain.StatusError
		acct.AppendNote("入账后余额为负 (%.2f)，账户转入 error 状态", newBalance)
		log.Errorf("❌ 账户不变量被破坏: id=%s pnl=%.2f balance=%.2f", accountID, pnl, acct.Balance)
		return nil, fmt.Errorf("%w: id=%s balance=%.2f", ErrInvariantBreach, accountID, newBalance)
	}

	acct.Balance = newBalance
	acct.AvailableBalance += pnl
	acct.AvailableBalance = clamp(acct.AvailableBalance, 0, acct.Balance)
	acct.TotalPnL += pnl
	acct.PeriodPnL += pnl
	acct.LastActivity = time.Now()

	r.rederiveTier(acct)
	return acct.Clone(), nil
}

// rederiveTier 重新推导档位（调用方需持有分片锁）
func (r *Registry) rederiveTier(acct *domain.Account) {
	newTier := domain.DeriveTier(acct.Balance)
	if newTier == acct.Tier {
		return
	}
	oldTier := acct.Tier
	acct.Tier = newTier
	acct.ScalingTarget = domain.ScalingTargetFor(newTier, acct.Balance, r.policy.ScalingMultiplier)
	acct.AppendNote("档位变化: %s -> %s (balance=%.2f)", oldTier, newTier, acct.Balance)

	log.Infof("📈 账户档位变化: id=%s %s -> %s balance=%.2f", acct.ID, oldTier, newTier, acct.Balance)
	r.publish(events.TierUpgradeEvent{
		AccountID: acct.ID,
		From:      oldTier,
		To:        newTier,
		Balance:   acct.Balance,
		Timestamp: time.Now(),
	})
}

// SetStatus 变更账户状态（校验状态机迁移）
func (r *Registry) SetStatus(accountID string, next domain.AccountStatus) error {
	mu := r.lockFor(accountID)
	mu.Lock()
	defer mu.Unlock()

	acct := r.get(accountID)
	if acct == nil {
		return fmt.Errorf("%w: id=%s", ErrAccountNotFound, accountID)
	}
	if acct.Status == next {
		// 幂等：重复设置同一状态不算迁移
		return nil
	}
	if !acct.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s (id=%s)", ErrInvalidTransition, acct.Status, next, accountID)
	}

	prev := acct.Status
	acct.Status = next
	acct.LastActivity = time.Now()
	acct.AppendNote("状态变更: %s -> %s", prev, next)
	log.Infof("账户状态变更: id=%s %s -> %s", accountID, prev, next)
	return nil
}

// publish 发布事件（bus 可为 nil，便于测试）
func (r *Registry) publish(e events.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
