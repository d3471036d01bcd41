package registry

import (
	"fmt"

	"github.com/betbot/fleet/internal/domain"
)

// Snapshot 导出全部账户（重启恢复用，保存走 pkg/persistence）
func (r *Registry) Snapshot() []*domain.Account {
	return r.List()
}

// Restore 从快照恢复账户
// 档位按余额重新推导，不信任快照里的 tier 字段，确保不变量在恢复后依然成立。
func (r *Registry) Restore(accounts []*domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(accounts) > r.policy.MaxAccounts {
		return fmt.Errorf("%w: 快照账户数 %d 超过上限 %d", ErrAccountCapReached, len(accounts), r.policy.MaxAccounts)
	}

	r.accounts = make(map[string]*domain.Account, len(accounts))
	r.order = r.order[:0]
	for _, acct := range accounts {
		cp := acct.Clone()
		cp.Tier = domain.DeriveTier(cp.Balance)
		cp.AvailableBalance = clamp(cp.AvailableBalance, 0, cp.Balance)
		r.accounts[cp.ID] = cp
		r.order = append(r.order, cp.ID)
	}
	log.Infof("注册表已从快照恢复: accounts=%d", len(accounts))
	return nil
}
