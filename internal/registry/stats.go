package registry

import "github.com/betbot/fleet/internal/domain"

// FleetStats 船队聚合统计
// 一个周期窗口内的最终一致快照，不保证全船队同一时刻的精确一致。
type FleetStats struct {
	TotalAccounts  int            `json:"total_accounts"`
	ActiveAccounts int            `json:"active_accounts"`
	TotalBalance   float64        `json:"total_balance"`
	TotalPnL       float64        `json:"total_pnl"`
	TierCounts     map[string]int `json:"tier_counts"`
}

// Stats 计算船队聚合统计
func (r *Registry) Stats() FleetStats {
	stats := FleetStats{TierCounts: make(map[string]int)}
	for _, acct := range r.List() {
		stats.TotalAccounts++
		if acct.IsActive() {
			stats.ActiveAccounts++
		}
		stats.TotalBalance += acct.Balance
		stats.TotalPnL += acct.TotalPnL
		stats.TierCounts[acct.Tier.String()]++
	}
	return stats
}

// ActiveAccounts 返回所有 Active 账户的拷贝
func (r *Registry) ActiveAccounts() []*domain.Account {
	var out []*domain.Account
	for _, acct := range r.List() {
		if acct.IsActive() {
			out = append(out, acct)
		}
	}
	return out
}
