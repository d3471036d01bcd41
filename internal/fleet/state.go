package fleet

import (
	"time"

	"github.com/betbot/fleet/internal/domain"
	"github.com/betbot/fleet/internal/metrics"
	"github.com/betbot/fleet/pkg/persistence"
)

// State 船队的可持久化状态
// 账户、未关闭的扩容计划、历史计划、账户组和提取台账。
type State struct {
	SavedAt     time.Time                      `json:"savedAt"`
	Accounts    []*domain.Account              `json:"accounts"`
	OpenPlans   map[string]*domain.ScalingPlan `json:"openPlans"`
	PlanHistory []*domain.ScalingPlan          `json:"planHistory"`
	Groups      []*domain.AccountGroup         `json:"groups"`
	Extractions []*domain.ProfitExtraction     `json:"extractions"`
}

// SaveState 把当前船队状态写入存储
func (c *Controller) SaveState(store persistence.Store) error {
	open, history := c.planner.Snapshot()
	state := State{
		SavedAt:     time.Now(),
		Accounts:    c.reg.Snapshot(),
		OpenPlans:   open,
		PlanHistory: history,
		Groups:      c.coordinator.Snapshot(),
		Extractions: c.extractor.Snapshot(),
	}

	if err := store.Save(state); err != nil {
		return err
	}
	metrics.SnapshotSaves.Add(1)
	log.Infof("💾 船队状态已保存: accounts=%d plans=%d extractions=%d",
		len(state.Accounts), len(state.OpenPlans), len(state.Extractions))
	return nil
}

// LoadState 从存储恢复船队状态
// 找不到快照不算错误，按全新船队启动。
func (c *Controller) LoadState(store persistence.Store) error {
	var state State
	if err := store.Load(&state); err != nil {
		if persistence.IsNotExists(err) {
			log.Info("未找到船队快照，按全新状态启动")
			return nil
		}
		return err
	}

	if err := c.reg.Restore(state.Accounts); err != nil {
		return err
	}
	c.planner.Restore(state.OpenPlans, state.PlanHistory)
	c.coordinator.Restore(state.Groups)
	c.extractor.Restore(state.Extractions)

	metrics.SnapshotLoads.Add(1)
	log.Infof("📥 船队状态已恢复: accounts=%d plans=%d extractions=%d (savedAt=%s)",
		len(state.Accounts), len(state.OpenPlans), len(state.Extractions),
		state.SavedAt.Format(time.RFC3339))
	return nil
}
