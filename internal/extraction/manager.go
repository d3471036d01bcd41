package extraction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/fleet/internal/domain"
	"github.com/betbot/fleet/internal/events"
	"github.com/betbot/fleet/internal/registry"
)

var log = logrus.WithField("module", "extraction")

// Config 提取管理器配置
type Config struct {
	ReinvestFraction float64 // 提取利润中再投资的比例（默认0.80）
	MinSeedBalance   float64 // 新账户最小可行资金，低于此值不再投资
}

// Failure 单账户检查失败记录
type Failure struct {
	AccountID string
	Err       error
}

// Report 一轮提取检查的汇总
type Report struct {
	Checked     int
	Extractions int
	Reinvested  int
	Failures    []Failure
}

// Manager 利润提取管理器
// 账户余额达到提取阈值时提走基线以上的全部利润：
// 其中 ReinvestFraction 注入新账户（数量上限与最小可行资金允许时），
// 其余视为出金，只记录不再投资。
// 提取台账只追加，记录创建后不再修改。
type Manager struct {
	mu      sync.Mutex
	reg     *registry.Registry
	bus     *events.Bus
	cfg     Config
	ledger  []*domain.ProfitExtraction
	seedSeq int
}

// New 创建提取管理器
func New(reg *registry.Registry, bus *events.Bus, cfg Config) *Manager {
	if cfg.ReinvestFraction < 0 || cfg.ReinvestFraction > 1 {
		cfg.ReinvestFraction = 0.80
	}
	if cfg.MinSeedBalance <= 0 {
		cfg.MinSeedBalance = 50
	}
	return &Manager{reg: reg, bus: bus, cfg: cfg}
}

// Ledger 返回提取台账的拷贝（时间顺序）
func (m *Manager) Ledger() []*domain.ProfitExtraction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.ProfitExtraction, 0, len(m.ledger))
	for _, rec := range m.ledger {
		cp := *rec
		out = append(out, &cp)
	}
	return out
}

// RunCheck 提取检查周期入口
// 幂等：提取后余额回到基线，没有新的入账就不会再次触发。
// 同一账户的提取与扩容经注册表分片锁互斥，同一笔余额不会被双算。
func (m *Manager) RunCheck(ctx context.Context) Report {
	var report Report
	for _, acct := range m.reg.List() {
		select {
		case <-ctx.Done():
			return report
		default:
		}

		if !acct.IsActive() {
			continue
		}
		report.Checked++

		if acct.Balance < acct.ExtractionThreshold || acct.Profit() <= 0 {
			continue
		}

		rec, err := m.extract(acct)
		if err != nil {
			if errors.Is(err, registry.ErrThresholdNotReached) {
				continue
			}
			report.Failures = append(report.Failures, Failure{AccountID: acct.ID, Err: err})
			log.Warnf("⚠️ 利润提取失败: id=%s err=%v", acct.ID, err)
			continue
		}
		report.Extractions++
		if rec.Reinvested {
			report.Reinvested++
		}
	}
	return report
}

// extract 对单个账户执行提取
func (m *Manager) extract(acct *domain.Account) (*domain.ProfitExtraction, error) {
	profit := acct.Profit()

	// 再投资决策：金额够开新账户、且船队没到数量上限
	var reinvest *registry.SeedSpec
	seedAmount := profit * m.cfg.ReinvestFraction
	if seedAmount >= m.cfg.MinSeedBalance && m.reg.HasCapacity() {
		m.mu.Lock()
		m.seedSeq++
		name := fmt.Sprintf("%s-seed-%d", acct.Name, m.seedSeq)
		m.mu.Unlock()

		tier := domain.DeriveTier(seedAmount)
		reinvest = &registry.SeedSpec{
			Name:       name,
			ExchangeID: acct.ExchangeID,
			Amount:     seedAmount,
			Strategies: domain.DefaultStrategiesFor(tier),
		}
	}

	rec, _, err := m.reg.ExtractProfit(registry.ExtractionRequest{
		AccountID: acct.ID,
		Reinvest:  reinvest,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.ledger = append(m.ledger, rec)
	m.mu.Unlock()

	log.Infof("💰 利润提取: account=%s amount=%.2f reinvested=%v withdrawn=%.2f",
		rec.AccountID, rec.Amount, rec.Reinvested, rec.WithdrawnAmount)
	if m.bus != nil {
		cp := *rec
		m.bus.Publish(events.ProfitExtractedEvent{Extraction: &cp, Timestamp: time.Now()})
	}
	return rec, nil
}

// Snapshot 导出提取台账（重启恢复用）
func (m *Manager) Snapshot() []*domain.ProfitExtraction {
	return m.Ledger()
}

// Restore 从快照恢复提取台账
func (m *Manager) Restore(ledger []*domain.ProfitExtraction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = m.ledger[:0]
	for _, rec := range ledger {
		cp := *rec
		m.ledger = append(m.ledger, &cp)
	}
}
