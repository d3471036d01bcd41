package fleet

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/fleet/internal/domain"
	"github.com/betbot/fleet/internal/events"
	"github.com/betbot/fleet/internal/extraction"
	"github.com/betbot/fleet/internal/group"
	"github.com/betbot/fleet/internal/metrics"
	"github.com/betbot/fleet/internal/registry"
	"github.com/betbot/fleet/internal/scaling"
	"github.com/betbot/fleet/pkg/sigchan"
)

var log = logrus.WithField("module", "fleet")

// Config 控制器配置
type Config struct {
	PerformanceInterval time.Duration // 绩效检查间隔（最短）
	ScalingInterval     time.Duration // 扩容检查间隔
	ExtractionInterval  time.Duration // 提取检查间隔

	AutoScaling          bool
	AutoExtraction       bool
	EmergencyStopEnabled bool
}

// OutcomeFailure 绩效周期内单笔入账失败
type OutcomeFailure struct {
	AccountID string
	Err       error
}

// PerformanceReport 一轮绩效检查的汇总
type PerformanceReport struct {
	Polled   int
	Applied  int
	Failures []OutcomeFailure
}

// Controller 船队控制器
// 驱动三个独立调度的周期检查：绩效、扩容、提取。
// 周期之间通过注册表的分片锁串行化同一账户的变更；
// 单账户失败只记录进报告，从不中断整轮检查。
type Controller struct {
	reg         *registry.Registry
	planner     *scaling.Planner
	extractor   *extraction.Manager
	coordinator *group.Coordinator
	bus         *events.Bus
	source      domain.OutcomeSource
	cfg         Config

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	kick    *sigchan.Chan // 手动触发一次绩效检查（控制面用）
}

// New 创建船队控制器
func New(
	reg *registry.Registry,
	planner *scaling.Planner,
	extractor *extraction.Manager,
	coordinator *group.Coordinator,
	bus *events.Bus,
	source domain.OutcomeSource,
	cfg Config,
) *Controller {
	if cfg.PerformanceInterval <= 0 {
		cfg.PerformanceInterval = 5 * time.Second
	}
	if cfg.ScalingInterval <= 0 {
		cfg.ScalingInterval = 30 * time.Second
	}
	if cfg.ExtractionInterval <= 0 {
		cfg.ExtractionInterval = 60 * time.Second
	}
	return &Controller{
		reg:         reg,
		planner:     planner,
		extractor:   extractor,
		coordinator: coordinator,
		bus:         bus,
		source:      source,
		cfg:         cfg,
		kick:        sigchan.New(1),
	}
}

// Registry 暴露底层注册表（控制面查询用）
func (c *Controller) Registry() *registry.Registry { return c.reg }

// Planner 暴露扩容计划器
func (c *Controller) Planner() *scaling.Planner { return c.planner }

// Extractor 暴露提取管理器
func (c *Controller) Extractor() *extraction.Manager { return c.extractor }

// Coordinator 暴露协同交易协调器
func (c *Controller) Coordinator() *group.Coordinator { return c.coordinator }

// Running 控制器是否在跑
func (c *Controller) Running() bool { return c.running.Load() }

// Start 启动控制循环
func (c *Controller) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("控制器已在运行")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if c.bus != nil {
		c.bus.Start(loopCtx)
	}
	if c.planner != nil {
		c.planner.Start()
	}

	c.startLoop(loopCtx, "performance", c.cfg.PerformanceInterval, c.performanceTick, c.kick.C())
	c.startLoop(loopCtx, "scaling", c.cfg.ScalingInterval, c.scalingTick, nil)
	c.startLoop(loopCtx, "extraction", c.cfg.ExtractionInterval, c.extractionTick, nil)

	log.Infof("船队控制器已启动: performance=%s scaling=%s extraction=%s",
		c.cfg.PerformanceInterval, c.cfg.ScalingInterval, c.cfg.ExtractionInterval)
	return nil
}

// startLoop 启动一个周期检查循环
func (c *Controller) startLoop(ctx context.Context, name string, interval time.Duration, tick func(context.Context), kickC <-chan struct{}) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Debugf("周期循环退出: %s", name)
				return
			case <-ticker.C:
				tick(ctx)
			case <-kickC:
				tick(ctx)
			}
		}
	}()
}

// performanceTick 绩效检查：拉取待结算结果并入账
func (c *Controller) performanceTick(ctx context.Context) {
	// 任何变更前先确认还在运行（紧急停机扫描不被周期打断）
	if !c.running.Load() {
		return
	}
	metrics.PerformanceTicks.Add(1)

	report := c.applyPending(ctx)
	if len(report.Failures) > 0 {
		log.Warnf("绩效检查存在失败: applied=%d failed=%d", report.Applied, len(report.Failures))
		for _, f := range report.Failures {
			log.Debugf("  入账失败: account=%s err=%v", f.AccountID, f.Err)
		}
	}
	if c.bus != nil {
		metrics.EventsDropped.Set(c.bus.Dropped())
	}
}

// applyPending 拉取并入账一批交易结果
func (c *Controller) applyPending(ctx context.Context) PerformanceReport {
	var report PerformanceReport
	if c.source == nil {
		return report
	}

	outcomes, err := c.source.Poll(ctx)
	if err != nil {
		log.Warnf("⚠️ 拉取交易结果失败: %v", err)
		return report
	}
	report.Polled = len(outcomes)

	for _, oc := range outcomes {
		if _, err := c.reg.ApplyOutcome(oc.AccountID, oc.PnL); err != nil {
			// 单账户失败不中断整轮入账
			report.Failures = append(report.Failures, OutcomeFailure{AccountID: oc.AccountID, Err: err})
			metrics.OutcomeFailures.Add(1)
			continue
		}
		report.Applied++
		metrics.OutcomesApplied.Add(1)
	}
	return report
}

// scalingTick 扩容检查
func (c *Controller) scalingTick(ctx context.Context) {
	if !c.running.Load() || !c.cfg.AutoScaling {
		return
	}
	metrics.ScalingTicks.Add(1)

	report := c.planner.RunCheck(ctx)
	if report.Splits > 0 {
		metrics.AccountSplits.Add(int64(report.Splits))
	}
	if len(report.Failures) > 0 {
		log.Warnf("扩容检查存在失败: checked=%d splits=%d failed=%d", report.Checked, report.Splits, len(report.Failures))
	}
}

// extractionTick 提取检查
func (c *Controller) extractionTick(ctx context.Context) {
	if !c.running.Load() || !c.cfg.AutoExtraction {
		return
	}
	metrics.ExtractionTicks.Add(1)

	report := c.extractor.RunCheck(ctx)
	if report.Extractions > 0 {
		metrics.ProfitExtractions.Add(int64(report.Extractions))
	}
	if len(report.Failures) > 0 {
		log.Warnf("提取检查存在失败: checked=%d extracted=%d failed=%d", report.Checked, report.Extractions, len(report.Failures))
	}
}

// ReportOutcome 外部协作方上报一笔已结算交易
func (c *Controller) ReportOutcome(oc domain.TradeOutcome) (*domain.Account, error) {
	acct, err := c.reg.ApplyOutcome(oc.AccountID, oc.PnL)
	if err != nil {
		return nil, err
	}
	metrics.OutcomesApplied.Add(1)
	return acct, nil
}

// SubmitGroupOpportunity 外部协作方提交协同交易机会
func (c *Controller) SubmitGroupOpportunity(ctx context.Context, opp domain.GroupOpportunity) (*domain.GroupTradeResult, error) {
	result, err := c.coordinator.Execute(ctx, opp)
	if err != nil {
		return nil, err
	}
	metrics.GroupTrades.Add(1)
	return result, nil
}

// KickPerformance 手动触发一次绩效检查（非阻塞）
func (c *Controller) KickPerformance() {
	c.kick.Emit()
}

// EmergencyStop 紧急停机扫描：所有 Active 账户转入 Suspended
// 尽力而为且幂等：不要求全船队原子生效，重复调用无额外副作用。
func (c *Controller) EmergencyStop(reason string) int {
	suspended := 0
	for _, acct := range c.reg.List() {
		if !acct.IsActive() {
			continue
		}
		if err := c.reg.SetStatus(acct.ID, domain.StatusSuspended); err != nil {
			log.Warnf("紧急暂停账户失败: id=%s err=%v", acct.ID, err)
			continue
		}
		if c.planner != nil {
			c.planner.PausePlan(acct.ID)
		}
		suspended++
	}

	log.Warnf("🛑 紧急停机: 已暂停 %d 个账户 (reason=%s)", suspended, reason)
	if c.bus != nil {
		c.bus.Publish(events.EmergencyStopEvent{
			SuspendedCount: suspended,
			Reason:         reason,
			Timestamp:      time.Now(),
		})
	}
	return suspended
}

// Stop 停止控制器
// 先清掉运行标志（周期检查在任何变更前都会复核该标志），
// 再按需执行紧急停机扫描，最后取消所有周期循环。
func (c *Controller) Stop(ctx context.Context) {
	if !c.running.CompareAndSwap(true, false) {
		return
	}

	if c.cfg.EmergencyStopEnabled {
		c.EmergencyStop("controller shutdown")
	}

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warnf("等待周期循环退出超时: %v", ctx.Err())
	}

	log.Info("船队控制器已停止")
}
