package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/fleet/internal/controlplane/server"
	"github.com/betbot/fleet/internal/domain"
	"github.com/betbot/fleet/internal/events"
	"github.com/betbot/fleet/internal/extraction"
	"github.com/betbot/fleet/internal/fleet"
	"github.com/betbot/fleet/internal/group"
	"github.com/betbot/fleet/internal/metrics"
	"github.com/betbot/fleet/internal/outcome"
	"github.com/betbot/fleet/internal/registry"
	"github.com/betbot/fleet/internal/scaling"
	"github.com/betbot/fleet/pkg/config"
	"github.com/betbot/fleet/pkg/logger"
	"github.com/betbot/fleet/pkg/persistence"
	"github.com/betbot/fleet/pkg/shutdown"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "配置文件路径（.yaml/.yml）")
	snapshotLoad := flag.Bool("restore", true, "启动时尝试恢复船队快照")
	seedAccounts := flag.Int("seed-accounts", 0, "启动时自动创建的演示账户数量（空船队时）")
	flag.Parse()

	if *configPath != "" {
		config.SetConfigPath(*configPath)
	}

	cfg, err := config.LoadFromFile(config.GetConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	log := logrus.WithField("module", "main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sd := shutdown.NewManager()

	// 持久化后端
	var svc persistence.Service
	switch cfg.Persistence.Backend {
	case "badger":
		badgerSvc, err := persistence.OpenBadger(cfg.Persistence.Dir)
		if err != nil {
			log.Fatalf("打开 badger 失败: %v", err)
		}
		sd.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) { _ = badgerSvc.Close() })
		svc = badgerSvc
	default:
		svc = persistence.NewJSONFileService(cfg.Persistence.Dir)
	}
	stateStore := svc.NewStore("fleet", "core", "state")

	// 核心组件
	bus := events.NewBus(256)
	reg := registry.New(registry.Policy{
		ScalingMultiplier:    cfg.Fleet.ScalingMultiplier,
		ExtractionMultiplier: cfg.Fleet.ExtractionMultiplier,
		MaxAccounts:          cfg.Fleet.MaxAccounts,
	}, bus)
	planner := scaling.New(reg, bus, scaling.Config{
		SeedFraction:   cfg.Fleet.ScalingSeedFraction,
		MilestoneSteps: cfg.Fleet.MilestoneSteps,
	})
	extractor := extraction.New(reg, bus, extraction.Config{
		ReinvestFraction: cfg.Fleet.ReinvestFraction,
		MinSeedBalance:   cfg.Fleet.MinSeedBalance,
	})
	coordinator := group.New(reg, bus, cfg.Fleet.CoordinationBonus)

	// 交易结果来源
	var source domain.OutcomeSource
	switch cfg.OutcomeSource.Mode {
	case "http":
		source = outcome.NewHTTP(cfg.OutcomeSource.Endpoint, cfg.OutcomeSource.Timeout.Duration)
	default:
		source = outcome.NewSimulated(reg, cfg.Fleet.RiskPerAccount, time.Now().UnixNano())
	}

	ctrl := fleet.New(reg, planner, extractor, coordinator, bus, source, fleet.Config{
		PerformanceInterval:  cfg.Ticks.PerformanceInterval.Duration,
		ScalingInterval:      cfg.Ticks.ScalingInterval.Duration,
		ExtractionInterval:   cfg.Ticks.ExtractionInterval.Duration,
		AutoScaling:          cfg.Fleet.AutoScaling,
		AutoExtraction:       cfg.Fleet.AutoExtraction,
		EmergencyStopEnabled: cfg.Fleet.EmergencyStopEnabled,
	})

	// 控制面（先订阅审计再启动控制器，避免漏掉启动期事件）
	cpSrv, err := server.New(server.Config{DBPath: cfg.ControlPlane.DBPath}, ctrl)
	if err != nil {
		log.Fatalf("初始化控制面失败: %v", err)
	}
	cpSrv.SubscribeAudit(bus)
	sd.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) { _ = cpSrv.Close() })

	if *snapshotLoad {
		if err := ctrl.LoadState(stateStore); err != nil {
			log.Fatalf("恢复船队快照失败: %v", err)
		}
	}

	if *seedAccounts > 0 && reg.Count() == 0 {
		for i := 0; i < *seedAccounts; i++ {
			name := fmt.Sprintf("demo-%02d", i+1)
			if _, err := reg.CreateAccount(name, "sim", cfg.Fleet.MinSeedBalance*2, nil); err != nil {
				log.Warnf("创建演示账户失败: %v", err)
			}
		}
	}

	if err := ctrl.Start(ctx); err != nil {
		log.Fatalf("启动控制器失败: %v", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.ControlPlane.Listen,
		Handler:           cpSrv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("控制面监听: %s", cfg.ControlPlane.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("控制面 HTTP 错误: %v", err)
		}
	}()

	if cfg.MetricsListen != "" {
		if _, err := metrics.StartAsync(ctx, cfg.MetricsListen); err != nil {
			log.Warnf("启动指标服务失败: %v", err)
		}
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh
	log.Info("收到退出信号，开始关停")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	_ = httpSrv.Shutdown(stopCtx)
	ctrl.Stop(stopCtx)

	if err := ctrl.SaveState(stateStore); err != nil {
		log.Errorf("保存船队快照失败: %v", err)
	}

	cancel()
	sd.Shutdown(stopCtx)
	fmt.Println("fleet stopped")
}
