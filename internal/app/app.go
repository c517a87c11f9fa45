package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"channel-trader/internal/bitunix"
	"channel-trader/internal/chart"
	"channel-trader/internal/config"
	"channel-trader/internal/exchange"
	"channel-trader/internal/execution"
	"channel-trader/internal/monitor"
	"channel-trader/internal/notify"
	"channel-trader/internal/position"
	"channel-trader/internal/risk"
	"channel-trader/internal/stats"
	"channel-trader/internal/store"
	"channel-trader/internal/strategy"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

type runtime struct {
	orch      *orchestrator
	batcher   *notify.Batcher
	monitor   *monitor.Service
	hub       *monitor.Hub
	positions *position.Manager
	tracker   *stats.Tracker
}

// Run 组装依赖并运行主循环直到 ctx 结束。仓位计算结果非正时返回 risk.ErrFatalSizing；
// 启动时无法获取K线视为正常退出。退出前总会强制推送剩余通知。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.String("market", a.cfg.Exchange.Market),
		zap.String("symbol", a.cfg.Bitunix.Symbol),
		zap.Bool("simulation", a.cfg.Execution.Simulation),
	)

	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.batcher.ForceFlush(flushCtx); err != nil {
			a.logger.Warn("退出前推送通知失败", zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if rt.hub != nil {
		handler := newMonitorHandler(rt.monitor, rt.hub, func() statusSnapshot {
			return newStatusSnapshot(a.cfg.Bitunix.Symbol, rt.positions.Current(), rt.positions.Balance(), rt.tracker.Counter())
		}, a.logger)
		g.Go(func() error {
			rt.hub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			return serveMonitor(gctx, a.cfg.Monitor.Port, handler, a.logger)
		})
	}

	g.Go(func() error {
		// 主循环结束时一并停止监控接口。
		defer cancel()
		return a.loop(gctx, rt.orch)
	})

	return g.Wait()
}

func (a *App) loop(ctx context.Context, orch *orchestrator) error {
	if err := orch.Start(ctx); err != nil {
		if errors.Is(err, errStartupAborted) {
			a.logger.Warn("启动失败，程序结束", zap.Error(err))
			return nil
		}
		return err
	}

	interval := a.cfg.Scheduler.LoopInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := orch.Tick(ctx); err != nil {
			a.logger.Error("主循环终止", zap.Error(err))
			return err
		}

		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-ticker.C:
		}
	}
}

func (a *App) build(ctx context.Context) (*runtime, error) {
	cfg := a.cfg
	logger := a.logger

	marketClient, err := exchange.NewClient(cfg.Exchange, logger.Named("exchange"))
	if err != nil {
		return nil, err
	}
	market := exchange.NewMarketDataService(marketClient, cfg.Exchange.Timeframe, cfg.Exchange.BarLimit, logger.Named("market"))

	var (
		trader  execution.Trader
		account interface {
			Balance(ctx context.Context, marginCoin string) (float64, error)
			PendingPosition(ctx context.Context, symbol string) (position.Position, error)
		}
		mark markPricer
	)
	if cfg.Execution.Simulation {
		paper := execution.NewPaperAccount(cfg.Execution.PaperBalance, logger.Named("paper"))
		trader, account, mark = paper, paper, paper
		logger.Warn("模拟盘模式：不会向交易所下单", zap.Float64("paper_balance", cfg.Execution.PaperBalance))
	} else {
		client, err := bitunix.NewClient(cfg.Bitunix, logger.Named("bitunix"))
		if err != nil {
			return nil, err
		}
		trader = execution.NewExecutor(client, cfg.Bitunix.Symbol, cfg.Bitunix.MarginCoin, logger.Named("executor"))
		account = client
	}
	positions := position.NewManager(account, cfg.Bitunix.Symbol, cfg.Bitunix.MarginCoin, logger.Named("position"))

	statsStore, err := a.statsStore(ctx)
	if err != nil {
		return nil, err
	}
	tracker := stats.NewTracker(statsStore, logger.Named("stats"))
	tracker.Load(ctx)

	var (
		hub       *monitor.Hub
		publisher monitor.Publisher
	)
	if cfg.Monitor.Enabled {
		hub = monitor.NewHub(logger.Named("hub"))
		publisher = hub
	}
	monitorSvc, err := monitor.NewService(ctx, a.store, publisher, logger.Named("monitor"))
	if err != nil {
		return nil, err
	}

	var sender notify.Sender
	if cfg.Notify.WebhookURL != "" {
		sender = notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout, logger.Named("webhook"))
	} else {
		logger.Warn("未配置 notify.webhook_url，通知仅写入日志")
		sender = notify.NewLogSender(logger.Named("notify"))
	}
	status := notify.StatusFunc(func() (position.Position, stats.Counter) {
		return positions.Current(), tracker.Counter()
	})
	batcher := notify.NewBatcher(sender, status, cfg.Notify.FlushInterval, logger.Named("batcher"),
		notify.WithObserver(monitorSvc.RecordDelivery))

	var renderer chart.Renderer
	if cfg.Notify.Chart {
		renderer = chart.NewPNGRenderer(cfg.Notify.ChartWidth, cfg.Notify.ChartHeight)
	}

	sizing := risk.NewSizer(cfg.Strategy)
	markers := chart.NewMarkerLog()
	machine := strategy.NewMachine(trader, positions, batcher, tracker, markers, sizing.Leverage(), logger.Named("strategy"))
	logger.Info("交易组件已就绪",
		zap.String("market_symbol", market.Symbol()),
		zap.String("trade_symbol", positions.Symbol()),
		zap.Int("leverage", sizing.Leverage()),
		zap.Bool("simulation", cfg.Execution.Simulation),
	)

	orch := newOrchestrator(orchestratorDeps{
		bars:       market,
		account:    positions,
		machine:    machine,
		notifier:   batcher,
		sizer:      sizing,
		renderer:   renderer,
		markers:    markers,
		journal:    monitorSvc,
		mark:       mark,
		lookback:   cfg.Strategy.Lookback,
		marginCoin: cfg.Bitunix.MarginCoin,
	}, logger.Named("orchestrator"))

	return &runtime{
		orch:      orch,
		batcher:   batcher,
		monitor:   monitorSvc,
		hub:       hub,
		positions: positions,
		tracker:   tracker,
	}, nil
}

func (a *App) statsStore(ctx context.Context) (stats.Store, error) {
	switch strings.ToLower(a.cfg.Stats.Backend) {
	case config.StatsBackendSQLite:
		st, err := stats.NewSQLiteStore(ctx, a.store)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return stats.NewFileStore(a.cfg.Stats.Path), nil
	}
}
