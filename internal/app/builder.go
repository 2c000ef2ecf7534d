package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"baofu/internal/backtest"
	bfcfg "baofu/internal/config"
	cfgloader "baofu/internal/config/loader"
	"baofu/internal/ingest"
	"baofu/internal/logger"
	"baofu/internal/market"
	"baofu/internal/scheduler"
	backtesthttp "baofu/internal/transport/http/backtest"
)

type AppBuilder struct {
	cfg *bfcfg.Config

	marketStoreFn  func(string) (*market.Store, error)
	resultStoreFn  func(string) (*backtest.ResultStore, error)
	sourceFn       func(bfcfg.IngestConfig) (ingest.Source, error)
	presetLoaderFn func(bfcfg.StrategyConfig) (*cfgloader.PresetLoader, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *bfcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:            cfg,
		marketStoreFn:  market.NewStore,
		resultStoreFn:  backtest.NewResultStore,
		sourceFn:       buildSource,
		presetLoaderFn: buildPresetLoader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithSource 覆盖行情数据源，测试注入假源使用。
func WithSource(src ingest.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(bfcfg.IngestConfig) (ingest.Source, error) { return src, nil }
	}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	store, err := b.marketStoreFn(cfg.Store.MarketDB)
	if err != nil {
		return nil, fmt.Errorf("打开行情库失败: %w", err)
	}
	results, err := b.resultStoreFn(cfg.Store.ResultsDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("打开结果库失败: %w", err)
	}

	task := backtest.NewTask(store, cfg.Backtest)
	runner, err := backtest.NewRunner(backtest.RunnerConfig{
		Task:    task,
		Results: results,
	})
	if err != nil {
		results.Close()
		store.Close()
		return nil, err
	}

	presets, err := b.presetLoaderFn(cfg.Strategy)
	if err != nil {
		logger.Warnf("加载策略预置失败，预置接口不可用: %v", err)
		presets = nil
	}

	app := &App{
		cfg:     cfg,
		store:   store,
		results: results,
		runner:  runner,
	}

	if cfg.Ingest.Enabled {
		if err := b.setupIngest(app, cfg.Ingest); err != nil {
			results.Close()
			store.Close()
			return nil, err
		}
	}

	server, err := backtesthttp.NewServer(backtesthttp.Config{
		Addr:    cfg.App.HTTPAddr,
		Runner:  runner,
		Store:   store,
		Presets: presets,
		Cfg:     cfg.Backtest,
		Visual:  cfg.Visual,
	})
	if err != nil {
		results.Close()
		store.Close()
		return nil, err
	}
	app.server = server
	app.Summary = buildSummary(cfg, presets)
	return app, nil
}

func (b *AppBuilder) setupIngest(app *App, cfg bfcfg.IngestConfig) error {
	interval, ok := scheduler.ParseIntervalDuration(cfg.Interval)
	if !ok {
		return fmt.Errorf("ingest.interval 非法: %q", cfg.Interval)
	}
	if len(cfg.Symbols) == 0 {
		logger.Warnf("ingest.enabled=true 但未配置标的，跳过行情更新任务")
		return nil
	}
	source, err := b.sourceFn(cfg)
	if err != nil {
		return err
	}
	updater, err := ingest.NewUpdater(app.store, source, cfg.Symbols)
	if err != nil {
		return err
	}
	app.updater = updater
	app.ingestInterval = interval
	return nil
}

func buildSource(cfg bfcfg.IngestConfig) (ingest.Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "", "binance":
		return ingest.NewBinanceSource(ingest.BinanceConfig{RESTBase: cfg.RESTBase}), nil
	default:
		return nil, fmt.Errorf("未知行情数据源: %q", cfg.Source)
	}
}

func buildPresetLoader(cfg bfcfg.StrategyConfig) (*cfgloader.PresetLoader, error) {
	path := strings.TrimSpace(cfg.PresetsPath)
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("策略预置文件不存在: %s", path)
			return nil, nil
		}
		return nil, err
	}
	return cfgloader.NewPresetLoader(path, cfg.HotReload)
}

func buildSummary(cfg *bfcfg.Config, presets *cfgloader.PresetLoader) *StartupSummary {
	summary := &StartupSummary{
		Env:           cfg.App.Env,
		HTTPAddr:      cfg.App.HTTPAddr,
		MarketDB:      cfg.Store.MarketDB,
		ResultsDir:    cfg.Store.ResultsDir,
		InitialCash:   cfg.Backtest.InitialCash,
		RebalanceDays: cfg.Backtest.RebalanceDays,
		VisualEnabled: cfg.Visual.Enabled,
	}
	if cfg.Ingest.Enabled {
		summary.Ingest = &IngestSummary{
			Source:   cfg.Ingest.Source,
			Interval: cfg.Ingest.Interval,
			Symbols:  append([]string(nil), cfg.Ingest.Symbols...),
		}
	}
	if presets != nil {
		snapshot := presets.Snapshot()
		names := make([]string, 0, len(snapshot.Presets))
		for name := range snapshot.Presets {
			names = append(names, name)
		}
		sort.Strings(names)
		summary.Presets = names
	}
	return summary
}
