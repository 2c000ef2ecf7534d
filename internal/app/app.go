package app

import (
	"context"
	"fmt"
	"time"

	"baofu/internal/backtest"
	bfcfg "baofu/internal/config"
	"baofu/internal/ingest"
	"baofu/internal/logger"
	"baofu/internal/market"
	"baofu/internal/scheduler"
	backtesthttp "baofu/internal/transport/http/backtest"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 与行情更新任务。
type App struct {
	cfg     *bfcfg.Config
	store   *market.Store
	results *backtest.ResultStore
	runner  *backtest.Runner
	server  *backtesthttp.Server

	updater        *ingest.Updater
	ingestInterval time.Duration

	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *bfcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务与可选的行情更新循环，阻塞直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	if a.server == nil {
		return fmt.Errorf("http server not initialized")
	}
	a.runner.SetContext(ctx)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	if a.updater != nil && a.ingestInterval > 0 {
		group.Go(func() error {
			sched := scheduler.NewAlignedScheduler(ctx, a.ingestInterval, time.Minute)
			sched.RunImmediately = true
			sched.Start(func() { a.updater.RunOnce(ctx) })
			return nil
		})
	}

	err := group.Wait()
	a.close()
	return err
}

func (a *App) close() {
	if a.results != nil {
		_ = a.results.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// Runner 暴露回测执行器（测试与回放场景使用）。
func (a *App) Runner() *backtest.Runner {
	if a == nil {
		return nil
	}
	return a.runner
}
