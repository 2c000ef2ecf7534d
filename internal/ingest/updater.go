package ingest

import (
	"context"
	"fmt"
	"time"

	"baofu/internal/logger"
	"baofu/internal/market"
)

// defaultBackfillDays 是库中无历史时的回补深度。
const defaultBackfillDays = 3 * 366

// Updater 对配置的标的做增量行情更新：
// 从库内最新交易日的次日拉到当前日期。
type Updater struct {
	store   *market.Store
	source  Source
	symbols []string

	nowFn func() time.Time
}

func NewUpdater(store *market.Store, source Source, symbols []string) (*Updater, error) {
	if store == nil {
		return nil, fmt.Errorf("market store is required")
	}
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	return &Updater{
		store:   store,
		source:  source,
		symbols: symbols,
		nowFn:   time.Now,
	}, nil
}

// RunOnce 更新一轮全部标的。单个标的失败只记日志，不中断其余标的。
func (u *Updater) RunOnce(ctx context.Context) {
	end := market.Day(u.nowFn())
	for _, symbol := range u.symbols {
		if ctx.Err() != nil {
			logger.Warnf("ingest: ctx done, stop update loop")
			return
		}
		count, err := u.updateSymbol(ctx, symbol, end)
		if err != nil {
			logger.Warnf("ingest: 更新 %s 失败: %v", symbol, err)
			continue
		}
		if count > 0 {
			logger.Infof("ingest: %s 新增 %d 个交易日", symbol, count)
		}
	}
}

func (u *Updater) updateSymbol(ctx context.Context, symbol string, end time.Time) (int, error) {
	latest, ok, err := u.store.LatestDate(ctx, symbol)
	if err != nil {
		return 0, err
	}
	start := end.AddDate(0, 0, -defaultBackfillDays)
	if ok {
		start = market.Day(latest).AddDate(0, 0, 1)
	}
	if start.After(end) {
		return 0, nil
	}
	points, err := u.source.FetchDaily(ctx, symbol, start, end)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}
	if err := u.store.UpsertPrices(ctx, points); err != nil {
		return 0, err
	}
	return len(points), nil
}
