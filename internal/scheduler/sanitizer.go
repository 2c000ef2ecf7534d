package scheduler

import (
	"time"

	"baofu/internal/market"
)

const DefaultDailyCloseGrace = 10 * time.Second

// DropUnclosedDaily 去掉末尾尚未收盘的交易日。
// 数据源的最后一根日线可能是当日的进行中行情，其收盘值不可用。
func DropUnclosedDaily(points []market.PricePoint) []market.PricePoint {
	return dropUnclosedDailyAt(points, time.Now().UTC(), DefaultDailyCloseGrace)
}

func dropUnclosedDailyAt(points []market.PricePoint, now time.Time, grace time.Duration) []market.PricePoint {
	if len(points) == 0 {
		return points
	}
	if grace < 0 {
		grace = 0
	}
	last := points[len(points)-1]
	if last.Date.IsZero() {
		return points
	}
	closeAt := market.Day(last.Date).AddDate(0, 0, 1)
	if now.Before(closeAt.Add(grace)) {
		return points[:len(points)-1]
	}
	return points
}
