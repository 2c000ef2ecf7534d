package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"baofu/internal/market"
	"baofu/internal/scheduler"

	"github.com/adshao/go-binance/v2"
)

const maxKlineLimit = 1000

// Source 拉取某标的在闭区间内的日线行情。
type Source interface {
	FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]market.PricePoint, error)
}

// BinanceConfig 配置币安现货数据源。
type BinanceConfig struct {
	RESTBase    string
	HTTPTimeout time.Duration
}

// BinanceSource 基于 go-binance SDK 实现 Source，
// 取现货日 K 线收盘价作为当日行情。
type BinanceSource struct {
	client *binance.Client
}

func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	client := binance.NewClient("", "")
	if base := strings.TrimSpace(cfg.RESTBase); base != "" {
		client.BaseURL = base
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &BinanceSource{client: client}
}

func (s *BinanceSource) FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]market.PricePoint, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	// 币安接口要求无分隔符的大写符号（如 ETHUSDT）。
	clean := strings.ToUpper(strings.NewReplacer("/", "", "-", "", "_", "").Replace(symbol))

	start = market.Day(start)
	end = market.Day(end)
	if end.Before(start) {
		return nil, nil
	}

	var out []market.PricePoint
	cursor := start
	for !cursor.After(end) {
		svc := s.client.NewKlinesService().
			Symbol(clean).
			Interval("1d").
			StartTime(cursor.UnixMilli()).
			EndTime(end.AddDate(0, 0, 1).UnixMilli() - 1).
			Limit(maxKlineLimit)
		kls, err := svc.Do(ctx)
		if err != nil {
			return nil, err
		}
		if len(kls) == 0 {
			break
		}
		for _, kl := range kls {
			if kl == nil {
				continue
			}
			day := market.Day(time.UnixMilli(kl.OpenTime))
			if day.Before(start) || day.After(end) {
				continue
			}
			out = append(out, market.PricePoint{
				Symbol: symbol,
				Date:   day,
				Open:   parseFloat(kl.Open),
				High:   parseFloat(kl.High),
				Low:    parseFloat(kl.Low),
				Close:  parseFloat(kl.Close),
				Volume: parseFloat(kl.Volume),
			})
		}
		if len(kls) < maxKlineLimit {
			break
		}
		last := market.Day(time.UnixMilli(kls[len(kls)-1].OpenTime))
		cursor = last.AddDate(0, 0, 1)
	}
	// 当日行情尚未收盘，不落库。
	return scheduler.DropUnclosedDaily(out), nil
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
