package backtest

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"baofu/internal/analysis"
	"baofu/internal/market"
)

// MissingExtra 表示附加字段（均线）窗口未满时的占位值。
const MissingExtra = -1

// Bar 是单个交易日的数据点。基金类标的以单位净值充当收盘价。
type Bar struct {
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Dividend float64
	// Extra 为附加字段（如 MA20），窗口未满时取 MissingExtra。
	Extra map[string]float64
}

// Feed 是单个标的按日期升序排列的数据序列。
type Feed struct {
	name string
	bars []Bar
}

// NewFeed 从行情序列构建数据源，并按 maPeriods 预计算均线附加字段。
func NewFeed(name string, series market.Series, maPeriods []int) *Feed {
	bars := make([]Bar, len(series))
	for i, p := range series {
		bars[i] = Bar{
			Date:     market.Day(p.Date),
			Open:     p.Open,
			High:     p.High,
			Low:      p.Low,
			Close:    p.Close,
			Dividend: p.Dividend,
		}
	}
	if len(maPeriods) > 0 && len(bars) > 0 {
		for _, ma := range analysis.MovingAverages(series.Closes(), maPeriods, false) {
			for i := range bars {
				if bars[i].Extra == nil {
					bars[i].Extra = make(map[string]float64, len(maPeriods))
				}
				v := ma.Values[i]
				if math.IsNaN(v) {
					v = MissingExtra
				}
				bars[i].Extra[ma.Name] = v
			}
		}
	}
	return &Feed{name: strings.ToUpper(strings.TrimSpace(name)), bars: bars}
}

func (f *Feed) Name() string { return f.name }

func (f *Feed) Len() int { return len(f.bars) }

// Bars 返回底层序列（调用方不应修改）。
func (f *Feed) Bars() []Bar { return f.bars }

// At 返回恰好落在 date 当日的数据点。
func (f *Feed) At(date time.Time) (Bar, bool) {
	idx := sort.Search(len(f.bars), func(i int) bool { return !f.bars[i].Date.Before(date) })
	if idx < len(f.bars) && f.bars[idx].Date.Equal(date) {
		return f.bars[idx], true
	}
	return Bar{}, false
}

// Latest 返回 date 当日或之前最近的数据点。
func (f *Feed) Latest(date time.Time) (Bar, bool) {
	idx := sort.Search(len(f.bars), func(i int) bool { return f.bars[i].Date.After(date) })
	if idx == 0 {
		return Bar{}, false
	}
	return f.bars[idx-1], true
}

// Next 返回 date 之后首个数据点（分红再投资以下一交易日收盘成交）。
func (f *Feed) Next(date time.Time) (Bar, bool) {
	idx := sort.Search(len(f.bars), func(i int) bool { return f.bars[i].Date.After(date) })
	if idx >= len(f.bars) {
		return Bar{}, false
	}
	return f.bars[idx], true
}

// FirstDate 返回首个交易日；空序列时 ok 为 false。
func (f *Feed) FirstDate() (time.Time, bool) {
	if len(f.bars) == 0 {
		return time.Time{}, false
	}
	return f.bars[0].Date, true
}

// LastDate 返回最后一个交易日。
func (f *Feed) LastDate() (time.Time, bool) {
	if len(f.bars) == 0 {
		return time.Time{}, false
	}
	return f.bars[len(f.bars)-1].Date, true
}

// FeedSet 按名称管理一组数据源，第一条为主数据源（时钟）。
type FeedSet struct {
	feeds  []*Feed
	byName map[string]*Feed
}

// NewFeedSet 组装数据源集合，名称重复时返回错误。
func NewFeedSet(feeds ...*Feed) (*FeedSet, error) {
	if len(feeds) == 0 {
		return nil, configErrorf("数据源不能为空")
	}
	set := &FeedSet{byName: make(map[string]*Feed, len(feeds))}
	for _, f := range feeds {
		if f == nil || f.name == "" {
			return nil, configErrorf("数据源缺少名称")
		}
		if _, dup := set.byName[f.name]; dup {
			return nil, configErrorf("数据源 %s 重复", f.name)
		}
		set.feeds = append(set.feeds, f)
		set.byName[f.name] = f
	}
	return set, nil
}

// Get 按名称取数据源。
func (s *FeedSet) Get(name string) (*Feed, bool) {
	f, ok := s.byName[strings.ToUpper(strings.TrimSpace(name))]
	return f, ok
}

// Primary 返回主数据源，回测以其交易日为时钟。
func (s *FeedSet) Primary() *Feed { return s.feeds[0] }

// All 返回全部数据源，保持加入顺序。
func (s *FeedSet) All() []*Feed { return s.feeds }

// Names 返回全部名称，保持加入顺序。
func (s *FeedSet) Names() []string {
	out := make([]string, len(s.feeds))
	for i, f := range s.feeds {
		out[i] = f.name
	}
	return out
}

func (s *FeedSet) String() string {
	return fmt.Sprintf("FeedSet(%s)", strings.Join(s.Names(), ","))
}
