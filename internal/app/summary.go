package app

import (
	"fmt"
	"strings"
)

type StartupSummary struct {
	Env           string
	HTTPAddr      string
	MarketDB      string
	ResultsDir    string
	InitialCash   float64
	RebalanceDays int
	VisualEnabled bool
	Ingest        *IngestSummary
	Presets       []string
}

type IngestSummary struct {
	Source   string
	Interval string
	Symbols  []string
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[服务 (SERVER)]")
	fmt.Printf("  环境: %s\n", s.Env)
	fmt.Printf("  监听地址: %s\n", s.HTTPAddr)
	fmt.Printf("  图表渲染: %v\n", s.VisualEnabled)
	fmt.Println()

	fmt.Println("[存储 (STORAGE)]")
	fmt.Printf("  行情库: %s\n", s.MarketDB)
	fmt.Printf("  结果目录: %s\n", s.ResultsDir)
	fmt.Println()

	fmt.Println("[回测默认 (BACKTEST DEFAULTS)]")
	fmt.Printf("  初始资金: %.2f\n", s.InitialCash)
	fmt.Printf("  调仓间隔: %d 个交易日\n", s.RebalanceDays)
	fmt.Println()

	fmt.Println("[行情更新 (INGEST)]")
	if s.Ingest == nil {
		fmt.Println("  (未启用)")
	} else {
		fmt.Printf("  数据源: %s\n", s.Ingest.Source)
		fmt.Printf("  周期: %s\n", s.Ingest.Interval)
		fmt.Printf("  标的: %s\n", formatList(s.Ingest.Symbols))
	}
	fmt.Println()

	fmt.Println("[策略预置 (PRESETS)]")
	fmt.Printf("  %s\n", formatList(s.Presets))
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
