package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Ingest.validate(); err != nil {
		return err
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.InitialCash <= 0 {
		return fmt.Errorf("backtest.initial_cash must be > 0")
	}
	if b.RebalanceDays <= 0 {
		return fmt.Errorf("backtest.rebalance_days must be > 0")
	}
	for pair, rate := range b.FinancingRates {
		if strings.TrimSpace(pair) == "" {
			return fmt.Errorf("backtest.financing_rates contains empty pair")
		}
		if rate <= 0 || rate >= 1 {
			return fmt.Errorf("backtest.financing_rates.%s out of range (0,1): %v", pair, rate)
		}
	}
	return nil
}

func (i *IngestConfig) validate() error {
	if !i.Enabled {
		return nil
	}
	if len(i.Symbols) == 0 {
		return fmt.Errorf("ingest.symbols requires at least one symbol when ingest.enabled")
	}
	for _, sym := range i.Symbols {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("ingest.symbols contains empty symbol")
		}
	}
	return nil
}
