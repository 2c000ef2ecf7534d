package config

// Config 是 baofu 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Store    StoreConfig    `toml:"store"`
	Backtest BacktestConfig `toml:"backtest"`
	Ingest   IngestConfig   `toml:"ingest"`
	Strategy StrategyConfig `toml:"strategy"`
	Visual   VisualConfig   `toml:"visual"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// StoreConfig 描述行情库与回测结果库的落盘位置。
type StoreConfig struct {
	MarketDB   string `toml:"market_db"`
	ResultsDir string `toml:"results_dir"`
}

// BacktestConfig 提供模拟的缺省参数与利率表。
type BacktestConfig struct {
	InitialCash      float64 `toml:"initial_cash"`
	RebalanceDays    int     `toml:"rebalance_days"`
	MinPeriodSamples int     `toml:"min_period_samples"`
	// FinancingRates 为货币对→年化融资利率；未命中时回落到 FinancingDefaultRate。
	FinancingRates       map[string]float64 `toml:"financing_rates"`
	FinancingDefaultRate float64            `toml:"financing_default_rate"`
}

// IngestConfig 控制行情增量更新任务。
type IngestConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval string   `toml:"interval"` // "15m" / "1h" / "1d"
	Source   string   `toml:"source"`
	RESTBase string   `toml:"rest_base"`
	Symbols  []string `toml:"symbols"`
}

// StrategyConfig 指向策略模板预置文件。
type StrategyConfig struct {
	PresetsPath string `toml:"presets_path"`
	HotReload   bool   `toml:"hot_reload"`
}

type VisualConfig struct {
	Enabled bool `toml:"enabled"`
	WidthPx int  `toml:"width_px"`
}
