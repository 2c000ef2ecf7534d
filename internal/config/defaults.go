package config

// 默认值常量
const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppHTTPAddr      = ":9991"
	defaultAppLogPath       = "data/logs/baofu.log"
	defaultMarketDB         = "data/db/market.db"
	defaultResultsDir       = "data/backtest"
	defaultInitialCash      = 1_000_000.0
	defaultRebalanceDays    = 5
	defaultMinPeriodSamples = 7
	defaultFinancingRate    = 0.05
	defaultIngestInterval   = "1d"
	defaultIngestSource     = "binance"
	defaultIngestREST       = "https://api.binance.com"
	defaultPresetsPath      = "configs/strategies.yaml"
	defaultVisualWidthPx    = 1600
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Store.applyDefaults()
	c.Backtest.applyDefaults()
	c.Ingest.applyDefaults()
	c.Strategy.applyDefaults()
	c.Visual.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if a.Env == "" {
		a.Env = defaultAppEnv
	}
	if a.LogLevel == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if a.HTTPAddr == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
	if a.LogPath == "" {
		a.LogPath = defaultAppLogPath
	}
}

func (s *StoreConfig) applyDefaults() {
	if s.MarketDB == "" {
		s.MarketDB = defaultMarketDB
	}
	if s.ResultsDir == "" {
		s.ResultsDir = defaultResultsDir
	}
}

func (b *BacktestConfig) applyDefaults() {
	if b.InitialCash <= 0 {
		b.InitialCash = defaultInitialCash
	}
	if b.RebalanceDays <= 0 {
		b.RebalanceDays = defaultRebalanceDays
	}
	if b.MinPeriodSamples <= 0 {
		b.MinPeriodSamples = defaultMinPeriodSamples
	}
	if b.FinancingDefaultRate <= 0 {
		b.FinancingDefaultRate = defaultFinancingRate
	}
	if b.FinancingRates == nil {
		b.FinancingRates = map[string]float64{
			"JPYCNH": 0.01843,
			"CHFCNH": 0.01567,
		}
	}
}

func (i *IngestConfig) applyDefaults() {
	if i.Interval == "" {
		i.Interval = defaultIngestInterval
	}
	if i.Source == "" {
		i.Source = defaultIngestSource
	}
	if i.RESTBase == "" {
		i.RESTBase = defaultIngestREST
	}
}

func (s *StrategyConfig) applyDefaults() {
	if s.PresetsPath == "" {
		s.PresetsPath = defaultPresetsPath
	}
}

func (v *VisualConfig) applyDefaults() {
	if v.WidthPx <= 0 {
		v.WidthPx = defaultVisualWidthPx
	}
}

// FinancingRate 返回某货币对的年化融资利率，未配置时使用缺省利率。
func (b BacktestConfig) FinancingRate(pair string) float64 {
	if rate, ok := b.FinancingRates[pair]; ok && rate > 0 {
		return rate
	}
	return b.FinancingDefaultRate
}
