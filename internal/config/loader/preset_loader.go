package loader

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"baofu/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PresetDefinition 描述单个策略预置：品种、权重与扩展挂载。
type PresetDefinition struct {
	Name        string             `mapstructure:"-"`
	Type        string             `mapstructure:"type"` // buy_and_hold / forex_rebalance
	Description string             `mapstructure:"description"`
	Products    []ProductBinding   `mapstructure:"products"`
	InitialCash float64            `mapstructure:"initial_cash"`
	StartDate   string             `mapstructure:"start_date"`
	EndDate     string             `mapstructure:"end_date"`
	// DividendMethod 分红处理方式：cash 落袋，reinvest 再投资。
	DividendMethod string            `mapstructure:"dividend_method"`
	RebalanceDays  int               `mapstructure:"rebalance_days"`
	Extensions     []ExtensionConfig `mapstructure:"extensions"`
	Default        bool              `mapstructure:"default"`

	// 归一化后的字段（避免运行期重复处理）
	typeLower    string
	symbolsUpper []string
}

// ProductBinding 将一个标的绑定到目标权重。
type ProductBinding struct {
	Symbol string  `mapstructure:"symbol"`
	Weight float64 `mapstructure:"weight"`
}

// ExtensionConfig 为单个策略扩展节点的配置。
type ExtensionConfig struct {
	Name   string                 `mapstructure:"name"` // financing / current_rate
	Params map[string]interface{} `mapstructure:"params"`
}

// FileConfig 是完整的策略预置文件结构。
type FileConfig struct {
	Presets map[string]PresetDefinition `mapstructure:"presets"`
}

// PresetSnapshot 对外暴露的只读快照。
type PresetSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Presets  map[string]PresetDefinition
}

// ChangeListener 在预置变更时被调用。
type ChangeListener func(PresetSnapshot)

// PresetLoader 负责从 YAML 文件中加载策略预置，并监听热更新。
type PresetLoader struct {
	path  string
	v     *viper.Viper
	watch bool

	mu        sync.RWMutex
	snapshot  PresetSnapshot
	listeners []ChangeListener
}

// NewPresetLoader 读取预置文件；watch 为 true 时开始监听 FS 事件。
func NewPresetLoader(path string, watch bool) (*PresetLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("preset loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read preset config failed: %w", err)
	}
	loader := &PresetLoader{path: path, v: v, watch: watch}
	if err := loader.reload(); err != nil {
		return nil, err
	}
	if watch {
		v.OnConfigChange(func(evt fsnotify.Event) {
			if err := loader.reload(); err != nil {
				logger.Errorf("preset reload failed (%s): %v", evt.Name, err)
				return
			}
			loader.notify()
		})
		v.WatchConfig()
	}
	return loader, nil
}

// Snapshot 返回当前预置快照（深拷贝）。
func (l *PresetLoader) Snapshot() PresetSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.snapshot)
}

// Preset 按名称取出一个预置。
func (l *PresetLoader) Preset(name string) (PresetDefinition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	def, ok := l.snapshot.Presets[name]
	return def, ok
}

// Subscribe 注册监听器，并立即收到一次完整快照。
func (l *PresetLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := cloneSnapshot(l.snapshot)
	l.mu.Unlock()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("preset listener panic: %v", r)
			}
		}()
		fn(snap)
	}()
}

func (l *PresetLoader) notify() {
	l.mu.RLock()
	snap := cloneSnapshot(l.snapshot)
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("preset listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (l *PresetLoader) reload() error {
	var fileCfg FileConfig
	if err := l.v.Unmarshal(&fileCfg); err != nil {
		return fmt.Errorf("parse preset config failed: %w", err)
	}
	normalized := make(map[string]PresetDefinition)
	for name, def := range fileCfg.Presets {
		normalized[name] = normalizePresetDefinition(name, def)
	}
	l.mu.Lock()
	l.snapshot = PresetSnapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Presets:  normalized,
	}
	l.mu.Unlock()
	logger.Infof("Preset loader reloaded %d presets from %s", len(normalized), filepath.Base(l.path))
	return nil
}

func normalizePresetDefinition(name string, def PresetDefinition) PresetDefinition {
	def.Name = name
	def.typeLower = strings.ToLower(strings.TrimSpace(def.Type))
	if def.typeLower == "" {
		def.typeLower = "buy_and_hold"
	}
	def.DividendMethod = strings.ToLower(strings.TrimSpace(def.DividendMethod))
	if def.DividendMethod == "" {
		def.DividendMethod = "cash"
	}
	def.symbolsUpper = normalizeSymbols(def.Products)
	for i := range def.Extensions {
		def.Extensions[i].Name = strings.ToLower(strings.TrimSpace(def.Extensions[i].Name))
		def.Extensions[i].Params = cloneParams(def.Extensions[i].Params)
	}
	return def
}

func normalizeSymbols(in []ProductBinding) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		s := strings.ToUpper(strings.TrimSpace(p.Symbol))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func cloneParams(src map[string]interface{}) map[string]interface{} {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// TypeLower 返回标准化后的策略类型。
func (p PresetDefinition) TypeLower() string {
	return p.typeLower
}

// SymbolsUpper 返回标准化后的标的列表。
func (p PresetDefinition) SymbolsUpper() []string {
	out := make([]string, len(p.symbolsUpper))
	copy(out, p.symbolsUpper)
	return out
}

// WeightSum 返回全部目标权重之和，用于提交前的快速校验。
func (p PresetDefinition) WeightSum() float64 {
	var sum float64
	for _, prod := range p.Products {
		sum += prod.Weight
	}
	return sum
}

func cloneSnapshot(src PresetSnapshot) PresetSnapshot {
	dst := PresetSnapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Presets:  make(map[string]PresetDefinition, len(src.Presets)),
	}
	for name, def := range src.Presets {
		dst.Presets[name] = def
	}
	return dst
}
