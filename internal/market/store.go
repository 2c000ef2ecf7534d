package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Store 基于 Gorm + SQLite 保存行情、利率与策略模板。
type Store struct {
	db *gorm.DB
}

// NewStore 打开（或创建）行情库并完成建表。
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("market store: 行情库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&pricePointModel{},
		&bondRateModel{},
		&strategyTemplateModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB 暴露底层 *sql.DB 以便连接复用。
func (s *Store) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("market store 未初始化")
	}
	return s.db.DB()
}

// --------------------- 行情 -------------------------

// UpsertPrices 批量写入行情点，(symbol, date) 冲突时覆盖。
func (s *Store) UpsertPrices(ctx context.Context, points []PricePoint) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("market store 未初始化")
	}
	if len(points) == 0 {
		return nil
	}
	models := make([]pricePointModel, 0, len(points))
	for _, p := range points {
		sym := strings.ToUpper(strings.TrimSpace(p.Symbol))
		if sym == "" {
			return fmt.Errorf("market store: 行情点缺少 symbol")
		}
		models = append(models, pricePointModel{
			Symbol:   sym,
			Date:     Day(p.Date).Format(DateLayout),
			Open:     p.Open,
			High:     p.High,
			Low:      p.Low,
			Close:    p.Close,
			Volume:   p.Volume,
			Dividend: p.Dividend,
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"open", "high", "low", "close", "volume", "dividend",
			}),
		}).
		CreateInBatches(&models, 500).Error
}

// GetSeries 读取某标的在 [start, end] 内的行情，按日期升序。零值时间表示不限。
func (s *Store) GetSeries(ctx context.Context, symbol string, start, end time.Time) (Series, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("market store 未初始化")
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return nil, fmt.Errorf("symbol 必填")
	}
	query := s.db.WithContext(ctx).Where("symbol = ?", sym)
	if !start.IsZero() {
		query = query.Where("date >= ?", Day(start).Format(DateLayout))
	}
	if !end.IsZero() {
		query = query.Where("date <= ?", Day(end).Format(DateLayout))
	}
	var models []pricePointModel
	if err := query.Order("date ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make(Series, 0, len(models))
	for _, m := range models {
		p, err := pricePointModelToPoint(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// LatestDate 返回某标的最新行情日，不存在时 ok 为 false。
func (s *Store) LatestDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, fmt.Errorf("market store 未初始化")
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	var m pricePointModel
	err := s.db.WithContext(ctx).
		Where("symbol = ?", sym).
		Order("date DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	day, err := ParseDay(m.Date)
	if err != nil {
		return time.Time{}, false, err
	}
	return day, true, nil
}

// DeleteRange 删除某标的在 [start, end] 内的行情。
func (s *Store) DeleteRange(ctx context.Context, symbol string, start, end time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("market store 未初始化")
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	query := s.db.WithContext(ctx).Where("symbol = ?", sym)
	if !start.IsZero() {
		query = query.Where("date >= ?", Day(start).Format(DateLayout))
	}
	if !end.IsZero() {
		query = query.Where("date <= ?", Day(end).Format(DateLayout))
	}
	return query.Delete(&pricePointModel{}).Error
}

// Symbols 返回库内全部标的。
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("market store 未初始化")
	}
	var out []string
	err := s.db.WithContext(ctx).Model(&pricePointModel{}).
		Distinct("symbol").Order("symbol ASC").Pluck("symbol", &out).Error
	return out, err
}

// --------------------- 利率 -------------------------

// UpsertBondRates 批量写入利率，(currency, date) 冲突时覆盖。
func (s *Store) UpsertBondRates(ctx context.Context, rates []BondRate) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("market store 未初始化")
	}
	if len(rates) == 0 {
		return nil
	}
	models := make([]bondRateModel, 0, len(rates))
	for _, r := range rates {
		cur := strings.ToUpper(strings.TrimSpace(r.Currency))
		if cur == "" {
			return fmt.Errorf("market store: 利率记录缺少 currency")
		}
		models = append(models, bondRateModel{
			Currency: cur,
			Date:     Day(r.Date).Format(DateLayout),
			Rate:     r.Rate,
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "currency"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"rate"}),
		}).
		CreateInBatches(&models, 500).Error
}

// GetBondRates 读取某货币在 [start, end] 内的利率，按日期升序。
func (s *Store) GetBondRates(ctx context.Context, currency string, start, end time.Time) ([]BondRate, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("market store 未初始化")
	}
	cur := strings.ToUpper(strings.TrimSpace(currency))
	query := s.db.WithContext(ctx).Where("currency = ?", cur)
	if !start.IsZero() {
		query = query.Where("date >= ?", Day(start).Format(DateLayout))
	}
	if !end.IsZero() {
		query = query.Where("date <= ?", Day(end).Format(DateLayout))
	}
	var models []bondRateModel
	if err := query.Order("date ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]BondRate, 0, len(models))
	for _, m := range models {
		day, err := ParseDay(m.Date)
		if err != nil {
			return nil, err
		}
		out = append(out, BondRate{Currency: m.Currency, Date: day, Rate: m.Rate})
	}
	return out, nil
}

// --------------------- 策略模板 -------------------------

// StrategyTemplate 是一条可复用的回测策略配置，Params 为策略 JSON。
type StrategyTemplate struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Params      string    `json:"params"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SaveTemplate 新建或更新模板；ID 为空时生成 uuid。
func (s *Store) SaveTemplate(ctx context.Context, tpl *StrategyTemplate) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("market store 未初始化")
	}
	if tpl == nil {
		return fmt.Errorf("template 必填")
	}
	tpl.Name = strings.TrimSpace(tpl.Name)
	if tpl.Name == "" {
		return fmt.Errorf("template.name 必填")
	}
	now := time.Now()
	if strings.TrimSpace(tpl.ID) == "" {
		tpl.ID = uuid.NewString()
		tpl.CreatedAt = now
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now
	params := strings.TrimSpace(tpl.Params)
	if params == "" {
		params = "{}"
	}
	model := strategyTemplateModel{
		ID:            tpl.ID,
		Name:          tpl.Name,
		Description:   strings.TrimSpace(tpl.Description),
		Params:        datatypes.JSON([]byte(params)),
		CreatedAtUnix: tpl.CreatedAt.UnixMilli(),
		UpdatedAtUnix: tpl.UpdatedAt.UnixMilli(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "params", "updated_at",
			}),
		}).
		Create(&model).Error
}

// GetTemplate 按 ID 取出模板，不存在时 ok 为 false。
func (s *Store) GetTemplate(ctx context.Context, id string) (StrategyTemplate, bool, error) {
	if s == nil || s.db == nil {
		return StrategyTemplate{}, false, fmt.Errorf("market store 未初始化")
	}
	var m strategyTemplateModel
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StrategyTemplate{}, false, nil
		}
		return StrategyTemplate{}, false, err
	}
	return templateModelToRecord(m), true, nil
}

// ListTemplates 按更新时间倒序列出模板。
func (s *Store) ListTemplates(ctx context.Context) ([]StrategyTemplate, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("market store 未初始化")
	}
	var models []strategyTemplateModel
	if err := s.db.WithContext(ctx).
		Order("updated_at DESC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]StrategyTemplate, 0, len(models))
	for _, m := range models {
		out = append(out, templateModelToRecord(m))
	}
	return out, nil
}

// DeleteTemplate 删除模板，不存在时返回 gorm.ErrRecordNotFound。
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("market store 未初始化")
	}
	res := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Delete(&strategyTemplateModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// --------------------------- Models ------------------------------

type pricePointModel struct {
	ID       int64   `gorm:"column:id;primaryKey"`
	Symbol   string  `gorm:"column:symbol;uniqueIndex:idx_symbol_date"`
	Date     string  `gorm:"column:date;uniqueIndex:idx_symbol_date"`
	Open     float64 `gorm:"column:open"`
	High     float64 `gorm:"column:high"`
	Low      float64 `gorm:"column:low"`
	Close    float64 `gorm:"column:close"`
	Volume   float64 `gorm:"column:volume"`
	Dividend float64 `gorm:"column:dividend"`
}

func (pricePointModel) TableName() string { return "price_points" }

type bondRateModel struct {
	ID       int64   `gorm:"column:id;primaryKey"`
	Currency string  `gorm:"column:currency;uniqueIndex:idx_currency_date"`
	Date     string  `gorm:"column:date;uniqueIndex:idx_currency_date"`
	Rate     float64 `gorm:"column:rate"`
}

func (bondRateModel) TableName() string { return "bond_rates" }

type strategyTemplateModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	Name          string         `gorm:"column:name;index"`
	Description   string         `gorm:"column:description"`
	Params        datatypes.JSON `gorm:"column:params"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (strategyTemplateModel) TableName() string { return "strategy_templates" }

func pricePointModelToPoint(m pricePointModel) (PricePoint, error) {
	day, err := ParseDay(m.Date)
	if err != nil {
		return PricePoint{}, fmt.Errorf("market store: 非法日期 %q: %w", m.Date, err)
	}
	return PricePoint{
		Symbol:   m.Symbol,
		Date:     day,
		Open:     m.Open,
		High:     m.High,
		Low:      m.Low,
		Close:    m.Close,
		Volume:   m.Volume,
		Dividend: m.Dividend,
	}, nil
}

func templateModelToRecord(m strategyTemplateModel) StrategyTemplate {
	params := "{}"
	if len(m.Params) > 0 {
		params = string(m.Params)
	}
	return StrategyTemplate{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Params:      params,
		CreatedAt:   time.UnixMilli(m.CreatedAtUnix),
		UpdatedAt:   time.UnixMilli(m.UpdatedAtUnix),
	}
}
