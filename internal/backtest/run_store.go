package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ResultStore 管理 backtest_runs/snapshots/trades/financing_trades 表。
type ResultStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewResultStore(root string) (*ResultStore, error) {
	if root == "" {
		return nil, fmt.Errorf("result store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureResultSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &ResultStore{db: db, path: path}, nil
}

func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureResultSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL,
			strategy_type TEXT NOT NULL,
			params_json TEXT NOT NULL,
			start_ts INTEGER,
			end_ts INTEGER,
			initial_value REAL NOT NULL,
			final_value REAL NOT NULL DEFAULT 0,
			return_rate REAL NOT NULL DEFAULT 0,
			snapshots INTEGER NOT NULL DEFAULT 0,
			trades INTEGER NOT NULL DEFAULT 0,
			message TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			cash REAL NOT NULL,
			asset REAL NOT NULL,
			total REAL NOT NULL,
			products_json TEXT,
			financing_value REAL,
			financing_interest REAL,
			interest_json TEXT,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			trade_id INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			product TEXT NOT NULL,
			action TEXT NOT NULL,
			size REAL NOT NULL,
			price REAL NOT NULL,
			value REAL NOT NULL,
			status TEXT NOT NULL,
			message TEXT,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_financing_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			trade_id INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			product TEXT NOT NULL,
			type TEXT NOT NULL,
			amount REAL NOT NULL,
			shares REAL NOT NULL,
			price REAL NOT NULL,
			rate REAL,
			status TEXT NOT NULL,
			message TEXT,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_run ON backtest_snapshots(run_id, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON backtest_trades(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_fin_trades_run ON backtest_financing_trades(run_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun 写入一条 run 记录。
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs
			(id, name, description, status, strategy_type, params_json, start_ts, end_ts,
			initial_value, final_value, return_rate, snapshots, trades, message,
			created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Description, run.Status, run.StrategyType, run.ParamsJSON,
		nullableTime(run.StartDate), nullableTime(run.EndDate),
		run.InitialValue, run.FinalValue, run.ReturnRate, run.Snapshots, run.Trades,
		run.Message, now, now, nullableTime(run.CompletedAt))
	return err
}

// UpdateRunStatus 仅更新状态与提示。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	now := time.Now().UnixMilli()
	var completed interface{}
	if status == RunStatusDone || status == RunStatusFailed {
		completed = now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE backtest_runs
		SET status=?, message=?, updated_at=?, completed_at=CASE WHEN ? IS NULL THEN completed_at ELSE ? END
		WHERE id=?`, status, message, now, completed, completed, id)
	return err
}

// SaveResult 把一次回测产出落盘：更新 run 汇总并批量写入明细。
func (s *ResultStore) SaveResult(ctx context.Context, runID string, result *Result) error {
	if result == nil {
		return fmt.Errorf("result 不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status := RunStatusDone
	if !result.IsSuccess {
		status = RunStatusFailed
	}
	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		UPDATE backtest_runs
		SET status=?, start_ts=?, end_ts=?, final_value=?, return_rate=?,
		    snapshots=?, trades=?, message=?, updated_at=?, completed_at=?
		WHERE id=?`,
		status, nullableTime(result.StartDate), nullableTime(result.EndDate),
		result.FinalValue, result.ReturnRate,
		len(result.DailyAssets), len(result.Trades), result.Error, now, now, runID); err != nil {
		return err
	}

	for _, snap := range result.DailyAssets {
		var productsJSON []byte
		if len(snap.Products) > 0 {
			if productsJSON, err = json.Marshal(snap.Products); err != nil {
				return err
			}
		}
		var interestJSON []byte
		if len(snap.CurrencyInterest) > 0 {
			if interestJSON, err = json.Marshal(snap.CurrencyInterest); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_snapshots
				(run_id, ts, cash, asset, total, products_json, financing_value, financing_interest, interest_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, snap.Date.UnixMilli(), snap.Cash, snap.Asset, snap.Total,
			bytesOrNil(productsJSON), nullIfZero(snap.FinancingValue),
			nullIfZero(snap.FinancingInterest), bytesOrNil(interestJSON)); err != nil {
			return err
		}
	}

	for _, trade := range result.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_trades
				(run_id, trade_id, ts, product, action, size, price, value, status, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, trade.ID, trade.Date.UnixMilli(), trade.Product, trade.Action,
			trade.Size, trade.Price, trade.Value, trade.Status, trade.Message); err != nil {
			return err
		}
	}

	for _, trade := range result.FinancingTrades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_financing_trades
				(run_id, trade_id, ts, product, type, amount, shares, price, rate, status, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, trade.ID, trade.Date.UnixMilli(), trade.Product, trade.Type,
			trade.Amount, trade.Shares, trade.Price, nullIfZero(trade.Rate),
			trade.Status, trade.Message); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, status, strategy_type, params_json, start_ts, end_ts,
		       initial_value, final_value, return_rate, snapshots, trades, message,
		       created_at, updated_at, completed_at
		FROM backtest_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, run)
	}
	return list, rows.Err()
}

func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, status, strategy_type, params_json, start_ts, end_ts,
		       initial_value, final_value, return_rate, snapshots, trades, message,
		       created_at, updated_at, completed_at
		FROM backtest_runs WHERE id=?`, id)
	return scanRun(row)
}

// ListSnapshots 按时间升序取资金曲线。
func (s *ResultStore) ListSnapshots(ctx context.Context, runID string, limit int) ([]DailyAsset, error) {
	if limit <= 0 || limit > 5000 {
		limit = 2000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, cash, asset, total, products_json, financing_value, financing_interest, interest_json
		FROM backtest_snapshots
		WHERE run_id=?
		ORDER BY ts ASC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DailyAsset
	for rows.Next() {
		var snap DailyAsset
		var ts int64
		var productsStr, interestStr sql.NullString
		var finValue, finInterest sql.NullFloat64
		if err := rows.Scan(&ts, &snap.Cash, &snap.Asset, &snap.Total,
			&productsStr, &finValue, &finInterest, &interestStr); err != nil {
			return nil, err
		}
		snap.Date = timeFromMillis(ts)
		if productsStr.Valid && productsStr.String != "" {
			if err := json.Unmarshal([]byte(productsStr.String), &snap.Products); err != nil {
				return nil, err
			}
		}
		if finValue.Valid {
			snap.FinancingValue = finValue.Float64
		}
		if finInterest.Valid {
			snap.FinancingInterest = finInterest.Float64
		}
		if interestStr.Valid && interestStr.String != "" {
			if err := json.Unmarshal([]byte(interestStr.String), &snap.CurrencyInterest); err != nil {
				return nil, err
			}
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *ResultStore) ListTrades(ctx context.Context, runID string, limit int) ([]Trade, error) {
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, ts, product, action, size, price, value, status, message
		FROM backtest_trades
		WHERE run_id=?
		ORDER BY trade_id ASC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Trade
	for rows.Next() {
		var trade Trade
		var ts int64
		var message sql.NullString
		if err := rows.Scan(&trade.ID, &ts, &trade.Product, &trade.Action,
			&trade.Size, &trade.Price, &trade.Value, &trade.Status, &message); err != nil {
			return nil, err
		}
		trade.Date = timeFromMillis(ts)
		trade.Message = message.String
		out = append(out, trade)
	}
	return out, rows.Err()
}

func (s *ResultStore) ListFinancingTrades(ctx context.Context, runID string, limit int) ([]FinancingTrade, error) {
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, ts, product, type, amount, shares, price, rate, status, message
		FROM backtest_financing_trades
		WHERE run_id=?
		ORDER BY trade_id ASC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FinancingTrade
	for rows.Next() {
		var trade FinancingTrade
		var ts int64
		var rate sql.NullFloat64
		var message sql.NullString
		if err := rows.Scan(&trade.ID, &ts, &trade.Product, &trade.Type,
			&trade.Amount, &trade.Shares, &trade.Price, &rate, &trade.Status, &message); err != nil {
			return nil, err
		}
		trade.Date = timeFromMillis(ts)
		if rate.Valid {
			trade.Rate = rate.Float64
		}
		trade.Message = message.String
		out = append(out, trade)
	}
	return out, rows.Err()
}

// DeleteRun 删除 run 及级联明细。
func (s *ResultStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backtest_runs WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nullIfZero(v float64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func bytesOrNil(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var description, message sql.NullString
	var startTS, endTS, completedAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&run.ID, &run.Name, &description, &run.Status, &run.StrategyType,
		&run.ParamsJSON, &startTS, &endTS, &run.InitialValue, &run.FinalValue,
		&run.ReturnRate, &run.Snapshots, &run.Trades, &message,
		&createdAt, &updatedAt, &completedAt); err != nil {
		return Run{}, err
	}
	run.Description = description.String
	run.Message = message.String
	if startTS.Valid {
		run.StartDate = timeFromMillis(startTS.Int64)
	}
	if endTS.Valid {
		run.EndDate = timeFromMillis(endTS.Int64)
	}
	run.CreatedAt = timeFromMillis(createdAt)
	run.UpdatedAt = timeFromMillis(updatedAt)
	if completedAt.Valid {
		run.CompletedAt = timeFromMillis(completedAt.Int64)
	}
	return run, nil
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond))
}
