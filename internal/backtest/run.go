package backtest

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// Run 是一次回测任务的运行记录，结果明细挂在 snapshot/trade 表下。
type Run struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status"`
	StrategyType string `json:"strategy_type"`
	ParamsJSON   string `json:"params_json"`

	StartDate time.Time `json:"start_date,omitempty"`
	EndDate   time.Time `json:"end_date,omitempty"`

	InitialValue float64 `json:"initial_value"`
	FinalValue   float64 `json:"final_value"`
	ReturnRate   float64 `json:"return_rate"`

	Snapshots int `json:"snapshots"`
	Trades    int `json:"trades"`

	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// NewRun 构造一条待执行的运行记录。
func NewRun(name, description, strategyType, paramsJSON string, initialValue float64) Run {
	return Run{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  description,
		Status:       RunStatusPending,
		StrategyType: strategyType,
		ParamsJSON:   paramsJSON,
		InitialValue: initialValue,
	}
}
