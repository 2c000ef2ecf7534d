package backtest

import (
	"context"
	"fmt"
	"strings"

	"baofu/internal/logger"
)

// RunRequest 是一次回测任务的入参，Params 为策略 JSON 文本。
type RunRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      string  `json:"params"`
	InitialCash float64 `json:"initial_cash"`
}

type RunnerConfig struct {
	Task          *Task
	Results       *ResultStore
	MaxConcurrent int
}

// Runner 接收回测请求，后台串行（或有限并发）执行并把结果落盘。
type Runner struct {
	task    *Task
	results *ResultStore

	sem     chan struct{}
	baseCtx context.Context
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Task == nil {
		return nil, fmt.Errorf("task 不能为空")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("result store 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Runner{
		task:    cfg.Task,
		results: cfg.Results,
		sem:     make(chan struct{}, maxConcurrent),
		baseCtx: context.Background(),
	}, nil
}

func (r *Runner) SetContext(ctx context.Context) {
	if ctx != nil {
		r.baseCtx = ctx
	}
}

func (r *Runner) ctx() context.Context {
	if r.baseCtx != nil {
		return r.baseCtx
	}
	return context.Background()
}

// Results 暴露结果库，供查询接口复用。
func (r *Runner) Results() *ResultStore { return r.results }

// StartRun 校验参数、创建 run 记录并立即返回，回测在后台执行。
// 参数问题以 ConfigError 返回，不产生 run 记录。
func (r *Runner) StartRun(req RunRequest) (Run, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Run{}, configErrorf("回测名称不能为空")
	}
	params, err := ParseStrategyParams(req.Params)
	if err != nil {
		return Run{}, err
	}
	initialCash := req.InitialCash
	if initialCash <= 0 {
		initialCash = r.task.cfg.InitialCash
	}
	if initialCash <= 0 {
		initialCash = defaultInitialCash
	}

	run := NewRun(name, strings.TrimSpace(req.Description), params.Type, req.Params, initialCash)
	run.FinalValue = initialCash
	if err := r.results.InsertRun(r.ctx(), run); err != nil {
		return Run{}, err
	}
	go r.runLoop(run.ID, name, params, initialCash)
	return run, nil
}

func (r *Runner) runLoop(runID, name string, params StrategyParams, initialCash float64) {
	select {
	case r.sem <- struct{}{}:
	default:
		logger.Warnf("[backtest] run %s 等待可用 worker", runID)
		r.sem <- struct{}{}
	}
	defer func() { <-r.sem }()

	ctx := r.ctx()
	_ = r.results.UpdateRunStatus(ctx, runID, RunStatusRunning, "加载行情数据…")
	result, err := r.task.Run(ctx, name, params, initialCash)
	if err != nil {
		logger.Warnf("[backtest] run %s 失败: %v", runID, err)
		_ = r.results.UpdateRunStatus(ctx, runID, RunStatusFailed, err.Error())
		return
	}
	if err := r.results.SaveResult(ctx, runID, result); err != nil {
		logger.Errorf("[backtest] run %s 落盘失败: %v", runID, err)
		_ = r.results.UpdateRunStatus(ctx, runID, RunStatusFailed, err.Error())
	}
}
