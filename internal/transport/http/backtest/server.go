package backtesthttp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"baofu/internal/backtest"
	"baofu/internal/config"
	"baofu/internal/config/loader"
	"baofu/internal/market"
	"baofu/internal/report"

	visual "baofu/internal/analysis/visual"

	"github.com/gin-gonic/gin"
)

// Server 提供回测相关的 HTTP API：模板管理、任务提交、结果与报告查询。
type Server struct {
	addr      string
	runner    *backtest.Runner
	store     *market.Store
	presets   *loader.PresetLoader
	cfg       config.BacktestConfig
	visualCfg config.VisualConfig
	router    *gin.Engine
}

// Config 描述回测 HTTP Server 的依赖。
type Config struct {
	Addr    string
	Runner  *backtest.Runner
	Store   *market.Store
	Presets *loader.PresetLoader
	Cfg     config.BacktestConfig
	Visual  config.VisualConfig
}

// NewServer 构建回测 HTTP Server。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, errors.New("runner 不能为空")
	}
	if cfg.Store == nil {
		return nil, errors.New("market store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:      cfg.Addr,
		runner:    cfg.Runner,
		store:     cfg.Store,
		presets:   cfg.Presets,
		cfg:       cfg.Cfg,
		visualCfg: cfg.Visual,
		router:    router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api/backtest")
	api.POST("/runs", s.handleRunStart)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.DELETE("/runs/:id", s.handleRunDelete)
	api.GET("/runs/:id/snapshots", s.handleRunSnapshots)
	api.GET("/runs/:id/trades", s.handleRunTrades)
	api.GET("/runs/:id/financing-trades", s.handleRunFinancingTrades)
	api.GET("/runs/:id/report", s.handleRunReport)
	api.GET("/runs/:id/chart.png", s.handleRunChart)

	tpl := s.router.Group("/api/templates")
	tpl.GET("", s.handleTemplateList)
	tpl.POST("", s.handleTemplateSave)
	tpl.GET("/:id", s.handleTemplateDetail)
	tpl.DELETE("/:id", s.handleTemplateDelete)
	tpl.POST("/:id/run", s.handleTemplateRun)

	mkt := s.router.Group("/api/market")
	mkt.GET("/symbols", s.handleSymbols)
	mkt.GET("/series", s.handleSeries)

	s.router.GET("/api/presets", s.handlePresets)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleRunStart(c *gin.Context) {
	var req backtest.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.runner.StartRun(req)
	if err != nil {
		status := http.StatusInternalServerError
		if backtest.IsConfigError(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *Server) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.runner.Results().ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	run, err := s.runner.Results().GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(runErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunDelete(c *gin.Context) {
	if err := s.runner.Results().DeleteRun(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(runErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (s *Server) handleRunSnapshots(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	snaps, err := s.runner.Results().ListSnapshots(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps})
}

func (s *Server) handleRunTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	trades, err := s.runner.Results().ListTrades(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleRunFinancingTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	trades, err := s.runner.Results().ListFinancingTrades(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// handleRunReport 组装完整报告：摘要、资金曲线与统计表。
// ma 参数为逗号分隔的均线窗口，drawdown=false 时不画回撤区域。
func (s *Server) handleRunReport(c *gin.Context) {
	ctx := c.Request.Context()
	run, snaps, trades, err := s.loadRunData(ctx, c.Param("id"))
	if err != nil {
		c.JSON(runErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	maPeriods, err := parseMAPeriods(c.DefaultQuery("ma", "20,60"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	withDrawdown := c.DefaultQuery("drawdown", "true") != "false"

	gen := report.NewGenerator(run, snaps, trades, s.cfg.MinPeriodSamples)
	c.JSON(http.StatusOK, gin.H{"report": gen.Build(maPeriods, withDrawdown)})
}

// handleRunChart 把资金曲线渲染为 PNG，需要 visual.enabled 且本机有 Chrome。
func (s *Server) handleRunChart(c *gin.Context) {
	if !s.visualCfg.Enabled {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "图表渲染未启用"})
		return
	}
	ctx := c.Request.Context()
	run, snaps, _, err := s.loadRunData(ctx, c.Param("id"))
	if err != nil {
		c.JSON(runErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	maPeriods, err := parseMAPeriods(c.DefaultQuery("ma", "20,60"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dates := make([]time.Time, len(snaps))
	totals := make([]float64, len(snaps))
	cash := make([]float64, len(snaps))
	for i, snap := range snaps {
		dates[i] = snap.Date
		totals[i] = snap.Total
		cash[i] = snap.Cash
	}
	img, err := visual.RenderEquity(visual.EquityInput{
		Context:      ctx,
		Title:        run.Name,
		Dates:        dates,
		Totals:       totals,
		Cash:         cash,
		MAPeriods:    maPeriods,
		WithDrawdown: c.DefaultQuery("drawdown", "true") != "false",
		WidthPx:      s.visualCfg.WidthPx,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", img.Bytes)
}

func (s *Server) loadRunData(ctx context.Context, id string) (backtest.Run, []backtest.DailyAsset, []backtest.Trade, error) {
	results := s.runner.Results()
	run, err := results.GetRun(ctx, id)
	if err != nil {
		return backtest.Run{}, nil, nil, err
	}
	snaps, err := results.ListSnapshots(ctx, id, 0)
	if err != nil {
		return backtest.Run{}, nil, nil, err
	}
	trades, err := results.ListTrades(ctx, id, 0)
	if err != nil {
		return backtest.Run{}, nil, nil, err
	}
	return run, snaps, trades, nil
}

func (s *Server) handleTemplateList(c *gin.Context) {
	templates, err := s.store.ListTemplates(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

func (s *Server) handleTemplateSave(c *gin.Context) {
	var req struct {
		ID          string `json:"id"`
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		Params      string `json:"params" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// 入库前校验策略 JSON，坏参数不落库。
	if _, err := backtest.ParseStrategyParams(req.Params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tpl := market.StrategyTemplate{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Params:      req.Params,
	}
	if err := s.store.SaveTemplate(c.Request.Context(), &tpl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": tpl})
}

func (s *Server) handleTemplateDetail(c *gin.Context) {
	tpl, ok, err := s.store.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": tpl})
}

// handleTemplateRun 以模板为底提交回测：
// 先把 <open_date> 一类占位符替换为请求给定的值，再走正常提交流程。
func (s *Server) handleTemplateRun(c *gin.Context) {
	var req struct {
		Name        string            `json:"name"`
		Description string            `json:"description"`
		Values      map[string]string `json:"values"`
		InitialCash float64           `json:"initial_cash"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tpl, ok, err := s.store.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = tpl.Name
	}
	description := req.Description
	if description == "" {
		description = tpl.Description
	}
	run, err := s.runner.StartRun(backtest.RunRequest{
		Name:        name,
		Description: description,
		Params:      backtest.SubstitutePlaceholders(tpl.Params, req.Values),
		InitialCash: req.InitialCash,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if backtest.IsConfigError(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *Server) handleTemplateDelete(c *gin.Context) {
	if err := s.store.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (s *Server) handleSymbols(c *gin.Context) {
	symbols, err := s.store.Symbols(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": symbols})
}

func (s *Server) handleSeries(c *gin.Context) {
	symbol := strings.TrimSpace(c.Query("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	start, err := parseDayQuery(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	end, err := parseDayQuery(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	series, err := s.store.GetSeries(c.Request.Context(), symbol, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": series})
}

func (s *Server) handlePresets(c *gin.Context) {
	if s.presets == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "预置未启用"})
		return
	}
	snapshot := s.presets.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"version":   snapshot.Version,
		"loaded_at": snapshot.LoadedAt,
		"presets":   snapshot.Presets,
	})
}

func runErrStatus(err error) int {
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func parseMAPeriods(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "none" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("均线窗口非法: %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseDayQuery(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	day, err := market.ParseDay(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("日期格式应为 2006-01-02: %q", raw)
	}
	return day, nil
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler 暴露底层路由，便于测试。
func (s *Server) Handler() http.Handler { return s.router }
