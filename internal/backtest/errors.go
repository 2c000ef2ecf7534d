package backtest

import (
	"errors"
	"fmt"
)

// ConfigError 表示回测开始前即可判定的配置问题（权重、日期、缺数据源等）。
// 这类错误在任务启动前返回，不产生 Result。
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

func configErrorf(format string, v ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, v...)}
}

// IsConfigError 判断 err 是否为配置错误。
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
