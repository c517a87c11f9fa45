package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Bitunix   BitunixConfig   `mapstructure:"bitunix"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述行情交易所连接信息（仅用于拉取K线）。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	Market     string      `mapstructure:"market"`
	Timeframe  string      `mapstructure:"timeframe"`
	BarLimit   int         `mapstructure:"bar_limit"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// BitunixConfig 描述下单交易所的认证与合约参数。
type BitunixConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	SecretKey  string        `mapstructure:"secret_key"`
	Symbol     string        `mapstructure:"symbol"`
	MarginCoin string        `mapstructure:"margin_coin"`
	Locale     string        `mapstructure:"locale"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// StrategyConfig 控制通道突破策略参数。
type StrategyConfig struct {
	Lookback       int     `mapstructure:"lookback"`
	Leverage       int     `mapstructure:"leverage"`
	WalletFraction float64 `mapstructure:"wallet_fraction"`
}

// ExecutionConfig 控制下单行为。
type ExecutionConfig struct {
	Simulation   bool    `mapstructure:"simulation"`
	PaperBalance float64 `mapstructure:"paper_balance"`
}

// NotifyConfig 控制通知通道与批量发送节奏。
type NotifyConfig struct {
	WebhookURL    string        `mapstructure:"webhook_url"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Chart         bool          `mapstructure:"chart"`
	ChartWidth    int           `mapstructure:"chart_width"`
	ChartHeight   int           `mapstructure:"chart_height"`
}

// StatsConfig 控制胜负统计的持久化方式。
type StatsConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig 控制主循环节奏。
type SchedulerConfig struct {
	LoopInterval time.Duration `mapstructure:"loop_interval"`
}

// MonitorConfig 控制只读监控接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

const (
	StatsBackendJSON   = "json"
	StatsBackendSQLite = "sqlite"
)

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Market == "" {
		err = multierr.Append(err, errors.New("exchange.market 不能为空"))
	}
	if c.Exchange.Timeframe == "" {
		err = multierr.Append(err, errors.New("exchange.timeframe 不能为空"))
	}
	if c.Exchange.BarLimit <= c.Strategy.Lookback {
		err = multierr.Append(err, errors.New("exchange.bar_limit 必须大于 strategy.lookback"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Bitunix.BaseURL == "" {
		err = multierr.Append(err, errors.New("bitunix.base_url 不能为空"))
	}
	if !c.Execution.Simulation && (c.Bitunix.APIKey == "" || c.Bitunix.SecretKey == "") {
		err = multierr.Append(err, errors.New("实盘模式需要配置 bitunix.api_key 与 bitunix.secret_key"))
	}
	if c.Bitunix.Symbol == "" {
		err = multierr.Append(err, errors.New("bitunix.symbol 不能为空"))
	}
	if c.Bitunix.MarginCoin == "" {
		err = multierr.Append(err, errors.New("bitunix.margin_coin 不能为空"))
	}
	if c.Bitunix.Timeout < 0 {
		err = multierr.Append(err, errors.New("bitunix.timeout 不能为负"))
	}
	if c.Execution.Simulation && c.Execution.PaperBalance < 0 {
		err = multierr.Append(err, errors.New("execution.paper_balance 不能为负"))
	}
	if c.Strategy.Lookback < 1 {
		err = multierr.Append(err, errors.New("strategy.lookback 必须大于0"))
	}
	if c.Strategy.Leverage < 1 {
		err = multierr.Append(err, errors.New("strategy.leverage 必须大于0"))
	}
	if c.Strategy.WalletFraction <= 0 || c.Strategy.WalletFraction > 1 {
		err = multierr.Append(err, errors.New("strategy.wallet_fraction 必须位于(0,1]"))
	}
	if c.Notify.FlushInterval <= 0 {
		err = multierr.Append(err, errors.New("notify.flush_interval 必须大于0"))
	}
	if c.Notify.Chart && (c.Notify.ChartWidth < 200 || c.Notify.ChartHeight < 100) {
		err = multierr.Append(err, errors.New("notify.chart_width/chart_height 过小"))
	}
	switch strings.ToLower(c.Stats.Backend) {
	case StatsBackendJSON:
		if c.Stats.Path == "" {
			err = multierr.Append(err, errors.New("stats.path 不能为空"))
		}
	case StatsBackendSQLite:
	default:
		err = multierr.Append(err, fmt.Errorf("stats.backend 不支持 %q", c.Stats.Backend))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Scheduler.LoopInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.loop_interval 必须大于0"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 无效"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
