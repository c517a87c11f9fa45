package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "trader"
)

// Load 读取配置文件并结合环境变量返回 Config。
// 若当前目录存在 .env，会先载入其中的变量（常用于存放 API 密钥）。
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 密钥通常只出现在环境变量中，未设置默认值的键不会被 AutomaticEnv 带入 Unmarshal，需要显式绑定。
	for _, key := range []string{"bitunix.api_key", "bitunix.secret_key", "notify.webhook_url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "production")

	v.SetDefault("exchange.name", "binanceusdm")
	v.SetDefault("exchange.market", "ETH/USDT:USDT")
	v.SetDefault("exchange.timeframe", "1h")
	v.SetDefault("exchange.bar_limit", 100)
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 3)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("bitunix.base_url", "https://fapi.bitunix.com")
	v.SetDefault("bitunix.symbol", "ETHUSDT")
	v.SetDefault("bitunix.margin_coin", "USDT")
	v.SetDefault("bitunix.locale", "en-US")
	v.SetDefault("bitunix.timeout", "15s")

	v.SetDefault("strategy.lookback", 18)
	v.SetDefault("strategy.leverage", 20)
	v.SetDefault("strategy.wallet_fraction", 0.25)

	v.SetDefault("execution.simulation", false)
	v.SetDefault("execution.paper_balance", 1000.0)

	v.SetDefault("notify.flush_interval", "180s")
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.chart", true)
	v.SetDefault("notify.chart_width", 1280)
	v.SetDefault("notify.chart_height", 640)

	v.SetDefault("stats.backend", StatsBackendJSON)
	v.SetDefault("stats.path", "stats.json")

	v.SetDefault("database.path", "data/channel_trader.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("scheduler.loop_interval", "60s")

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.port", 8088)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
