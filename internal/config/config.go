// Package config 加载运行配置：默认值 -> config.yaml（可选）-> .env -> SCREENER_* 环境变量。
// 告警阈值为固定常量，不在此处配置。
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix         = "SCREENER"
	envConfigPath     = "CONFIG_PATH"
	defaultConfigName = "config"
)

// 默认值
const (
	defaultUniverseFile = "small_caps.txt"
	defaultLogFile      = "stock_scanner.log"
	defaultListingsURL  = "https://raw.githubusercontent.com/datasets/nasdaq-listings/master/data/nasdaq-listed-symbols.csv"
	defaultQuoteURL     = "https://query1.finance.yahoo.com/v7/finance/quote"
	defaultChartURL     = "https://query1.finance.yahoo.com/v8/finance/chart"
	defaultTimezone     = "America/New_York"
	defaultRedisChannel = "screener:alerts"
)

type Config struct {
	UniverseFile  string `mapstructure:"universe_file"`
	LogFile       string `mapstructure:"log_file"`
	Debug         bool   `mapstructure:"debug"`
	BuildUniverse bool   `mapstructure:"build_universe"`

	API      API      `mapstructure:"api"`
	Builder  Builder  `mapstructure:"builder"`
	Schedule Schedule `mapstructure:"schedule"`
	Redis    Redis    `mapstructure:"redis"`
	SMTP     SMTP     `mapstructure:"smtp"`
}

type API struct {
	ListingsURL   string        `mapstructure:"listings_url"`
	QuoteURL      string        `mapstructure:"quote_url"`
	ChartURL      string        `mapstructure:"chart_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RequestGap    time.Duration `mapstructure:"request_gap"`
	JitterMS      int           `mapstructure:"jitter_ms"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	Attempts      int           `mapstructure:"attempts"`
}

type Builder struct {
	Workers       int `mapstructure:"workers"`
	ProgressEvery int `mapstructure:"progress_every"`
}

type Schedule struct {
	Interval   time.Duration `mapstructure:"interval"`
	ErrorPause time.Duration `mapstructure:"error_pause"`
	Timezone   string        `mapstructure:"timezone"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

func (r Redis) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("universe_file", defaultUniverseFile)
	v.SetDefault("log_file", defaultLogFile)
	v.SetDefault("debug", false)
	v.SetDefault("build_universe", false)

	v.SetDefault("api.listings_url", defaultListingsURL)
	v.SetDefault("api.quote_url", defaultQuoteURL)
	v.SetDefault("api.chart_url", defaultChartURL)
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.request_gap", 100*time.Millisecond)
	v.SetDefault("api.jitter_ms", 50)
	v.SetDefault("api.max_concurrent", 10)
	v.SetDefault("api.attempts", 1)

	v.SetDefault("builder.workers", 10)
	v.SetDefault("builder.progress_every", 500)

	v.SetDefault("schedule.interval", 300*time.Second)
	v.SetDefault("schedule.error_pause", 2*time.Second)
	v.SetDefault("schedule.timezone", defaultTimezone)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", defaultRedisChannel)

	v.SetDefault("smtp.smtp_server", "")
	v.SetDefault("smtp.smtp_port", 0)
	v.SetDefault("smtp.smtp_user", "")
	v.SetDefault("smtp.smtp_password", "")
	v.SetDefault("smtp.smtp_auth_code", "")
	v.SetDefault("smtp.smtp_from", "")
	v.SetDefault("smtp.smtp_to", "")
}

// Load 读取配置。config 文件不存在不算错误。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("config: 未找到 .env，仅使用系统环境变量")
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName(defaultConfigName)
	v.AddConfigPath(".")
	if p := strings.TrimSpace(os.Getenv(envConfigPath)); p != "" {
		v.SetConfigFile(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range smtpEnv {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.SMTP.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.UniverseFile) == "" {
		return errors.New("config: universe_file must not be empty")
	}
	if c.Schedule.Interval <= 0 {
		return fmt.Errorf("config: schedule.interval must be positive, got %s", c.Schedule.Interval)
	}
	if c.Builder.Workers <= 0 {
		return fmt.Errorf("config: builder.workers must be positive, got %d", c.Builder.Workers)
	}
	return nil
}
