package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config keeps runtime settings for the planner service.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	ServerPort  string `mapstructure:"SERVER_PORT"`

	DatabaseDSN string `mapstructure:"DATABASE_DSN"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// Scheduler settings. The evaluator runs every TickInterval; a notification
	// is considered due within ToleranceMinutes of its local trigger time.
	TickIntervalSeconds int `mapstructure:"TICK_INTERVAL_SECONDS"`
	ToleranceMinutes    int `mapstructure:"TOLERANCE_MINUTES"`
	DispatchWorkers     int `mapstructure:"DISPATCH_WORKERS"`
	// PatternCron is a 6-field cron spec for the nightly pattern batch.
	PatternCron string `mapstructure:"PATTERN_CRON"`

	LLMBaseURL        string `mapstructure:"LLM_BASE_URL"`
	LLMAPIKey         string `mapstructure:"LLM_API_KEY"`
	LLMModel          string `mapstructure:"LLM_MODEL"`
	LLMTimeoutSeconds int    `mapstructure:"LLM_TIMEOUT_SECONDS"`

	FirebaseCredentials string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     string `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	TelegramToken string `mapstructure:"TELEGRAM_TOKEN"`

	LogDir string `mapstructure:"LOG_DIR"`
}

// Load reads configuration from a .env file or environment variables.
// A missing file is fine; everything can come from the environment.
func Load(path string) (Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = "planwise.db"
	}
	if cfg.TickIntervalSeconds <= 0 {
		cfg.TickIntervalSeconds = 60
	}
	if cfg.ToleranceMinutes <= 0 {
		cfg.ToleranceMinutes = 5
	}
	if cfg.DispatchWorkers <= 0 {
		cfg.DispatchWorkers = 8
	}
	if cfg.PatternCron == "" {
		cfg.PatternCron = "0 0 3 * * *"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "deepseek/deepseek-v3"
	}
	if cfg.LLMTimeoutSeconds <= 0 {
		cfg.LLMTimeoutSeconds = 30
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}
}

// TickInterval returns the evaluator period as a duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// Tolerance returns the due-window half-width as a duration.
func (c Config) Tolerance() time.Duration {
	return time.Duration(c.ToleranceMinutes) * time.Minute
}

// LLMTimeout returns the provider call budget as a duration.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}
