package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Portal    PortalConfig    `mapstructure:"portal"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Detection DetectionConfig `mapstructure:"detection"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PortalConfig holds configuration for the message portal API
type PortalConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	PageSize int           `mapstructure:"page_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AnthropicConfig holds configuration for the AI reviewer API
type AnthropicConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// JobsConfig holds scheduling configuration for the background jobs
type JobsConfig struct {
	ScanIntervalMinutes int `mapstructure:"scan_interval_minutes"`
	NightlyHour         int `mapstructure:"nightly_hour"`
	NightlyMinute       int `mapstructure:"nightly_minute"`
}

// ScanInterval returns the periodic scan interval as a duration
func (c JobsConfig) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalMinutes) * time.Minute
}

// NightlyCronSpec returns the cron expression for the nightly summary job
func (c JobsConfig) NightlyCronSpec() string {
	return fmt.Sprintf("%d %d * * *", c.NightlyMinute, c.NightlyHour)
}

// DetectionConfig holds the tuning surface of the detection pipeline
type DetectionConfig struct {
	RuleWeight         float64          `mapstructure:"rule_weight"`
	BehavioralWeight   float64          `mapstructure:"behavioral_weight"`
	Thresholds         ThresholdsConfig `mapstructure:"thresholds"`
	MaxAIReviewsPerRun int              `mapstructure:"max_ai_reviews_per_run"`
	MaxAIReviewsPerDay int              `mapstructure:"max_ai_reviews_per_day"`
}

// ThresholdsConfig maps risk score fractions to risk levels
type ThresholdsConfig struct {
	Critical float64 `mapstructure:"critical"`
	High     float64 `mapstructure:"high"`
	Medium   float64 `mapstructure:"medium"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/scamwatch")
	}

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("SCAMWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind nested env vars explicitly (viper doesn't auto-bind nested struct fields)
	v.BindEnv("database.host", "SCAMWATCH_DATABASE_HOST")
	v.BindEnv("database.port", "SCAMWATCH_DATABASE_PORT")
	v.BindEnv("database.user", "SCAMWATCH_DATABASE_USER")
	v.BindEnv("database.password", "SCAMWATCH_DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "SCAMWATCH_DATABASE_DBNAME")
	v.BindEnv("database.sslmode", "SCAMWATCH_DATABASE_SSLMODE")
	v.BindEnv("redis.host", "SCAMWATCH_REDIS_HOST")
	v.BindEnv("redis.port", "SCAMWATCH_REDIS_PORT")
	v.BindEnv("redis.password", "SCAMWATCH_REDIS_PASSWORD")
	v.BindEnv("portal.base_url", "SCAMWATCH_PORTAL_BASE_URL")
	v.BindEnv("portal.api_key", "SCAMWATCH_PORTAL_API_KEY")
	v.BindEnv("anthropic.api_key", "SCAMWATCH_ANTHROPIC_API_KEY")
	v.BindEnv("app.environment", "SCAMWATCH_APP_ENVIRONMENT")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDefault loads configuration with default path
func LoadDefault() (*Config, error) {
	return Load("")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "scamwatch")
	v.SetDefault("app.environment", "development")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "scamwatch")
	v.SetDefault("database.dbname", "scamwatch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("portal.page_size", 100)
	v.SetDefault("portal.timeout", 30*time.Second)
	v.SetDefault("anthropic.model", "claude-haiku-20250306")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.timeout", 60*time.Second)
	v.SetDefault("jobs.scan_interval_minutes", 15)
	v.SetDefault("jobs.nightly_hour", 2)
	v.SetDefault("jobs.nightly_minute", 0)
	v.SetDefault("detection.rule_weight", 60)
	v.SetDefault("detection.behavioral_weight", 40)
	v.SetDefault("detection.thresholds.critical", 0.9)
	v.SetDefault("detection.thresholds.high", 0.7)
	v.SetDefault("detection.thresholds.medium", 0.4)
	v.SetDefault("detection.max_ai_reviews_per_run", 100)
	v.SetDefault("detection.max_ai_reviews_per_day", 20)
}

// Validate checks configuration invariants. A violation here is fatal:
// the process must refuse to start rather than run with a broken policy.
func (c *Config) Validate() error {
	t := c.Detection.Thresholds
	for name, val := range map[string]float64{
		"critical": t.Critical,
		"high":     t.High,
		"medium":   t.Medium,
	} {
		if val < 0 || val > 1 {
			return fmt.Errorf("detection.thresholds.%s must be in [0,1], got %v", name, val)
		}
	}
	if t.Critical < t.High || t.High < t.Medium {
		return fmt.Errorf("detection thresholds must be ordered critical >= high >= medium, got %v/%v/%v",
			t.Critical, t.High, t.Medium)
	}
	if c.Detection.RuleWeight < 0 || c.Detection.BehavioralWeight < 0 {
		return fmt.Errorf("detection weights must be non-negative")
	}
	if c.Detection.MaxAIReviewsPerRun < 0 || c.Detection.MaxAIReviewsPerDay < 0 {
		return fmt.Errorf("AI review limits must be non-negative")
	}
	if c.Jobs.ScanIntervalMinutes <= 0 {
		return fmt.Errorf("jobs.scan_interval_minutes must be positive, got %d", c.Jobs.ScanIntervalMinutes)
	}
	if c.Jobs.NightlyHour < 0 || c.Jobs.NightlyHour > 23 {
		return fmt.Errorf("jobs.nightly_hour must be in [0,23], got %d", c.Jobs.NightlyHour)
	}
	if c.Jobs.NightlyMinute < 0 || c.Jobs.NightlyMinute > 59 {
		return fmt.Errorf("jobs.nightly_minute must be in [0,59], got %d", c.Jobs.NightlyMinute)
	}
	return nil
}
