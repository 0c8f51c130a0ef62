package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the outreach engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	SparkPost  SparkPostConfig  `yaml:"sparkpost"`
	Bedrock    BedrockConfig    `yaml:"bedrock"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Render     RenderConfig     `yaml:"render"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis connection used for the launch
// planning lock. When Addr is empty the engine falls back to PostgreSQL
// advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SparkPostConfig holds SparkPost transmissions API configuration.
type SparkPostConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	ReplyTo        string `yaml:"reply_to"`
}

// Timeout returns the configured timeout as a duration.
func (c SparkPostConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BedrockConfig holds AWS Bedrock settings for just-in-time content generation.
type BedrockConfig struct {
	ModelID        string `yaml:"model_id"`
	Region         string `yaml:"region"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxTokens      int    `yaml:"max_tokens"`
}

// Timeout returns the configured timeout as a duration.
func (c BedrockConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SchedulingConfig holds the planner knobs: working window, per-domain
// spacing, and jitter. IntervalMinutes is fractional (3.5 = 3m30s).
type SchedulingConfig struct {
	Timezone            string  `yaml:"timezone"`
	WorkingHourStart    int     `yaml:"working_hour_start"`
	WorkingHourEnd      int     `yaml:"working_hour_end"`
	IntervalMinutes     float64 `yaml:"interval_minutes"`
	JitterSecondsMax    int     `yaml:"jitter_seconds_max"`
	SkipWeekends        *bool   `yaml:"skip_weekends"`
	DisableWorkingHours bool    `yaml:"disable_working_hours"`
}

// Interval returns the per-domain spacing as a duration.
func (c SchedulingConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes * float64(time.Minute))
}

// JitterMax returns the jitter upper bound as a duration.
func (c SchedulingConfig) JitterMax() time.Duration {
	return time.Duration(c.JitterSecondsMax) * time.Second
}

// WeekendsSkipped reports whether Saturday/Sunday are excluded from the
// working window (default true).
func (c SchedulingConfig) WeekendsSkipped() bool {
	return c.SkipWeekends == nil || *c.SkipWeekends
}

// DispatcherConfig holds the send worker knobs.
type DispatcherConfig struct {
	PollIntervalSeconds     int `yaml:"poll_interval_seconds"`
	BatchSize               int `yaml:"batch_size"`
	CircuitBreakerThreshold int `yaml:"circuit_breaker_threshold"`
	StuckAfterMinutes       int `yaml:"stuck_after_minutes"`
}

// PollInterval returns the poll cadence as a duration.
func (c DispatcherConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// StuckAfter returns how long a processing row may sit before the sweep
// reclaims it.
func (c DispatcherConfig) StuckAfter() time.Duration {
	return time.Duration(c.StuckAfterMinutes) * time.Minute
}

// RenderConfig holds renderer settings: the dashboard base URL for
// unsubscribe links and the HMAC secret that signs them.
type RenderConfig struct {
	AppBaseURL        string `yaml:"app_base_url"`
	UnsubscribeSecret string `yaml:"unsubscribe_secret"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SparkPost.BaseURL == "" {
		cfg.SparkPost.BaseURL = "https://api.sparkpost.com/api/v1"
	}
	if cfg.SparkPost.TimeoutSeconds == 0 {
		cfg.SparkPost.TimeoutSeconds = 10
	}
	if cfg.Bedrock.ModelID == "" {
		cfg.Bedrock.ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-east-1"
	}
	if cfg.Bedrock.TimeoutSeconds == 0 {
		cfg.Bedrock.TimeoutSeconds = 30
	}
	if cfg.Bedrock.MaxTokens == 0 {
		cfg.Bedrock.MaxTokens = 1024
	}
	if cfg.Scheduling.Timezone == "" {
		cfg.Scheduling.Timezone = "America/Los_Angeles"
	}
	if cfg.Scheduling.WorkingHourStart == 0 {
		cfg.Scheduling.WorkingHourStart = 9
	}
	if cfg.Scheduling.WorkingHourEnd == 0 {
		cfg.Scheduling.WorkingHourEnd = 17
	}
	if cfg.Scheduling.IntervalMinutes == 0 {
		cfg.Scheduling.IntervalMinutes = 3.5
	}
	if cfg.Scheduling.JitterSecondsMax == 0 {
		cfg.Scheduling.JitterSecondsMax = 30
	}
	if cfg.Dispatcher.PollIntervalSeconds == 0 {
		cfg.Dispatcher.PollIntervalSeconds = 60
	}
	if cfg.Dispatcher.BatchSize == 0 {
		cfg.Dispatcher.BatchSize = 20
	}
	if cfg.Dispatcher.CircuitBreakerThreshold == 0 {
		cfg.Dispatcher.CircuitBreakerThreshold = 10
	}
	if cfg.Dispatcher.StuckAfterMinutes == 0 {
		cfg.Dispatcher.StuckAfterMinutes = 15
	}
	if cfg.Render.AppBaseURL == "" {
		cfg.Render.AppBaseURL = "http://localhost:3000"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) first, so secrets can live in .env
// locally and in real env vars on ECS. If path is empty or the file is
// missing, defaults plus env vars are used.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	var cfg *Config
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			cfg = &Config{}
			cfg.applyDefaults()
		} else {
			cfg = loaded
		}
	} else {
		cfg = &Config{}
		cfg.applyDefaults()
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SPARKPOST_API_KEY"); v != "" {
		cfg.SparkPost.APIKey = v
	}
	if v := os.Getenv("SPARKPOST_BASE_URL"); v != "" {
		cfg.SparkPost.BaseURL = v
	}
	if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" {
		cfg.Bedrock.ModelID = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Bedrock.Region = v
	}
	if v := os.Getenv("UNSUBSCRIBE_SECRET"); v != "" {
		cfg.Render.UnsubscribeSecret = v
	}
	if v := os.Getenv("APP_BASE_URL"); v != "" {
		cfg.Render.AppBaseURL = v
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		cfg.Scheduling.Timezone = v
	}
	if v := os.Getenv("WORKING_HOUR_START"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduling.WorkingHourStart = n
		}
	}
	if v := os.Getenv("WORKING_HOUR_END"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduling.WorkingHourEnd = n
		}
	}
	if v := os.Getenv("INTERVAL_MINUTES"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scheduling.IntervalMinutes = f
		}
	}
	if v := os.Getenv("JITTER_SECONDS_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduling.JitterSecondsMax = n
		}
	}
	if v := os.Getenv("DISABLE_WORKING_HOURS"); v != "" {
		cfg.Scheduling.DisableWorkingHours = v == "true" || v == "1"
	}

	return cfg, nil
}

// Validate checks that required settings are present. Missing values are a
// boot failure, never a silent degradation.
func (cfg *Config) Validate() error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SparkPost.APIKey == "" {
		return fmt.Errorf("SPARKPOST_API_KEY is required")
	}
	if cfg.Render.UnsubscribeSecret == "" {
		return fmt.Errorf("UNSUBSCRIBE_SECRET is required")
	}
	if cfg.Scheduling.WorkingHourStart >= cfg.Scheduling.WorkingHourEnd {
		return fmt.Errorf("working_hour_start (%d) must be before working_hour_end (%d)",
			cfg.Scheduling.WorkingHourStart, cfg.Scheduling.WorkingHourEnd)
	}
	return nil
}
