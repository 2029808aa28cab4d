package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const EnvironmentLocal = "local"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	YouTube   YouTubeConfig   `yaml:"youtube"`
	Reddit    RedditConfig    `yaml:"reddit"`
	Ingest    IngestConfig    `yaml:"ingest"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Cron      CronConfig      `yaml:"cron"`
	LogLevel  string          `yaml:"log_level"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Environment     string        `yaml:"environment"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// IsLocal reports whether the server runs in a local deployment, where single-source
// ingestion is not token gated.
func (s ServerConfig) IsLocal() bool {
	return s.Environment == EnvironmentLocal
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	DBName       string `yaml:"dbname"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

// DSN returns URL when set, otherwise a key/value connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type AuthConfig struct {
	// APIToken guards the write endpoints of records and reports.
	APIToken string `yaml:"api_token"`
	// CronToken guards ingestion endpoints.
	CronToken string `yaml:"cron_token"`
}

type YouTubeConfig struct {
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

type RedditConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

type IngestConfig struct {
	DefaultCooldown time.Duration `yaml:"default_cooldown"`
	MaxCooldown     time.Duration `yaml:"max_cooldown"`
	BatchCooldown   time.Duration `yaml:"batch_cooldown"`
	PreviewSize     int           `yaml:"preview_size"`
}

type RateLimitConfig struct {
	// Backend is "memory" or "redis".
	Backend      string        `yaml:"backend"`
	CreateLimit  int           `yaml:"create_limit"`
	CreateWindow time.Duration `yaml:"create_window"`
	DeleteLimit  int           `yaml:"delete_limit"`
	DeleteWindow time.Duration `yaml:"delete_window"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

// CronConfig drives the external cron caller (cmd/cron).
type CronConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Interval  time.Duration `yaml:"interval"`
	Platforms []string      `yaml:"platforms"`
	Limit     int           `yaml:"limit"`
	Pages     int           `yaml:"pages"`
	Timeout   time.Duration `yaml:"timeout"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" && c.Database.Host == "" {
		errs = append(errs, errors.New("database.url or database.host is required"))
	}
	if c.RateLimit.Backend != "memory" && c.RateLimit.Backend != "redis" {
		errs = append(errs, fmt.Errorf("rate_limit.backend must be memory or redis, got %q", c.RateLimit.Backend))
	}
	if c.RateLimit.Backend == "redis" && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required for the redis rate limit backend"))
	}
	if c.Ingest.DefaultCooldown > c.Ingest.MaxCooldown {
		errs = append(errs, errors.New("ingest.default_cooldown exceeds ingest.max_cooldown"))
	}
	return errors.Join(errs...)
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = EnvironmentLocal
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 2 * time.Minute
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 10 << 20
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.YouTube.BaseURL == "" {
		c.YouTube.BaseURL = "https://www.googleapis.com/youtube/v3"
	}
	if c.YouTube.UserAgent == "" {
		c.YouTube.UserAgent = "PullviewHarvester/1.0 (+https://github.com/pullview)"
	}
	if c.YouTube.Timeout == 0 {
		c.YouTube.Timeout = 30 * time.Second
	}
	if c.Reddit.BaseURL == "" {
		c.Reddit.BaseURL = "https://www.reddit.com"
	}
	if c.Reddit.UserAgent == "" {
		c.Reddit.UserAgent = "PullviewPublic/0.1 (+https://github.com/pullview)"
	}
	if c.Reddit.Timeout == 0 {
		c.Reddit.Timeout = 30 * time.Second
	}
	if c.Ingest.DefaultCooldown == 0 {
		c.Ingest.DefaultCooldown = 60 * time.Second
	}
	if c.Ingest.MaxCooldown == 0 {
		c.Ingest.MaxCooldown = time.Hour
	}
	if c.Ingest.BatchCooldown == 0 {
		c.Ingest.BatchCooldown = 60 * time.Second
	}
	if c.Ingest.PreviewSize == 0 {
		c.Ingest.PreviewSize = 3
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "memory"
	}
	if c.RateLimit.CreateLimit == 0 {
		c.RateLimit.CreateLimit = 10
	}
	if c.RateLimit.CreateWindow == 0 {
		c.RateLimit.CreateWindow = time.Minute
	}
	if c.RateLimit.DeleteLimit == 0 {
		c.RateLimit.DeleteLimit = 20
	}
	if c.RateLimit.DeleteWindow == 0 {
		c.RateLimit.DeleteWindow = time.Minute
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "pullview:rl:"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "pullview"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "records"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "harvested_records"
	}
	if c.Cron.BaseURL == "" {
		c.Cron.BaseURL = "http://localhost:8080"
	}
	if c.Cron.Interval == 0 {
		c.Cron.Interval = 15 * time.Minute
	}
	if len(c.Cron.Platforms) == 0 {
		c.Cron.Platforms = []string{"youtube", "reddit"}
	}
	if c.Cron.Limit == 0 {
		c.Cron.Limit = 3
	}
	if c.Cron.Pages == 0 {
		c.Cron.Pages = 1
	}
	if c.Cron.Timeout == 0 {
		c.Cron.Timeout = 5 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
