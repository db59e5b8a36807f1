package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// Client configuration with environment overrides
// =============================================================================

type Config struct {
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Device    DeviceConfig    `yaml:"device"`
	Store     StoreConfig     `yaml:"store"`
	Push      PushConfig      `yaml:"push"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Admin     AdminConfig     `yaml:"admin"`
	Bus       BusConfig       `yaml:"bus"`
	Bot       BotConfig       `yaml:"bot"`
}

type EndpointsConfig struct {
	LegyHost   string `yaml:"legy_host"`
	GWHost     string `yaml:"gw_host"`
	CertPath   string `yaml:"cert_path"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type DeviceConfig struct {
	Kind       string `yaml:"kind"`
	AppVersion string `yaml:"app_version"`
}

// StoreConfig selects and configures the C3 session store backend.
type StoreConfig struct {
	Backend string        `yaml:"backend"` // file | redis | spanner
	Path    string        `yaml:"path"`
	// Mid identifies which persisted session to resume for the keyed
	// backends (redis, spanner), whose Load needs to know the key before
	// any login has happened. The file backend ignores this: its whole
	// file is one session. Left empty before a session's first login.
	Mid     string        `yaml:"mid"`
	Redis   RedisConfig   `yaml:"redis"`
	Spanner SpannerConfig `yaml:"spanner"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

type SpannerConfig struct {
	ProjectID  string `yaml:"project_id"`
	InstanceID string `yaml:"instance_id"`
	DatabaseID string `yaml:"database_id"`
}

// PushConfig holds keep-alive and reconnect settings for the C6 push
// session as loaded from file and env. The push session does not read
// them: it runs on its own fixed 30s ping interval and 3s reconnect backoff.
type PushConfig struct {
	PingIntervalSec    int `yaml:"ping_interval_sec"`
	ReconnectBackoffMs int `yaml:"reconnect_backoff_ms"`
}

// FetchConfig selects the C7 fetcher's trigger mode and backlog limits.
type FetchConfig struct {
	Mode             string `yaml:"mode"` // push | poll
	PollIntervalSec  int    `yaml:"poll_interval_sec"`
	QueueSize        int    `yaml:"queue_size"`
	RateLimitDelayMs int    `yaml:"rate_limit_delay_ms"`
	RetryDelayMs     int    `yaml:"retry_delay_ms"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// BusConfig selects the event bus the dispatcher publishes onto.
type BusConfig struct {
	Backend string       `yaml:"backend"` // memory | pubsub
	PubSub  PubSubConfig `yaml:"pubsub"`
}

type PubSubConfig struct {
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
	Enabled   bool   `yaml:"enabled"`
}

// BotConfig configures the illustrative bot-layer collaborators (admin
// command gate, read-receipt ledger, rate limiter).
type BotConfig struct {
	AdminUserIDs    []string      `yaml:"admin_user_ids"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	ReadStore       ReadStoreConfig `yaml:"read_store"`
}

type RateLimitConfig struct {
	MaxPerMinute int `yaml:"max_per_minute"`
}

// ReadStoreConfig selects the illustrative read-receipt ledger backend.
type ReadStoreConfig struct {
	Backend  string         `yaml:"backend"` // postgres | supabase
	Postgres PostgresConfig `yaml:"postgres"`
	Supabase SupabaseConfig `yaml:"supabase"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
}

// =============================================================================
// Singleton pattern with environment overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide config singleton, loaded from CONFIG_PATH
// (default config.yaml) on first call.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file (using defaults)", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	c.Endpoints.LegyHost = getEnv("LINE_LEGY_HOST", c.Endpoints.LegyHost)
	c.Endpoints.GWHost = getEnv("LINE_GW_HOST", c.Endpoints.GWHost)
	c.Endpoints.CertPath = getEnv("LINE_CERT_PATH", c.Endpoints.CertPath)
	if v := getEnvInt("LINE_TIMEOUT_SEC", 0); v > 0 {
		c.Endpoints.TimeoutSec = v
	}

	c.Device.Kind = getEnv("LINE_DEVICE_KIND", c.Device.Kind)
	c.Device.AppVersion = getEnv("LINE_APP_VERSION", c.Device.AppVersion)

	c.Store.Backend = getEnv("LINE_STORE_BACKEND", c.Store.Backend)
	c.Store.Path = getEnv("LINE_STORE_PATH", c.Store.Path)
	c.Store.Mid = getEnv("LINE_STORE_MID", c.Store.Mid)
	c.Store.Redis.Addr = getEnv("REDIS_ADDR", c.Store.Redis.Addr)
	if v := getEnvInt("REDIS_DB", -1); v >= 0 {
		c.Store.Redis.DB = v
	}
	c.Store.Spanner.ProjectID = getEnv("SPANNER_PROJECT_ID", c.Store.Spanner.ProjectID)
	c.Store.Spanner.InstanceID = getEnv("SPANNER_INSTANCE_ID", c.Store.Spanner.InstanceID)
	c.Store.Spanner.DatabaseID = getEnv("SPANNER_DATABASE_ID", c.Store.Spanner.DatabaseID)

	if v := getEnvInt("PUSH_PING_INTERVAL_SEC", 0); v > 0 {
		c.Push.PingIntervalSec = v
	}
	if v := getEnvInt("PUSH_RECONNECT_BACKOFF_MS", 0); v > 0 {
		c.Push.ReconnectBackoffMs = v
	}

	c.Fetch.Mode = getEnv("FETCH_MODE", c.Fetch.Mode)
	if v := getEnvInt("FETCH_POLL_INTERVAL_SEC", 0); v > 0 {
		c.Fetch.PollIntervalSec = v
	}
	if v := getEnvInt("FETCH_QUEUE_SIZE", 0); v > 0 {
		c.Fetch.QueueSize = v
	}
	if v := getEnvInt("FETCH_RATE_LIMIT_DELAY_MS", 0); v > 0 {
		c.Fetch.RateLimitDelayMs = v
	}
	if v := getEnvInt("FETCH_RETRY_DELAY_MS", 0); v > 0 {
		c.Fetch.RetryDelayMs = v
	}

	c.Metrics.Enabled = getEnvBool("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)

	c.Admin.Enabled = getEnvBool("ADMIN_ENABLED", c.Admin.Enabled)
	c.Admin.Addr = getEnv("ADMIN_ADDR", c.Admin.Addr)

	c.Bus.Backend = getEnv("BUS_BACKEND", c.Bus.Backend)
	if projectID := getEnv("GCP_PROJECT_ID", ""); projectID != "" {
		c.Bus.PubSub.ProjectID = projectID
	}
	c.Bus.PubSub.TopicID = getEnv("PUBSUB_TOPIC_ID", c.Bus.PubSub.TopicID)
	c.Bus.PubSub.Enabled = getEnvBool("PUBSUB_ENABLED", c.Bus.PubSub.Enabled)

	if v := getEnvInt("BOT_RATE_LIMIT_PER_MINUTE", 0); v > 0 {
		c.Bot.RateLimit.MaxPerMinute = v
	}
	c.Bot.ReadStore.Backend = getEnv("BOT_READSTORE_BACKEND", c.Bot.ReadStore.Backend)
	c.Bot.ReadStore.Postgres.DSN = getEnv("BOT_POSTGRES_DSN", c.Bot.ReadStore.Postgres.DSN)
	c.Bot.ReadStore.Supabase.URL = getEnv("SUPABASE_URL", c.Bot.ReadStore.Supabase.URL)
	c.Bot.ReadStore.Supabase.ServiceKey = getEnv("SUPABASE_SERVICE_KEY", c.Bot.ReadStore.Supabase.ServiceKey)

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Endpoints.LegyHost == "" {
		c.Endpoints.LegyHost = "gf.line.naver.jp"
	}
	if c.Endpoints.GWHost == "" {
		c.Endpoints.GWHost = "gw.line.naver.jp"
	}
	if c.Endpoints.TimeoutSec == 0 {
		c.Endpoints.TimeoutSec = 30
	}
	if c.Device.Kind == "" {
		c.Device.Kind = "DESKTOPWIN"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	if c.Store.Path == "" {
		c.Store.Path = "line-session.json"
	}
	if c.Push.PingIntervalSec == 0 {
		c.Push.PingIntervalSec = 15
	}
	if c.Push.ReconnectBackoffMs == 0 {
		c.Push.ReconnectBackoffMs = 1000
	}
	if c.Fetch.Mode == "" {
		c.Fetch.Mode = "push"
	}
	if c.Fetch.PollIntervalSec == 0 {
		c.Fetch.PollIntervalSec = 5
	}
	if c.Fetch.QueueSize == 0 {
		c.Fetch.QueueSize = 256
	}
	if c.Fetch.RateLimitDelayMs == 0 {
		c.Fetch.RateLimitDelayMs = 2000
	}
	if c.Fetch.RetryDelayMs == 0 {
		c.Fetch.RetryDelayMs = 100
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = ":8090"
	}
	if c.Bus.Backend == "" {
		c.Bus.Backend = "memory"
	}
	if c.Bus.PubSub.TopicID == "" {
		c.Bus.PubSub.TopicID = "line-events"
	}
	if c.Bot.RateLimit.MaxPerMinute == 0 {
		c.Bot.RateLimit.MaxPerMinute = 20
	}
	if c.Bot.ReadStore.Backend == "" {
		c.Bot.ReadStore.Backend = "postgres"
	}
}

// Timeout returns Endpoints.TimeoutSec as a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Endpoints.TimeoutSec) * time.Second
}

// =============================================================================
// Helper functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
