package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Remote     RemoteConfig     `yaml:"remote"`
	Mailbox    MailboxConfig    `yaml:"mailbox"`
	Sync       SyncConfig       `yaml:"sync"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// RemoteConfig describes the reservation portal and the account used to log
// into it. The portal has no API; everything goes through the session-cookie
// login flow and server-rendered pages.
type RemoteConfig struct {
	BaseURL                string        `yaml:"base_url"`
	Username               string        `yaml:"username"`
	Password               string        `yaml:"password"`
	VerificationEmail      string        `yaml:"verification_email"`
	SessionLifetimeMinutes int           `yaml:"session_lifetime_minutes"`
	SessionLifetime        time.Duration `yaml:"-"` // Ignored by YAML parser
	HTTPTimeoutSeconds     int           `yaml:"http_timeout_seconds"`
	HTTPTimeout            time.Duration `yaml:"-"`
}

// MailboxConfig points at the JSON webmail relay that receives the portal's
// verification-code emails.
type MailboxConfig struct {
	URL                 string        `yaml:"url"`
	Token               string        `yaml:"token"`
	PollIntervalSeconds int           `yaml:"poll_interval_seconds"`
	PollInterval        time.Duration `yaml:"-"`
	WaitTimeoutSeconds  int           `yaml:"wait_timeout_seconds"`
	WaitTimeout         time.Duration `yaml:"-"`
}

// SyncConfig holds the reconciliation cadence and gating configuration.
type SyncConfig struct {
	Enabled            bool          `yaml:"enabled"`
	IntervalMinutes    int           `yaml:"interval_minutes"`
	Interval           time.Duration `yaml:"-"`
	OperatingStart     string        `yaml:"operating_start"` // "HH:MM"
	OperatingEnd       string        `yaml:"operating_end"`   // "HH:MM"
	Timezone           string        `yaml:"timezone"`
	MaxPages           int           `yaml:"max_pages"`
	PageDelayMillis    int           `yaml:"page_delay_millis"`
	PageDelay          time.Duration `yaml:"-"`
	KeepAliveMinutes   int           `yaml:"keepalive_minutes"`
	KeepAliveInterval  time.Duration `yaml:"-"`
	LoginSettleSeconds int           `yaml:"login_settle_seconds"`
	LoginSettle        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Remote.SessionLifetimeMinutes <= 0 {
		cfg.Remote.SessionLifetimeMinutes = 120
	}
	cfg.Remote.SessionLifetime = time.Duration(cfg.Remote.SessionLifetimeMinutes) * time.Minute

	if cfg.Remote.HTTPTimeoutSeconds <= 0 {
		cfg.Remote.HTTPTimeoutSeconds = 30
	}
	cfg.Remote.HTTPTimeout = time.Duration(cfg.Remote.HTTPTimeoutSeconds) * time.Second

	if cfg.Mailbox.PollIntervalSeconds <= 0 {
		cfg.Mailbox.PollIntervalSeconds = 5
	}
	cfg.Mailbox.PollInterval = time.Duration(cfg.Mailbox.PollIntervalSeconds) * time.Second

	if cfg.Mailbox.WaitTimeoutSeconds <= 0 {
		cfg.Mailbox.WaitTimeoutSeconds = 90
	}
	cfg.Mailbox.WaitTimeout = time.Duration(cfg.Mailbox.WaitTimeoutSeconds) * time.Second

	if cfg.Sync.IntervalMinutes <= 0 {
		cfg.Sync.IntervalMinutes = 10
	}
	cfg.Sync.Interval = time.Duration(cfg.Sync.IntervalMinutes) * time.Minute

	if cfg.Sync.OperatingStart == "" {
		cfg.Sync.OperatingStart = "09:00"
	}
	if cfg.Sync.OperatingEnd == "" {
		cfg.Sync.OperatingEnd = "18:00"
	}
	if cfg.Sync.Timezone == "" {
		cfg.Sync.Timezone = "Asia/Seoul"
	}
	if cfg.Sync.MaxPages <= 0 {
		cfg.Sync.MaxPages = 10
	}
	if cfg.Sync.PageDelayMillis <= 0 {
		cfg.Sync.PageDelayMillis = 500
	}
	cfg.Sync.PageDelay = time.Duration(cfg.Sync.PageDelayMillis) * time.Millisecond

	if cfg.Sync.KeepAliveMinutes <= 0 {
		cfg.Sync.KeepAliveMinutes = 30
	}
	cfg.Sync.KeepAliveInterval = time.Duration(cfg.Sync.KeepAliveMinutes) * time.Minute

	if cfg.Sync.LoginSettleSeconds <= 0 {
		cfg.Sync.LoginSettleSeconds = 3
	}
	cfg.Sync.LoginSettle = time.Duration(cfg.Sync.LoginSettleSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
