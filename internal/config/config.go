// Package config loads and validates leadcapture configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	DB           DBConfig           `mapstructure:"db"`
	Leads        LeadsConfig        `mapstructure:"leads"`
	Edge         EdgeConfig         `mapstructure:"edge"`
	Outbox       OutboxConfig       `mapstructure:"outbox"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Cache        CacheConfig        `mapstructure:"cache"`
	PubSub       PubSubConfig       `mapstructure:"pubsub"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// ServerConfig controls the lead service HTTP listener.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory repository.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime_seconds"`
}

// LeadsConfig tunes scoring and request limits for the submission endpoint.
type LeadsConfig struct {
	QualifiedThreshold int     `mapstructure:"qualified_threshold"`
	RateLimitRPS       float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst"`
	RequestTimeoutSec  int     `mapstructure:"request_timeout_seconds"`
}

// EdgeConfig configures the offline gateway.
type EdgeConfig struct {
	Port        int    `mapstructure:"port"`
	UpstreamURL string `mapstructure:"upstream_url"`
	APIPrefix   string `mapstructure:"api_prefix"`
}

// OutboxConfig points at the durable submission store.
type OutboxConfig struct {
	Path      string `mapstructure:"path"`
	Ephemeral bool   `mapstructure:"ephemeral"`
}

// SyncConfig governs the sync coordinator and background retry registration.
type SyncConfig struct {
	Tag               string `mapstructure:"tag"`
	Background        string `mapstructure:"background"`
	PeriodicSeconds   int    `mapstructure:"periodic_seconds"`
	BackoffInitialMs  int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int    `mapstructure:"backoff_max_ms"`
	SubmitTimeoutSecs int    `mapstructure:"submit_timeout_seconds"`
}

// ConnectivityConfig configures the reachability prober.
type ConnectivityConfig struct {
	ProbeURL        string `mapstructure:"probe_url"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	StartOnline     bool   `mapstructure:"start_online"`
}

// CacheConfig configures the request router cache.
type CacheConfig struct {
	Generation       string   `mapstructure:"generation"`
	Backend          string   `mapstructure:"backend"`
	BaseDir          string   `mapstructure:"base_dir"`
	GCSBucket        string   `mapstructure:"gcs_bucket"`
	OfflinePath      string   `mapstructure:"offline_path"`
	PlaceholderImage string   `mapstructure:"placeholder_image"`
	Precache         []string `mapstructure:"precache"`
	PrecacheLinks    bool     `mapstructure:"precache_links"`
}

// PubSubConfig holds the topic used for background sync registration.
type PubSubConfig struct {
	ProjectID        string `mapstructure:"project_id"`
	TopicName        string `mapstructure:"topic_name"`
	SubscriptionName string `mapstructure:"subscription_name"`
}

// TelemetryConfig names the service for tracing and picks a span exporter.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Exporter    string `mapstructure:"exporter"`
}

// Supported values for SyncConfig.Background.
const (
	BackgroundNone   = "none"
	BackgroundLocal  = "local"
	BackgroundPubSub = "pubsub"
)

// Supported values for CacheConfig.Backend.
const (
	CacheMemory = "memory"
	CacheLocal  = "local"
	CacheGCS    = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADCAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("leads.qualified_threshold", 70)
	v.SetDefault("leads.rate_limit_rps", 5)
	v.SetDefault("leads.rate_limit_burst", 10)
	v.SetDefault("leads.request_timeout_seconds", 10)
	v.SetDefault("edge.port", 8081)
	v.SetDefault("edge.upstream_url", "http://localhost:8080")
	v.SetDefault("edge.api_prefix", "/api/")
	v.SetDefault("outbox.path", "leadcapture-outbox.db")
	v.SetDefault("sync.tag", "lead-form-submission")
	v.SetDefault("sync.background", BackgroundLocal)
	v.SetDefault("sync.periodic_seconds", 0)
	v.SetDefault("sync.backoff_initial_ms", 1000)
	v.SetDefault("sync.backoff_max_ms", 60000)
	v.SetDefault("sync.submit_timeout_seconds", 0)
	v.SetDefault("connectivity.interval_seconds", 5)
	v.SetDefault("connectivity.timeout_seconds", 3)
	v.SetDefault("connectivity.start_online", true)
	v.SetDefault("cache.generation", "lead-generation-app-v1")
	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.base_dir", "leadcapture-cache")
	v.SetDefault("cache.offline_path", "/offline")
	v.SetDefault("cache.placeholder_image", "/icons/icon-72x72.png")
	v.SetDefault("cache.precache", []string{
		"/",
		"/offline",
		"/thank-you",
		"/manifest.json",
		"/icons/icon-72x72.png",
	})
	v.SetDefault("cache.precache_links", true)
	v.SetDefault("pubsub.topic_name", "lead-sync")
	v.SetDefault("pubsub.subscription_name", "lead-sync-edge")
	v.SetDefault("telemetry.service_name", "leadcapture")
	v.SetDefault("telemetry.exporter", "none")
}

// Validate performs semantic checks on the loaded configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Edge.Port <= 0 {
		return fmt.Errorf("edge.port must be > 0")
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.APIKey) == "" {
		return fmt.Errorf("auth.api_key is required when auth is enabled")
	}
	if c.Leads.QualifiedThreshold < 0 || c.Leads.QualifiedThreshold > 100 {
		return fmt.Errorf("leads.qualified_threshold must be within 0..100")
	}
	if _, err := url.ParseRequestURI(c.Edge.UpstreamURL); err != nil {
		return fmt.Errorf("edge.upstream_url must be an absolute URL: %w", err)
	}
	if !strings.HasPrefix(c.Edge.APIPrefix, "/") {
		return fmt.Errorf("edge.api_prefix must start with /")
	}
	if !c.Outbox.Ephemeral && strings.TrimSpace(c.Outbox.Path) == "" {
		return fmt.Errorf("outbox.path is required unless outbox.ephemeral is set")
	}
	if strings.TrimSpace(c.Sync.Tag) == "" {
		return fmt.Errorf("sync.tag is required")
	}
	switch c.Sync.Background {
	case BackgroundNone, BackgroundLocal:
	case BackgroundPubSub:
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" || c.PubSub.SubscriptionName == "" {
			return fmt.Errorf("pubsub.project_id, topic_name and subscription_name are required for pubsub background sync")
		}
	default:
		return fmt.Errorf("sync.background must be one of none, local, pubsub")
	}
	if c.Sync.BackoffInitialMs <= 0 || c.Sync.BackoffMaxMs < c.Sync.BackoffInitialMs {
		return fmt.Errorf("sync.backoff_initial_ms must be > 0 and <= sync.backoff_max_ms")
	}
	if c.Sync.PeriodicSeconds < 0 {
		return fmt.Errorf("sync.periodic_seconds must be >= 0")
	}
	if c.Connectivity.IntervalSeconds <= 0 {
		return fmt.Errorf("connectivity.interval_seconds must be > 0")
	}
	if strings.TrimSpace(c.Cache.Generation) == "" {
		return fmt.Errorf("cache.generation is required")
	}
	if strings.Contains(c.Cache.Generation, "/") {
		return fmt.Errorf("cache.generation must not contain /")
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CacheLocal:
		if strings.TrimSpace(c.Cache.BaseDir) == "" {
			return fmt.Errorf("cache.base_dir is required for the local backend")
		}
	case CacheGCS:
		if strings.TrimSpace(c.Cache.GCSBucket) == "" {
			return fmt.Errorf("cache.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("cache.backend must be one of memory, local, gcs")
	}
	return nil
}

// ProbeURL returns the reachability probe target, defaulting to the upstream health check.
func (c Config) ProbeURL() string {
	if c.Connectivity.ProbeURL != "" {
		return c.Connectivity.ProbeURL
	}
	return strings.TrimRight(c.Edge.UpstreamURL, "/") + "/healthz"
}

// ProbeInterval converts the configured probe interval into a duration.
func (c Config) ProbeInterval() time.Duration {
	return time.Duration(c.Connectivity.IntervalSeconds) * time.Second
}

// ProbeTimeout converts the configured probe timeout into a duration.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Connectivity.TimeoutSeconds) * time.Second
}

// PeriodicSync returns the periodic sync interval; zero disables the trigger.
func (c Config) PeriodicSync() time.Duration {
	return time.Duration(c.Sync.PeriodicSeconds) * time.Second
}

// SyncBackoff returns the initial and maximum background retry delay.
func (c Config) SyncBackoff() (time.Duration, time.Duration) {
	return time.Duration(c.Sync.BackoffInitialMs) * time.Millisecond,
		time.Duration(c.Sync.BackoffMaxMs) * time.Millisecond
}

// SubmitTimeout bounds one delivery attempt; zero leaves it to the transport.
func (c Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Sync.SubmitTimeoutSecs) * time.Second
}

// LeadRequestTimeout bounds repository calls made by the submission handler.
func (c Config) LeadRequestTimeout() time.Duration {
	return time.Duration(c.Leads.RequestTimeoutSec) * time.Second
}
