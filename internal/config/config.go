// Package config loads and validates the GroosHub configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the GROOS_ prefix (e.g., GROOS_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments.
//
// Vendor API keys (GOOGLE_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, XAI_API_KEY)
// and ENCRYPTION_KEY carry no GROOS_ prefix because they are read directly by the
// AI SDKs or injected by infrastructure tooling that treats them as generic secrets.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Auth         AuthConfig         `mapstructure:"auth"`
	AI           AIConfig           `mapstructure:"ai"`
	RAG          RAGConfig          `mapstructure:"rag"`
	Geo          GeoConfig          `mapstructure:"geo"`
	MultiTenancy MultiTenancyConfig `mapstructure:"multi_tenancy"`
	Security     SecurityConfig     `mapstructure:"security"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetAddress returns the host:port the HTTP server listens on.
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetPublicURL returns the public-facing URL used for OAuth callbacks and external
// redirects. When server.public_url is set it is returned as-is; otherwise it falls
// back to server.base_url. The distinction matters in reverse-proxied deployments
// where the internal listen address differs from the URL registered with the OIDC
// provider.
func (s *ServerConfig) GetPublicURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return s.BaseURL
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// GetDSN builds a lib/pq connection string from the individual fields.
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig holds the Redis connection used for fast-path AI rate limiting.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig holds storage backend configuration
type StorageConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	MaxUploadBytes int64              `mapstructure:"max_upload_bytes"`
	Azure          AzureStorageConfig `mapstructure:"azure"`
	S3             S3StorageConfig    `mapstructure:"s3"`
	GCS            GCSStorageConfig   `mapstructure:"gcs"`
	Local          LocalStorageConfig `mapstructure:"local"`
}

// AzureStorageConfig holds Azure Blob Storage configuration
type AzureStorageConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
	CDNURL        string `mapstructure:"cdn_url"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO, DigitalOcean Spaces, etc.)
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// Authentication method: "default", "static", "assume_role"
	AuthMethod string `mapstructure:"auth_method"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	RoleARN         string `mapstructure:"role_arn"`
	RoleSessionName string `mapstructure:"role_session_name"`
	ExternalID      string `mapstructure:"external_id"`
}

// GCSStorageConfig holds Google Cloud Storage configuration
type GCSStorageConfig struct {
	Bucket    string `mapstructure:"bucket"`
	ProjectID string `mapstructure:"project_id"`

	// CredentialsFile is the path to a service account JSON key file.
	// When empty, Application Default Credentials are used.
	CredentialsFile string `mapstructure:"credentials_file"`

	// CredentialsJSON is the service account JSON key as a string
	// (alternative to credentials_file, useful for environment variables)
	CredentialsJSON string `mapstructure:"credentials_json"`

	// Endpoint is an optional custom endpoint (for GCS emulators)
	Endpoint string `mapstructure:"endpoint"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath      string `mapstructure:"base_path"`
	ServeDirectly bool   `mapstructure:"serve_directly"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	OIDC       OIDCConfig    `mapstructure:"oidc"`
}

// OIDCConfig holds settings for the optional OIDC single sign-on flow.
type OIDCConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	IssuerURL    string   `mapstructure:"issuer_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// AIConfig holds model routing and quota configuration.
type AIConfig struct {
	// DefaultModel is a fully-qualified model name, e.g. "googleai/gemini-2.5-flash".
	// The prefix before the slash selects the provider plugin.
	DefaultModel string `mapstructure:"default_model"`

	// ClassifierModel is the cheap model used for query classification.
	ClassifierModel string `mapstructure:"classifier_model"`

	// EmbedderModel is the embedding model, e.g. "googleai/text-embedding-004".
	EmbedderModel string `mapstructure:"embedder_model"`

	// XAIBaseURL is the OpenAI-compatible endpoint for xAI models.
	XAIBaseURL string `mapstructure:"xai_base_url"`

	// MaxTurns bounds the agent tool-invocation loop.
	MaxTurns int `mapstructure:"max_turns"`

	// DailyCallQuota is the per-organization limit on model calls per day.
	// 0 disables the quota.
	DailyCallQuota int `mapstructure:"daily_call_quota"`

	// RequestsPerSecond / Burst configure the per-user redis fast-path limiter
	// in front of the DB-backed quota.
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	Burst             int `mapstructure:"burst"`
}

// RAGConfig holds chunking and retrieval settings.
type RAGConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	TopK         int `mapstructure:"top_k"`

	// IndexIntervalSeconds is how often the background indexer scans for
	// pending files.
	IndexIntervalSeconds int `mapstructure:"index_interval_seconds"`
}

// GeoConfig holds the geocoding/places vendor configuration.
type GeoConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MultiTenancyConfig holds multi-tenancy configuration
type MultiTenancyConfig struct {
	AllowPublicSignup bool `mapstructure:"allow_public_signup"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS settings applied by the router.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds request rate limit settings.
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// TLSConfig holds TLS settings for the main listener.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds metrics and profiling configuration
type TelemetryConfig struct {
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig holds pprof settings.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m") // long enough for streamed chat responses

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "grooshub")
	v.SetDefault("database.user", "grooshub")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.default_backend", "local")
	v.SetDefault("storage.max_upload_bytes", int64(50*1024*1024))
	v.SetDefault("storage.local.base_path", "./data/files")
	v.SetDefault("storage.local.serve_directly", true)
	v.SetDefault("storage.s3.region", "eu-west-1")
	v.SetDefault("storage.s3.auth_method", "default")

	v.SetDefault("auth.session_ttl", "24h")
	v.SetDefault("auth.oidc.enabled", false)
	v.SetDefault("auth.oidc.scopes", []string{"openid", "profile", "email"})

	v.SetDefault("ai.default_model", "googleai/gemini-2.5-flash")
	v.SetDefault("ai.classifier_model", "googleai/gemini-2.5-flash-lite")
	v.SetDefault("ai.embedder_model", "googleai/text-embedding-004")
	v.SetDefault("ai.xai_base_url", "https://api.x.ai/v1")
	v.SetDefault("ai.max_turns", 5)
	v.SetDefault("ai.daily_call_quota", 200)
	v.SetDefault("ai.requests_per_second", 2)
	v.SetDefault("ai.burst", 5)

	v.SetDefault("rag.chunk_size", 1200)
	v.SetDefault("rag.chunk_overlap", 200)
	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.index_interval_seconds", 30)

	v.SetDefault("geo.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geo.timeout", "10s")

	v.SetDefault("multi_tenancy.allow_public_signup", true)

	v.SetDefault("security.cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 200)
	v.SetDefault("security.rate_limiting.burst", 50)
	v.SetDefault("security.tls.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)
}

// bindEnvVars explicitly binds environment variables for nested structures.
// AutomaticEnv() alone does not work reliably with Unmarshal(), so every key
// that may be overridden from the environment is bound here.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"server.host",
		"server.port",
		"server.base_url",
		"server.public_url",
		"server.read_timeout",
		"server.write_timeout",

		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		"redis.enabled",
		"redis.addr",
		"redis.password",
		"redis.db",

		"storage.default_backend",
		"storage.max_upload_bytes",
		"storage.azure.account_name",
		"storage.azure.account_key",
		"storage.azure.container_name",
		"storage.azure.cdn_url",
		"storage.s3.endpoint",
		"storage.s3.region",
		"storage.s3.bucket",
		"storage.s3.auth_method",
		"storage.s3.access_key_id",
		"storage.s3.secret_access_key",
		"storage.s3.role_arn",
		"storage.s3.role_session_name",
		"storage.s3.external_id",
		"storage.gcs.bucket",
		"storage.gcs.project_id",
		"storage.gcs.credentials_file",
		"storage.gcs.credentials_json",
		"storage.gcs.endpoint",
		"storage.local.base_path",
		"storage.local.serve_directly",

		"auth.session_ttl",
		"auth.oidc.enabled",
		"auth.oidc.issuer_url",
		"auth.oidc.client_id",
		"auth.oidc.client_secret",
		"auth.oidc.redirect_url",
		"auth.oidc.scopes",

		"ai.default_model",
		"ai.classifier_model",
		"ai.embedder_model",
		"ai.xai_base_url",
		"ai.max_turns",
		"ai.daily_call_quota",
		"ai.requests_per_second",
		"ai.burst",

		"rag.chunk_size",
		"rag.chunk_overlap",
		"rag.top_k",
		"rag.index_interval_seconds",

		"geo.base_url",
		"geo.api_key",
		"geo.timeout",

		"multi_tenancy.allow_public_signup",

		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		"logging.level",
		"logging.format",

		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
		"telemetry.profiling.enabled",
		"telemetry.profiling.port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/grooshub")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("GROOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Watch re-reads the config file on change and invokes onChange with the fresh
// configuration. Only used for settings that are safe to change at runtime
// (currently the logging level/format); everything else requires a restart.
func Watch(configPath string, onChange func(*Config)) {
	if configPath == "" {
		return // nothing to watch when running from pure env vars
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return
	}
	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()
}

// Validate checks configuration consistency that viper cannot express.
func (c *Config) Validate() error {
	switch c.Storage.DefaultBackend {
	case "local", "s3", "gcs", "azure":
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.DefaultBackend)
	}

	if c.AI.MaxTurns < 1 {
		return fmt.Errorf("ai.max_turns must be at least 1, got %d", c.AI.MaxTurns)
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap (%d) must be smaller than rag.chunk_size (%d)",
			c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.Auth.OIDC.Enabled {
		if c.Auth.OIDC.IssuerURL == "" || c.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("auth.oidc requires issuer_url and client_id when enabled")
		}
	}
	return nil
}
