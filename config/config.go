package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Application
	App AppConfig `mapstructure:"app"`

	// HTTP server
	Server ServerConfig `mapstructure:"server"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	// Bearer token verification
	Auth AuthConfig `mapstructure:"auth"`

	// eBay OAuth
	Ebay EbayConfig `mapstructure:"ebay"`

	// Public share links
	Share ShareConfig `mapstructure:"share"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	// LogFile enables a rotated JSON log file next to stdout.
	LogFile string `mapstructure:"log_file"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	BaseURL         string        `mapstructure:"base_url"`
	CORSOrigins     string        `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type PrometheusConfig struct {
	Port int `mapstructure:"port"`
}

type AuthConfig struct {
	// JWTSecret verifies HS256 access tokens minted by the identity provider.
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type EbayConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	// RedirectURI is the eBay RuName registered for the application.
	RedirectURI string        `mapstructure:"redirect_uri"`
	AuthURL     string        `mapstructure:"auth_url"`
	TokenURL    string        `mapstructure:"token_url"`
	StateSecret string        `mapstructure:"state_secret"`
	StateTTL    time.Duration `mapstructure:"state_ttl"`
	// RefreshInterval is how often the background refresher scans credentials.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RefreshWindow   time.Duration `mapstructure:"refresh_window"`

	// Trading API settings used for listing creation.
	TradingURL         string `mapstructure:"trading_url"`
	DevID              string `mapstructure:"dev_id"`
	SiteID             string `mapstructure:"site_id"`
	CompatibilityLevel string `mapstructure:"compatibility_level"`
	ItemURLBase        string `mapstructure:"item_url_base"`
}

type ShareConfig struct {
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	CacheSizeBytes int           `mapstructure:"cache_size_bytes"`
	RateLimit      int           `mapstructure:"rate_limit"`
	RateWindow     time.Duration `mapstructure:"rate_window"`
	IPHashSalt     string        `mapstructure:"ip_hash_salt"`
	IndexCapacity  uint          `mapstructure:"index_capacity"`
	IndexFPRate    float64       `mapstructure:"index_fp_rate"`
	IndexResync    time.Duration `mapstructure:"index_resync"`
}

// Enabled reports whether the eBay integration has credentials configured.
func (c EbayConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}

// IsDev reports whether the service runs outside production.
func (c *Config) IsDev() bool {
	return c.App.Env != "production"
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("nats.host", "localhost")
	v.SetDefault("nats.port", 4222)

	v.SetDefault("prometheus.port", 9090)

	v.SetDefault("ebay.auth_url", "https://auth.ebay.com/oauth2/authorize")
	v.SetDefault("ebay.token_url", "https://api.ebay.com/identity/v1/oauth2/token")
	v.SetDefault("ebay.state_ttl", "10m")
	v.SetDefault("ebay.refresh_interval", "1m")
	v.SetDefault("ebay.refresh_window", "10m")
	v.SetDefault("ebay.trading_url", "https://api.ebay.com/ws/api.dll")
	v.SetDefault("ebay.site_id", "0")
	v.SetDefault("ebay.compatibility_level", "967")
	v.SetDefault("ebay.item_url_base", "https://www.ebay.com/itm/")

	v.SetDefault("share.cache_ttl", "30s")
	v.SetDefault("share.cache_size_bytes", 8*1024*1024)
	v.SetDefault("share.rate_limit", 60)
	v.SetDefault("share.rate_window", "1m")
	v.SetDefault("share.index_capacity", 100000)
	v.SetDefault("share.index_fp_rate", 0.01)
	v.SetDefault("share.index_resync", "10m")
}

func bindEnvVars(v *viper.Viper) {
	// Application
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("app.log_level", "LOG_LEVEL")
	v.BindEnv("app.log_file", "LOG_FILE")

	// HTTP server
	v.BindEnv("server.addr", "SERVER_ADDR")
	v.BindEnv("server.base_url", "BASE_URL")
	v.BindEnv("server.cors_origins", "CORS_ORIGINS")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")
	v.BindEnv("postgres.max_conns", "PG_MAX_CONNS")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")

	// Auth
	v.BindEnv("auth.jwt_secret", "SUPABASE_JWT_SECRET", "JWT_SECRET")
	v.BindEnv("auth.issuer", "JWT_ISSUER")

	// eBay
	v.BindEnv("ebay.client_id", "EBAY_CLIENT_ID")
	v.BindEnv("ebay.client_secret", "EBAY_CLIENT_SECRET")
	v.BindEnv("ebay.redirect_uri", "EBAY_REDIRECT_URI")
	v.BindEnv("ebay.state_secret", "EBAY_STATE_SECRET")
	v.BindEnv("ebay.dev_id", "EBAY_DEV_ID")

	// Share links
	v.BindEnv("share.ip_hash_salt", "SHARE_IP_HASH_SALT")
}
