package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/qepting91/reddit-promo-scout/internal/classifier"
	"github.com/qepting91/reddit-promo-scout/internal/collector"
	"github.com/qepting91/reddit-promo-scout/internal/domain"
	"github.com/qepting91/reddit-promo-scout/internal/export"
	"github.com/qepting91/reddit-promo-scout/internal/ingest"
	"github.com/qepting91/reddit-promo-scout/internal/logging"
	"github.com/qepting91/reddit-promo-scout/internal/orchestrator"
	"github.com/qepting91/reddit-promo-scout/internal/storage"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig        `mapstructure:"server"`
	Reddit     collector.Config    `mapstructure:"reddit"`
	Search     orchestrator.Config `mapstructure:"search"`
	Classifier classifier.Rules    `mapstructure:"classifier"`
	Storage    storage.Config      `mapstructure:"storage"`
	Cache      CacheConfig         `mapstructure:"cache"`
	Export     ExportConfig        `mapstructure:"export"`
	Log        logging.Config      `mapstructure:"log"`
	Inputs     InputsConfig        `mapstructure:"inputs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// CacheConfig holds the provider response cache settings.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`

	collector.RedisOptions `mapstructure:",squash"`
}

type ExportConfig struct {
	MaxSize int                `mapstructure:"max_size"`
	Store   export.StoreConfig `mapstructure:"store"`
}

// InputsConfig points at optional CSV lists that override configured values.
type InputsConfig struct {
	KeywordsFile    string `mapstructure:"keywords_file"`
	CommunitiesFile string `mapstructure:"communities_file"`
}

var envBindings = map[string]string{
	"server.port":          "PORT",
	"server.host":          "HOST",
	"reddit.mode":          "COLLECTOR_MODE",
	"reddit.client_id":     "REDDIT_CLIENT_ID",
	"reddit.client_secret": "REDDIT_CLIENT_SECRET",
	"reddit.username":      "REDDIT_USERNAME",
	"reddit.password":      "REDDIT_PASSWORD",
	"reddit.user_agent":    "REDDIT_USER_AGENT",
	"search.workers":       "SEARCH_WORKERS",
	"search.timeout":       "SEARCH_TIMEOUT",
	"storage.type":         "STORAGE_TYPE",
	"storage.path":         "DATABASE_PATH",
	"storage.postgres_uri": "POSTGRES_URI",
	"cache.enabled":        "CACHE_ENABLED",
	"cache.addr":           "REDIS_ADDR",
	"cache.password":       "REDIS_PASSWORD",
	"cache.ttl":            "CACHE_TTL",
	"export.store.type":    "EXPORT_STORE",
	"export.store.bucket":  "EXPORT_S3_BUCKET",
	"export.store.region":  "AWS_REGION",
	"log.level":            "LOG_LEVEL",
	"log.format":           "LOG_FORMAT",
	"inputs.keywords_file": "KEYWORDS_FILE",
}

func setDefaults(v *viper.Viper) {
	search := orchestrator.DefaultConfig()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("reddit.mode", collector.ModeAPI)
	v.SetDefault("reddit.user_agent", "promoscout/1.0")
	v.SetDefault("reddit.public_base_url", "https://www.reddit.com")
	v.SetDefault("reddit.max_attempts", 2)
	v.SetDefault("reddit.backoff", "2s")

	v.SetDefault("search.workers", search.Workers)
	v.SetDefault("search.timeout", search.Timeout.String())
	v.SetDefault("search.per_call_limit", search.PerCallLimit)
	v.SetDefault("search.discovery_communities", search.DiscoveryCommunities)
	v.SetDefault("search.discovery_keywords", search.DiscoveryKeywords)
	v.SetDefault("search.default_time_window", string(search.DefaultTimeWindow))
	v.SetDefault("search.max_keywords", search.MaxKeywords)
	v.SetDefault("search.max_keyword_length", search.MaxKeywordLength)

	v.SetDefault("classifier.min_keyword_matches", 1)
	v.SetDefault("classifier.content_threshold", 2)

	v.SetDefault("storage.type", storage.TypeSQLite)
	v.SetDefault("storage.path", storage.DefaultSQLitePath)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.ttl", "1h")

	v.SetDefault("export.max_size", export.MaxExportSize)
	v.SetDefault("export.store.type", export.StoreLocal)
	v.SetDefault("export.store.directory", "exports")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.service", logging.DefaultService)
}

// LoadDotEnvs loads .env files, most specific first; godotenv never overrides
// a variable that is already set.
func LoadDotEnvs() {
	env := os.Getenv("PROMOSCOUT_ENV")
	if env == "" {
		env = "dev"
	}
	godotenv.Load(".env." + env + ".local")
	godotenv.Load(".env.local")
	godotenv.Load(".env." + env)
	godotenv.Load(".env")
}

// Load reads configFile (or config.yaml in . or ./config when empty) on top of
// defaults and environment variables. .env files must be loaded beforehand.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyInputs(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyInputs() error {
	if c.Inputs.KeywordsFile != "" {
		kws, err := ingest.LoadKeywords(c.Inputs.KeywordsFile)
		if err != nil {
			return fmt.Errorf("load keywords: %w", err)
		}
		if len(kws) > 0 {
			c.Classifier.Keywords = kws
		}
	}
	if c.Inputs.CommunitiesFile != "" {
		subs, rejected, err := ingest.LoadCommunities(c.Inputs.CommunitiesFile)
		if err != nil {
			return fmt.Errorf("load communities: %w", err)
		}
		if len(rejected) > 0 {
			return fmt.Errorf("load communities: invalid names %v", rejected)
		}
		if len(subs) > 0 {
			c.Search.DiscoveryCommunities = subs
		}
	}
	return nil
}

// Validate rejects settings that would fail later at startup.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	switch c.Reddit.Mode {
	case "", collector.ModeAPI, collector.ModePublic, collector.ModeMock:
	default:
		return fmt.Errorf("unknown collector mode: %s", c.Reddit.Mode)
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when the cache is enabled")
	}
	if c.Export.MaxSize <= 0 || c.Export.MaxSize > export.MaxExportSize {
		c.Export.MaxSize = export.MaxExportSize
	}
	for _, sub := range c.Search.DiscoveryCommunities {
		if !domain.ValidCommunity(domain.NormalizeCommunity(sub)) {
			return fmt.Errorf("invalid discovery community %q", sub)
		}
	}
	return nil
}
