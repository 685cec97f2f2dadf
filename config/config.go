package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Duration parses env values like "10s", "5m" or a bare number of seconds.
type Duration time.Duration

// SetValue implements cleanenv.Setter.
func (d *Duration) SetValue(data string) error {
	v, err := parseDuration(data)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(s string) (time.Duration, error) {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration must be like 10s, 5m or a number of seconds: %w", err)
	}
	return d, nil
}

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Sentry        SentryConfig
	Auth          AuthConfig
	Storage       StorageConfig
	Bootstrap     BootstrapConfig
}

type AppConfig struct {
	Env       string `env:"APP_ENV" env-default:"dev"`
	Version   string `env:"APP_VERSION" env-default:"dev"`
	Port      string `env:"PORT" env-default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"json"`
	// Comma separated list of origins allowed to call the API from a browser.
	CORSOrigins []string `env:"CORS_ORIGINS" env-separator:"," env-default:"*"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST" env-default:"localhost"`
	User     string `env:"DB_USER" env-default:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" env-default:"crm"`
	Port     string `env:"DB_PORT" env-default:"5432"`
	SSLMode  string `env:"DB_SSLMODE" env-default:"disable"`
}

// DSN returns the postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode,
	)
}

type RedisConfig struct {
	// Empty host disables caching.
	Host     string   `env:"REDIS_HOST"`
	Password string   `env:"REDIS_PASSWORD"`
	DB       int      `env:"REDIS_DB" env-default:"0"`
	CacheTTL Duration `env:"CACHE_TTL" env-default:"5m"`
}

type KafkaConfig struct {
	// Empty broker disables event publishing and the consumer.
	Broker  string `env:"KAFKA_BROKER"`
	Topic   string `env:"KAFKA_TOPIC" env-default:"crm_events"`
	GroupID string `env:"KAFKA_GROUP_ID" env-default:"crm-indexer"`
}

type ElasticsearchConfig struct {
	URL string `env:"ELASTICSEARCH_URL"`
}

type SentryConfig struct {
	DSN              string  `env:"SENTRY_DSN"`
	TracesSampleRate float64 `env:"SENTRY_TRACES_SAMPLE_RATE" env-default:"0.2"`
}

type AuthConfig struct {
	JWTSecret string   `env:"JWT_SECRET" env-required:"true"`
	TokenTTL  Duration `env:"TOKEN_TTL" env-default:"12h"`
}

type StorageConfig struct {
	Dir            string `env:"STORAGE_DIR" env-default:"./data/documents"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" env-default:"10485760"`
}

type BootstrapConfig struct {
	AdminEmail    string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	AdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD"`
}

func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if len(cfg.Auth.JWTSecret) < 16 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if cfg.Redis.Host != "" && !strings.Contains(cfg.Redis.Host, ":") {
		cfg.Redis.Host += ":6379"
	}
	if cfg.Bootstrap.AdminEmail != "" && cfg.Bootstrap.AdminPassword == "" {
		return Config{}, fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD is required when BOOTSTRAP_ADMIN_EMAIL is set")
	}
	return cfg, nil
}
