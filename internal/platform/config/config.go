package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StorageMySQL    = "mysql"
	StoragePostgres = "postgres"

	LedgerStorage = "storage"
	LedgerRedis   = "redis"
)

type Config struct {
	HTTP      ServerConfig    `yaml:"http"`
	GRPC      ServerConfig    `yaml:"grpc"`
	Storage   StorageConfig   `yaml:"storage"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Auth      AuthConfig      `yaml:"auth"`
	Checkout  CheckoutConfig  `yaml:"checkout"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	SeedFile  string          `yaml:"seed_file"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type StorageConfig struct {
	Driver          string        `yaml:"driver"`
	MySQLDSN        string        `yaml:"mysql_dsn"`
	PostgresDSN     string        `yaml:"postgres_dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type LedgerConfig struct {
	Driver string `yaml:"driver"`
}

type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	PoolSize       int           `yaml:"pool_size"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

type KafkaConfig struct {
	Brokers     string `yaml:"brokers"`
	OrdersTopic string `yaml:"orders_topic"`
	AlertsTopic string `yaml:"alerts_topic"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type CheckoutConfig struct {
	BaseETAMinutes    float64 `yaml:"base_eta_minutes"`
	MinutesPerKm      float64 `yaml:"minutes_per_km"`
	FollowUpWorkers   int     `yaml:"follow_up_workers"`
	FollowUpQueueSize int     `yaml:"follow_up_queue_size"`
}

type ReconcileConfig struct {
	Schedule string `yaml:"schedule"`
}

// Load reads the optional YAML file at path, fills defaults and then applies
// environment overrides.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.GRPC.Addr == "" {
		cfg.GRPC.Addr = ":50051"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageMemory
	}
	if cfg.Storage.MaxOpenConns == 0 {
		cfg.Storage.MaxOpenConns = 50
	}
	if cfg.Storage.MaxIdleConns == 0 {
		cfg.Storage.MaxIdleConns = 25
	}
	if cfg.Storage.ConnMaxLifetime == 0 {
		cfg.Storage.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = LedgerStorage
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 100
	}
	if cfg.Redis.IdempotencyTTL == 0 {
		cfg.Redis.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Kafka.OrdersTopic == "" {
		cfg.Kafka.OrdersTopic = "orders.placed"
	}
	if cfg.Kafka.AlertsTopic == "" {
		cfg.Kafka.AlertsTopic = "checkout.alerts"
	}
	if cfg.Checkout.BaseETAMinutes == 0 {
		cfg.Checkout.BaseETAMinutes = 10
	}
	if cfg.Checkout.MinutesPerKm == 0 {
		cfg.Checkout.MinutesPerKm = 5
	}
	if cfg.Checkout.FollowUpWorkers == 0 {
		cfg.Checkout.FollowUpWorkers = 4
	}
	if cfg.Checkout.FollowUpQueueSize == 0 {
		cfg.Checkout.FollowUpQueueSize = 1000
	}
	if cfg.Reconcile.Schedule == "" {
		cfg.Reconcile.Schedule = "@every 1m"
	}
}

func applyEnv(cfg *Config) {
	cfg.HTTP.Addr = GetEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.GRPC.Addr = GetEnv("GRPC_ADDR", cfg.GRPC.Addr)
	cfg.Storage.Driver = GetEnv("STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.MySQLDSN = GetEnv("MYSQL_DSN", cfg.Storage.MySQLDSN)
	cfg.Storage.PostgresDSN = GetEnv("POSTGRES_DSN", cfg.Storage.PostgresDSN)
	cfg.Storage.MaxOpenConns = GetEnvAsInt("DB_MAX_OPEN_CONNS", cfg.Storage.MaxOpenConns)
	cfg.Storage.MaxIdleConns = GetEnvAsInt("DB_MAX_IDLE_CONNS", cfg.Storage.MaxIdleConns)
	cfg.Ledger.Driver = GetEnv("LEDGER_DRIVER", cfg.Ledger.Driver)
	cfg.Redis.Addr = GetEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.PoolSize = GetEnvAsInt("REDIS_POOL_SIZE", cfg.Redis.PoolSize)
	cfg.Redis.IdempotencyTTL = GetEnvAsDuration("IDEMPOTENCY_TTL", cfg.Redis.IdempotencyTTL)
	cfg.Kafka.Brokers = GetEnv("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.OrdersTopic = GetEnv("KAFKA_ORDERS_TOPIC", cfg.Kafka.OrdersTopic)
	cfg.Kafka.AlertsTopic = GetEnv("KAFKA_ALERTS_TOPIC", cfg.Kafka.AlertsTopic)
	cfg.Auth.JWTSecret = GetEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Checkout.FollowUpWorkers = GetEnvAsInt("FOLLOW_UP_WORKERS", cfg.Checkout.FollowUpWorkers)
	cfg.Checkout.FollowUpQueueSize = GetEnvAsInt("FOLLOW_UP_QUEUE_SIZE", cfg.Checkout.FollowUpQueueSize)
	cfg.Reconcile.Schedule = GetEnv("RECONCILE_SCHEDULE", cfg.Reconcile.Schedule)
	cfg.SeedFile = GetEnv("SEED_FILE", cfg.SeedFile)
}

func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageMySQL:
		if c.Storage.MySQLDSN == "" {
			return fmt.Errorf("storage driver %q requires MYSQL_DSN", c.Storage.Driver)
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage driver %q requires POSTGRES_DSN", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Ledger.Driver {
	case LedgerStorage:
	case LedgerRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("ledger driver %q requires REDIS_ADDR", c.Ledger.Driver)
		}
	default:
		return fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func GetEnvAsInt(key string, fallback int) int {
	strValue := GetEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func GetEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := GetEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
