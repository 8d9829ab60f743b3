package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Допустимые значения ITEM_STORAGE
const (
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"
)

// Config содержит все настройки Pricing Service
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	MongoDB  MongoDBConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Kafka    KafkaConfig
	JWT      JWTConfig
	Cron     CronConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host string
	Port string
}

// StorageConfig выбирает хранилище товаров и цен.
// Магазины всегда лежат в PostgreSQL.
type StorageConfig struct {
	ItemBackend string // mongo | postgres
}

type MongoDBConfig struct {
	URI      string
	Database string
}

// DatabaseConfig - PostgreSQL (магазины, а при ITEM_STORAGE=postgres ещё и товары)
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// CacheConfig - время жизни кешированных представлений (compare, featured deals)
type CacheConfig struct {
	TTL time.Duration
}

type KafkaConfig struct {
	Brokers           []string
	EventsTopic       string // PRICE_UPDATED, PRICE_REMOVED, ITEM_DELETED
	ObservationsTopic string // входящие наблюдения цен
	GroupID           string
	ConsumerEnabled   bool
	MinBytes          int
	MaxBytes          int
}

type JWTConfig struct {
	Secret string
}

// CronConfig - расписание сверки derived metrics, пустая строка отключает задачу
type CronConfig struct {
	ReconcileSchedule string
}

type LogConfig struct {
	Level        string
	LogstashAddr string
}

// Load загружает конфигурацию из переменных окружения.
// Файл .env в рабочей директории подхватывается, если он есть.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB value: %w", err)
	}

	cacheTTL, err := time.ParseDuration(getEnv("CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL value: %w", err)
	}

	consumerEnabled, err := strconv.ParseBool(getEnv("KAFKA_CONSUMER_ENABLED", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid KAFKA_CONSUMER_ENABLED value: %w", err)
	}

	minBytes, err := strconv.Atoi(getEnv("KAFKA_MIN_BYTES", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid KAFKA_MIN_BYTES value: %w", err)
	}

	maxBytes, err := strconv.Atoi(getEnv("KAFKA_MAX_BYTES", "10485760"))
	if err != nil {
		return nil, fmt.Errorf("invalid KAFKA_MAX_BYTES value: %w", err)
	}

	itemBackend := strings.ToLower(getEnv("ITEM_STORAGE", StorageMongo))
	if itemBackend != StorageMongo && itemBackend != StoragePostgres {
		return nil, fmt.Errorf("invalid ITEM_STORAGE value %q: expected %s or %s", itemBackend, StorageMongo, StoragePostgres)
	}

	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8085"),
		},
		Storage: StorageConfig{
			ItemBackend: itemBackend,
		},
		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "shopsmart"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "shopsmart"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Cache: CacheConfig{
			TTL: cacheTTL,
		},
		Kafka: KafkaConfig{
			Brokers:           splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			EventsTopic:       getEnv("KAFKA_EVENTS_TOPIC", "price_events"),
			ObservationsTopic: getEnv("KAFKA_OBSERVATIONS_TOPIC", "price_observations"),
			GroupID:           getEnv("KAFKA_GROUP_ID", "pricing-service"),
			ConsumerEnabled:   consumerEnabled,
			MinBytes:          minBytes,
			MaxBytes:          maxBytes,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-this-in-production"),
		},
		Cron: CronConfig{
			ReconcileSchedule: lookupEnv("RECONCILE_SCHEDULE", "@every 15m"),
		},
		Log: LogConfig{
			Level:        getEnv("LOG_LEVEL", "info"),
			LogstashAddr: os.Getenv("LOGSTASH_ADDR"),
		},
	}, nil
}

// DSN возвращает строку подключения к PostgreSQL в формате libpq (для GORM)
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL возвращает строку подключения в формате postgres:// (для pgxpool)
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

func (c *ServerConfig) Address() string {
	return c.Host + ":" + c.Port
}

func (c *RedisConfig) Address() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// lookupEnv в отличие от getEnv сохраняет явно заданную пустую строку
func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
