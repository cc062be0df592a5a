// Package config предоставляет структуры и функции для парсинга и загрузки конфига
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/magabrotheeeer/premium-entitlements/internal/plans"
)

// Поддерживаемые драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string `yaml:"env" env:"ENV" env-default:"local"`
	Storage         `yaml:"storage"`
	RedisConnection `yaml:"redis_connection"`
	RabbitMQ        `yaml:"rabbitmq"`
	HTTPServer      `yaml:"http_server"`
	Payments        `yaml:"payments"`
	Admin           `yaml:"admin"`
	Scheduler       `yaml:"scheduler"`
}

// Storage настройки хранилища пользователей и подписок.
type Storage struct {
	Driver           string        `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	ConnectionString string        `yaml:"connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath   string        `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
	MaxOpenConns     int           `yaml:"max_open_conns" env-default:"20"`
	MaxIdleConns     int           `yaml:"max_idle_conns" env-default:"5"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" env-default:"30m"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес отключает кэш.
type RedisConnection struct {
	AddressRedis   string        `yaml:"addressredis" env:"REDIS_ADDR"`
	Password       string        `yaml:"password" env:"REDIS_PASSWORD"`
	User           string        `yaml:"user"`
	DB             int           `yaml:"db"`
	MaxRetries     int           `yaml:"max_retries" env-default:"3"`
	DialTimeout    time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis   time.Duration `yaml:"timeoutredis" env-default:"2s"`
	EntitlementTTL time.Duration `yaml:"entitlement_ttl" env-default:"5m"`
}

// RabbitMQ структура для подключения к брокеру. Пустой URL отключает очереди.
type RabbitMQ struct {
	URL                string        `yaml:"url" env:"RABBITMQ_URL"`
	Retries            int           `yaml:"retries" env-default:"5"`
	Delay              time.Duration `yaml:"delay" env-default:"2s"`
	Exchange           string        `yaml:"exchange" env-default:"entitlements"`
	ConfirmationsQueue string        `yaml:"confirmations_queue" env-default:"payments.confirmed"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimit   float64       `yaml:"rate_limit" env-default:"20"`
	RateBurst   int           `yaml:"rate_burst" env-default:"40"`
}

// Payments настройки тарифов и платёжного вебхука.
type Payments struct {
	Product       string           `yaml:"product" env-default:"Premium"`
	Currency      string           `yaml:"currency" env-default:"XTR"`
	WebhookSecret string           `yaml:"webhook_secret" env:"PAYMENTS_WEBHOOK_SECRET"`
	Prices        map[string]int64 `yaml:"prices"`
}

// Admin настройки доступа к отчётам.
type Admin struct {
	IDs          []int64       `yaml:"ids" env:"ADMIN_IDS" env-separator:","`
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"ADMIN_JWT_SECRET"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"1h"`
}

// Scheduler настройки напоминаний об окончании подписки.
type Scheduler struct {
	Interval time.Duration `yaml:"interval" env-default:"1h"`
	Window   time.Duration `yaml:"window" env-default:"24h"`
}

// Load читает конфиг из файла по пути path с переопределением из окружения.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	if path == "" {
		return nil, fmt.Errorf("%s: config path is empty", op)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad функция для загрузки конфига по пути из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverPostgres:
		if c.ConnectionString == "" {
			return errors.New("storage.connection_string is required for postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Driver)
	}
	if c.Scheduler.Interval <= 0 {
		return errors.New("scheduler.interval must be positive")
	}
	return nil
}

// Catalog собирает неизменяемый каталог тарифов из секции payments.
func (c *Config) Catalog() (*plans.Catalog, error) {
	return plans.NewCatalog(plans.Options{
		Product:  c.Product,
		Currency: c.Currency,
		Prices:   c.Prices,
	})
}

// IsAdmin сообщает, входит ли пользователь в список администраторов.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage:\n"+
			"  Driver: %s\n"+
			"  MigrationsPath: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"  EntitlementTTL: %s\n"+
			"RabbitMQ:\n"+
			"  Exchange: %s\n"+
			"  ConfirmationsQueue: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"Payments:\n"+
			"  Currency: %s\n"+
			"Scheduler:\n"+
			"  Interval: %s\n"+
			"  Window: %s\n",
		c.Env,
		c.Driver,
		c.MigrationsPath,
		c.AddressRedis,
		c.DB,
		c.EntitlementTTL,
		c.Exchange,
		c.ConfirmationsQueue,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.Currency,
		c.Scheduler.Interval,
		c.Window,
	)
}
