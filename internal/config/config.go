// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	MigrationsPath          string `yaml:"migrations_path"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	StripeConnection        `yaml:"stripe_connection"`
	RabbitMQConnection      `yaml:"rabbitmq_connection"`
	SMTPConnection          `yaml:"smtp_connection"`
	Tiers                   []TierEntry `yaml:"tiers"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// JWTToken структура для проверки токена identity-провайдера
type JWTToken struct {
	JWTSecretKey string `yaml:"jwt_secret_key"`
}

// StripeConnection структура с ключами и URL для работы со Stripe
type StripeConnection struct {
	SecretKey       string `yaml:"secret_key"`
	WebhookSecret   string `yaml:"webhook_secret"`
	SuccessURL      string `yaml:"success_url"`
	CancelURL       string `yaml:"cancel_url"`
	PortalReturnURL string `yaml:"portal_return_url"`
	TrialPeriodDays int64  `yaml:"trial_period_days"`
}

// RabbitMQConnection структура для настройки подключения к RabbitMQ
type RabbitMQConnection struct {
	RabbitMQURL        string        `yaml:"rabbitmq_url"`
	RabbitMQMaxRetries int           `yaml:"rabbitmq_max_retries"`
	RabbitMQRetryDelay time.Duration `yaml:"rabbitmq_retry_delay"`
}

// SMTPConnection структура для отправки писем операторам (alert-sender)
type SMTPConnection struct {
	SMTPHost      string `yaml:"smtp_host"`
	SMTPPort      string `yaml:"smtp_port"`
	SMTPUser      string `yaml:"smtp_user"`
	SMTPPassword  string `yaml:"smtp_password"`
	OperatorEmail string `yaml:"operator_email"`
}

// TierEntry описывает одну строку каталога тарифов:
// сопоставление price id или lookup key Stripe внутреннему тарифу.
type TierEntry struct {
	PriceID   string `yaml:"price_id"`
	LookupKey string `yaml:"lookup_key"`
	Tier      string `yaml:"tier"`
	Student   bool   `yaml:"student"`
	Interval  string `yaml:"interval"` // month или year, по умолчанию month
}

// MustLoad функция для загрузки конфига, путь берётся из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"MigrationsPath: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"RabbitMQ:\n"+
			"  URL: %s\n"+
			"Tiers: %d entries\n",
		c.Env,
		c.StorageConnectionString,
		c.MigrationsPath,
		c.AddressRedis,
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.RabbitMQURL,
		len(c.Tiers),
	)
}
