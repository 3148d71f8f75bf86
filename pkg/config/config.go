package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`

	Currency              string  `envconfig:"CURRENCY" default:"USD"`
	DeliveryFee           float64 `envconfig:"DELIVERY_FEE" default:"100"`
	FreeDeliveryThreshold float64 `envconfig:"FREE_DELIVERY_THRESHOLD" default:"500"`

	MongoURI    string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDBName string `envconfig:"MONGO_DB_NAME" default:"marketdb"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`

	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"postgres"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"postgres"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"marketdb"`
	MigrationsPath   string `envconfig:"MIGRATIONS_PATH" default:"internal/repository/migrations"`

	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`

	PaymentProviderURL     string        `envconfig:"PAYMENT_PROVIDER_URL" default:"http://localhost:9090"`
	PaymentProviderTimeout time.Duration `envconfig:"PAYMENT_PROVIDER_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
