package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Booking      BookingConfig
	Notification NotificationConfig
}

type AppConfig struct {
	Port     string
	Env      string
	LogLevel string
}

// IsProduction hides internal error detail from API responses
func (c AppConfig) IsProduction() bool {
	return c.Env == "production"
}

type DBConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxIdleConns int
	MaxOpenConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret       string
	AccessExpiry time.Duration
}

type BookingConfig struct {
	// TxTimeout bounds one booking or cancellation unit of work
	TxTimeout      time.Duration
	IdempotencyTTL time.Duration
}

type NotificationConfig struct {
	Provider       string // stub, sendgrid or ses
	FromEmail      string
	FromName       string
	SendGridAPIKey string
	AWSRegion      string
	QueueSize      int
	Workers        int
	MaxAttempts    int
	InitialBackoff time.Duration
	SendTimeout    time.Duration
}

func setDefaults() {
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_IDLE_CONNS", 10)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 100)
	viper.SetDefault("DB_AUTO_MIGRATE", false)

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)

	viper.SetDefault("BOOKING_TX_TIMEOUT", "5s")
	viper.SetDefault("BOOKING_IDEMPOTENCY_TTL", "24h")

	viper.SetDefault("NOTIFY_PROVIDER", "stub")
	viper.SetDefault("NOTIFY_FROM_NAME", "Clinic Appointments")
	viper.SetDefault("NOTIFY_QUEUE_SIZE", 256)
	viper.SetDefault("NOTIFY_WORKERS", 2)
	viper.SetDefault("NOTIFY_MAX_ATTEMPTS", 5)
	viper.SetDefault("NOTIFY_INITIAL_BACKOFF", "1s")
	viper.SetDefault("NOTIFY_SEND_TIMEOUT", "10s")
}

func readConfig() error {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()
	setDefaults()

	// .env is optional; the environment alone is enough in containers
	if err := viper.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		if !errors.As(err, &pathErr) {
			return err
		}
	}
	return nil
}

func dbConfig() DBConfig {
	return DBConfig{
		Host:         viper.GetString("DB_HOST"),
		Port:         viper.GetString("DB_PORT"),
		User:         viper.GetString("DB_USER"),
		Password:     viper.GetString("DB_PASSWORD"),
		Name:         viper.GetString("DB_NAME"),
		SSLMode:      viper.GetString("DB_SSLMODE"),
		MaxIdleConns: viper.GetInt("DB_MAX_IDLE_CONNS"),
		MaxOpenConns: viper.GetInt("DB_MAX_OPEN_CONNS"),
		AutoMigrate:  viper.GetBool("DB_AUTO_MIGRATE"),
	}
}

// LoadDBConfig reads only the database section, for tooling such as cmd/migrate
func LoadDBConfig() (DBConfig, error) {
	if err := readConfig(); err != nil {
		return DBConfig{}, err
	}
	return dbConfig(), nil
}

func LoadConfig() (*Config, error) {
	if err := readConfig(); err != nil {
		return nil, err
	}

	accessExpiry, err := time.ParseDuration(viper.GetString("JWT_ACCESS_EXPIRY"))
	if err != nil {
		accessExpiry = 15 * time.Minute
	}

	config := &Config{
		App: AppConfig{
			Port:     viper.GetString("APP_PORT"),
			Env:      viper.GetString("APP_ENV"),
			LogLevel: viper.GetString("LOG_LEVEL"),
		},
		DB: dbConfig(),
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:       viper.GetString("JWT_SECRET"),
			AccessExpiry: accessExpiry,
		},
		Booking: BookingConfig{
			TxTimeout:      viper.GetDuration("BOOKING_TX_TIMEOUT"),
			IdempotencyTTL: viper.GetDuration("BOOKING_IDEMPOTENCY_TTL"),
		},
		Notification: NotificationConfig{
			Provider:       viper.GetString("NOTIFY_PROVIDER"),
			FromEmail:      viper.GetString("NOTIFY_FROM_EMAIL"),
			FromName:       viper.GetString("NOTIFY_FROM_NAME"),
			SendGridAPIKey: viper.GetString("SENDGRID_API_KEY"),
			AWSRegion:      viper.GetString("AWS_REGION"),
			QueueSize:      viper.GetInt("NOTIFY_QUEUE_SIZE"),
			Workers:        viper.GetInt("NOTIFY_WORKERS"),
			MaxAttempts:    viper.GetInt("NOTIFY_MAX_ATTEMPTS"),
			InitialBackoff: viper.GetDuration("NOTIFY_INITIAL_BACKOFF"),
			SendTimeout:    viper.GetDuration("NOTIFY_SEND_TIMEOUT"),
		},
	}

	if config.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return config, nil
}
