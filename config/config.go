package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Mpesa             MpesaConfig
	Redis             RedisConfig
	Payments          PaymentsConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type MpesaConfig struct {
	Environment           string
	BaseURL               string
	ConsumerKey           string
	ConsumerSecret        string
	ShortCode             string
	Passkey               string
	TransactionType       string
	B2CShortCode          string
	B2CInitiatorName      string
	B2CSecurityCredential string
	B2CCommandID          string
	CallbackBaseURL       string
	TokenExpirySkew       time.Duration
	HTTPTimeout           time.Duration
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	EventsChannel string
}

type PaymentsConfig struct {
	Currency            string
	StaleSubmittedAfter time.Duration
	JobBatchSize        int32
}

type JobsConfig struct {
	StaleScanInterval  time.Duration
	PayoutScanInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	mpesaEnv := strings.ToLower(getEnv("MPESA_ENVIRONMENT", "sandbox"))

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "rental-payments-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Mpesa: MpesaConfig{
			Environment:           mpesaEnv,
			BaseURL:               getEnv("MPESA_BASE_URL", defaultMpesaBaseURL(mpesaEnv)),
			ConsumerKey:           getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:        getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:             getEnv("MPESA_SHORTCODE", ""),
			Passkey:               getEnv("MPESA_PASSKEY", ""),
			TransactionType:       getEnv("MPESA_TRANSACTION_TYPE", "CustomerPayBillOnline"),
			B2CShortCode:          getEnv("MPESA_B2C_SHORTCODE", ""),
			B2CInitiatorName:      getEnv("MPESA_B2C_INITIATOR_NAME", ""),
			B2CSecurityCredential: getEnv("MPESA_B2C_SECURITY_CREDENTIAL", ""),
			B2CCommandID:          getEnv("MPESA_B2C_COMMAND_ID", "BusinessPayment"),
			CallbackBaseURL:       getEnv("MPESA_CALLBACK_BASE_URL", ""),
			TokenExpirySkew:       getSecondsEnv("MPESA_TOKEN_EXPIRY_SKEW_SECONDS", 60*time.Second),
			HTTPTimeout:           getSecondsEnv("MPESA_HTTP_TIMEOUT_SECONDS", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", ""),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getIntEnv("REDIS_DB", 0),
			EventsChannel: getEnv("REDIS_EVENTS_CHANNEL", "rental-payments.events"),
		},
		Payments: PaymentsConfig{
			Currency:            strings.ToUpper(getEnv("PAYMENTS_CURRENCY", "KES")),
			StaleSubmittedAfter: getMinutesEnv("PAYMENTS_STALE_SUBMITTED_AFTER_MINUTES", 30*time.Minute),
			JobBatchSize:        int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			StaleScanInterval:  getMinutesEnv("PAYMENTS_STALE_SCAN_INTERVAL_MINUTES", 10*time.Minute),
			PayoutScanInterval: getMinutesEnv("PAYMENTS_PAYOUT_SCAN_INTERVAL_MINUTES", 60*time.Minute),
		},
	}, nil
}

func defaultMpesaBaseURL(environment string) string {
	if environment == "production" {
		return "https://api.safaricom.co.ke"
	}
	return "https://sandbox.safaricom.co.ke"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
