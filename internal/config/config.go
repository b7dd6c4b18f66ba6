// internal/config/config.go
package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Archive  ArchiveConfig
	Supplier SupplierConfig
	Cycle    CycleConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	StatusTTLSeconds int
}

type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type SupplierConfig struct {
	BaseURL        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	RequestTimeout time.Duration
}

// CycleConfig is the immutable snapshot consumed by the replenishment engine.
// Components receive it by value and never read shared configuration state,
// so a cycle is reproducible and SKUs can be processed in parallel.
type CycleConfig struct {
	ServiceLevel       float64
	ReviewPeriodDays   int
	ForecastWindowDays int
	ExcludePromotions  bool
	SafetyStockFloor   float64
	DefaultPackSize    int64
	DefaultMinOrderQty int64
	BatchSize          int
	SubmitConcurrency  int
	RetryAttempts      int
	RetryBackoff       time.Duration
	MaxRetryBackoff    time.Duration
	WorkerCount        int
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		// Set default values
		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 15)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 15)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("DATABASE_URL", "")
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "replenisher")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_STATUS_TTL_SECONDS", 3600)
		viper.SetDefault("ARCHIVE_ENABLED", false)
		viper.SetDefault("ARCHIVE_ENDPOINT", "")
		viper.SetDefault("ARCHIVE_ACCESS_KEY", "")
		viper.SetDefault("ARCHIVE_SECRET_KEY", "")
		viper.SetDefault("ARCHIVE_BUCKET", "replenisher-reports")
		viper.SetDefault("ARCHIVE_REGION", "us-east-1")
		viper.SetDefault("ARCHIVE_USE_SSL", true)
		viper.SetDefault("SUPPLIER_API_URL", "http://localhost:9090")
		viper.SetDefault("SUPPLIER_TOKEN_URL", "")
		viper.SetDefault("SUPPLIER_CLIENT_ID", "")
		viper.SetDefault("SUPPLIER_CLIENT_SECRET", "")
		viper.SetDefault("SUPPLIER_REQUEST_TIMEOUT_SECONDS", 10)
		viper.SetDefault("CYCLE_SERVICE_LEVEL", 0.95)
		viper.SetDefault("CYCLE_REVIEW_PERIOD_DAYS", 1)
		viper.SetDefault("CYCLE_FORECAST_WINDOW_DAYS", 28)
		viper.SetDefault("CYCLE_EXCLUDE_PROMOTIONS", false)
		viper.SetDefault("CYCLE_SAFETY_STOCK_FLOOR", 5)
		viper.SetDefault("CYCLE_DEFAULT_PACK_SIZE", 1)
		viper.SetDefault("CYCLE_DEFAULT_MIN_ORDER_QTY", 0)
		viper.SetDefault("CYCLE_BATCH_SIZE", 25)
		viper.SetDefault("CYCLE_SUBMIT_CONCURRENCY", 4)
		viper.SetDefault("CYCLE_RETRY_ATTEMPTS", 4)
		viper.SetDefault("CYCLE_RETRY_BACKOFF_MS", 500)
		viper.SetDefault("CYCLE_MAX_RETRY_BACKOFF_MS", 8000)
		viper.SetDefault("CYCLE_WORKER_COUNT", 4)

		// Read from environment variables
		viper.AutomaticEnv()

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				URL:      viper.GetString("DATABASE_URL"),
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			Cache: CacheConfig{
				Enabled:          viper.GetBool("CACHE_ENABLED"),
				RedisURL:         viper.GetString("REDIS_URL"),
				RedisHost:        viper.GetString("REDIS_HOST"),
				RedisPort:        viper.GetString("REDIS_PORT"),
				RedisPassword:    viper.GetString("REDIS_PASSWORD"),
				RedisDB:          viper.GetInt("REDIS_DB"),
				StatusTTLSeconds: viper.GetInt("CACHE_STATUS_TTL_SECONDS"),
			},
			Archive: ArchiveConfig{
				Enabled:   viper.GetBool("ARCHIVE_ENABLED"),
				Endpoint:  viper.GetString("ARCHIVE_ENDPOINT"),
				AccessKey: viper.GetString("ARCHIVE_ACCESS_KEY"),
				SecretKey: viper.GetString("ARCHIVE_SECRET_KEY"),
				Bucket:    viper.GetString("ARCHIVE_BUCKET"),
				Region:    viper.GetString("ARCHIVE_REGION"),
				UseSSL:    viper.GetBool("ARCHIVE_USE_SSL"),
			},
			Supplier: SupplierConfig{
				BaseURL:        viper.GetString("SUPPLIER_API_URL"),
				TokenURL:       viper.GetString("SUPPLIER_TOKEN_URL"),
				ClientID:       viper.GetString("SUPPLIER_CLIENT_ID"),
				ClientSecret:   viper.GetString("SUPPLIER_CLIENT_SECRET"),
				RequestTimeout: time.Duration(viper.GetInt("SUPPLIER_REQUEST_TIMEOUT_SECONDS")) * time.Second,
			},
			Cycle: CycleConfig{
				ServiceLevel:       viper.GetFloat64("CYCLE_SERVICE_LEVEL"),
				ReviewPeriodDays:   viper.GetInt("CYCLE_REVIEW_PERIOD_DAYS"),
				ForecastWindowDays: viper.GetInt("CYCLE_FORECAST_WINDOW_DAYS"),
				ExcludePromotions:  viper.GetBool("CYCLE_EXCLUDE_PROMOTIONS"),
				SafetyStockFloor:   viper.GetFloat64("CYCLE_SAFETY_STOCK_FLOOR"),
				DefaultPackSize:    viper.GetInt64("CYCLE_DEFAULT_PACK_SIZE"),
				DefaultMinOrderQty: viper.GetInt64("CYCLE_DEFAULT_MIN_ORDER_QTY"),
				BatchSize:          viper.GetInt("CYCLE_BATCH_SIZE"),
				SubmitConcurrency:  viper.GetInt("CYCLE_SUBMIT_CONCURRENCY"),
				RetryAttempts:      viper.GetInt("CYCLE_RETRY_ATTEMPTS"),
				RetryBackoff:       time.Duration(viper.GetInt("CYCLE_RETRY_BACKOFF_MS")) * time.Millisecond,
				MaxRetryBackoff:    time.Duration(viper.GetInt("CYCLE_MAX_RETRY_BACKOFF_MS")) * time.Millisecond,
				WorkerCount:        viper.GetInt("CYCLE_WORKER_COUNT"),
			},
		}
	})

	return instance
}

// DefaultCycleConfig returns the engine defaults used when no environment
// configuration is present, mainly by tests and the dry-run CLI path.
func DefaultCycleConfig() CycleConfig {
	return CycleConfig{
		ServiceLevel:       0.95,
		ReviewPeriodDays:   1,
		ForecastWindowDays: 28,
		SafetyStockFloor:   5,
		DefaultPackSize:    1,
		DefaultMinOrderQty: 0,
		BatchSize:          25,
		SubmitConcurrency:  4,
		RetryAttempts:      4,
		RetryBackoff:       500 * time.Millisecond,
		MaxRetryBackoff:    8 * time.Second,
		WorkerCount:        4,
	}
}
