package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root application configuration, grouped per subsystem
type Config struct {
	Environment string

	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Queue    QueueConfig
	LLM      LLMConfig
	Analysis AnalysisConfig
	Storage  StorageConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	LogLevel        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // minutes
	MaxConnIdleTime int // minutes
}

// CacheConfig holds Redis settings
type CacheConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	DialTimeout  int // seconds
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	PoolSize     int
	MinIdleConns int

	// ClassifiedDataTTLDays bounds the lifetime of cached classified-data
	// detail payloads
	ClassifiedDataTTLDays int
}

// QueueConfig holds Asynq worker settings
type QueueConfig struct {
	RedisHost      string
	RedisPort      int
	RedisPassword  string
	RedisDB        int
	DialTimeout    int // seconds
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	Concurrency    int
	StrictPriority bool
}

// LLMConfig holds settings for the external chat/embedding capability
type LLMConfig struct {
	APIKey             string
	BaseURL            string
	Model              string
	EmbeddingModel     string
	RequestTimeout     int // seconds, per call
	RateLimitPerMinute int
}

// AnalysisConfig holds resolution pipeline tuning
type AnalysisConfig struct {
	BatchSize          int // texts per AI fallback batch
	MaxConcurrent      int // concurrent AI batches within one column
	DefaultSampleSize  int // llm discovery sample
	DefaultMaxCodes    int
	MinClusterTexts    int // clustering engine minimum corpus size
	MinClusterTestRows int // cluster test minimum non-empty rows
}

// StorageConfig holds local file storage settings
type StorageConfig struct {
	BasePath    string
	MaxFileSize int64 // bytes
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("No .env file found, using environment variables only")
		}
	}

	viper.SetDefault("ENV", "development")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", "8080")

	// Database defaults
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_NAME", "surveycoding")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_LOG_LEVEL", "silent")
	viper.SetDefault("DB_MAX_CONNECTIONS", 25)
	viper.SetDefault("DB_MIN_CONNECTIONS", 5)
	viper.SetDefault("DB_MAX_CONN_LIFETIME", 60)
	viper.SetDefault("DB_MAX_CONN_IDLE_TIME", 10)

	// Redis defaults
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_DIAL_TIMEOUT", 5)
	viper.SetDefault("REDIS_READ_TIMEOUT", 5)
	viper.SetDefault("REDIS_WRITE_TIMEOUT", 5)
	viper.SetDefault("REDIS_POOL_SIZE", 10)
	viper.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	viper.SetDefault("CACHE_CLASSIFIED_DATA_TTL_DAYS", 30)

	// Queue defaults
	viper.SetDefault("WORKER_CONCURRENCY", 10)
	viper.SetDefault("WORKER_STRICT_PRIORITY", false)

	// LLM defaults
	viper.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	viper.SetDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small")
	viper.SetDefault("LLM_REQUEST_TIMEOUT", 60)
	viper.SetDefault("OPENAI_RATE_LIMIT_PER_MINUTE", 100)

	// Analysis defaults
	viper.SetDefault("ANALYSIS_BATCH_SIZE", 50)
	viper.SetDefault("ANALYSIS_MAX_CONCURRENT", 3)
	viper.SetDefault("ANALYSIS_DEFAULT_SAMPLE_SIZE", 50)
	viper.SetDefault("ANALYSIS_DEFAULT_MAX_CODES", 10)
	viper.SetDefault("ANALYSIS_MIN_CLUSTER_TEXTS", 10)
	viper.SetDefault("ANALYSIS_MIN_CLUSTER_TEST_ROWS", 5)

	// Storage defaults
	viper.SetDefault("STORAGE_BASE_PATH", "/tmp/uploads")
	viper.SetDefault("MAX_FILE_SIZE_MB", 100)

	viper.AutomaticEnv()

	cfg := &Config{
		Environment: viper.GetString("ENV"),
		Server: ServerConfig{
			Host: viper.GetString("SERVER_HOST"),
			Port: viper.GetString("SERVER_PORT"),
		},
		Database: DatabaseConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetInt("DB_PORT"),
			User:            viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			Database:        viper.GetString("DB_NAME"),
			SSLMode:         viper.GetString("DB_SSLMODE"),
			LogLevel:        viper.GetString("DB_LOG_LEVEL"),
			MaxConnections:  viper.GetInt("DB_MAX_CONNECTIONS"),
			MinConnections:  viper.GetInt("DB_MIN_CONNECTIONS"),
			MaxConnLifetime: viper.GetInt("DB_MAX_CONN_LIFETIME"),
			MaxConnIdleTime: viper.GetInt("DB_MAX_CONN_IDLE_TIME"),
		},
		Cache: CacheConfig{
			Host:                  viper.GetString("REDIS_HOST"),
			Port:                  viper.GetInt("REDIS_PORT"),
			Password:              viper.GetString("REDIS_PASSWORD"),
			DB:                    viper.GetInt("REDIS_DB"),
			DialTimeout:           viper.GetInt("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:           viper.GetInt("REDIS_READ_TIMEOUT"),
			WriteTimeout:          viper.GetInt("REDIS_WRITE_TIMEOUT"),
			PoolSize:              viper.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns:          viper.GetInt("REDIS_MIN_IDLE_CONNS"),
			ClassifiedDataTTLDays: viper.GetInt("CACHE_CLASSIFIED_DATA_TTL_DAYS"),
		},
		Queue: QueueConfig{
			RedisHost:      viper.GetString("REDIS_HOST"),
			RedisPort:      viper.GetInt("REDIS_PORT"),
			RedisPassword:  viper.GetString("REDIS_PASSWORD"),
			RedisDB:        viper.GetInt("REDIS_DB"),
			DialTimeout:    viper.GetInt("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:    viper.GetInt("REDIS_READ_TIMEOUT"),
			WriteTimeout:   viper.GetInt("REDIS_WRITE_TIMEOUT"),
			Concurrency:    viper.GetInt("WORKER_CONCURRENCY"),
			StrictPriority: viper.GetBool("WORKER_STRICT_PRIORITY"),
		},
		LLM: LLMConfig{
			APIKey:             viper.GetString("OPENAI_API_KEY"),
			BaseURL:            viper.GetString("OPENAI_BASE_URL"),
			Model:              viper.GetString("OPENAI_MODEL"),
			EmbeddingModel:     viper.GetString("OPENAI_EMBEDDING_MODEL"),
			RequestTimeout:     viper.GetInt("LLM_REQUEST_TIMEOUT"),
			RateLimitPerMinute: viper.GetInt("OPENAI_RATE_LIMIT_PER_MINUTE"),
		},
		Analysis: AnalysisConfig{
			BatchSize:          viper.GetInt("ANALYSIS_BATCH_SIZE"),
			MaxConcurrent:      viper.GetInt("ANALYSIS_MAX_CONCURRENT"),
			DefaultSampleSize:  viper.GetInt("ANALYSIS_DEFAULT_SAMPLE_SIZE"),
			DefaultMaxCodes:    viper.GetInt("ANALYSIS_DEFAULT_MAX_CODES"),
			MinClusterTexts:    viper.GetInt("ANALYSIS_MIN_CLUSTER_TEXTS"),
			MinClusterTestRows: viper.GetInt("ANALYSIS_MIN_CLUSTER_TEST_ROWS"),
		},
		Storage: StorageConfig{
			BasePath:    viper.GetString("STORAGE_BASE_PATH"),
			MaxFileSize: viper.GetInt64("MAX_FILE_SIZE_MB") * 1024 * 1024,
		},
	}

	if cfg.Database.User == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	return cfg, nil
}

// GetDatabaseURL constructs the PostgreSQL connection string
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.Database, c.Database.SSLMode)
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// LogConfig logs the configuration (hiding sensitive data)
func (c *Config) LogConfig() {
	log.Printf("Configuration loaded:")
	log.Printf("  Environment: %s", c.Environment)
	log.Printf("  Server: %s:%s", c.Server.Host, c.Server.Port)
	log.Printf("  Database: %s:%d/%s", c.Database.Host, c.Database.Port, c.Database.Database)
	log.Printf("  Redis: %s:%d (DB: %d)", c.Cache.Host, c.Cache.Port, c.Cache.DB)
	log.Printf("  Worker Concurrency: %d", c.Queue.Concurrency)
	log.Printf("  LLM Model: %s", c.LLM.Model)

	if c.LLM.APIKey != "" {
		log.Printf("  OpenAI API Key: [CONFIGURED]")
	} else {
		log.Printf("  OpenAI API Key: [NOT SET]")
	}
}
