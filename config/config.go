package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	AppMode string

	// StoreDriver selects the chat store: "postgres" or "memory".
	StoreDriver    string
	// MemoryStaffIDs seeds the in-memory staff roster: comma separated uuids.
	MemoryStaffIDs string
	DBHost         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBPort         string

	JWTSecret string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string
	S3PresignExpiry   time.Duration

	KafkaBrokers string
	KafkaTopic   string

	OTelEndpoint string
	ServiceName  string

	CORSOrigins string

	WorkerPoolSize      int
	ClientSendBuffer    int
	TypingTTL           time.Duration
	SendLimitPerWindow  int
	SendLimitWindow     time.Duration
	APILimitPerWindow   int
	APILimitWindow      time.Duration
	MarkReadOnFirstPage bool
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:             getEnv("APP_PORT", "8080"),
		AppMode:             getEnv("APP_MODE", "debug"),
		StoreDriver:         getEnv("STORE_DRIVER", "postgres"),
		MemoryStaffIDs:      getEnv("MEMORY_STAFF_IDS", ""),
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBUser:              getEnv("DB_USER", "postgres"),
		DBPassword:          getEnv("DB_PASSWORD", "postgres"),
		DBName:              getEnv("DB_NAME", "salon_chat"),
		DBPort:              getEnv("DB_PORT", "5432"),
		JWTSecret:           getEnv("JWT_SECRET", "change-me"),
		RedisHost:           getEnv("REDIS_HOST", ""),
		RedisPort:           getEnv("REDIS_PORT", "6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		S3Bucket:            getEnv("S3_BUCKET", ""),
		S3Region:            getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:       getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:   getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3PublicBaseURL:     getEnv("S3_PUBLIC_BASE_URL", ""),
		S3PresignExpiry:     getEnvAsDuration("S3_PRESIGN_EXPIRY", 15*time.Minute),
		KafkaBrokers:        getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "chat.events"),
		OTelEndpoint:        getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:         getEnv("OTEL_SERVICE_NAME", "salon-chat"),
		CORSOrigins:         getEnv("CORS_ORIGINS", "*"),
		WorkerPoolSize:      getEnvAsInt("WORKER_POOL_SIZE", 64),
		ClientSendBuffer:    getEnvAsInt("CLIENT_SEND_BUFFER", 256),
		TypingTTL:           getEnvAsDuration("TYPING_TTL", 8*time.Second),
		SendLimitPerWindow:  getEnvAsInt("SEND_LIMIT_PER_WINDOW", 30),
		SendLimitWindow:     getEnvAsDuration("SEND_LIMIT_WINDOW", 10*time.Second),
		APILimitPerWindow:   getEnvAsInt("API_LIMIT_PER_WINDOW", 300),
		APILimitWindow:      getEnvAsDuration("API_LIMIT_WINDOW", time.Minute),
		MarkReadOnFirstPage: getEnvAsBool("MARK_READ_ON_FIRST_PAGE", true),
	}
}

// RedisAddr is empty when redis is not configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return c.RedisHost + ":" + c.RedisPort
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
