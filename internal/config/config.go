package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Realtime  RealtimeConfig
	Admission AdmissionConfig
	Jobs      JobsConfig
	Engine    EngineConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

// RealtimeConfig holds the websocket liveness tunables. PongTimeout must be
// at least twice PingInterval, otherwise healthy connections get reaped on
// normal network jitter; Load clamps it up when misconfigured.
type RealtimeConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBufferSize int
	MaxMessageSize int64
}

type AdmissionConfig struct {
	Window      time.Duration
	MaxRequests int
}

type JobsConfig struct {
	// Retention is how long a terminal job snapshot stays readable in memory
	// for polling clients before eviction.
	Retention   time.Duration
	ReportTopic string
}

type EngineConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	cfg := &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Realtime: RealtimeConfig{
			PingInterval:   getEnvAsDuration("WS_PING_INTERVAL_SECONDS", 25*time.Second),
			PongTimeout:    getEnvAsDuration("WS_PONG_TIMEOUT_SECONDS", 60*time.Second),
			WriteTimeout:   getEnvAsDuration("WS_WRITE_TIMEOUT_SECONDS", 10*time.Second),
			SendBufferSize: getEnvAsInt("WS_SEND_BUFFER_SIZE", 256),
			MaxMessageSize: int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 4096)),
		},
		Admission: AdmissionConfig{
			Window:      getEnvAsDuration("ADMISSION_WINDOW_SECONDS", 60*time.Second),
			MaxRequests: getEnvAsInt("ADMISSION_MAX_REQUESTS", 10),
		},
		Jobs: JobsConfig{
			Retention:   getEnvAsDuration("JOB_RETENTION_SECONDS", 30*time.Minute),
			ReportTopic: getEnv("ENGINE_REPORT_TOPIC_NAME", "ENGINE_REPORT"),
		},
		Engine: EngineConfig{
			BaseURL:        getEnv("ENGINE_BASE_URL", "http://localhost:5000"),
			RequestTimeout: getEnvAsDuration("ENGINE_REQUEST_TIMEOUT_SECONDS", 120*time.Second),
		},
	}

	// Timeout below 2x ping period causes false-positive reaps.
	if cfg.Realtime.PongTimeout < 2*cfg.Realtime.PingInterval {
		log.Printf("[WARN] WS_PONG_TIMEOUT (%s) < 2x WS_PING_INTERVAL (%s), clamping timeout",
			cfg.Realtime.PongTimeout, cfg.Realtime.PingInterval)
		cfg.Realtime.PongTimeout = 2 * cfg.Realtime.PingInterval
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil && value > 0 {
		return time.Duration(value) * time.Second
	}
	return fallback
}
