package config

import (
	"os"
	"strconv"
	"time"

	"task_reminders/internal/logger"

	"github.com/joho/godotenv"
)

// NotifyPolicy selects the scanner's eligibility bound for "already notified".
type NotifyPolicy string

const (
	// PolicyOnce notifies once per overdue episode: eligible while
	// updated_at is null or behind the due date.
	PolicyOnce NotifyPolicy = "once"
	// PolicyEveryCycle re-notifies every poll cycle if the task was not
	// otherwise touched within the last interval.
	PolicyEveryCycle NotifyPolicy = "every_cycle"
)

type Config struct {
	AppPort     string
	DatabaseURL string
	JWTSecret   string

	// Broker
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QueueName     string

	// Scanner
	ScanInterval time.Duration
	NotifyPolicy NotifyPolicy

	// Dispatcher redelivery: how long a claimed-but-unacked message stays
	// pending before it is handed out again.
	RequeueMinIdle time.Duration

	// Push channel connect rate limiting
	WSRateLimit  int
	WSRateWindow time.Duration

	LogLevel string
	LogJSON  bool
}

// Load reads configuration from the environment (.env honored if present).
func Load() *Config {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	queueName := os.Getenv("QUEUE_NAME")
	if queueName == "" {
		queueName = "TaskReminders"
	}

	policy := PolicyOnce
	switch NotifyPolicy(os.Getenv("NOTIFY_POLICY")) {
	case PolicyEveryCycle:
		policy = PolicyEveryCycle
	case PolicyOnce, "":
	default:
		logger.Warn("unknown NOTIFY_POLICY, using default", "policy", os.Getenv("NOTIFY_POLICY"), "default", PolicyOnce)
	}

	return &Config{
		AppPort:        port,
		DatabaseURL:    dbURL,
		JWTSecret:      jwtSecret,
		RedisAddr:      redisAddr,
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        envInt("REDIS_DB", 0),
		QueueName:      queueName,
		ScanInterval:   time.Duration(envInt("SCAN_INTERVAL_SECONDS", 300)) * time.Second,
		NotifyPolicy:   policy,
		RequeueMinIdle: time.Duration(envInt("REQUEUE_MIN_IDLE_SECONDS", 30)) * time.Second,
		WSRateLimit:    envInt("WS_RATE_LIMIT", 30),
		WSRateWindow:   time.Duration(envInt("WS_RATE_WINDOW_SECONDS", 60)) * time.Second,
		LogLevel:       os.Getenv("LOG_LEVEL"),
		LogJSON:        os.Getenv("LOG_JSON") == "true",
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
