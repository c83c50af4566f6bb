package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	GRPCAddr       string
	Store          string // mysql or memory
	MySQLDSN       string
	RedisAddr      string
	KafkaBrokers   []string
	KafkaTopic     string
	CacheTTL       time.Duration
	CacheCapacity  int
	EventWorkers   int
	EventQueueSize int
	LogLevel       string
	AppEnv         string
}

func Load() Config {
	return Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:       getenv("GRPC_ADDR", ":50051"),
		Store:          strings.ToLower(getenv("STORE", "mysql")),
		MySQLDSN:       getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/smartshop?parseTime=true"),
		RedisAddr:      getenv("REDIS_ADDR", ""),
		KafkaBrokers:   splitCSV(getenv("KAFKA_BROKERS", "")),
		KafkaTopic:     getenv("KAFKA_TOPIC", "smartshop.orders"),
		CacheTTL:       getDuration("CACHE_TTL", 5*time.Minute),
		CacheCapacity:  getInt("CACHE_CAPACITY", 1000),
		EventWorkers:   getInt("EVENT_WORKERS", 4),
		EventQueueSize: getInt("EVENT_QUEUE_SIZE", 10000),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		AppEnv:         getenv("APP_ENV", "production"),
	}
}

func (c Config) Development() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getInt falls back to def when the value is missing, malformed or not positive.
func getInt(k string, def int) int {
	n, err := strconv.Atoi(getenv(k, ""))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getenv(k, ""))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
