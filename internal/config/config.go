package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Mode        string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint  string
	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis  RedisConfig
	Events EventsConfig
	Outbox OutboxConfig

	Invitation InvitationConfig
	Directory  DirectoryConfig
	Scheduler  SchedulerConfig
	RateLimit  RateLimitConfig
}

// ObservabilityConfig carries the logging and OpenTelemetry switches. The
// OTEL_* names follow the OpenTelemetry SDK environment conventions.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// EventsConfig selects the event channel transport.
type EventsConfig struct {
	Transport       string
	Consumer        string
	BlockTimeout    time.Duration
	ClaimIdle       time.Duration
	MaxRedeliveries int
	Workers         int
}

// OutboxConfig tunes the relay. Notify turns on LISTEN/NOTIFY wake-ups when
// the database is postgres; polling still runs as the fallback.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Notify       bool
}

type InvitationConfig struct {
	ExpiryWindow time.Duration
}

// DirectoryConfig tunes the user and organization read caches.
type DirectoryConfig struct {
	CacheTTL  time.Duration
	CacheSize int
}

// SchedulerConfig drives the expiry scheduler. A zero OutboxRetention keeps
// published outbox rows forever.
type SchedulerConfig struct {
	RunInterval     time.Duration
	JobTimeout      time.Duration
	LockEnabled     bool
	LockTTL         time.Duration
	OutboxRetention time.Duration
	EnabledJobs     []string
}

type RateLimitConfig struct {
	Enabled    bool
	Backend    string
	PolicyFile string
}

const (
	TransportMemory = "memory"
	TransportRedis  = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "orgsync"),
		AppVersion:   getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0")),
		Mode:         normalizeMode(getenv("APP_MODE", ModeMonolith)),
		Environment:  getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development")),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       getenvInt64("NODE_ID", 1),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),

		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelProtocol:  otlpProtocol(),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "orgsync"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "orgsync.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Events: EventsConfig{
			Transport:       normalizeTransport(getenv("EVENTS_TRANSPORT", TransportMemory)),
			Consumer:        getenv("EVENTS_CONSUMER", hostname()),
			BlockTimeout:    getenvDuration("EVENTS_BLOCK_TIMEOUT", 2*time.Second),
			ClaimIdle:       getenvDuration("EVENTS_CLAIM_IDLE", 30*time.Second),
			MaxRedeliveries: getenvInt("EVENTS_MAX_REDELIVERIES", 5),
			Workers:         getenvInt("EVENTS_WORKERS", 1),
		},
		Outbox: OutboxConfig{
			PollInterval: getenvDuration("OUTBOX_POLL_INTERVAL", time.Second),
			BatchSize:    getenvInt("OUTBOX_BATCH_SIZE", 50),
			MaxAttempts:  getenvInt("OUTBOX_MAX_ATTEMPTS", 0),
			Notify:       getenvBool("OUTBOX_NOTIFY", true),
		},
		Invitation: InvitationConfig{
			ExpiryWindow: getenvDuration("INVITATION_EXPIRY_WINDOW", 7*24*time.Hour),
		},
		Directory: DirectoryConfig{
			CacheTTL:  getenvDuration("DIRECTORY_CACHE_TTL", 5*time.Minute),
			CacheSize: getenvInt("DIRECTORY_CACHE_SIZE", 10000),
		},
		Scheduler: SchedulerConfig{
			RunInterval:     getenvDuration("SCHEDULER_RUN_INTERVAL", 24*time.Hour),
			JobTimeout:      getenvDuration("SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
			LockEnabled:     getenvBool("SCHEDULER_LOCK_ENABLED", false),
			LockTTL:         getenvDuration("SCHEDULER_LOCK_TTL", 10*time.Minute),
			OutboxRetention: getenvDuration("SCHEDULER_OUTBOX_RETENTION", 0),
			EnabledJobs:     getenvList("SCHEDULER_ENABLED_JOBS"),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getenvBool("RATE_LIMIT_ENABLED", false),
			Backend:    strings.ToLower(strings.TrimSpace(getenv("RATE_LIMIT_BACKEND", "local"))),
			PolicyFile: strings.TrimSpace(getenv("RATE_LIMIT_POLICY_FILE", "")),
		},
	}

	return cfg
}

const (
	ModeMonolith    = "monolith"
	ModeDistributed = "distributed"
)

// IsDistributed reports whether each service runs as its own process.
func (c Config) IsDistributed() bool {
	return c.Mode == ModeDistributed
}

func normalizeMode(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case ModeDistributed:
		return ModeDistributed
	default:
		return ModeMonolith
	}
}

func normalizeTransport(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case TransportRedis:
		return TransportRedis
	default:
		return TransportMemory
	}
}

// otlpProtocol prefers the traces-specific override, as the SDK does.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}
	return strings.ToLower(strings.TrimSpace(protocol))
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || strings.TrimSpace(name) == "" {
		return "orgsync"
	}
	return name
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
}

// getenvDuration accepts Go duration strings and bare integers as seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return def
}
