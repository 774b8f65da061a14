package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewKPIConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

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
	DBRunMigrations   bool

	Redis        RedisConfig
	Storage      StorageConfig
	Upstream     UpstreamConfig
	Queue        QueueConfig
	Schedules    ScheduleConfig
	Export       ExportConfig
	Notification NotificationConfig
	PushMetrics  PushMetricsConfig
	Telemetry    TelemetryConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type StorageConfig struct {
	Mode          string
	Bucket        string
	EmulatorHost  string
	PublicBaseURL string
	SignedURLTTL  time.Duration
}

type UpstreamConfig struct {
	BaseURL        string
	APIToken       string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

type QueueConfig struct {
	Concurrency  int
	PollInterval time.Duration
	Lease        time.Duration
	JobTimeout   time.Duration
}

type ScheduleConfig struct {
	DefaultInterval time.Duration
	Snapshot        string
	AlertEvaluation string
	EnabledJobs     []string
}

type ExportConfig struct {
	BatchSize      int
	MaxRangeDays   int
	WaitAttempts   int
	WaitInterval   time.Duration
	IdempotencyTTL time.Duration
	MaxPDFRows     int
	MaxXLSXRows    int
	// SubmitRatePerMinute bounds export submissions per requester. Zero disables it.
	SubmitRatePerMinute int
	SubmitBurst         int
}

type NotificationConfig struct {
	RedisChannel string
	AlertEmails  []string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// PushMetricsConfig ships pipeline gauges to a Pushgateway or a remote_write
// endpoint. An empty Endpoint disables it.
type PushMetricsConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// TelemetryConfig drives logging, tracing and otel metrics.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelEndpoint  string
	OtelProtocol  string
	SamplingRatio float64
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "opspulse"),
		AppVersion:  getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0")),
		Environment: getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development")),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "opspulse"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "opspulse.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME_SECONDS", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_SECONDS", 300),
		DBRunMigrations:   getenvBool("DATABASE_RUN_MIGRATIONS", true),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Mode:          strings.ToLower(strings.TrimSpace(getenv("OBJECT_STORAGE_MODE", ""))),
			Bucket:        strings.TrimSpace(getenv("EXPORT_GCS_BUCKET_NAME", "opspulse-exports")),
			EmulatorHost:  strings.TrimSpace(getenv("STORAGE_EMULATOR_HOST", "")),
			PublicBaseURL: strings.TrimSpace(getenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")),
			SignedURLTTL:  getenvDuration("EXPORT_SIGNED_URL_TTL", 24*time.Hour),
		},
		Upstream: UpstreamConfig{
			BaseURL:        strings.TrimRight(strings.TrimSpace(getenv("UPSTREAM_BASE_URL", "http://localhost:9000")), "/"),
			APIToken:       strings.TrimSpace(getenv("UPSTREAM_API_TOKEN", "")),
			Timeout:        getenvDuration("UPSTREAM_TIMEOUT", 10*time.Second),
			MaxAttempts:    getenvInt("UPSTREAM_MAX_ATTEMPTS", 3),
			InitialBackoff: getenvDuration("UPSTREAM_INITIAL_BACKOFF", 500*time.Millisecond),
		},
		Queue: QueueConfig{
			Concurrency:  getenvInt("WORKER_CONCURRENCY", 2),
			PollInterval: getenvDuration("WORKER_POLL_INTERVAL", time.Second),
			Lease:        getenvDuration("WORKER_LEASE", 5*time.Minute),
			JobTimeout:   getenvDuration("WORKER_JOB_TIMEOUT", 4*time.Minute),
		},
		Schedules: ScheduleConfig{
			DefaultInterval: getenvDuration("SCHEDULE_DEFAULT_INTERVAL", 5*time.Minute),
			Snapshot:        getenv("SNAPSHOT_SCHEDULE", "@hourly"),
			AlertEvaluation: getenv("ALERT_EVALUATION_SCHEDULE", "*/5 * * * *"),
			EnabledJobs:     parseList(getenv("SCHEDULER_ENABLED_JOBS", "")),
		},
		Export: ExportConfig{
			BatchSize:      getenvInt("EXPORT_BATCH_SIZE", 500),
			MaxRangeDays:   getenvInt("EXPORT_MAX_RANGE_DAYS", 366),
			WaitAttempts:   getenvInt("EXPORT_WAIT_ATTEMPTS", 60),
			WaitInterval:   getenvDuration("EXPORT_WAIT_INTERVAL", time.Second),
			IdempotencyTTL: getenvDuration("IDEMPOTENCY_TTL", 300*time.Second),
			MaxPDFRows:     getenvInt("EXPORT_MAX_PDF_ROWS", 2000),
			MaxXLSXRows:    getenvInt("EXPORT_MAX_XLSX_ROWS", 20000),

			SubmitRatePerMinute: getenvInt("EXPORT_SUBMIT_RATE_PER_MINUTE", 30),
			SubmitBurst:         getenvInt("EXPORT_SUBMIT_BURST", 10),
		},
		Notification: NotificationConfig{
			RedisChannel: getenv("ALERT_REDIS_CHANNEL", "opspulse:alerts"),
			AlertEmails:  parseList(getenv("ALERT_EMAIL_RECIPIENTS", "")),
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "alerts@opspulse.local"),
		},
		PushMetrics: PushMetricsConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("PUSH_METRICS_EXPORTER", "prometheus_pushgateway"))),
			Endpoint:  strings.TrimSpace(getenv("PUSH_METRICS_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("PUSH_METRICS_AUTH_TOKEN", "")),
			Interval:  getenvDuration("PUSH_METRICS_INTERVAL", time.Minute),
		},
		Telemetry: loadTelemetry(),
	}
}

func loadTelemetry() TelemetryConfig {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}
	return TelemetryConfig{
		LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OtelEnabled:   getenvBool("OTEL_ENABLED", true),
		OtelEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
		OtelProtocol:  strings.ToLower(strings.TrimSpace(protocol)),
		SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
