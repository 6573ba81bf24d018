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
	Environment string
	LogLevel    string

	HTTPAddr      string
	AuthJWTSecret string

	DBPath string

	Email EmailConfig

	LateFee LateFeeConfig

	Scheduler SchedulerConfig
}

type EmailConfig struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// LateFeeConfig selects the late-fee policy applied to overdue invoices.
// Policy is one of "flat", "percentage", "daily_percentage". FlatAmount is
// in cents; RateBps is basis points of the outstanding balance.
type LateFeeConfig struct {
	Policy     string
	FlatAmount int64
	RateBps    int64
	GraceDays  int
}

type SchedulerConfig struct {
	Enabled     bool
	RunInterval time.Duration
	JobTimeout  time.Duration
	BatchSize   int
	EnabledJobs []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "atelier"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),

		DBPath: getenv("DATABASE_PATH", "atelier.db"),

		Email: EmailConfig{
			Enabled:      getenvBool("EMAIL_ENABLED", false),
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "billing@atelier.local"),
		},

		LateFee: LateFeeConfig{
			Policy:     normalizeLateFeePolicy(getenv("LATE_FEE_POLICY", "percentage")),
			FlatAmount: getenvInt64("LATE_FEE_FLAT_AMOUNT", 2500),
			RateBps:    getenvInt64("LATE_FEE_RATE_BPS", 150),
			GraceDays:  int(getenvInt64("LATE_FEE_GRACE_DAYS", 7)),
		},

		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			RunInterval: getenvDuration("SCHEDULER_RUN_INTERVAL", time.Hour),
			JobTimeout:  getenvDuration("SCHEDULER_JOB_TIMEOUT", 30*time.Second),
			BatchSize:   int(getenvInt64("SCHEDULER_BATCH_SIZE", 50)),
			EnabledJobs: getenvList("SCHEDULER_ENABLED_JOBS"),
		},
	}
}

const (
	LateFeePolicyFlat            = "flat"
	LateFeePolicyPercentage      = "percentage"
	LateFeePolicyDailyPercentage = "daily_percentage"
)

func normalizeLateFeePolicy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case LateFeePolicyFlat:
		return LateFeePolicyFlat
	case LateFeePolicyDailyPercentage:
		return LateFeePolicyDailyPercentage
	default:
		return LateFeePolicyPercentage
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
