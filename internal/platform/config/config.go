package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pstrings "alumni/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	// AdminAPIToken guards the 2FA session issuance endpoint.
	AdminAPIToken string
	LogLevel      string
	LogFormat     string

	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Audit     AuditConfig
	Sessions  SessionConfig
	Retention RetentionConfig
	RateLimit RateLimitConfig
}

// DatabaseConfig selects the SQL engine holding business and audit tables.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver       string
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	TxTimeout    time.Duration
}

// RedisConfig configures the optional Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the change feed. An empty broker list disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// AuditConfig tunes mutation capture and redaction.
type AuditConfig struct {
	MaxBinaryBytes   int
	SkipEmptyUpdates bool
	RedactedFields   []string
	RedactionFile    string
	InfraPrincipals  []string
}

// SessionConfig tunes the two-factor session manager.
type SessionConfig struct {
	// Store is "sql" or "redis".
	Store  string
	MinTTL time.Duration
}

// RateLimitConfig bounds restore attempts per actor and 2FA session issuance
// per client IP. Limits are shared across replicas when Redis is configured.
type RateLimitConfig struct {
	Disabled         bool
	RestorePerMinute int
	SessionPerMinute int
}

// RetentionConfig drives the daily archival job.
type RetentionConfig struct {
	// Target is "table", "s3" or "pgarchive".
	Target             string
	LedgerDays         int
	SnapshotDays       int
	RunHour            int
	S3Bucket           string
	S3Prefix           string
	S3Region           string
	ArchiveDatabaseURL string
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; real
// environment variables win over it.
func FromEnv() (Server, error) {
	_ = godotenv.Load()

	cfg := Server{
		Addr:          getString("AUDIT_ADDR", ":8080"),
		JWTSigningKey: getString("JWT_SIGNING_KEY", ""),
		JWTIssuer:     getString("JWT_ISSUER", "alumni-admin"),
		JWTAudience:   getString("JWT_AUDIENCE", "alumni-audit"),
		AdminAPIToken: os.Getenv("ADMIN_API_TOKEN"),
		LogLevel:      getString("LOG_LEVEL", "info"),
		LogFormat:     getString("LOG_FORMAT", "json"),
		Database: DatabaseConfig{
			Driver:       strings.ToLower(getString("DATABASE_DRIVER", "sqlite")),
			URL:          getString("DATABASE_URL", "file:alumni.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"),
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: getList("KAFKA_BROKERS"),
			Topic:   getString("KAFKA_TOPIC", "alumni.audit.mutations"),
		},
		Audit: AuditConfig{
			RedactedFields:  getList("AUDIT_REDACTED_FIELDS"),
			RedactionFile:   os.Getenv("AUDIT_REDACTION_FILE"),
			InfraPrincipals: getList("AUDIT_INFRA_PRINCIPALS"),
		},
		Sessions: SessionConfig{
			Store: strings.ToLower(getString("SESSION_STORE", "sql")),
		},
		Retention: RetentionConfig{
			Target:             strings.ToLower(getString("ARCHIVE_TARGET", "table")),
			S3Bucket:           os.Getenv("ARCHIVE_S3_BUCKET"),
			S3Prefix:           getString("ARCHIVE_S3_PREFIX", "audit/"),
			S3Region:           os.Getenv("ARCHIVE_S3_REGION"),
			ArchiveDatabaseURL: os.Getenv("ARCHIVE_DATABASE_URL"),
		},
	}

	var err error
	if cfg.Database.TxTimeout, err = getDuration("TX_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Sessions.MinTTL, err = getDuration("SESSION_MIN_TTL", 5*time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.Audit.MaxBinaryBytes, err = getInt("AUDIT_MAX_BINARY_BYTES", 64*1024); err != nil {
		return Server{}, err
	}
	if cfg.Audit.SkipEmptyUpdates, err = getBool("AUDIT_SKIP_EMPTY_UPDATES", false); err != nil {
		return Server{}, err
	}
	if cfg.Retention.LedgerDays, err = getInt("RETENTION_LEDGER_DAYS", 30); err != nil {
		return Server{}, err
	}
	if cfg.Retention.SnapshotDays, err = getInt("RETENTION_SNAPSHOT_DAYS", 365); err != nil {
		return Server{}, err
	}
	if cfg.Retention.RunHour, err = getInt("RETENTION_RUN_HOUR", 2); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.Disabled, err = getBool("RATELIMIT_DISABLED", false); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.RestorePerMinute, err = getInt("RATELIMIT_RESTORE_PER_MINUTE", 10); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.SessionPerMinute, err = getInt("RATELIMIT_SESSION_PER_MINUTE", 20); err != nil {
		return Server{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the process cannot start with.
func (c Server) Validate() error {
	if c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER %q: want postgres or sqlite", c.Database.Driver)
	}
	switch c.Sessions.Store {
	case "sql":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("SESSION_STORE=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("SESSION_STORE %q: want sql or redis", c.Sessions.Store)
	}
	switch c.Retention.Target {
	case "table":
	case "s3":
		if c.Retention.S3Bucket == "" {
			return fmt.Errorf("ARCHIVE_TARGET=s3 requires ARCHIVE_S3_BUCKET")
		}
	case "pgarchive":
		if c.Retention.ArchiveDatabaseURL == "" {
			return fmt.Errorf("ARCHIVE_TARGET=pgarchive requires ARCHIVE_DATABASE_URL")
		}
	default:
		return fmt.Errorf("ARCHIVE_TARGET %q: want table, s3 or pgarchive", c.Retention.Target)
	}
	if c.Retention.LedgerDays < 1 || c.Retention.SnapshotDays < 1 {
		return fmt.Errorf("retention windows must be at least one day")
	}
	if c.Retention.RunHour < 0 || c.Retention.RunHour > 23 {
		return fmt.Errorf("RETENTION_RUN_HOUR must be 0-23")
	}
	if c.RateLimit.RestorePerMinute < 1 || c.RateLimit.SessionPerMinute < 1 {
		return fmt.Errorf("rate limits must allow at least one request per minute")
	}
	if c.Audit.MaxBinaryBytes < 0 {
		return fmt.Errorf("AUDIT_MAX_BINARY_BYTES must not be negative")
	}
	return nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getList(key string) []string {
	return pstrings.SplitList(os.Getenv(key), ",")
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
