package config

import (
	"fmt"     // Error formatting
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"strings" // Splitting list values
	"time"    // Durations

	"github.com/joho/godotenv"      // For loading .env files
	"github.com/shopspring/decimal" // Fixed-point limits
	"gopkg.in/yaml.v3"              // Optional config file overlay

	"github.com/The-Quan/atm-banking-2/internal/ledger" // Engine configuration
)

// Supported storage drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Supported notification senders
const (
	SenderLog   = "log"
	SenderSMTP  = "smtp"
	SenderKafka = "kafka"
)

// Config holds the application configuration
type Config struct {
	AppPort  string `yaml:"app_port"`  // Application port
	IsProd   bool   `yaml:"is_prod"`   // Is production environment
	LogLevel string `yaml:"log_level"` // logrus level name

	DBDriver          string        `yaml:"db_driver"`            // mysql, postgres, sqlite or memory
	DBUser            string        `yaml:"db_user"`              // Database user
	DBPassword        string        `yaml:"db_password"`          // Database password
	DBHost            string        `yaml:"db_host"`              // Database host
	DBPort            string        `yaml:"db_port"`              // Database port
	DBName            string        `yaml:"db_name"`              // Database name
	DBPath            string        `yaml:"db_path"`              // SQLite file path
	DBMaxOpenConns    int           `yaml:"db_max_open_conns"`    // Connection pool ceiling
	DBMaxIdleConns    int           `yaml:"db_max_idle_conns"`    // Idle connections kept
	DBConnMaxLifetime time.Duration `yaml:"db_conn_max_lifetime"` // Connection recycle age

	JWTSecret string        `yaml:"jwt_secret"` // JWT secret key
	JWTTTL    time.Duration `yaml:"jwt_ttl"`    // Token lifetime

	RedisAddr string        `yaml:"redis_addr"` // Redis server address, empty disables Redis
	RedisPass string        `yaml:"redis_pass"` // Redis password
	RedisDB   int           `yaml:"redis_db"`   // Redis database number
	CacheTTL  time.Duration `yaml:"cache_ttl"`  // Read cache lifetime

	DailyWithdrawLimit string        `yaml:"daily_withdraw_limit"` // Decimal string
	AmountScale        int32         `yaml:"amount_scale"`         // Fractional digits allowed in amounts
	MaxAmount          string        `yaml:"max_amount"`           // Decimal string, ceiling on amounts and balances
	MaxAttempts        int           `yaml:"max_attempts"`         // Optimistic retry attempts
	RetryBackoff       time.Duration `yaml:"retry_backoff"`        // Base retry backoff
	NotifyTimeout      time.Duration `yaml:"notify_timeout"`       // Bound on enqueueing a notification
	Currency           string        `yaml:"currency"`             // Label used in notifications

	NotifySender      string        `yaml:"notify_sender"`       // log, smtp or kafka
	NotifyMaxAttempts int           `yaml:"notify_max_attempts"` // Deliveries before dead-lettering
	NotifyRetryDelay  time.Duration `yaml:"notify_retry_delay"`  // Base wait before a failed delivery is retried
	SMTPHost          string        `yaml:"smtp_host"`           // SMTP server
	SMTPPort          int           `yaml:"smtp_port"`           // SMTP TLS port
	SMTPUser          string        `yaml:"smtp_user"`           // SMTP login
	SMTPPass          string        `yaml:"smtp_pass"`           // SMTP password
	SMTPFrom          string        `yaml:"smtp_from"`           // Sender address
	KafkaBrokers      []string      `yaml:"kafka_brokers"`       // Broker addresses
	KafkaTopic        string        `yaml:"kafka_topic"`         // Topic for completed transactions
}

// Default returns the configuration used when nothing overrides a field
func Default() Config {
	return Config{
		AppPort:            "8080",
		LogLevel:           "info",
		DBDriver:           DriverMySQL,
		DBHost:             "127.0.0.1",
		DBPort:             "3306",
		DBName:             "atm",
		DBPath:             "atm.db",
		DBMaxOpenConns:     25,
		DBMaxIdleConns:     10,
		DBConnMaxLifetime:  time.Hour,
		JWTTTL:             24 * time.Hour,
		CacheTTL:           60 * time.Second,
		DailyWithdrawLimit: ledger.DefaultDailyWithdrawLimit.String(),
		AmountScale:        ledger.DefaultAmountScale,
		MaxAmount:          ledger.MaxStoredAmount.String(),
		MaxAttempts:        ledger.DefaultMaxAttempts,
		RetryBackoff:       ledger.DefaultRetryBackoff,
		NotifyTimeout:      ledger.DefaultNotifyTimeout,
		Currency:           "VND",
		NotifySender:       SenderLog,
		NotifyMaxAttempts:  5,
		NotifyRetryDelay:   5 * time.Second,
		SMTPPort:           465,
		KafkaTopic:         "transaction_completed",
	}
}

// LoadConfig loads configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables, in increasing precedence
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // Load .env file if present
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	str(&c.AppPort, "APP_PORT")
	str(&c.LogLevel, "LOG_LEVEL")
	str(&c.DBDriver, "DB_DRIVER")
	str(&c.DBUser, "DB_USER")
	str(&c.DBPassword, "DB_PASSWORD")
	str(&c.DBHost, "DB_HOST")
	str(&c.DBPort, "DB_PORT")
	str(&c.DBName, "DB_NAME")
	str(&c.DBPath, "DB_PATH")
	str(&c.JWTSecret, "JWT_SECRET")
	str(&c.RedisAddr, "REDIS_ADDR")
	str(&c.RedisPass, "REDIS_PASS")
	str(&c.DailyWithdrawLimit, "DAILY_WITHDRAW_LIMIT")
	str(&c.MaxAmount, "MAX_AMOUNT")
	str(&c.Currency, "CURRENCY")
	str(&c.NotifySender, "NOTIFY_SENDER")
	str(&c.SMTPHost, "SMTP_HOST")
	str(&c.SMTPUser, "SMTP_USER")
	str(&c.SMTPPass, "SMTP_PASS")
	str(&c.SMTPFrom, "SMTP_FROM")
	str(&c.KafkaTopic, "KAFKA_TOPIC")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = splitList(v)
	}
	if v := os.Getenv("IS_PROD"); v != "" {
		c.IsProd = v == "true"
	}

	scale := int(c.AmountScale)
	if err := integer(&scale, "AMOUNT_SCALE"); err != nil {
		return err
	}
	c.AmountScale = int32(scale)
	for key, dst := range map[string]*int{
		"REDIS_DB":            &c.RedisDB,
		"DB_MAX_OPEN_CONNS":   &c.DBMaxOpenConns,
		"DB_MAX_IDLE_CONNS":   &c.DBMaxIdleConns,
		"MAX_ATTEMPTS":        &c.MaxAttempts,
		"NOTIFY_MAX_ATTEMPTS": &c.NotifyMaxAttempts,
		"SMTP_PORT":           &c.SMTPPort,
	} {
		if err := integer(dst, key); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*time.Duration{
		"DB_CONN_MAX_LIFETIME": &c.DBConnMaxLifetime,
		"JWT_TTL":              &c.JWTTTL,
		"CACHE_TTL":            &c.CacheTTL,
		"RETRY_BACKOFF":        &c.RetryBackoff,
		"NOTIFY_TIMEOUT":       &c.NotifyTimeout,
		"NOTIFY_RETRY_DELAY":   &c.NotifyRetryDelay,
	} {
		if err := duration(dst, key); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects configuration the server cannot start with
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverMySQL, DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	switch c.NotifySender {
	case SenderLog, SenderSMTP, SenderKafka:
	default:
		return fmt.Errorf("config: unknown NOTIFY_SENDER %q", c.NotifySender)
	}
	if c.NotifySender == SenderKafka && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("config: KAFKA_BROKERS is required for the kafka sender")
	}
	if c.NotifySender == SenderSMTP && c.SMTPHost == "" {
		return fmt.Errorf("config: SMTP_HOST is required for the smtp sender")
	}
	if c.NotifyMaxAttempts < 1 {
		return fmt.Errorf("config: NOTIFY_MAX_ATTEMPTS must be at least 1")
	}
	if c.NotifyRetryDelay < 0 {
		return fmt.Errorf("config: NOTIFY_RETRY_DELAY must not be negative")
	}
	if _, err := c.Ledger(); err != nil {
		return err
	}
	return nil
}

// Ledger builds the engine configuration
func (c *Config) Ledger() (ledger.Config, error) {
	limit, err := decimal.NewFromString(c.DailyWithdrawLimit)
	if err != nil {
		return ledger.Config{}, fmt.Errorf("config: DAILY_WITHDRAW_LIMIT %q: %w", c.DailyWithdrawLimit, err)
	}
	maxAmount, err := decimal.NewFromString(c.MaxAmount)
	if err != nil {
		return ledger.Config{}, fmt.Errorf("config: MAX_AMOUNT %q: %w", c.MaxAmount, err)
	}
	lc := ledger.DefaultConfig()
	lc.DailyWithdrawLimit = limit
	lc.AmountScale = c.AmountScale
	lc.MaxAmount = maxAmount
	lc.MaxAttempts = c.MaxAttempts
	lc.RetryBackoff = c.RetryBackoff
	lc.NotifyTimeout = c.NotifyTimeout
	if err := lc.Validate(); err != nil {
		return ledger.Config{}, fmt.Errorf("config: %w", err)
	}
	return lc, nil
}

// MySQLDSN is the go-sql-driver/mysql data source name
func (c *Config) MySQLDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=true&loc=UTC"
}

// PostgresDSN is the lib/pq connection string
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func str(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func integer(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	*dst = n
	return nil
}

func duration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s=%q is not a duration", key, v)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
