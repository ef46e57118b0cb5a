package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App            AppConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	JWT            JWTConfig
	Log            LogConfig
	Event          EventConfig
	HTTP           HTTPConfig
	Swagger        SwaggerConfig
	Telemetry      TelemetryConfig
	Security       SecurityConfig
	Lock           LockConfig
	GatewayA       GatewayConfig
	GatewayB       GatewayConfig
	Balance        BalanceConfig
	Payment        PaymentConfig
	Risk           RiskConfig
	Reconciliation ReconciliationConfig
	Storage        StorageConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// IsProduction reports whether strict validation applies
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // minutes
	ConnMaxIdleTime int // minutes
	LogLevel        string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// AllowInMemoryFallback replaces Redis with single-process locks and
	// idempotency when Redis is unreachable. Never allowed in production.
	AllowInMemoryFallback bool
}

// JWTConfig holds operator token settings
type JWTConfig struct {
	Secret                string
	Issuer                string
	AccessTokenExpiration time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Broker kinds for EventConfig.Broker
const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
	BrokerSQS    = "sqs"
)

// EventConfig holds outbox and broker configuration
type EventConfig struct {
	ProcessorEnabled bool
	Broker           string
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	ClaimLease       time.Duration
	// MessageTTL bounds how long an undelivered message stays on the
	// payment.success queue before it is dead-lettered.
	MessageTTL    time.Duration
	MaxDeliveries int
	DLQSuffix     string
	ConsumerGroup string
	StreamMaxLen  int64

	SQSRegion         string
	SQSEndpoint       string
	SQSQueueURLPrefix string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	TrustedProxies    []string
}

// SwaggerConfig holds Swagger endpoint configuration
type SwaggerConfig struct {
	Enabled     bool
	RequireAuth bool
	AllowedIPs  []string
}

// TelemetryConfig holds OpenTelemetry and profiling configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	DBSlowQueryThresh time.Duration

	ProfilingEnabled       bool
	ProfilingServerAddress string
	ProfilingSpanProfiles  bool
}

// SecurityConfig holds request signing and webhook settings
type SecurityConfig struct {
	SignSecret         string
	SignAlgorithm      string // MD5 or SHA256
	TimestampTolerance time.Duration
	IdempotencyWindow  time.Duration
	IdempotencySecret  string
	WebhookAllowedIPs  []string
}

// LockConfig holds distributed lock settings
type LockConfig struct {
	TTL  time.Duration
	Wait time.Duration
}

// GatewayConfig holds one external payment provider's settings
type GatewayConfig struct {
	Enabled         bool
	BaseURL         string
	AppID           string
	MerchantID      string
	Secret          string
	SignAlgorithm   string
	PrivateKey      string // PEM, gateway B only
	PublicKey       string // PEM, gateway B only
	NotifyURL       string
	RefundNotifyURL string
	ReturnURL       string
	ConnectTimeout  time.Duration
	RequestTimeout  time.Duration
	ExpireAfter     time.Duration
	AllowedIPs      []string
}

// BalanceConfig holds internal stored-value settings
type BalanceConfig struct {
	Enabled bool
}

// PaymentConfig holds ledger-level settings
type PaymentConfig struct {
	GatewayMaxRetries   int
	GatewayRetryBackoff time.Duration
}

// RiskConfig holds the pre-create risk rules
type RiskConfig struct {
	Enabled              bool
	HighAmount           string // decimal string
	MediumAmount         string // decimal string
	MaxAttemptsPerMinute int
	MaxAttemptsPerHour   int
	MaxIPAttemptsPerHour int
	MaxFailures          int
	FailureWindow        time.Duration
	BlockedIPs           []string
}

// ReconciliationConfig holds the daily job settings
type ReconciliationConfig struct {
	Enabled    bool
	Epsilon    string // decimal string
	CronHour   int
	CronMinute int
	Timezone   string
}

// StorageConfig holds S3 report archive settings
type StorageConfig struct {
	S3Enabled       bool
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignExpiry   time.Duration
	KeyPrefix       string
}

// Load reads configuration with this priority, highest first:
//  1. environment variables with the PAYCORE_ prefix (PAYCORE_DATABASE_PASSWORD)
//  2. config.toml in . or ./config
//  3. built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PAYCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Host:                  v.GetString("redis.host"),
			Port:                  v.GetInt("redis.port"),
			Password:              v.GetString("redis.password"),
			DB:                    v.GetInt("redis.db"),
			AllowInMemoryFallback: v.GetBool("redis.allow_in_memory_fallback"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			Issuer:                v.GetString("jwt.issuer"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled:  v.GetBool("event.processor_enabled"),
			Broker:            v.GetString("event.broker"),
			BatchSize:         v.GetInt("event.batch_size"),
			PollInterval:      v.GetDuration("event.poll_interval"),
			MaxRetries:        v.GetInt("event.max_retries"),
			BackoffBase:       v.GetDuration("event.backoff_base"),
			BackoffMax:        v.GetDuration("event.backoff_max"),
			CleanupEnabled:    v.GetBool("event.cleanup_enabled"),
			CleanupRetention:  v.GetDuration("event.cleanup_retention"),
			ClaimLease:        v.GetDuration("event.claim_lease"),
			MessageTTL:        v.GetDuration("event.message_ttl"),
			MaxDeliveries:     v.GetInt("event.max_deliveries"),
			DLQSuffix:         v.GetString("event.dlq_suffix"),
			ConsumerGroup:     v.GetString("event.consumer_group"),
			StreamMaxLen:      v.GetInt64("event.stream_max_len"),
			SQSRegion:         v.GetString("event.sqs_region"),
			SQSEndpoint:       v.GetString("event.sqs_endpoint"),
			SQSQueueURLPrefix: v.GetString("event.sqs_queue_url_prefix"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Swagger: SwaggerConfig{
			Enabled:     v.GetBool("swagger.enabled"),
			RequireAuth: v.GetBool("swagger.require_auth"),
			AllowedIPs:  v.GetStringSlice("swagger.allowed_ips"),
		},
		Telemetry: TelemetryConfig{
			Enabled:                v.GetBool("telemetry.enabled"),
			CollectorEndpoint:      v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:          v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:            v.GetString("telemetry.service_name"),
			Insecure:               v.GetBool("telemetry.insecure"),
			MetricsEnabled:         v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:        v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:            v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:         v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:           v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh:      v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:       v.GetBool("telemetry.profiling_enabled"),
			ProfilingServerAddress: v.GetString("telemetry.profiling_server_address"),
			ProfilingSpanProfiles:  v.GetBool("telemetry.profiling_span_profiles"),
		},
		Security: SecurityConfig{
			SignSecret:         v.GetString("security.sign_secret"),
			SignAlgorithm:      v.GetString("security.sign_algorithm"),
			TimestampTolerance: v.GetDuration("security.timestamp_tolerance"),
			IdempotencyWindow:  v.GetDuration("security.idempotency_window"),
			IdempotencySecret:  v.GetString("security.idempotency_secret"),
			WebhookAllowedIPs:  v.GetStringSlice("security.webhook_allowed_ips"),
		},
		Lock: LockConfig{
			TTL:  v.GetDuration("lock.ttl"),
			Wait: v.GetDuration("lock.wait"),
		},
		GatewayA: loadGateway(v, "gateway_a"),
		GatewayB: loadGateway(v, "gateway_b"),
		Balance: BalanceConfig{
			Enabled: v.GetBool("balance.enabled"),
		},
		Payment: PaymentConfig{
			GatewayMaxRetries:   v.GetInt("payment.gateway_max_retries"),
			GatewayRetryBackoff: v.GetDuration("payment.gateway_retry_backoff"),
		},
		Risk: RiskConfig{
			Enabled:              v.GetBool("risk.enabled"),
			HighAmount:           v.GetString("risk.high_amount"),
			MediumAmount:         v.GetString("risk.medium_amount"),
			MaxAttemptsPerMinute: v.GetInt("risk.max_attempts_per_minute"),
			MaxAttemptsPerHour:   v.GetInt("risk.max_attempts_per_hour"),
			MaxIPAttemptsPerHour: v.GetInt("risk.max_ip_attempts_per_hour"),
			MaxFailures:          v.GetInt("risk.max_failures"),
			FailureWindow:        v.GetDuration("risk.failure_window"),
			BlockedIPs:           v.GetStringSlice("risk.blocked_ips"),
		},
		Reconciliation: ReconciliationConfig{
			Enabled:    v.GetBool("reconciliation.enabled"),
			Epsilon:    v.GetString("reconciliation.epsilon"),
			CronHour:   v.GetInt("reconciliation.cron_hour"),
			CronMinute: v.GetInt("reconciliation.cron_minute"),
			Timezone:   v.GetString("reconciliation.timezone"),
		},
		Storage: StorageConfig{
			S3Enabled:       v.GetBool("storage.s3_enabled"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
			PresignExpiry:   v.GetDuration("storage.presign_expiry"),
			KeyPrefix:       v.GetString("storage.key_prefix"),
		},
	}

	// Booleans that default to true cannot be told apart from an explicit
	// false once read, so they are resolved against IsSet here.
	if !v.IsSet("balance.enabled") {
		cfg.Balance.Enabled = true
	}
	if !v.IsSet("reconciliation.enabled") {
		cfg.Reconciliation.Enabled = true
	}
	if !v.IsSet("risk.enabled") {
		cfg.Risk.Enabled = true
	}
	if !v.IsSet("event.processor_enabled") {
		cfg.Event.ProcessorEnabled = true
	}
	if !v.IsSet("reconciliation.cron_hour") {
		cfg.Reconciliation.CronHour = -1
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadGateway(v *viper.Viper, section string) GatewayConfig {
	key := func(name string) string { return section + "." + name }
	return GatewayConfig{
		Enabled:         v.GetBool(key("enabled")),
		BaseURL:         v.GetString(key("base_url")),
		AppID:           v.GetString(key("app_id")),
		MerchantID:      v.GetString(key("merchant_id")),
		Secret:          v.GetString(key("secret")),
		SignAlgorithm:   v.GetString(key("sign_algorithm")),
		PrivateKey:      v.GetString(key("private_key")),
		PublicKey:       v.GetString(key("public_key")),
		NotifyURL:       v.GetString(key("notify_url")),
		RefundNotifyURL: v.GetString(key("refund_notify_url")),
		ReturnURL:       v.GetString(key("return_url")),
		ConnectTimeout:  v.GetDuration(key("connect_timeout")),
		RequestTimeout:  v.GetDuration(key("request_timeout")),
		ExpireAfter:     v.GetDuration(key("expire_after")),
		AllowedIPs:      v.GetStringSlice(key("allowed_ips")),
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "paycore"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "paycore"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "paycore"
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 15 * time.Minute
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.Event.Broker == "" {
		cfg.Event.Broker = BrokerMemory
	}
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 2 * time.Second
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 5
	}
	if cfg.Event.BackoffBase == 0 {
		cfg.Event.BackoffBase = time.Second
	}
	if cfg.Event.BackoffMax == 0 {
		cfg.Event.BackoffMax = 5 * time.Minute
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 168 * time.Hour
	}
	if cfg.Event.ClaimLease == 0 {
		cfg.Event.ClaimLease = 5 * time.Minute
	}
	if cfg.Event.MessageTTL == 0 {
		cfg.Event.MessageTTL = 60 * time.Second
	}
	if cfg.Event.MaxDeliveries == 0 {
		cfg.Event.MaxDeliveries = 3
	}
	if cfg.Event.DLQSuffix == "" {
		cfg.Event.DLQSuffix = ".dlq"
	}
	if cfg.Event.ConsumerGroup == "" {
		cfg.Event.ConsumerGroup = "paycore"
	}
	if cfg.Event.StreamMaxLen == 0 {
		cfg.Event.StreamMaxLen = 100000
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}

	if cfg.Security.SignAlgorithm == "" {
		cfg.Security.SignAlgorithm = "SHA256"
	}
	if cfg.Security.TimestampTolerance == 0 {
		cfg.Security.TimestampTolerance = 5 * time.Minute
	}
	if cfg.Security.IdempotencyWindow == 0 {
		cfg.Security.IdempotencyWindow = time.Minute
	}

	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = 10 * time.Second
	}
	if cfg.Lock.Wait == 0 {
		cfg.Lock.Wait = 3 * time.Second
	}

	gatewayDefaults(&cfg.GatewayA, "MD5")
	gatewayDefaults(&cfg.GatewayB, "RSA2")

	if cfg.Payment.GatewayMaxRetries == 0 {
		cfg.Payment.GatewayMaxRetries = 2
	}
	if cfg.Payment.GatewayRetryBackoff == 0 {
		cfg.Payment.GatewayRetryBackoff = 500 * time.Millisecond
	}

	if cfg.Risk.HighAmount == "" {
		cfg.Risk.HighAmount = "5000"
	}
	if cfg.Risk.MediumAmount == "" {
		cfg.Risk.MediumAmount = "1000"
	}
	if cfg.Risk.MaxAttemptsPerMinute == 0 {
		cfg.Risk.MaxAttemptsPerMinute = 3
	}
	if cfg.Risk.MaxAttemptsPerHour == 0 {
		cfg.Risk.MaxAttemptsPerHour = 10
	}
	if cfg.Risk.MaxIPAttemptsPerHour == 0 {
		cfg.Risk.MaxIPAttemptsPerHour = 20
	}
	if cfg.Risk.MaxFailures == 0 {
		cfg.Risk.MaxFailures = 3
	}
	if cfg.Risk.FailureWindow == 0 {
		cfg.Risk.FailureWindow = time.Hour
	}

	if cfg.Reconciliation.Epsilon == "" {
		cfg.Reconciliation.Epsilon = "0.00"
	}
	if cfg.Reconciliation.CronHour < 0 {
		cfg.Reconciliation.CronHour = 2
	}
	if cfg.Reconciliation.Timezone == "" {
		cfg.Reconciliation.Timezone = "Local"
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.PresignExpiry == 0 {
		cfg.Storage.PresignExpiry = 15 * time.Minute
	}
	if cfg.Storage.KeyPrefix == "" {
		cfg.Storage.KeyPrefix = "reconciliation/"
	}
}

func gatewayDefaults(g *GatewayConfig, algorithm string) {
	if g.SignAlgorithm == "" {
		g.SignAlgorithm = algorithm
	}
	if g.ConnectTimeout == 0 {
		g.ConnectTimeout = 5 * time.Second
	}
	if g.RequestTimeout == 0 {
		g.RequestTimeout = 10 * time.Second
	}
	if g.ExpireAfter == 0 {
		g.ExpireAfter = 30 * time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch strings.ToUpper(c.Security.SignAlgorithm) {
	case "MD5", "SHA256":
	default:
		return fmt.Errorf("security.sign_algorithm must be MD5 or SHA256, got %q", c.Security.SignAlgorithm)
	}

	switch c.Event.Broker {
	case BrokerMemory, BrokerRedis:
	case BrokerSQS:
		if c.Event.SQSQueueURLPrefix == "" {
			return fmt.Errorf("event.sqs_queue_url_prefix is required for the sqs broker")
		}
	default:
		return fmt.Errorf("event.broker must be one of memory, redis, sqs, got %q", c.Event.Broker)
	}
	if c.Event.MaxRetries < 0 || c.Event.MaxDeliveries < 1 {
		return fmt.Errorf("event.max_retries cannot be negative and event.max_deliveries must be positive")
	}

	if c.Reconciliation.CronHour > 23 || c.Reconciliation.CronMinute < 0 || c.Reconciliation.CronMinute > 59 {
		return fmt.Errorf("reconciliation cron time %02d:%02d is invalid", c.Reconciliation.CronHour, c.Reconciliation.CronMinute)
	}
	if _, err := time.LoadLocation(c.Reconciliation.Timezone); err != nil {
		return fmt.Errorf("reconciliation.timezone: %w", err)
	}

	for _, g := range []struct {
		name string
		cfg  GatewayConfig
	}{{"gateway_a", c.GatewayA}, {"gateway_b", c.GatewayB}} {
		if !g.cfg.Enabled {
			continue
		}
		if g.cfg.BaseURL == "" || g.cfg.AppID == "" {
			return fmt.Errorf("%s.base_url and %s.app_id are required when enabled", g.name, g.name)
		}
	}
	if c.GatewayA.Enabled && c.GatewayA.Secret == "" {
		return fmt.Errorf("gateway_a.secret is required when enabled")
	}
	if c.GatewayB.Enabled && (c.GatewayB.PrivateKey == "" || c.GatewayB.PublicKey == "") {
		return fmt.Errorf("gateway_b.private_key and gateway_b.public_key are required when enabled")
	}

	if c.Storage.S3Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage.s3_enabled is true")
	}

	if c.App.IsProduction() {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if len(c.Security.SignSecret) < 16 {
			return fmt.Errorf("security.sign_secret must be at least 16 characters in production")
		}
		if c.Security.IdempotencySecret == "" {
			return fmt.Errorf("security.idempotency_secret is required in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Redis.AllowInMemoryFallback {
			return fmt.Errorf("redis.allow_in_memory_fallback must be false in production")
		}
		if c.Event.Broker == BrokerMemory {
			return fmt.Errorf("event.broker cannot be 'memory' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production")
			}
		}
		if c.Swagger.Enabled && !c.Swagger.RequireAuth && len(c.Swagger.AllowedIPs) == 0 {
			return fmt.Errorf("swagger endpoint must be disabled, require authentication, or have IP restriction in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Location resolves the reconciliation timezone
func (r ReconciliationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
