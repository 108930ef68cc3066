package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "CREDENZA"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Password PasswordConfig
	Platform PlatformConfig
	Outbox   OutboxConfig
	Cron     CronConfig

	AuthRateLimit AuthRateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("CREDENZA_DB_DSN is required")
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"CREDENZA_APP_ENV" required:"true"`
	Port         string   `envconfig:"CREDENZA_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"CREDENZA_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"CREDENZA_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"CREDENZA_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CREDENZA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CREDENZA_DB_DSN"`
	Driver string `envconfig:"CREDENZA_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"CREDENZA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CREDENZA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CREDENZA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CREDENZA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CREDENZA_REDIS_URL"`
	Address      string        `envconfig:"CREDENZA_REDIS_ADDR"`
	Password     string        `envconfig:"CREDENZA_REDIS_PASSWORD"`
	DB           int           `envconfig:"CREDENZA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CREDENZA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CREDENZA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CREDENZA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CREDENZA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CREDENZA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CREDENZA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CREDENZA_JWT_ISSUER" default:"credenza"`
	ExpirationMinutes int    `envconfig:"CREDENZA_JWT_EXPIRATION_MINUTES" default:"1440"`
}

// TokenTTL returns the access token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"CREDENZA_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CREDENZA_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CREDENZA_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CREDENZA_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CREDENZA_ARGON_KEY_LEN" default:"32"`
}

// PlatformConfig carries marketplace-wide tunables. Rates configured in the
// settings table override these startup defaults.
type PlatformConfig struct {
	WithdrawalFeeRate  string `envconfig:"CREDENZA_WITHDRAWAL_FEE_RATE" default:"0.10"`
	ExchangeRate       string `envconfig:"CREDENZA_EXCHANGE_RATE" default:"3.65"`
	YapeMinWithdrawal  string `envconfig:"CREDENZA_YAPE_MIN_WITHDRAWAL" default:"10.00"`
	BinanceMinWithdraw string `envconfig:"CREDENZA_BINANCE_MIN_WITHDRAWAL" default:"10.00"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"CREDENZA_RL_LOGIN_WINDOW" default:"5m"`
	LoginIPLimit       int           `envconfig:"CREDENZA_RL_LOGIN_IP_LIMIT" default:"20"`
	LoginEmailLimit    int           `envconfig:"CREDENZA_RL_LOGIN_EMAIL_LIMIT" default:"10"`
	RegisterWindow     time.Duration `envconfig:"CREDENZA_RL_REGISTER_WINDOW" default:"1h"`
	RegisterIPLimit    int           `envconfig:"CREDENZA_RL_REGISTER_IP_LIMIT" default:"10"`
	RegisterEmailLimit int           `envconfig:"CREDENZA_RL_REGISTER_EMAIL_LIMIT" default:"3"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CREDENZA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CREDENZA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CREDENZA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	PremiumSweepInterval   time.Duration `envconfig:"CREDENZA_CRON_PREMIUM_SWEEP_INTERVAL" default:"1h"`
	MaintenanceInterval    time.Duration `envconfig:"CREDENZA_CRON_MAINTENANCE_INTERVAL" default:"24h"`
	OutboxRetentionDays    int           `envconfig:"CREDENZA_CRON_OUTBOX_RETENTION_DAYS" default:"14"`
	LockTTL                time.Duration `envconfig:"CREDENZA_CRON_LOCK_TTL" default:"30m"`
	DisableDistributedLock bool          `envconfig:"CREDENZA_CRON_DISABLE_LOCK" default:"false"`
}
