package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Auction      AuctionConfig
	Scheduler    SchedulerConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"HAULBID_APP_ENV" required:"true"`
	Port         string `envconfig:"HAULBID_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"HAULBID_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"HAULBID_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"HAULBID_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"HAULBID_DB_DSN"`
	Driver string `envconfig:"HAULBID_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"HAULBID_DB_HOST"`
	LegacyPort     int    `envconfig:"HAULBID_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HAULBID_DB_USER"`
	LegacyPassword string `envconfig:"HAULBID_DB_PASSWORD"`
	LegacyName     string `envconfig:"HAULBID_DB_NAME"`
	LegacySSLMode  string `envconfig:"HAULBID_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HAULBID_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HAULBID_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HAULBID_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HAULBID_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"HAULBID_REDIS_URL" required:"true"`
	Address      string        `envconfig:"HAULBID_REDIS_ADDR"`
	Password     string        `envconfig:"HAULBID_REDIS_PASSWORD"`
	DB           int           `envconfig:"HAULBID_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HAULBID_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HAULBID_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HAULBID_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HAULBID_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HAULBID_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AuctionConfig carries the bidding defaults a load falls back to when the
// shipper does not set its own values.
type AuctionConfig struct {
	DefaultMaxAttempts int `envconfig:"HAULBID_AUCTION_DEFAULT_MAX_ATTEMPTS" default:"3"`

	// ExtensionThreshold is the remaining-time window inside which an
	// accepted bid extends the auction; ExtensionDuration is how much
	// time each extension adds.
	ExtensionThreshold time.Duration `envconfig:"HAULBID_AUCTION_EXTENSION_THRESHOLD" default:"2m"`
	ExtensionDuration  time.Duration `envconfig:"HAULBID_AUCTION_EXTENSION_DURATION" default:"5m"`

	LeaderboardTTL time.Duration `envconfig:"HAULBID_AUCTION_LEADERBOARD_TTL" default:"72h"`
}

type SchedulerConfig struct {
	TickInterval  time.Duration `envconfig:"HAULBID_SCHEDULER_TICK_INTERVAL" default:"1m"`
	LockTTL       time.Duration `envconfig:"HAULBID_SCHEDULER_LOCK_TTL" default:"50s"`
	JobTimeout    time.Duration `envconfig:"HAULBID_SCHEDULER_JOB_TIMEOUT" default:"45s"`
	TransitionCap int           `envconfig:"HAULBID_SCHEDULER_TRANSITION_CAP" default:"500"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"HAULBID_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"HAULBID_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"HAULBID_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"HAULBID_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"HAULBID_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"HAULBID_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"HAULBID_GCP_PROJECT_ID"`
}

// PubSubConfig names the topic the outbox publisher drains domain events to.
// Downstream consumers (notification senders, analytics) subscribe there.
type PubSubConfig struct {
	DomainTopic string `envconfig:"HAULBID_PUBSUB_DOMAIN_TOPIC" default:"haulbid-domain-events"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
