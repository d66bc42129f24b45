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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	Storage      StorageConfig
	Ingest       IngestConfig
	Jobs         JobsConfig
	PubSub       PubSubConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Jobs.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"HEIMDEX_APP_ENV" required:"true"`
	Port         string   `envconfig:"HEIMDEX_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"HEIMDEX_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"HEIMDEX_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"HEIMDEX_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"HEIMDEX_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"HEIMDEX_DB_DSN"`
	Driver string `envconfig:"HEIMDEX_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"HEIMDEX_DB_HOST"`
	LegacyPort     int    `envconfig:"HEIMDEX_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HEIMDEX_DB_USER"`
	LegacyPassword string `envconfig:"HEIMDEX_DB_PASSWORD"`
	LegacyName     string `envconfig:"HEIMDEX_DB_NAME"`
	LegacySSLMode  string `envconfig:"HEIMDEX_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HEIMDEX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HEIMDEX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HEIMDEX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HEIMDEX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"HEIMDEX_REDIS_URL" required:"true"`
	Address      string        `envconfig:"HEIMDEX_REDIS_ADDR"`
	Password     string        `envconfig:"HEIMDEX_REDIS_PASSWORD"`
	DB           int           `envconfig:"HEIMDEX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HEIMDEX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HEIMDEX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HEIMDEX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HEIMDEX_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HEIMDEX_REDIS_WRITE_TIMEOUT" default:"5s"`

	IdempotencyTTL time.Duration `envconfig:"HEIMDEX_IDEMPOTENCY_TTL" default:"24h"`
}

type JWTConfig struct {
	Secret            string        `envconfig:"HEIMDEX_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"HEIMDEX_JWT_ISSUER" required:"true"`
	ExpirationMinutes int           `envconfig:"HEIMDEX_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTTL        time.Duration `envconfig:"HEIMDEX_JWT_REFRESH_TTL" default:"720h"`
	// SessionCheck requires every token's jti to map to a live Redis
	// session. Off by default: tokens are stateless until a session
	// issuing surface registers them with Manager.Generate.
	SessionCheck bool `envconfig:"HEIMDEX_JWT_SESSION_CHECK" default:"false"`
}

func (j JWTConfig) RefreshTokenTTL() time.Duration {
	return j.RefreshTTL
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"HEIMDEX_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"HEIMDEX_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"HEIMDEX_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"HEIMDEX_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"HEIMDEX_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"HEIMDEX_GCS_BUCKET_NAME"`
	UploadURLExpiry   time.Duration `envconfig:"HEIMDEX_GCS_UPLOAD_URL_EXPIRY" default:"15m"`
	DownloadURLExpiry time.Duration `envconfig:"HEIMDEX_GCS_DOWNLOAD_URL_EXPIRY" default:"1h"`
}

type StorageConfig struct {
	Backend     string `envconfig:"HEIMDEX_STORAGE_BACKEND" default:"local"`
	DerivedRoot string `envconfig:"HEIMDEX_DERIVED_ROOT" default:"derived"`
}

type IngestConfig struct {
	MaxUploadBytes      int64         `envconfig:"HEIMDEX_MAX_UPLOAD_BYTES" default:"52428800"`
	StrongHashCeiling   int64         `envconfig:"HEIMDEX_STRONG_HASH_CEILING_BYTES" default:"1000000000"`
	ProbeTimeout        time.Duration `envconfig:"HEIMDEX_PROBE_TIMEOUT" default:"30s"`
	AllowedContentTypes []string      `envconfig:"HEIMDEX_ALLOWED_CONTENT_TYPES" default:"video/mp4,video/quicktime,video/webm,video/x-matroska,audio/mpeg,audio/wav,audio/flac"`
}

// ContentTypeAllowed reports whether the declared content type is recognized.
func (i IngestConfig) ContentTypeAllowed(contentType string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(contentType))
	if trimmed == "" {
		return false
	}
	for _, candidate := range i.AllowedContentTypes {
		if strings.EqualFold(strings.TrimSpace(candidate), trimmed) {
			return true
		}
	}
	return false
}

type JobsConfig struct {
	QueueBackend      string        `envconfig:"HEIMDEX_QUEUE_BACKEND" default:"inline"`
	MaxRetries        int           `envconfig:"HEIMDEX_JOB_MAX_RETRIES" default:"3"`
	RetryInitialDelay time.Duration `envconfig:"HEIMDEX_JOB_RETRY_INITIAL_DELAY" default:"1s"`
	RetryMaxDelay     time.Duration `envconfig:"HEIMDEX_JOB_RETRY_MAX_DELAY" default:"30s"`
	StaleAfter        time.Duration `envconfig:"HEIMDEX_JOB_STALE_AFTER" default:"15m"`
	ReaperInterval    time.Duration `envconfig:"HEIMDEX_JOB_REAPER_INTERVAL" default:"1m"`
}

func (j JobsConfig) validate() error {
	switch j.QueueBackend {
	case QueueBackendInline, QueueBackendDurable:
		return nil
	default:
		return fmt.Errorf("unsupported queue backend %q (expected %s or %s)", j.QueueBackend, QueueBackendInline, QueueBackendDurable)
	}
}

type RateLimitConfig struct {
	RequestsPerWindow int64         `envconfig:"HEIMDEX_RATE_LIMIT_REQUESTS" default:"120"`
	Window            time.Duration `envconfig:"HEIMDEX_RATE_LIMIT_WINDOW" default:"1m"`
}

type PubSubConfig struct {
	IngestTopic        string `envconfig:"HEIMDEX_PUBSUB_INGEST_TOPIC" default:"hx-ingest-jobs"`
	IngestSubscription string `envconfig:"HEIMDEX_PUBSUB_INGEST_SUBSCRIPTION" default:"hx-ingest-jobs-worker"`
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
