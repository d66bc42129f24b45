package config

const (
	// EnvPrefix is intentionally empty: every field names its variable
	// explicitly via the envconfig tag.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "HEIMDEX_DB_DSN"
	EnvDBHost = "HEIMDEX_DB_HOST"
	EnvDBUser = "HEIMDEX_DB_USER"
	EnvDBName = "HEIMDEX_DB_NAME"

	QueueBackendInline  = "inline"
	QueueBackendDurable = "durable"

	StorageBackendLocal = "local"
	StorageBackendGCS   = "gcs"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
