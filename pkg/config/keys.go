package config

// EnvPrefix is passed to envconfig.Process; every variable below carries it
// explicitly so grep finds the full name.
const EnvPrefix = "HAULBID"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "HAULBID_APP_ENV"
	EnvPort     = "HAULBID_APP_PORT"
	EnvLogLevel = "HAULBID_LOG_LEVEL"

	EnvDBDSN    = "HAULBID_DB_DSN"
	EnvDBDriver = "HAULBID_DB_DRIVER"
	EnvDBHost   = "HAULBID_DB_HOST"
	EnvDBUser   = "HAULBID_DB_USER"
	EnvDBName   = "HAULBID_DB_NAME"

	EnvRedisURL = "HAULBID_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
