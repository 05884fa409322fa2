package config

const (
	EnvPrefix = "SHOPDW"

	EnvAppEnv         = "SHOPDW_APP_ENV"
	EnvLogLevel       = "SHOPDW_LOG_LEVEL"
	EnvLogWarnStack   = "SHOPDW_LOG_WARN_STACK"
	EnvLogFormat      = "SHOPDW_LOG_FORMAT"
	EnvDBDSN          = "SHOPDW_DB_DSN"
	EnvDBHost         = "SHOPDW_DB_HOST"
	EnvDBPort         = "SHOPDW_DB_PORT"
	EnvDBUser         = "SHOPDW_DB_USER"
	EnvDBPassword     = "SHOPDW_DB_PASSWORD"
	EnvDBName         = "SHOPDW_DB_NAME"
	EnvDBSSLMode      = "SHOPDW_DB_SSLMODE"
	EnvRedisURL       = "SHOPDW_REDIS_URL"
	EnvRedisAddr      = "SHOPDW_REDIS_ADDR"
	EnvStagingSchema  = "SHOPDW_STAGING_SCHEMA"
	EnvDateStart      = "SHOPDW_DATE_START"
	EnvDateEnd        = "SHOPDW_DATE_END"
	EnvBatchSize      = "SHOPDW_BATCH_SIZE"
	EnvLockEnabled    = "SHOPDW_LOCK_ENABLED"
	EnvLockTTL        = "SHOPDW_LOCK_TTL"
	EnvLoadInterval   = "SHOPDW_LOAD_INTERVAL"
	EnvMetricsAddress = "SHOPDW_METRICS_ADDR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
