package config

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"incidentdb/internal/constants"
)

//go:embed example.yaml
var exampleConfig string

// Example returns a commented example configuration file.
func Example() string {
	return exampleConfig
}

// LoadConfig reads configFile (YAML) on top of defaults and environment
// overrides. An empty configFile loads defaults and environment only.
func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", constants.DefaultReadTimeout)
	viper.SetDefault("server.write_timeout", constants.DefaultWriteTimeout)

	viper.SetDefault("database.postgres.host", "localhost")
	viper.SetDefault("database.postgres.port", 5432)
	viper.SetDefault("database.postgres.sslmode", "disable")
	viper.SetDefault("database.postgres.connect_timeout", constants.DefaultConnectTimeout)
	viper.SetDefault("database.postgres.statement_timeout", constants.DefaultStatementTimeout)

	viper.SetDefault("pool.size", constants.DefaultPoolSize)
	viper.SetDefault("pool.probe_period", constants.DefaultProbePeriod)
	viper.SetDefault("pool.probe_timeout", constants.DefaultProbeTimeout)
	viper.SetDefault("pool.max_checkout_attempts", constants.DefaultMaxCheckoutAttempts)

	viper.SetDefault("catalog.events_table", constants.EventsTable)

	viper.SetDefault("query.default_limit", constants.DefaultLimit)
	viper.SetDefault("query.max_limit", constants.MaxLimit)
	viper.SetDefault("query.export_max_rows", constants.DefaultExportMaxRows)

	viper.SetDefault("auth.principal_header", constants.DefaultPrincipalHeader)

	viper.SetDefault("audit.table", constants.AuditTable)

	viper.SetDefault("retry.max_attempts", 2)
	viper.SetDefault("retry.initial_interval", "50ms")
	viper.SetDefault("retry.max_interval", "500ms")
	viper.SetDefault("retry.multiplier", 2.0)
	viper.SetDefault("retry.max_elapsed_time", "5s")

	viper.SetDefault("rate_limit.rps", 10.0)
	viper.SetDefault("rate_limit.burst", 20)
	viper.SetDefault("rate_limit.cleanup_interval", "1m")
	viper.SetDefault("rate_limit.max_age", "5m")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", "60s")
	viper.SetDefault("circuit_breaker.timeout", "30s")
	viper.SetDefault("circuit_breaker.failure_ratio", 0.6)
	viper.SetDefault("circuit_breaker.min_requests", 5)

	viper.SetDefault("tracing.service_name", "incidentdb-api")
	viper.SetDefault("tracing.sampler.type", "always_on")
}

func bindEnvVariables() {
	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")
	viper.BindEnv("database.postgres.statement_timeout", "DATABASE_POSTGRES_STATEMENT_TIMEOUT")

	viper.BindEnv("pool.size", "POOL_SIZE")
	viper.BindEnv("pool.probe_period", "POOL_PROBE_PERIOD")
	viper.BindEnv("pool.max_checkout_attempts", "POOL_MAX_CHECKOUT_ATTEMPTS")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("auth.principal_header", "AUTH_PRINCIPAL_HEADER")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}
