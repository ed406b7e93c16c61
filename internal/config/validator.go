package config

import (
	"errors"
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks the parts of the configuration that do not need a
// database. Catalog definitions are validated when the catalog is built.
func ValidateStatic(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validatePostgres(cfg.Database.Postgres); err != nil {
		errs = append(errs, err)
	}

	if err := validatePool(cfg.Pool); err != nil {
		errs = append(errs, err)
	}

	if err := validateCatalog(cfg.Catalog); err != nil {
		errs = append(errs, err)
	}

	if err := validateQuery(cfg.Query); err != nil {
		errs = append(errs, err)
	}

	if err := validateRetry(cfg.Retry); err != nil {
		errs = append(errs, err)
	}

	if cfg.Audit.Enabled && cfg.Audit.Table == "" {
		errs = append(errs, &ValidationError{Field: "audit.table", Message: "audit table is required when audit is enabled"})
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	if cfg.StatementTimeout < 0 {
		return &ValidationError{
			Field:   "database.postgres.statement_timeout",
			Message: "statement timeout must be non-negative",
		}
	}

	return nil
}

func validatePool(cfg PoolConfig) error {
	if cfg.Size < 1 {
		return &ValidationError{
			Field:   "pool.size",
			Message: fmt.Sprintf("pool size must be at least 1, got %d", cfg.Size),
		}
	}

	if cfg.MaxCheckoutAttempts < 1 {
		return &ValidationError{
			Field:   "pool.max_checkout_attempts",
			Message: "at least one checkout attempt is required",
		}
	}

	if cfg.ProbePeriod < 0 {
		return &ValidationError{
			Field:   "pool.probe_period",
			Message: "probe period must be non-negative",
		}
	}

	if cfg.ProbeTimeout <= 0 {
		return &ValidationError{
			Field:   "pool.probe_timeout",
			Message: "probe timeout must be positive",
		}
	}

	return nil
}

func validateCatalog(cfg CatalogConfig) error {
	if cfg.EventsTable == "" {
		return &ValidationError{
			Field:   "catalog.events_table",
			Message: "events table name is required",
		}
	}

	for table, mode := range cfg.OptionalTables {
		switch strings.ToLower(mode) {
		case TableAuto, TableEnabled, TableDisabled:
		default:
			return &ValidationError{
				Field:   "catalog.optional_tables." + table,
				Message: fmt.Sprintf("invalid mode: %s (valid: auto, enabled, disabled)", mode),
			}
		}
	}

	for i, m := range cfg.Mappings {
		if m.Key == "" || m.Column == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("catalog.mappings[%d]", i),
				Message: "key and column are required",
			}
		}
	}

	for name, sq := range cfg.Subqueries {
		if strings.TrimSpace(sq.SQL) == "" {
			return &ValidationError{
				Field:   "catalog.subqueries." + name + ".sql",
				Message: "subquery SQL is required",
			}
		}
	}

	return nil
}

func validateQuery(cfg QueryConfig) error {
	if cfg.DefaultLimit < 1 {
		return &ValidationError{
			Field:   "query.default_limit",
			Message: "default limit must be positive",
		}
	}

	if cfg.MaxLimit < cfg.DefaultLimit {
		return &ValidationError{
			Field:   "query.max_limit",
			Message: "max limit must be greater than or equal to default limit",
		}
	}

	if cfg.ExportMaxRows < 0 {
		return &ValidationError{
			Field:   "query.export_max_rows",
			Message: "export max rows must be non-negative",
		}
	}

	return nil
}

func validateRetry(cfg RetryConfig) error {
	if cfg.MaxAttempts < 1 || cfg.MaxAttempts > 2 {
		return &ValidationError{
			Field:   "retry.max_attempts",
			Message: "max_attempts must be 1 or 2",
		}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   "retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier <= 0 {
		return &ValidationError{
			Field:   "retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}
