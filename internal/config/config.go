package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Pool           PoolConfig           `mapstructure:"pool"`
	Catalog        CatalogConfig        `mapstructure:"catalog"`
	Query          QueryConfig          `mapstructure:"query"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Audit          AuditConfig          `mapstructure:"audit"`
	Retry          RetryConfig          `mapstructure:"retry"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"dbname"`
	SSLMode          string        `mapstructure:"sslmode"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// PoolConfig bounds the connection pool. ProbePeriod is the interval of the
// background health check; zero turns it off. Checkouts always probe.
type PoolConfig struct {
	Size                int           `mapstructure:"size"`
	ProbePeriod         time.Duration `mapstructure:"probe_period"`
	ProbeTimeout        time.Duration `mapstructure:"probe_timeout"`
	MaxCheckoutAttempts int           `mapstructure:"max_checkout_attempts"`
}

// Optional table modes.
const (
	TableAuto     = "auto"
	TableEnabled  = "enabled"
	TableDisabled = "disabled"
)

type CatalogConfig struct {
	EventsTable    string                    `mapstructure:"events_table"`
	OptionalTables map[string]string         `mapstructure:"optional_tables"`
	Mappings       []MappingConfig           `mapstructure:"mappings"`
	Subqueries     map[string]SubqueryConfig `mapstructure:"subqueries"`
}

type MappingConfig struct {
	Key      string `mapstructure:"key"`
	Table    string `mapstructure:"table"`
	Column   string `mapstructure:"column"`
	Operator string `mapstructure:"operator"`
	Kind     string `mapstructure:"kind"`
}

// SubqueryConfig is a named SQL fragment with %s placeholders. Arity is
// optional; when set it must match the placeholder count.
type SubqueryConfig struct {
	SQL         string `mapstructure:"sql"`
	Arity       int    `mapstructure:"arity"`
	Label       string `mapstructure:"label"`
	Description string `mapstructure:"description"`
	Kind        string `mapstructure:"kind"`
}

type QueryConfig struct {
	DefaultLimit  int `mapstructure:"default_limit"`
	MaxLimit      int `mapstructure:"max_limit"`
	ExportMaxRows int `mapstructure:"export_max_rows"`
}

type AuthConfig struct {
	PrincipalHeader  string `mapstructure:"principal_header"`
	RequirePrincipal bool   `mapstructure:"require_principal"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Table   string `mapstructure:"table"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPS             float64       `mapstructure:"rps"`
	Burst           int           `mapstructure:"burst"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
