package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"incidentdb/internal/catalog"
	"incidentdb/internal/config"
	"incidentdb/internal/logger"
	apperrors "incidentdb/pkg/errors"
)

// DSN builds a lib/pq connection URL.
func DSN(cfg config.PostgresConfig) string {
	q := url.Values{}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	q.Set("sslmode", sslmode)
	if cfg.ConnectTimeout > 0 {
		secs := int(cfg.ConnectTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.DBName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// InitPostgreSQL opens the database handle the pool dials sessions from.
// database/sql keeps no idle connections of its own; the pool holds them.
func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("postgres", DSN(dc.Config.Database.Postgres))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxIdleConns(0)
	db.SetMaxOpenConns(dc.Config.Pool.Size + 2)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.ErrDatabaseUnavailable.WithCause(err)
	}

	dc.Logger.Infow("PostgreSQL connected successfully",
		"host", dc.Config.Database.Postgres.Host,
		"dbname", dc.Config.Database.Postgres.DBName,
	)
	return db, nil
}

// ProbeTimezone loads the session timezone of the server. Result buckets and
// literal timestamps are interpreted in it, so an unknown zone is fatal.
func ProbeTimezone(ctx context.Context, db *sql.DB) (*time.Location, error) {
	var name string
	if err := db.QueryRowContext(ctx, "SHOW timezone").Scan(&name); err != nil {
		return nil, apperrors.ErrDatabaseUnavailable.WithCause(err)
	}
	return LoadTimezone(name)
}

func LoadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "localtime" {
		return nil, apperrors.ErrConfiguration.
			WithMessagef("database timezone %q cannot be resolved", name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperrors.ErrConfiguration.
			WithMessagef("database timezone %q is unknown", name).
			WithCause(err)
	}
	return loc, nil
}

// ProbeTables decides which optional tables are available. Tables in auto
// mode are looked up in the database; enabled and disabled are taken as is.
func (dc *DatabaseConnector) ProbeTables(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	modes := TableModes(dc.Config.Catalog)
	names := make([]string, 0, len(modes))
	for name := range modes {
		names = append(names, name)
	}
	sort.Strings(names)

	available := make(map[string]bool, len(modes))
	for _, name := range names {
		switch modes[name] {
		case config.TableEnabled:
			available[name] = true
		case config.TableDisabled:
			available[name] = false
		default:
			ok, err := TableExists(ctx, db, name)
			if err != nil {
				return nil, err
			}
			available[name] = ok
		}
		dc.Logger.Infow("Optional table", "table", name, "mode", modes[name], "available", available[name])
	}
	return available, nil
}

// TableModes returns the configured mode of every optional table. The mail
// tables default to auto when the configuration leaves them out.
func TableModes(cfg config.CatalogConfig) map[string]string {
	modes := map[string]string{
		catalog.TableDirectives: config.TableAuto,
		catalog.TableSent:       config.TableAuto,
	}
	for name, mode := range cfg.OptionalTables {
		if mode == "" {
			mode = config.TableAuto
		}
		modes[name] = mode
	}
	return modes
}

// TableExists reports whether name resolves to a relation on the search path.
func TableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var oid sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT to_regclass($1)::text", name).Scan(&oid); err != nil {
		return false, apperrors.ErrDatabaseUnavailable.WithCause(err)
	}
	return oid.Valid, nil
}
