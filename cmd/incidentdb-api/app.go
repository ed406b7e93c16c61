package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"incidentdb/internal/catalog"
	"incidentdb/internal/config"
	"incidentdb/internal/constants"
	"incidentdb/internal/events"
	"incidentdb/internal/logger"
	"incidentdb/internal/pool"
	"incidentdb/internal/query"
	"incidentdb/pkg/bootstrap"
	"incidentdb/pkg/circuitbreaker"
	apperrors "incidentdb/pkg/errors"
	"incidentdb/pkg/health"
	"incidentdb/pkg/metrics"
	"incidentdb/pkg/middleware"
	"incidentdb/pkg/ratelimit"
	"incidentdb/pkg/retry"
	"incidentdb/pkg/tracing"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	base           *bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	available      map[string]bool
	location       *time.Location
	pool           *pool.Pool
	service        *events.Service
	rateLimits     *ratelimit.Store
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.Register()

	tp, err := tracing.Init(ctx, a.config.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initService(ctx); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	a.initRouter()

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
	}
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	loc, err := bootstrap.ProbeTimezone(ctx, db)
	if err != nil {
		return err
	}
	a.location = loc
	a.logger.InfowCtx(ctx, "Database timezone", "timezone", loc.String())

	available, err := a.dbConnector.ProbeTables(ctx, db)
	if err != nil {
		return err
	}
	a.available = available

	if a.config.Audit.Enabled {
		ok, err := bootstrap.TableExists(ctx, db, a.config.Audit.Table)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.ErrConfiguration.
				WithMessagef("audit table %s does not exist; run the migrate command", a.config.Audit.Table)
		}
	}
	return nil
}

func (a *App) initService(ctx context.Context) error {
	cat, err := catalog.New(a.config.Catalog, a.available)
	if err != nil {
		return err
	}

	composer := query.NewComposer(cat, a.location, query.Limits{
		DefaultLimit:  a.config.Query.DefaultLimit,
		MaxLimit:      a.config.Query.MaxLimit,
		ExportMaxRows: a.config.Query.ExportMaxRows,
	})

	pc := a.config.Pool
	a.pool = pool.New(
		pool.NewSQLDialer(a.db, a.config.Database.Postgres.StatementTimeout),
		pool.Config{
			Size:                pc.Size,
			ProbePeriod:         pc.ProbePeriod,
			ProbeTimeout:        pc.ProbeTimeout,
			MaxCheckoutAttempts: pc.MaxCheckoutAttempts,
		},
		a.logger,
	)
	if err := a.pool.Warm(ctx); err != nil {
		return err
	}

	opts := events.Options{
		Retry: retry.PolicyFromConfig(a.config.Retry),
		Audit: a.config.Audit,
	}
	if a.config.CircuitBreaker.Enabled {
		opts.Breaker = circuitbreaker.NewWrapper(circuitbreaker.FromConfig("postgresql", a.config.CircuitBreaker))
	}

	a.service = events.NewService(composer, cat, a.pool, opts, a.logger)
	a.logger.InfowCtx(ctx, "Event service ready",
		"pool_size", pc.Size,
		"events_table", cat.EventsTable(),
		"directives", cat.TableAvailable(catalog.TableDirectives),
		"sent", cat.TableAvailable(catalog.TableSent),
	)
	return nil
}

func (a *App) initRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		name := a.config.Tracing.ServiceName
		if name == "" {
			name = constants.ServiceName
		}
		router.Use(tracing.GinMiddleware(name)...)
	}

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))

	if a.config.RateLimit.Enabled {
		a.rateLimits = ratelimit.NewStore(a.config.RateLimit)
		router.Use(ratelimit.Middleware(a.rateLimits))
		a.logger.Infow("Rate limiting enabled", "rps", a.config.RateLimit.RPS, "burst", a.config.RateLimit.Burst)
	}

	healthRegistry := health.NewCheckerRegistry(constants.HealthCheckTimeout)
	healthRegistry.Register(health.NewPoolChecker(a.pool))
	healthRegistry.Register(health.NewTablesChecker(a.available))

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("")
	api.Use(middleware.PrincipalMiddleware(a.config.Auth.PrincipalHeader, a.config.Auth.RequirePrincipal))
	events.NewHandler(a.service, a.logger).RegisterRoutes(api)
	events.NewTicketHandler(a.service, a.logger).RegisterRoutes(api)

	a.router = router
}

func (a *App) Run(ctx context.Context) error {
	go a.pool.Run(ctx)
	if a.rateLimits != nil {
		go a.rateLimits.Run(ctx, a.config.RateLimit.CleanupInterval)
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(context.Background())
	case err := <-errChan:
		_ = a.Shutdown(context.Background())
		return err
	}
}

// Shutdown stops accepting requests, then releases the pool and the
// database handle. It is safe after a partial Initialize.
func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()

	return a.base.Shutdown(shutdownCtx,
		func(ctx context.Context) error {
			if a.server == nil {
				return nil
			}
			if err := a.server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown error: %w", err)
			}
			return nil
		},
		func(ctx context.Context) error {
			if a.pool == nil {
				return nil
			}
			if err := a.pool.Close(); err != nil {
				return fmt.Errorf("pool close error: %w", err)
			}
			return nil
		},
		func(ctx context.Context) error {
			if a.db == nil {
				return nil
			}
			if err := a.db.Close(); err != nil {
				return fmt.Errorf("postgres close error: %w", err)
			}
			return nil
		},
		func(ctx context.Context) error {
			if a.tracerProvider == nil {
				return nil
			}
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				return fmt.Errorf("tracer provider shutdown error: %w", err)
			}
			return nil
		},
	)
}
