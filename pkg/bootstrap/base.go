package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"incidentdb/internal/config"
	"incidentdb/internal/logger"
)

type Base struct {
	Config *config.Config
	Logger logger.Logger
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// Shutdown runs the given shutdown steps and joins their errors.
func (b *Base) Shutdown(ctx context.Context, steps ...func(ctx context.Context) error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error
	for _, step := range steps {
		if step == nil {
			continue
		}
		if err := step(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
