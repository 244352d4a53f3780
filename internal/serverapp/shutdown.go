package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"showcatalog/internal/logging"
)

// releaseStep frees one resource acquired during Init.
type releaseStep struct {
	name    string
	release func(context.Context) error
}

// cleanupStack releases resources newest first.
type cleanupStack struct {
	steps []releaseStep
}

func (s *cleanupStack) push(name string, release func(context.Context) error) {
	s.steps = append(s.steps, releaseStep{name: name, release: release})
}

func (s *cleanupStack) size() int {
	return len(s.steps)
}

// run releases every step even when an earlier one fails, empties the stack
// and returns the failures joined, each prefixed with its step name.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var failures []error
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		started := time.Now()
		err := step.release(ctx)
		elapsed := time.Since(started)

		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", step.name, err))
			if logger != nil {
				logger.Warn("failed to release "+step.name,
					slog.String("component", step.name),
					slog.Duration("duration", elapsed),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		if logger != nil {
			logger.Info("released "+step.name,
				slog.String("component", step.name),
				slog.Duration("duration", elapsed),
			)
		}
	}
	s.steps = nil
	return errors.Join(failures...)
}

// Shutdown stops the HTTP server and closes the catalog database and
// telemetry providers. Only the first call releases anything. Every call
// returns the first call's result.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.cleanup = cleanupStack{}
		a.started = false
		a.stateMu.Unlock()

		if a.logger != nil {
			a.logger.Info("shutting down shows catalog", slog.Int("components", cleanup.size()))
		}
		a.shutdownErr = cleanup.run(ctx, a.logger)
		if a.shutdownErr != nil {
			a.shutdownErr = fmt.Errorf("shutdown incomplete: %w", a.shutdownErr)
		}
	})

	return a.shutdownErr
}
