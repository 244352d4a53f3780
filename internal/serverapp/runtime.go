package serverapp

import (
	"fmt"
	"log/slog"
	"os"
)

// Stop reasons reported by WaitForStop.
const (
	StopSignal      = "signal"
	StopServerError = "server_error"
)

// Start serves the catalog on the configured address. Calling it again after
// a successful start returns the same error channel.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if a.started {
		return a.serverErrors, nil
	}

	table := ""
	if a.store != nil {
		table = a.store.Target().Table
	}
	a.logger.Info("serving shows catalog",
		slog.String("address", a.serverAddr),
		slog.String("driver", a.driver),
		slog.String("database", a.effectiveDatabase),
		slog.String("table", table),
	)

	a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
	a.started = true
	return a.serverErrors, nil
}

// WaitForStop blocks until a signal arrives on stop or the server reports on
// serverErrors. A nil channel is never selected. With a nil serverErrors the
// channel returned by Start is used.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		if a.serverErrors != nil {
			serverErrors = a.serverErrors
		}
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", fmt.Errorf("both stop and serverErrors channels are nil")
	}

	select {
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return StopSignal, nil
	case err := <-serverErrors:
		if err == nil {
			return StopServerError, fmt.Errorf("catalog server stopped unexpectedly")
		}
		return StopServerError, fmt.Errorf("catalog server failed: %w", err)
	}
}
