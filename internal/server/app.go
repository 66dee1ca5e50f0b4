// Package server builds the leadcapture processes from configuration and runs them:
// the lead service (serve) and the offline gateway (edge).
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type runner struct {
	name string
	run  func(ctx context.Context) error
}

type closer struct {
	name  string
	close func(ctx context.Context) error
}

// App is one runnable process: an HTTP handler plus background loops and the
// resources to release on shutdown.
type App struct {
	name    string
	port    int
	handler http.Handler
	logger  *zap.Logger

	runners []runner
	closers []closer

	closeOnce sync.Once
	closeErr  error
}

func newApp(name string, port int, logger *zap.Logger) *App {
	return &App{name: name, port: port, logger: logger}
}

// Handler exposes the HTTP surface, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

func (a *App) addRunner(name string, fn func(ctx context.Context) error) {
	a.runners = append(a.runners, runner{name: name, run: fn})
}

// addCloser registers a release step. Closers run in reverse order.
func (a *App) addCloser(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

// Run starts the background loops and the HTTP server and blocks until ctx is
// canceled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	a.logger.Info("application started", zap.String("app", a.name))

	var wg sync.WaitGroup
	for _, r := range a.runners {
		wg.Add(1)
		go func(r runner) {
			defer wg.Done()
			a.logger.Debug("background loop started", zap.String("loop", r.name))
			if err := r.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("background loop failed", zap.String("loop", r.name), zap.Error(err))
			}
		}(r)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.String("app", a.name), zap.Int("port", a.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()
	return a.Close(shutdownCtx)
}

// Close releases every resource in reverse registration order. It is idempotent.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error
		for i := len(a.closers) - 1; i >= 0; i-- {
			c := a.closers[i]
			if err := c.close(ctx); err != nil {
				a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			}
		}
		a.closeErr = errors.Join(errs...)
		a.logger.Info("shutdown complete", zap.String("app", a.name))
	})
	return a.closeErr
}
