package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

// Runner owns the servers and background tasks of a process. Run blocks until
// a signal arrives, the parent context ends or a server fails, then drains
// everything within the shutdown timeout.
type Runner struct {
	logger          *Logger
	servers         []*http.Server
	tasks           []func(context.Context) error
	shutdownFuncs   []ShutdownFunc
	shutdownTimeout time.Duration
	signals         []os.Signal
	mu              sync.Mutex
}

// NewRunner creates a runner. A zero timeout means 30 seconds.
func NewRunner(logger *Logger, timeout time.Duration) *Runner {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Runner{
		logger:          logger,
		shutdownTimeout: timeout,
		signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// AddServer serves srv until shutdown.
func (r *Runner) AddServer(srv *http.Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = append(r.servers, srv)
}

// AddTask runs fn until its context is cancelled. fn returning a non-nil error
// triggers shutdown of everything else.
func (r *Runner) AddTask(fn func(context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, fn)
}

// RegisterShutdownFunc registers a function to call after servers stop.
func (r *Runner) RegisterShutdownFunc(fn ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdownFuncs = append(r.shutdownFuncs, fn)
}

// Run blocks until shutdown completes.
func (r *Runner) Run(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, r.signals...)
	defer stop()

	r.mu.Lock()
	servers := append([]*http.Server(nil), r.servers...)
	tasks := append([]func(context.Context) error(nil), r.tasks...)
	funcs := append([]ShutdownFunc(nil), r.shutdownFuncs...)
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			r.logger.Infof("Listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}
	for _, task := range tasks {
		task := task
		g.Go(func() error { return task(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		r.logger.Info("Starting graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				r.logger.WithError(err).Errorf("Server %s shutdown error", srv.Addr)
				errs = append(errs, err)
			}
		}
		for i, fn := range funcs {
			if err := fn(shutdownCtx); err != nil {
				r.logger.WithError(err).Errorf("Shutdown function %d failed", i)
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	err := g.Wait()
	if err != nil {
		return err
	}
	r.logger.Info("Graceful shutdown complete")
	return nil
}
