package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/fallback/pkg/logging"
)

var (
	ErrAlreadyRun   = errors.New("runner: already started")
	ErrDrainTimeout = errors.New("runner: drain timed out")
)

// LifecycleRunner runs Hooks once: OnStart, Serve, then a bounded drain and
// OnStop. Stop may be called from any goroutine.
type LifecycleRunner struct {
	state   atomic.Int32
	hooks   Hooks
	drainer Drainer
	timeout time.Duration
	banner  io.Writer
	logger  *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LifecycleRunner{
		hooks:   hooks,
		drainer: drainer,
		timeout: timeout,
		logger:  logging.Discard(),
	}
}

// WithBanner prints the startup banner to w when Run starts.
func (r *LifecycleRunner) WithBanner(w io.Writer) *LifecycleRunner {
	r.banner = w
	return r
}

// WithLogger logs state transitions to logger.
func (r *LifecycleRunner) WithLogger(logger *slog.Logger) *LifecycleRunner {
	r.logger = logging.NewComponentLogger(logger, "runner")
	return r
}

// Run serves until Serve returns or ctx ends, then drains. A Serve error
// other than cancellation takes precedence over a drain error.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return ErrAlreadyRun
	}
	r.logger.Info("runner_starting", "version", Version)
	PrintBanner(r.banner)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	if r.hooks.OnStart != nil {
		if err := r.hooks.OnStart(ctx); err != nil {
			r.logger.Error("runner_start_failed", "error", err)
			_ = r.shutdown()
			return err
		}
	}
	r.transition(StateRunning)

	var serveErr error
	if r.hooks.Serve != nil {
		serveErr = r.hooks.Serve(ctx)
	} else {
		<-ctx.Done()
	}
	drainErr := r.shutdown()
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return drainErr
}

// Stop cancels Serve and waits for the drain.
func (r *LifecycleRunner) Stop() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	return r.shutdown()
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

func (r *LifecycleRunner) shutdown() error {
	r.stopOnce.Do(func() {
		r.transition(StateDraining)
		r.stopErr = r.drain()
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.transition(StateStopped)
	})
	return r.stopErr
}

func (r *LifecycleRunner) drain() error {
	if r.drainer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.drainer.Drain(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			r.logger.Warn("runner_drain_failed", "error", err)
		}
		return err
	case <-ctx.Done():
		r.logger.Warn("runner_drain_timeout", "timeout", r.timeout)
		return ErrDrainTimeout
	}
}

func (r *LifecycleRunner) transition(s State) {
	r.state.Store(int32(s))
	r.logger.Debug("runner_state", "state", s.String())
}

var _ Runner = (*LifecycleRunner)(nil)
