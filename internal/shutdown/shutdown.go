// Package shutdown coordinates graceful teardown: components register with a
// priority and are closed in order when a signal arrives or shutdown is
// triggered programmatically.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Closer is a component that can be shut down.
type Closer interface {
	Close() error
}

// HookFunc performs cleanup during shutdown.
type HookFunc func(ctx context.Context) error

// Coordinator manages graceful shutdown of all registered components.
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu         sync.Mutex
	components []namedComponent
	hooks      []namedHook

	shutdownOnce sync.Once
	triggerOnce  sync.Once // separate Once so TriggerShutdown cannot race channel close
	shutdownCh   chan struct{}
}

type namedComponent struct {
	name      string
	component Closer
	priority  int // lower shuts down first
}

type namedHook struct {
	name     string
	hook     HookFunc
	priority int
}

// New creates a shutdown coordinator with an overall deadline.
func New(timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		timeout:    timeout,
		logger:     logger.With().Str("component", "shutdown").Logger(),
		shutdownCh: make(chan struct{}),
	}
}

// Register adds a component. Priority determines shutdown order, lower first.
func (c *Coordinator) Register(name string, component Closer, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components = append(c.components, namedComponent{name: name, component: component, priority: priority})
	c.logger.Debug().Str("name", name).Int("priority", priority).Msg("Registered component for shutdown")
}

// RegisterHook adds a cleanup function; hooks run before components close.
func (c *Coordinator) RegisterHook(name string, hook HookFunc, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, namedHook{name: name, hook: hook, priority: priority})
	c.logger.Debug().Str("name", name).Int("priority", priority).Msg("Registered shutdown hook")
}

// WaitForSignal blocks until a shutdown signal is received or shutdown is
// triggered programmatically.
func (c *Coordinator) WaitForSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-quit:
		c.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		return sig
	case <-c.shutdownCh:
		return syscall.SIGTERM
	}
}

// Shutdown runs all hooks, then closes all components in priority order.
// Runs at most once; later calls return the first run's error.
func (c *Coordinator) Shutdown() error {
	var shutdownErr error

	c.shutdownOnce.Do(func() {
		c.triggerOnce.Do(func() {
			close(c.shutdownCh)
		})

		c.logger.Info().
			Dur("timeout", c.timeout).
			Int("components", len(c.components)).
			Int("hooks", len(c.hooks)).
			Msg("Starting graceful shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		start := time.Now()

		c.mu.Lock()
		components := append([]namedComponent{}, c.components...)
		hooks := append([]namedHook{}, c.hooks...)
		c.mu.Unlock()

		sort.SliceStable(components, func(i, j int) bool { return components[i].priority < components[j].priority })
		sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].priority < hooks[j].priority })

		for _, h := range hooks {
			select {
			case <-ctx.Done():
				c.logger.Warn().Str("hook", h.name).Msg("Shutdown timeout reached, skipping remaining hooks")
				shutdownErr = ctx.Err()
				return
			default:
			}

			c.logger.Debug().Str("hook", h.name).Msg("Executing shutdown hook")
			if err := h.hook(ctx); err != nil {
				c.logger.Error().Err(err).Str("hook", h.name).Msg("Shutdown hook failed")
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		for _, comp := range components {
			select {
			case <-ctx.Done():
				c.logger.Warn().Str("component", comp.name).Msg("Shutdown timeout reached, skipping remaining components")
				shutdownErr = ctx.Err()
				return
			default:
			}

			c.logger.Debug().Str("component", comp.name).Msg("Shutting down component")
			if err := comp.component.Close(); err != nil {
				c.logger.Error().Err(err).Str("component", comp.name).Msg("Component shutdown failed")
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		c.logger.Info().Dur("duration", time.Since(start)).Msg("Graceful shutdown complete")
	})

	return shutdownErr
}

// TriggerShutdown requests shutdown programmatically. Safe to call from
// multiple goroutines.
func (c *Coordinator) TriggerShutdown() {
	c.triggerOnce.Do(func() {
		c.logger.Info().Msg("Programmatic shutdown triggered")
		close(c.shutdownCh)
	})
}

// Priorities for the server's components.
const (
	PriorityHTTPServer = 10 // stop accepting requests first
	PriorityDataset    = 20 // stop scheduled dataset refresh
	PriorityBoardStore = 30 // board database
	PriorityAuth       = 40 // auth manager last, so late requests still verify
)
