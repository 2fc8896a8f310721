// Package lifecycle tracks process shutdown and runs registered cleanup in order.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

type hook struct {
	name string
	fn   func(context.Context) error
}

// Closers runs cleanup hooks in reverse registration order, so resources
// opened first (stores, caches) close after the things that use them.
type Closers struct {
	mu     sync.Mutex
	hooks  []hook
	logger *zap.Logger
}

// NewClosers returns an empty hook list. logger may be nil.
func NewClosers(logger *zap.Logger) *Closers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Closers{logger: logger}
}

// Add registers fn under name.
func (c *Closers) Add(name string, fn func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook{name: name, fn: fn})
}

// AddFunc registers a cleanup that cannot fail or observe ctx (e.g. a scheduler stop).
func (c *Closers) AddFunc(name string, fn func()) {
	c.Add(name, func(context.Context) error { fn(); return nil })
}

// Close marks the process as shutting down and runs every hook, newest first.
// All hooks run even if some fail; the failures are joined. Hooks are cleared.
func (c *Closers) Close(ctx context.Context) error {
	SetShuttingDown(true)

	c.mu.Lock()
	hooks := c.hooks
	c.hooks = nil
	c.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			c.logger.Warn("shutdown hook failed", zap.String("hook", h.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		c.logger.Debug("shutdown hook done", zap.String("hook", h.name))
	}
	return errors.Join(errs...)
}
