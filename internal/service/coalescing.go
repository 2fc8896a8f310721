package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// requestCoalescer shares one in-flight upstream load among concurrent cache
// misses for the same key.
type requestCoalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

// newRequestCoalescer creates a requestCoalescer. timeout bounds both the
// shared load and each caller's wait for it.
func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{timeout: timeout}
}

// Do runs fn for key unless a load for key is already running, in which case
// it waits for that load's result. joined reports whether this caller reused
// another caller's load. The load runs on a context detached from the first
// caller's cancellation so that one caller giving up does not fail the rest;
// request-scoped values (logger, correlation ID) are kept.
func (rc *requestCoalescer) Do(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (v interface{}, joined bool, err error) {
	leader := false
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		leader = true
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
		defer cancel()
		return fn(loadCtx)
	})

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case res := <-ch:
		return res.Val, !leader, res.Err
	case <-waitCtx.Done():
		return nil, false, waitCtx.Err()
	}
}
