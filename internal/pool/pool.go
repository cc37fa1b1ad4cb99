package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultWidth caps simultaneous outbound calls per batch.
const DefaultWidth = 5

var (
	ErrTaskTimeout  = errors.New("task timed out")
	ErrTaskPanicked = errors.New("task panicked")
)

// Task processes one item.
type Task[T any] func(ctx context.Context, item T) error

// ForEach runs fn over items with at most width calls in flight.
// The first error cancels the context passed to remaining calls and is
// returned once every started call has finished. Tasks that must not abort
// the batch should handle their own errors and return nil.
func ForEach[T any](ctx context.Context, items []T, width int, fn Task[T]) error {
	if len(items) == 0 {
		return nil
	}
	if width <= 0 {
		width = DefaultWidth
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(width)
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return safeCall(gctx, item, fn)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Map is ForEach that collects one result per item, in input order.
func Map[T, R any](ctx context.Context, items []T, width int, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	err := ForEach(ctx, idx, width, func(ctx context.Context, i int) error {
		r, err := fn(ctx, items[i])
		if err != nil {
			return err
		}
		out[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WithTimeout races fn against a timer and returns whichever finishes first.
// On timeout it returns ErrTaskTimeout without waiting for fn; fn's context
// is cancelled so a well-behaved fn exits soon after.
func WithTimeout[R any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	tctx, cancel := context.WithCancel(ctx)

	type result struct {
		value R
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer cancel()
		var r result
		defer func() {
			if p := recover(); p != nil {
				r = result{err: fmt.Errorf("%w: %v", ErrTaskPanicked, p)}
			}
			done <- r
		}()
		r.value, r.err = fn(tctx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.value, r.err
	case <-timer.C:
		cancel()
		return zero, fmt.Errorf("%w after %v", ErrTaskTimeout, timeout)
	case <-ctx.Done():
		cancel()
		return zero, ctx.Err()
	}
}

func safeCall[T any](ctx context.Context, item T, fn Task[T]) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, p)
		}
	}()
	return fn(ctx, item)
}
