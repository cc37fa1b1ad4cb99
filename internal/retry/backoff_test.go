package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryer_SucceedsFirstTime(t *testing.T) {
	r := NewRetryer(fastPolicy(3), zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_RetryThenSucceed(t *testing.T) {
	var attempts []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error, _ time.Duration) { attempts = append(attempts, attempt) }
	r := NewRetryer(p, zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetryer_ExhaustedReturnsLastError(t *testing.T) {
	r := NewRetryer(fastPolicy(2), zap.NewNop())
	last := errors.New("still down")
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return last
	})
	assert.ErrorIs(t, err, last)
	assert.Equal(t, 3, calls)
}

func TestRetryer_PermanentStopsImmediately(t *testing.T) {
	r := NewRetryer(fastPolicy(5), zap.NewNop())
	bad := errors.New("404")
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(bad)
	})
	assert.Equal(t, bad, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_ShouldRetryPredicate(t *testing.T) {
	p := fastPolicy(5)
	p.ShouldRetry = func(err error) bool { return err.Error() == "retry me" }
	r := NewRetryer(p, zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("fatal")
	})
	assert.EqualError(t, err, "fatal")
	assert.Equal(t, 1, calls)
}

func TestRetryer_ContextCancelled(t *testing.T) {
	p := fastPolicy(5)
	p.InitialDelay = time.Hour
	p.MaxDelay = time.Hour
	r := NewRetryer(p, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryer_DelayBounds(t *testing.T) {
	r := NewRetryer(Policy{
		MaxRetries:   10,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}, nil)

	assert.Equal(t, 10*time.Millisecond, r.delay(1))
	assert.Equal(t, 20*time.Millisecond, r.delay(2))
	assert.Equal(t, 40*time.Millisecond, r.delay(3))
	assert.Equal(t, 50*time.Millisecond, r.delay(4))
	assert.Equal(t, 50*time.Millisecond, r.delay(9))
}

func TestNewRetryer_FixesInvalidPolicy(t *testing.T) {
	r := NewRetryer(Policy{MaxRetries: -1, Multiplier: 0.5}, nil)
	assert.Equal(t, 0, r.policy.MaxRetries)
	assert.Equal(t, DefaultPolicy().InitialDelay, r.policy.InitialDelay)
	assert.Equal(t, 2.0, r.policy.Multiplier)
}
