package poller

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func instant(slept *int) func(context.Context, time.Duration) error {
	return func(context.Context, time.Duration) error {
		*slept++
		return nil
	}
}

func TestPoll_ReturnsPayload(t *testing.T) {
	slept := 0
	checks := 0
	p := Poller{Interval: time.Second, MaxAttempts: 10, Sleep: instant(&slept)}

	got, err := Poll(context.Background(), p, "pred-1", func(context.Context) (Status[string], error) {
		checks++
		if checks < 3 {
			return Status[string]{}, nil
		}
		return Status[string]{Done: true, Result: "https://cdn/out.png"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "https://cdn/out.png", got)
	assert.Equal(t, 3, checks)
	assert.Equal(t, 2, slept)
}

func TestPoll_ExplicitFailureIsNotTimeout(t *testing.T) {
	p := Poller{Interval: time.Second, MaxAttempts: 10, Sleep: instant(new(int))}
	cause := errors.New("NSFW content detected")

	_, err := Poll(context.Background(), p, "pred-2", func(context.Context) (Status[string], error) {
		return Status[string]{Done: true, Err: cause}, nil
	})

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "pred-2", opErr.Operation)
	assert.ErrorIs(t, err, cause)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestPoll_Timeout(t *testing.T) {
	slept := 0
	checks := 0
	p := Poller{Interval: 2 * time.Second, MaxAttempts: 4, Sleep: instant(&slept)}

	_, err := Poll(context.Background(), p, "pred-3", func(context.Context) (Status[int], error) {
		checks++
		return Status[int]{}, nil
	})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 4, checks)
	assert.Equal(t, 3, slept)
	assert.Equal(t, 8*time.Second, p.Ceiling())
}

func TestPoll_CheckErrorPropagates(t *testing.T) {
	p := Poller{Interval: time.Second, MaxAttempts: 3, Sleep: instant(new(int))}
	boom := errors.New("connection reset")

	_, err := Poll(context.Background(), p, "pred-4", func(context.Context) (Status[int], error) {
		return Status[int]{}, boom
	})

	assert.ErrorIs(t, err, boom)
	var opErr *OperationError
	assert.False(t, errors.As(err, &opErr))
}

func TestPoll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Poller{Interval: time.Hour, MaxAttempts: 3}

	_, err := Poll(ctx, p, "pred-5", func(context.Context) (Status[int], error) {
		return Status[int]{}, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
