package test

import (
	"context"
	"errors"
	"github.com/RezaEskandarii/genfire/client"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/types/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func triggerConfig(baseURL string) config.GenerationConfig {
	return config.GenerationConfig{
		Mode:            config.BestEffort,
		TriggerURL:      baseURL + "/internal/generations/",
		TriggerSecret:   "s3cret",
		TriggerTimeout:  time.Second,
		TriggerAttempts: 3,
		TriggerBackoff:  time.Second,
	}
}

func recordSleeps(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestHTTPTrigger_Success(t *testing.T) {
	var path, secret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		secret = r.Header.Get("X-Trigger-Secret")
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	trigger := client.NewHTTPTrigger(triggerConfig(srv.URL), srv.Client(), nil)
	require.NoError(t, trigger.Fire(context.Background(), "gen-1"))
	assert.Equal(t, "/internal/generations/gen-1/process", path)
	assert.Equal(t, "s3cret", secret)
}

func TestHTTPTrigger_RetriesExplicitFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "worker pool exhausted", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var delays []time.Duration
	trigger := client.NewHTTPTrigger(triggerConfig(srv.URL), srv.Client(), nil).WithSleep(recordSleeps(&delays))

	err := trigger.Fire(context.Background(), "gen-1")
	var failure *custom_errors.TriggerFailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, http.StatusInternalServerError, failure.StatusCode)
	assert.Equal(t, 3, failure.Attempts)
	assert.Equal(t, "worker pool exhausted", failure.Body)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestHTTPTrigger_RecoversAfterFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	var delays []time.Duration
	trigger := client.NewHTTPTrigger(triggerConfig(srv.URL), srv.Client(), nil).WithSleep(recordSleeps(&delays))

	require.NoError(t, trigger.Fire(context.Background(), "gen-1"))
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, delays, 1)
}

func TestHTTPTrigger_TimeoutIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := triggerConfig(srv.URL)
	cfg.TriggerTimeout = 50 * time.Millisecond
	var delays []time.Duration
	trigger := client.NewHTTPTrigger(cfg, srv.Client(), nil).WithSleep(recordSleeps(&delays))

	err := trigger.Fire(context.Background(), "gen-1")
	assert.ErrorIs(t, err, custom_errors.ErrTriggerTimeout)

	var failure *custom_errors.TriggerFailureError
	assert.False(t, errors.As(err, &failure))
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, delays)
}

func TestHTTPTrigger_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var delays []time.Duration
	trigger := client.NewHTTPTrigger(triggerConfig(url), nil, nil).WithSleep(recordSleeps(&delays))

	err := trigger.Fire(context.Background(), "gen-1")
	var failure *custom_errors.TriggerFailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 3, failure.Attempts)
	assert.Zero(t, failure.StatusCode)
	assert.Len(t, delays, 2)
}

func TestHTTPTrigger_CancelledDuringBackoffReportsAttemptsMade(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trigger := client.NewHTTPTrigger(triggerConfig(srv.URL), srv.Client(), nil).
		WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		})

	err := trigger.Fire(ctx, "gen-1")
	var failure *custom_errors.TriggerFailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 1, failure.Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, failure.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}
