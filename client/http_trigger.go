package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/constants"
	"github.com/RezaEskandarii/genfire/internal/retry"
	"github.com/RezaEskandarii/genfire/types/config"
	"go.uber.org/zap"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Trigger starts background processing of a generation.
type Trigger interface {
	Fire(ctx context.Context, generationID string) error
}

// HTTPTrigger asks the internal endpoint of some API instance to run a generation.
type HTTPTrigger struct {
	baseURL  string
	secret   string
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	client   *http.Client
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *zap.Logger
}

func NewHTTPTrigger(cfg config.GenerationConfig, client *http.Client, logger *zap.Logger) *HTTPTrigger {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPTrigger{
		baseURL:  strings.TrimRight(cfg.TriggerURL, "/"),
		secret:   cfg.TriggerSecret,
		timeout:  cfg.TriggerTimeout,
		attempts: max(cfg.TriggerAttempts, 1),
		backoff:  cfg.TriggerBackoff,
		client:   client,
		sleep:    retry.Sleep,
		logger:   logger,
	}
}

// WithSleep replaces the wait between attempts.
func (t *HTTPTrigger) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *HTTPTrigger {
	t.sleep = sleep
	return t
}

// Fire POSTs {baseURL}/{id}/process. An attempt that times out returns custom_errors.ErrTriggerTimeout
// at once: the endpoint most likely accepted the work, so a second trigger would only duplicate it.
// Explicit failures are retried with linear backoff and end in *custom_errors.TriggerFailureError.
func (t *HTTPTrigger) Fire(ctx context.Context, generationID string) error {
	target := fmt.Sprintf("%s/%s/process", t.baseURL, url.PathEscape(generationID))

	made := 0
	_, err := retry.Do(ctx, retry.Policy{
		MaxAttempts: t.attempts,
		Retryable:   func(err error) bool { return !errors.Is(err, custom_errors.ErrTriggerTimeout) },
		Backoff:     retry.Linear(t.backoff),
		Sleep:       t.sleep,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			t.logger.Warn("trigger attempt failed",
				zap.String("generation_id", generationID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		},
	}, func(ctx context.Context, attempt int) (struct{}, error) {
		made = attempt
		return struct{}{}, t.post(ctx, target)
	})
	if err == nil || errors.Is(err, custom_errors.ErrTriggerTimeout) {
		return err
	}

	var failure *custom_errors.TriggerFailureError
	if errors.As(err, &failure) {
		failure.Attempts = made
		return failure
	}
	return &custom_errors.TriggerFailureError{Attempts: made, Err: err}
}

func (t *HTTPTrigger) post(ctx context.Context, target string) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build trigger request: %w", err)
	}
	req.Header.Set(constants.TriggerSecretHeader, t.secret)

	resp, err := t.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", custom_errors.ErrTriggerTimeout, err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &custom_errors.TriggerFailureError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
