// Package replicate runs predictions on Replicate. A prediction is an asynchronous operation:
// it is created, then polled until it succeeds, fails or the poll budget runs out.
package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/internal/poller"
	"github.com/RezaEskandarii/genfire/internal/provider"
	r8 "github.com/replicate/replicate-go"
	"net/http"
	"strings"
	"time"
)

const (
	Name = "replicate"

	DefaultModel = "black-forest-labs/flux-schnell"
)

type Config struct {
	APIToken string
	// BaseURL overrides the API root, https://api.replicate.com/v1 by default.
	BaseURL      string
	Model        string
	PollInterval time.Duration
	PollAttempts int
}

type Adapter struct {
	cfg   Config
	owner string
	model string
	api   *r8.Client
	poll  poller.Poller
}

// New turns the SDK retries off. Retry and failover belong to the orchestrator.
func New(cfg Config, client *http.Client) (*Adapter, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 60
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	owner, model, ok := strings.Cut(cfg.Model, "/")
	if !ok || owner == "" || model == "" {
		return nil, fmt.Errorf("replicate model %q must be owner/name", cfg.Model)
	}

	opts := []r8.ClientOption{
		r8.WithToken(cfg.APIToken),
		r8.WithHTTPClient(client),
		r8.WithRetryPolicy(0, r8.ConstantBackoff{}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, r8.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	api, err := r8.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create replicate client: %w", err)
	}

	return &Adapter{
		cfg:   cfg,
		owner: owner,
		model: model,
		api:   api,
		poll:  poller.Poller{Interval: cfg.PollInterval, MaxAttempts: cfg.PollAttempts},
	}, nil
}

// WithSleep replaces the poll wait. Tests use it to poll without delay.
func (a *Adapter) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Adapter {
	a.poll.Sleep = sleep
	return a
}

func (a *Adapter) Name() string {
	return Name
}

// Generate returns poller.ErrTimeout (wrapped) when the prediction outlives the poll budget.
// The caller decides whether that is retryable.
func (a *Adapter) Generate(ctx context.Context, req provider.Request) (provider.Output, error) {
	input := r8.PredictionInput{"prompt": req.Prompt, "num_outputs": 1}
	for k, v := range req.Options {
		input[k] = v
	}

	created, err := a.api.CreatePredictionWithModel(ctx, a.owner, a.model, input, nil, false)
	if err != nil {
		return provider.Output{}, toError(err)
	}

	url, err := poller.Poll(ctx, a.poll, created.ID, func(ctx context.Context) (poller.Status[string], error) {
		p, err := a.api.GetPrediction(ctx, created.ID)
		if err != nil {
			return poller.Status[string]{}, toError(err)
		}
		return status(p)
	})
	if err != nil {
		var opErr *poller.OperationError
		if errors.As(err, &opErr) {
			// the model ran and refused, retrying the same input will not help
			return provider.Output{}, &provider.Error{Provider: Name, Class: provider.Permanent, Message: opErr.Error(), Err: err}
		}
		return provider.Output{}, err
	}

	return provider.Output{URL: url, MediaType: mediaTypeFromURL(url), ModelID: a.cfg.Model}, nil
}

func status(p *r8.Prediction) (poller.Status[string], error) {
	switch string(p.Status) {
	case "succeeded":
		url, err := firstOutput(p.Output)
		if err != nil {
			return poller.Status[string]{Done: true, Err: err}, nil
		}
		return poller.Status[string]{Done: true, Result: url}, nil
	case "failed", "canceled":
		msg := string(p.Status)
		if p.Error != nil {
			msg = fmt.Sprint(p.Error)
		}
		return poller.Status[string]{Done: true, Err: errors.New(msg)}, nil
	default:
		return poller.Status[string]{}, nil
	}
}

// firstOutput reads the prediction output, which models return as one URL or a list of them.
func firstOutput(output any) (string, error) {
	switch v := output.(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case []any:
		if len(v) == 0 {
			return "", errors.New("prediction succeeded without output")
		}
		if s, ok := v[0].(string); ok && s != "" {
			return s, nil
		}
	case nil:
		return "", errors.New("prediction succeeded without output")
	}
	raw, _ := json.Marshal(output)
	return "", fmt.Errorf("unexpected prediction output: %s", raw)
}

func toError(err error) error {
	var apiErr *r8.APIError
	if !errors.As(err, &apiErr) {
		return &provider.Error{Provider: Name, Class: provider.Unknown, Message: "request failed", Err: err}
	}

	msg := apiErr.Detail
	if msg == "" {
		msg = http.StatusText(apiErr.Status)
	}
	return provider.NewError(Name, provider.RawResponse{
		StatusCode: apiErr.Status,
		Status:     apiErr.Title,
		Message:    msg,
	}, err)
}

func mediaTypeFromURL(url string) string {
	switch {
	case strings.HasSuffix(url, ".webp"):
		return "image/webp"
	case strings.HasSuffix(url, ".jpg"), strings.HasSuffix(url, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(url, ".mp4"):
		return "video/mp4"
	default:
		return "image/png"
	}
}
