package provider

import (
	"context"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/internal/constants"
	"github.com/RezaEskandarii/genfire/internal/retry"
	"go.uber.org/zap"
	"time"
)

var (
	ErrNoProviders = errors.New("no generation providers configured")

	// ErrChainExhausted means every provider was tried and none produced an output.
	ErrChainExhausted = errors.New("all generation providers exhausted")
)

// Attempt records one failed provider call.
type Attempt struct {
	Provider         string
	Number           int
	Class            Classification
	DelayBeforeRetry time.Duration
}

// ProducedOutput is an Output together with the provider that made it.
type ProducedOutput struct {
	Output
	Provider string
}

type Result struct {
	Outputs  []ProducedOutput
	Attempts []Attempt
	// Errors holds the failures of outputs that were not produced.
	Errors []error
}

// Provider returns the provider of the first output.
func (r *Result) Provider() string {
	if r == nil || len(r.Outputs) == 0 {
		return ""
	}
	return r.Outputs[0].Provider
}

type Orchestrator struct {
	providers   []Adapter
	maxAttempts int
	backoff     func(int) time.Duration
	outputDelay time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *zap.Logger
}

type OrchestratorOption func(*Orchestrator)

// WithMaxAttempts bounds same-provider attempts on rate limiting.
func WithMaxAttempts(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithBackoff sets the exponential base. rnd supplies the jitter fraction in [0, 1).
func WithBackoff(base time.Duration, rnd func() float64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.backoff = retry.ExponentialJitter(base, rnd)
	}
}

// WithOutputDelay sets the pause between two outputs of the same request.
func WithOutputDelay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.outputDelay = d
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

func WithLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator tries providers in the given priority order.
func NewOrchestrator(providers []Adapter, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		providers:   providers,
		maxAttempts: constants.ProviderMaxAttempts,
		backoff:     retry.ExponentialJitter(constants.ProviderBaseBackoff, nil),
		outputDelay: 2 * time.Second,
		sleep:       retry.Sleep,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Providers lists provider names in priority order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, 0, len(o.providers))
	for _, p := range o.providers {
		names = append(names, p.Name())
	}
	return names
}

// GenerateWithFallback produces req.Count outputs one at a time. It returns an error only when
// no output was produced. An output whose chain ran out of providers is recorded in
// Result.Errors and the next output is still attempted. A provider that reported quota
// exhaustion is skipped for the rest of the call. Permanent and unknown failures stop the whole chain.
func (o *Orchestrator) GenerateWithFallback(ctx context.Context, req Request) (*Result, error) {
	if len(o.providers) == 0 {
		return nil, ErrNoProviders
	}

	count := max(req.Count, 1)
	chain := o.chain(req.PreferredProvider)
	exhausted := make(map[string]bool, len(chain))
	result := &Result{}

	for i := 0; i < count; i++ {
		if i > 0 {
			if len(exhausted) == len(chain) {
				break
			}
			if err := o.sleep(ctx, o.outputDelay); err != nil {
				return o.finish(result, err)
			}
		}

		out, err := o.generateOne(ctx, req, chain, exhausted, result)
		if err != nil {
			o.logger.Warn("generation output failed",
				zap.Int("output", i+1),
				zap.Int("requested", count),
				zap.Error(err))
			if !errors.Is(err, ErrChainExhausted) {
				return o.finish(result, err)
			}
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Outputs = append(result.Outputs, out)
	}

	if len(result.Outputs) == 0 {
		return result, result.Errors[len(result.Errors)-1]
	}
	return result, nil
}

func (o *Orchestrator) generateOne(ctx context.Context, req Request, chain []Adapter, exhausted map[string]bool, result *Result) (ProducedOutput, error) {
	var lastErr error

	for _, adapter := range chain {
		name := adapter.Name()
		if exhausted[name] {
			continue
		}

		out, err := retry.Do(ctx, retry.Policy{
			MaxAttempts: o.maxAttempts,
			Retryable:   func(err error) bool { return ClassOf(err) == RateLimited },
			Backoff:     o.backoff,
			Sleep:       o.sleep,
			OnRetry: func(attempt int, err error, delay time.Duration) {
				result.Attempts[len(result.Attempts)-1].DelayBeforeRetry = delay
				o.logger.Info("provider rate limited, backing off",
					zap.String("provider", name),
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay))
			},
		}, func(ctx context.Context, attempt int) (Output, error) {
			out, err := adapter.Generate(ctx, req)
			if err != nil {
				result.Attempts = append(result.Attempts, Attempt{
					Provider: name,
					Number:   attempt,
					Class:    ClassOf(err),
				})
			}
			return out, err
		})
		if err == nil {
			return ProducedOutput{Output: out, Provider: name}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ProducedOutput{}, ctxErr
		}

		lastErr = err
		switch ClassOf(err) {
		case QuotaExhausted:
			exhausted[name] = true
			o.logger.Warn("provider quota exhausted, failing over", zap.String("provider", name), zap.Error(err))
		case RateLimited:
			o.logger.Warn("provider still rate limited, failing over", zap.String("provider", name), zap.Error(err))
		default:
			return ProducedOutput{}, err
		}
	}

	if lastErr == nil {
		return ProducedOutput{}, ErrChainExhausted
	}
	return ProducedOutput{}, fmt.Errorf("%w: %w", ErrChainExhausted, lastErr)
}

// chain returns the providers in priority order with the preferred one moved to the front.
func (o *Orchestrator) chain(preferred string) []Adapter {
	chain := make([]Adapter, 0, len(o.providers))
	for _, p := range o.providers {
		if p.Name() == preferred {
			chain = append(chain, p)
		}
	}
	for _, p := range o.providers {
		if p.Name() != preferred {
			chain = append(chain, p)
		}
	}
	return chain
}
