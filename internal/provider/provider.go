// Package provider defines the generation provider contract and the orchestrator that
// retries and fails over between providers.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Request is one generation call. Count is the number of outputs the caller wants in total.
type Request struct {
	Prompt            string
	Options           map[string]any
	Count             int
	PreferredProvider string
}

// Output is a single produced media item. Data is set when the provider returned bytes inline.
type Output struct {
	URL       string
	Data      []byte
	MediaType string
	ModelID   string
}

// Adapter is one external generation provider. Generate produces exactly one output and
// returns a *Error on failure.
type Adapter interface {
	Name() string
	Generate(ctx context.Context, req Request) (Output, error)
}

// Error is a classified provider failure.
type Error struct {
	Provider   string
	Class      Classification
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Class, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Class, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError classifies raw and wraps it as a provider error.
func NewError(providerName string, raw RawResponse, cause error) *Error {
	return &Error{
		Provider:   providerName,
		Class:      Classify(raw),
		StatusCode: raw.StatusCode,
		Message:    raw.Message,
		Err:        cause,
	}
}

// ClassOf reports the classification carried by err, or Unknown.
func ClassOf(err error) Classification {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Class
	}
	return Unknown
}
