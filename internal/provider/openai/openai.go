// Package openai adapts the OpenAI Images API to the provider contract.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/internal/provider"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"net/http"
)

const (
	Name         = "openai"
	DefaultModel = openai.ImageModelDallE3
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Size    string
}

type Adapter struct {
	client openai.Client
	model  string
	size   string
}

// New builds the adapter. SDK retries are disabled so rate limiting reaches the orchestrator.
func New(cfg Config, opts ...option.RequestOption) *Adapter {
	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	size := cfg.Size
	if size == "" {
		size = string(openai.ImageGenerateParamsSize1024x1024)
	}

	return &Adapter{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
		size:   size,
	}
}

func (a *Adapter) Name() string {
	return Name
}

func (a *Adapter) Generate(ctx context.Context, req provider.Request) (provider.Output, error) {
	params := openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  a.model,
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize(a.size),
	}
	if size, ok := req.Options["size"].(string); ok && size != "" {
		params.Size = openai.ImageGenerateParamsSize(size)
	}
	if quality, ok := req.Options["quality"].(string); ok && quality != "" {
		params.Quality = openai.ImageGenerateParamsQuality(quality)
	}
	// gpt-image models always answer with base64 and reject response_format
	if a.model == openai.ImageModelDallE2 || a.model == openai.ImageModelDallE3 {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatURL
	}

	resp, err := a.client.Images.Generate(ctx, params)
	if err != nil {
		return provider.Output{}, toProviderError(err)
	}

	for _, img := range resp.Data {
		switch {
		case img.URL != "":
			return provider.Output{URL: img.URL, MediaType: "image/png", ModelID: a.model}, nil
		case img.B64JSON != "":
			data, err := base64.StdEncoding.DecodeString(img.B64JSON)
			if err != nil {
				return provider.Output{}, &provider.Error{Provider: Name, Class: provider.Unknown, Message: "invalid image encoding", Err: err}
			}
			return provider.Output{Data: data, MediaType: http.DetectContentType(data), ModelID: a.model}, nil
		}
	}
	return provider.Output{}, &provider.Error{Provider: Name, Class: provider.Unknown, Message: "response contained no image"}
}

func toProviderError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return &provider.Error{Provider: Name, Class: provider.Unknown, Message: "request failed", Err: err}
	}

	raw := provider.RawResponse{
		StatusCode: apiErr.StatusCode,
		Status:     apiErr.Code,
		Message:    apiErr.Message,
		Details:    []string{apiErr.Type},
		Body:       []byte(apiErr.RawJSON()),
	}
	pErr := provider.NewError(Name, raw, err)
	if pErr.Message == "" {
		pErr.Message = fmt.Sprintf("status %d", apiErr.StatusCode)
	}
	return pErr
}
