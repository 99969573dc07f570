// Package gemini generates images through the Gemini API. Imagen GenerateImages is the primary
// path; models that are not available for it fall back to GenerateContent with an image-capable model.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/internal/provider"
	"go.uber.org/zap"
	"google.golang.org/genai"
	"net/http"
	"strings"
	"time"
)

const (
	Name = "gemini"

	DefaultModel         = "imagen-3.0-generate-002"
	DefaultFallbackModel = "gemini-2.0-flash-preview-image-generation"
)

type Config struct {
	APIKey string
	// BaseURL overrides the API host. The SDK appends the API version.
	BaseURL       string
	Model         string
	FallbackModel string
	Timeout       time.Duration
}

type Adapter struct {
	cfg    Config
	models *genai.Models
	logger *zap.Logger
}

func New(ctx context.Context, cfg Config, client *http.Client, logger *zap.Logger) (*Adapter, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = DefaultFallbackModel
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 90 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  client,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Adapter{cfg: cfg, models: gc.Models, logger: logger}, nil
}

func (a *Adapter) Name() string {
	return Name
}

func (a *Adapter) Generate(ctx context.Context, req provider.Request) (provider.Output, error) {
	out, err := a.generateImages(ctx, req)
	if err == nil {
		return out, nil
	}
	if !unavailable(err) {
		return provider.Output{}, err
	}

	a.logger.Info("imagen model unavailable, using generateContent",
		zap.String("model", a.cfg.Model),
		zap.String("fallback_model", a.cfg.FallbackModel),
		zap.Error(err))
	return a.generateContent(ctx, req)
}

func (a *Adapter) generateImages(ctx context.Context, req provider.Request) (provider.Output, error) {
	cfg := &genai.GenerateImagesConfig{NumberOfImages: 1}
	if v, ok := req.Options["aspectRatio"].(string); ok {
		cfg.AspectRatio = v
	}
	if v, ok := req.Options["negativePrompt"].(string); ok {
		cfg.NegativePrompt = v
	}
	if v, ok := req.Options["personGeneration"].(string); ok {
		cfg.PersonGeneration = genai.PersonGeneration(v)
	}

	resp, err := a.models.GenerateImages(ctx, a.cfg.Model, req.Prompt, cfg)
	if err != nil {
		return provider.Output{}, toError(err)
	}

	filtered := ""
	for _, img := range resp.GeneratedImages {
		if img == nil {
			continue
		}
		if img.Image != nil && len(img.Image.ImageBytes) > 0 {
			return output(img.Image.ImageBytes, img.Image.MIMEType, a.cfg.Model), nil
		}
		if img.RAIFilteredReason != "" {
			filtered = img.RAIFilteredReason
		}
	}
	// an empty image list is how Imagen reports a prompt blocked by safety filters
	msg := "no image returned, the prompt was likely filtered"
	if filtered != "" {
		msg = "image filtered: " + filtered
	}
	return provider.Output{}, &provider.Error{Provider: Name, Class: provider.Permanent, Message: msg}
}

func (a *Adapter) generateContent(ctx context.Context, req provider.Request) (provider.Output, error) {
	resp, err := a.models.GenerateContent(ctx, a.cfg.FallbackModel, genai.Text(req.Prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return provider.Output{}, toError(err)
	}

	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return output(p.InlineData.Data, p.InlineData.MIMEType, a.cfg.FallbackModel), nil
			}
		}
	}
	return provider.Output{}, &provider.Error{
		Provider: Name,
		Class:    provider.Permanent,
		Message:  "generateContent returned no inline image",
	}
}

// toError classifies an SDK error. API errors carry the status and details the classifier
// reads; anything else is a transport failure.
func toError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return &provider.Error{Provider: Name, Class: provider.Unknown, Message: "request failed", Err: err}
		}
		apiErr = *ptr
	}

	raw := provider.RawResponse{
		StatusCode: apiErr.Code,
		Status:     apiErr.Status,
		Message:    apiErr.Message,
	}
	for _, d := range apiErr.Details {
		if b, err := json.Marshal(d); err == nil {
			raw.Details = append(raw.Details, string(b))
		}
	}
	if raw.Message == "" {
		raw.Message = http.StatusText(apiErr.Code)
	}
	return provider.NewError(Name, raw, err)
}

func output(data []byte, mimeType, model string) provider.Output {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return provider.Output{Data: data, MediaType: mimeType, ModelID: model}
}

// unavailable reports a failure that says the primary model cannot serve this key, as opposed
// to a bad request or a rate problem.
func unavailable(err error) bool {
	var pErr *provider.Error
	if !errors.As(err, &pErr) || pErr.Class != provider.Permanent {
		return false
	}
	if pErr.StatusCode == http.StatusNotFound {
		return true
	}
	msg := strings.ToLower(pErr.Message)
	return strings.Contains(msg, "not supported") || strings.Contains(msg, "not found")
}
