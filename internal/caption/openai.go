package caption

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/provider"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"strings"
)

const (
	DefaultCaptionModel = openai.ChatModelGPT4oMini
	DefaultParserModel  = openai.ChatModelGPT4oMini

	captionPrompt = "Describe this image in two or three sentences. Mention the subject, the setting, " +
		"the style and the dominant colors. Do not speculate about who made it."

	parserPrompt = `Classify the description below. Answer with a JSON object with the keys ` +
		`"subjects" (array of strings), "style" (string), "mood" (string), "colors" (array of strings), ` +
		`"nsfw" (boolean) and "tags" (array of at most ten lowercase strings).`
)

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	CaptionModel string
	ParserModel  string
}

// OpenAI implements both Captioner and Parser on the chat completions API.
type OpenAI struct {
	client       openai.Client
	captionModel string
	parserModel  string
}

func NewOpenAI(cfg OpenAIConfig, opts ...option.RequestOption) *OpenAI {
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	if cfg.CaptionModel == "" {
		cfg.CaptionModel = DefaultCaptionModel
	}
	if cfg.ParserModel == "" {
		cfg.ParserModel = DefaultParserModel
	}
	return &OpenAI{
		client:       openai.NewClient(reqOpts...),
		captionModel: cfg.CaptionModel,
		parserModel:  cfg.ParserModel,
	}
}

func (o *OpenAI) Caption(ctx context.Context, url, mediaType string) (Caption, error) {
	if !strings.HasPrefix(mediaType, "image/") && mediaType != "" {
		return Caption{}, custom_errors.Permanent(fmt.Errorf("cannot caption media type %q", mediaType))
	}

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.captionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(captionPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}),
			}),
		},
		MaxTokens: openai.Int(300),
	})
	if err != nil {
		return Caption{}, classify("caption", err)
	}

	text := firstContent(completion)
	if text == "" {
		return Caption{}, errors.New("caption model returned an empty description")
	}
	return Caption{Text: text, ModelID: o.captionModel}, nil
}

func (o *OpenAI) Parse(ctx context.Context, text, promptContext string) (Parsed, error) {
	input := "Description: " + text
	if promptContext != "" {
		input += "\nPrompt used to create it: " + promptContext
	}

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.parserModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(parserPrompt),
			openai.UserMessage(input),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	})
	if err != nil {
		return Parsed{}, classify("parse", err)
	}

	content := firstContent(completion)
	if !json.Valid([]byte(content)) {
		// JSON mode can still truncate, another attempt usually succeeds
		return Parsed{}, fmt.Errorf("parser model returned invalid JSON: %.200s", content)
	}
	return Parsed{Structured: json.RawMessage(content), ModelID: o.parserModel}, nil
}

func firstContent(c *openai.ChatCompletion) string {
	if c == nil || len(c.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(c.Choices[0].Message.Content)
}

// classify marks client-side failures as permanent so the job is not retried on a bad input.
func classify(stage string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("failed to %s artifact: %w", stage, err)
	}

	class := provider.Classify(provider.RawResponse{
		StatusCode: apiErr.StatusCode,
		Status:     apiErr.Code,
		Message:    apiErr.Message,
		Body:       []byte(apiErr.RawJSON()),
	})
	if class == provider.Permanent {
		return custom_errors.Permanent(fmt.Errorf("failed to %s artifact: %w", stage, err))
	}
	return fmt.Errorf("failed to %s artifact (%s): %w", stage, class, err)
}
