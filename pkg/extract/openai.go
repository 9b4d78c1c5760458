package extract

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures the OpenAI completer.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAICompleter implements Completer with OpenAI structured outputs.
type OpenAICompleter struct {
	client openai.Client
	model  string
}

// NewOpenAICompleter constructs a completer against the OpenAI API or a compatible base URL.
func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAICompleter{client: openai.NewClient(opts...), model: cfg.Model}
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{}
	if req.Text != "" {
		parts = append(parts, openai.TextContentPart(req.Text))
	}
	if req.FileDataURL != "" {
		parts = append(parts, openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
			FileData: openai.String(req.FileDataURL),
			Filename: openai.String(req.FileName),
		}))
	}
	if len(parts) == 0 {
		return "", errors.New("empty document")
	}

	chat, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.Instructions),
			openai.UserMessage(parts),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.SchemaName,
					Description: openai.String("structured extraction of " + req.SchemaName),
					Schema:      req.Schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return "", errors.New("model returned no content")
	}
	return chat.Choices[0].Message.Content, nil
}
