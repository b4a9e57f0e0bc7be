// Package claude adapts the Anthropic Messages API to assistant.Backend.
package claude

import (
	"context"
	"errors"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/pillpal/internal/assistant"
	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/intake"
)

const DefaultModel = "claude-sonnet-4-5"

// maxTokens covers a medication record or a few paragraphs of chat with room
// for a disclaimer.
const maxTokens = 1024

type Backend struct {
	client *anthropic.Client
	model  string
}

func New(apiKey, model, baseURL string) (*Backend, error) {
	if apiKey == "" {
		return nil, errors.New("claude API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &Backend{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}, nil
}

// GenerateStructured asks for JSON by embedding the schema in the prompt;
// the Messages API has no response-schema parameter.
func (b *Backend) GenerateStructured(ctx context.Context, img *intake.Image, instruction string) (string, error) {
	prompt := instruction + "\n\nRespond with only a JSON object that matches this JSON Schema:\n" +
		string(assistant.MedicationSchema())

	resp, err := b.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(b.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{{
			Role: anthropic.RoleUser,
			Content: []anthropic.MessageContent{
				anthropic.NewImageMessageContent(anthropic.MessageContentSource{
					Type:      anthropic.MessagesContentSourceTypeBase64,
					MediaType: normaliseMIME(img.MIMEType),
					Data:      img.Base64(),
				}),
				anthropic.NewTextMessageContent(prompt),
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call claude: %w", err)
	}

	text := resp.GetFirstContentText()
	if text == "" {
		return "", errors.New("claude returned no text")
	}
	return text, nil
}

func (b *Backend) Complete(ctx context.Context, system string, turns []domain.ChatMessage) (string, error) {
	messages := make([]anthropic.Message, 0, len(turns))
	for _, t := range turns {
		if t.Role == domain.RoleModel {
			messages = append(messages, anthropic.NewAssistantTextMessage(t.Content))
		} else {
			messages = append(messages, anthropic.NewUserTextMessage(t.Content))
		}
	}

	resp, err := b.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(b.model),
		MaxTokens: maxTokens,
		System:    system,
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to call claude: %w", err)
	}
	return resp.GetFirstContentText(), nil
}

// normaliseMIME maps sniffed MIME types to the values the Anthropic API
// accepts. The API accepts only jpeg, png, gif, and webp; anything else is
// coerced to jpeg.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
