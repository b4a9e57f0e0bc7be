// Package openai adapts OpenAI-compatible chat completion APIs to
// assistant.Backend.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vbonduro/pillpal/internal/assistant"
	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/intake"
)

const DefaultModel = "gpt-4o-mini"

type Backend struct {
	client *openai.Client
	model  string
}

// New creates an OpenAI backend. A non-empty baseURL points it at any
// OpenAI-compatible endpoint.
func New(apiKey, model, baseURL string) (*Backend, error) {
	if apiKey == "" {
		return nil, errors.New("openai API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Backend{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (b *Backend) GenerateStructured(ctx context.Context, img *intake.Image, instruction string) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: img.DataURL()},
				},
				{
					Type: openai.ChatMessagePartTypeText,
					Text: instruction,
				},
			},
		}},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "medication",
				Schema: assistant.MedicationSchema(),
				Strict: true,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (b *Backend) Complete(ctx context.Context, system string, turns []domain.ChatMessage) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == domain.RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to call openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
