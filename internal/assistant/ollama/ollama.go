// Package ollama adapts a local Ollama server to assistant.Backend.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/vbonduro/pillpal/internal/assistant"
	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/intake"
)

const (
	DefaultHost  = "http://localhost:11434"
	DefaultModel = "llama3.2-vision"
)

type Backend struct {
	client *api.Client
	model  string
}

func New(host, model string) (*Backend, error) {
	if host == "" {
		host = DefaultHost
	}
	if model == "" {
		model = DefaultModel
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host: %w", err)
	}
	return &Backend{client: api.NewClient(u, &http.Client{}), model: model}, nil
}

func (b *Backend) GenerateStructured(ctx context.Context, img *intake.Image, instruction string) (string, error) {
	return b.chat(ctx, &api.ChatRequest{
		Model: b.model,
		Messages: []api.Message{{
			Role:    "user",
			Content: instruction,
			Images:  []api.ImageData{img.Data},
		}},
		Format: assistant.MedicationSchema(),
	})
}

func (b *Backend) Complete(ctx context.Context, system string, turns []domain.ChatMessage) (string, error) {
	messages := make([]api.Message, 0, len(turns)+1)
	messages = append(messages, api.Message{Role: "system", Content: system})
	for _, t := range turns {
		role := "user"
		if t.Role == domain.RoleModel {
			role = "assistant"
		}
		messages = append(messages, api.Message{Role: role, Content: t.Content})
	}
	return b.chat(ctx, &api.ChatRequest{Model: b.model, Messages: messages})
}

func (b *Backend) chat(ctx context.Context, req *api.ChatRequest) (string, error) {
	stream := false
	req.Stream = &stream

	var out strings.Builder
	err := b.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to call ollama: %w", err)
	}
	return out.String(), nil
}
