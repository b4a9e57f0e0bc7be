// Package gemini adapts the Google Gemini API to assistant.Backend.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/vbonduro/pillpal/internal/assistant"
	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/intake"
)

const DefaultModel = "gemini-2.5-flash"

type Backend struct {
	client *genai.Client
	model  string
}

// New creates a Gemini backend. baseURL is only set in tests or behind a proxy.
func New(ctx context.Context, apiKey, model, baseURL string) (*Backend, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Backend{client: client, model: model}, nil
}

func (b *Backend) GenerateStructured(ctx context.Context, img *intake.Image, instruction string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, img.MIMEType),
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   medicationSchema(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to call gemini: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}

func (b *Backend) Complete(ctx context.Context, system string, turns []domain.ChatMessage) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.RoleUser
		if t.Role == domain.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("failed to call gemini: %w", err)
	}
	return resp.Text(), nil
}

// medicationSchema expresses assistant.MedicationFields in Gemini's schema dialect.
func medicationSchema() *genai.Schema {
	props := make(map[string]*genai.Schema, len(assistant.MedicationFields))
	required := make([]string, 0, len(assistant.MedicationFields))
	for _, f := range assistant.MedicationFields {
		s := &genai.Schema{Type: genai.TypeString, Description: f.Description}
		if f.List {
			s = &genai.Schema{
				Type:        genai.TypeArray,
				Description: f.Description,
				Items:       &genai.Schema{Type: genai.TypeString},
			}
		}
		props[f.Name] = s
		required = append(required, f.Name)
	}
	return &genai.Schema{
		Type:             genai.TypeObject,
		Properties:       props,
		Required:         required,
		PropertyOrdering: required,
	}
}
