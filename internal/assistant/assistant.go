// Package assistant implements the two calls Pill Pal makes to a multimodal
// model: identifying a medication from a photo and answering follow-up
// questions about it. Provider specifics live in the subpackages.
package assistant

import (
	"context"

	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/intake"
)

// Backend is implemented by each provider adapter.
type Backend interface {
	// GenerateStructured sends one image and an instruction and returns the
	// model's JSON text, constrained to MedicationSchema where the provider
	// supports it.
	GenerateStructured(ctx context.Context, img *intake.Image, instruction string) (string, error)

	// Complete sends a transcript under a system instruction and returns the
	// reply text. turns always opens with a user turn.
	Complete(ctx context.Context, system string, turns []domain.ChatMessage) (string, error)
}
