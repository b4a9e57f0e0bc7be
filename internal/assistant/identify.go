package assistant

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/intake"
	"github.com/vbonduro/pillpal/internal/prompts"
)

// Identifier performs one structured identification request per call. It
// never retries.
type Identifier struct {
	backend Backend
	prompts *prompts.Set
	logger  *slog.Logger
}

func NewIdentifier(backend Backend, p *prompts.Set, logger *slog.Logger) *Identifier {
	return &Identifier{backend: backend, prompts: p, logger: logger}
}

// Identify returns the parsed medication record. Every failure is an
// *IdentificationError. A record whose name is the "Unknown" sentinel is
// returned as-is for the caller to classify.
func (i *Identifier) Identify(ctx context.Context, img *intake.Image) (*domain.Medication, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, &IdentificationError{Stage: StageRequest, Err: errors.New("image payload is empty")}
	}

	i.logger.Info("identification started", "mime_type", img.MIMEType, "bytes", len(img.Data))
	raw, err := i.backend.GenerateStructured(ctx, img, i.prompts.Identify)
	if err != nil {
		i.logger.Error("identification request failed", "error", err)
		return nil, &IdentificationError{Stage: StageRequest, Err: err}
	}

	med, err := ParseMedication(raw)
	if err != nil {
		i.logger.Error("identification response invalid", "error", err, "raw_bytes", len(raw))
		return nil, &IdentificationError{Stage: StageParse, Err: err}
	}

	i.logger.Info("identification complete", "name", med.Name, "unknown", med.IsUnknown())
	return med, nil
}
