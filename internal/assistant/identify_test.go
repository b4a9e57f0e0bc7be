package assistant

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/pillpal/internal/intake"
	"github.com/vbonduro/pillpal/internal/prompts"
)

var testImage = &intake.Image{Data: []byte{0xFF, 0xD8, 0xFF}, MIMEType: "image/jpeg"}

func TestIdentifySuccess(t *testing.T) {
	backend := &stubBackend{structured: aspirinJSON}
	id := NewIdentifier(backend, prompts.Default(), slog.Default())

	med, err := id.Identify(context.Background(), testImage)
	require.NoError(t, err)
	assert.Equal(t, "Aspirin", med.Name)
	assert.Equal(t, testImage, backend.lastImage)
	assert.Equal(t, prompts.Default().Identify, backend.lastInstruction)
	assert.Equal(t, 1, backend.calls)
}

func TestIdentifyUnknownIsNotAnError(t *testing.T) {
	backend := &stubBackend{structured: `{"name":"UNKNOWN","description":"","dosage":"","sideEffects":[],"warnings":[]}`}
	id := NewIdentifier(backend, prompts.Default(), slog.Default())

	med, err := id.Identify(context.Background(), testImage)
	require.NoError(t, err)
	assert.True(t, med.IsUnknown())
}

func TestIdentifyRequestFailure(t *testing.T) {
	backend := &stubBackend{structuredErr: errors.New("connection refused")}
	id := NewIdentifier(backend, prompts.Default(), slog.Default())

	_, err := id.Identify(context.Background(), testImage)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIdentificationFailed)

	var idErr *IdentificationError
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, StageRequest, idErr.Stage)
	assert.Equal(t, 1, backend.calls, "no retries")
}

func TestIdentifyParseFailure(t *testing.T) {
	backend := &stubBackend{structured: `{"name":"Aspirin"}`}
	id := NewIdentifier(backend, prompts.Default(), slog.Default())

	_, err := id.Identify(context.Background(), testImage)
	assert.ErrorIs(t, err, ErrIdentificationFailed)
	assert.ErrorIs(t, err, ErrMissingField)

	var idErr *IdentificationError
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, StageParse, idErr.Stage)
}

func TestIdentifyEmptyPayload(t *testing.T) {
	backend := &stubBackend{structured: aspirinJSON}
	id := NewIdentifier(backend, prompts.Default(), slog.Default())

	_, err := id.Identify(context.Background(), &intake.Image{MIMEType: "image/jpeg"})
	assert.ErrorIs(t, err, ErrIdentificationFailed)
	assert.Zero(t, backend.calls)
}
