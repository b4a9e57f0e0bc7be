package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/pillpal/internal/domain"
)

var ibuprofen = &domain.Medication{
	Name:        "Ibuprofen",
	Description: "NSAID pain reliever",
	Dosage:      "200-400 mg every 4-6 hours",
	SideEffects: []string{"nausea", "heartburn"},
	Warnings:    []string{"stomach bleeding", "do not exceed 1200 mg/day"},
}

func TestDefaultSystemInstruction(t *testing.T) {
	got, err := Default().SystemInstruction(ibuprofen)
	require.NoError(t, err)

	assert.Contains(t, got, "The user is asking about the medication: Ibuprofen.")
	assert.Contains(t, got, "- Description: NSAID pain reliever")
	assert.Contains(t, got, "- Dosage: 200-400 mg every 4-6 hours")
	assert.Contains(t, got, "- Side Effects: nausea, heartburn")
	assert.Contains(t, got, "- Warnings: stomach bleeding, do not exceed 1200 mg/day")
	assert.Contains(t, got, "You must never provide medical advice")
	assert.Contains(t, got, "disclaimer")
}

func TestDefaultGreeting(t *testing.T) {
	got, err := Default().Greeting(ibuprofen)
	require.NoError(t, err)
	assert.Equal(t, "I've identified this as Ibuprofen. What would you like to know about it?", got)
}

func TestDefaultFixedStrings(t *testing.T) {
	s := Default()
	assert.Equal(t, "I'm sorry, I encountered an error. Please try again.", s.FallbackReply)
	assert.Contains(t, s.Identify, `set the name to "Unknown"`)
	assert.NotEmpty(t, s.Messages.Unknown)
	assert.NotEmpty(t, s.Messages.Failed)
	assert.NotEqual(t, s.Messages.Unknown, s.Messages.Failed)
}

func TestLoadOverridesSubset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
greeting: "This looks like {{.Name}}."
messages:
  unknown: "No match."
`), 0600))

	s, err := Load(path)
	require.NoError(t, err)

	got, err := s.Greeting(ibuprofen)
	require.NoError(t, err)
	assert.Equal(t, "This looks like Ibuprofen.", got)
	assert.Equal(t, "No match.", s.Messages.Unknown)
	assert.Equal(t, Default().Messages.Failed, s.Messages.Failed)
	assert.Equal(t, Default().FallbackReply, s.FallbackReply)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Identify, s.Identify)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadBadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`system: "{{.Name"`), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}
