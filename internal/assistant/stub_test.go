package assistant

import (
	"context"
	"sync"

	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/intake"
)

// stubBackend records what it was asked and returns canned answers.
type stubBackend struct {
	mu sync.Mutex

	structured    string
	structuredErr error
	reply         string
	replyErr      error

	lastImage       *intake.Image
	lastInstruction string
	lastSystem      string
	lastTurns       []domain.ChatMessage
	calls           int
}

func (s *stubBackend) GenerateStructured(_ context.Context, img *intake.Image, instruction string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastImage = img
	s.lastInstruction = instruction
	return s.structured, s.structuredErr
}

func (s *stubBackend) Complete(_ context.Context, system string, turns []domain.ChatMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastSystem = system
	s.lastTurns = append([]domain.ChatMessage(nil), turns...)
	return s.reply, s.replyErr
}
