package session

import (
	"context"
	"sync"

	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/imagestore/memory"
	"github.com/vbonduro/pillpal/internal/intake"
	"github.com/vbonduro/pillpal/internal/prompts"
)

// stubIdentifier returns med/err. When gate is non-nil each call blocks
// until a value is sent on it, after signalling on started.
type stubIdentifier struct {
	mu    sync.Mutex
	med   *domain.Medication
	err   error
	calls int
	last  *intake.Image

	started chan struct{}
	gate    chan struct{}
}

func (s *stubIdentifier) Identify(ctx context.Context, img *intake.Image) (*domain.Medication, error) {
	s.mu.Lock()
	s.calls++
	s.last = img
	started, gate := s.started, s.gate
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.med, s.err
}

type stubReplier struct {
	mu          sync.Mutex
	reply       string
	calls       int
	lastHistory []domain.ChatMessage
	lastMessage string

	started chan struct{}
	gate    chan struct{}
}

func (s *stubReplier) Reply(ctx context.Context, history []domain.ChatMessage, message string, med *domain.Medication) string {
	s.mu.Lock()
	s.calls++
	s.lastHistory = history
	s.lastMessage = message
	started, gate := s.started, s.gate
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reply
}

func aspirin() *domain.Medication {
	return &domain.Medication{
		Name:        "Aspirin",
		Description: "Pain reliever and anti-inflammatory.",
		Dosage:      "325mg",
		SideEffects: []string{"Upset stomach", "Heartburn"},
		Warnings:    []string{"Do not give to children with viral infections."},
	}
}

func testImage() *intake.Image {
	return &intake.Image{Data: []byte{0xFF, 0xD8, 0xFF, 0xE0}, MIMEType: "image/jpeg", Filename: "pill.jpg", Width: 10, Height: 10}
}

type fixture struct {
	identifier *stubIdentifier
	replier    *stubReplier
	images     *memory.Store
	deps       Deps
}

func newFixture() *fixture {
	f := &fixture{
		identifier: &stubIdentifier{med: aspirin()},
		replier:    &stubReplier{reply: "Take with water."},
		images:     memory.New(),
	}
	f.deps = Deps{
		Identifier: f.identifier,
		Replier:    f.replier,
		Images:     f.images,
		Prompts:    prompts.Default(),
	}
	return f
}
