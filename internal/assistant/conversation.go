package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/prompts"
)

// Conversation answers follow-up questions about an identified medication.
// Unlike Identifier it never surfaces an error: any failure becomes the
// fixed fallback reply so the chat keeps going.
type Conversation struct {
	backend Backend
	prompts *prompts.Set
	logger  *slog.Logger
}

func NewConversation(backend Backend, p *prompts.Set, logger *slog.Logger) *Conversation {
	return &Conversation{backend: backend, prompts: p, logger: logger}
}

// Reply sends history followed by message and returns the model's answer.
func (c *Conversation) Reply(ctx context.Context, history []domain.ChatMessage, message string, med *domain.Medication) string {
	if med == nil {
		c.logger.Error("chat without a medication record")
		return c.prompts.FallbackReply
	}

	system, err := c.prompts.SystemInstruction(med)
	if err != nil {
		c.logger.Error("build system instruction failed", "error", err)
		return c.prompts.FallbackReply
	}

	turns := WireTurns(history)
	turns = append(turns, domain.ChatMessage{Role: domain.RoleUser, Content: message, SentAt: time.Now()})

	reply, err := c.backend.Complete(ctx, system, turns)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		c.logger.Error("chat request failed", "medication", med.Name, "turns", len(turns), "error", err)
		return c.prompts.FallbackReply
	}
	return reply
}

// WireTurns returns the part of a transcript that is sent to the model: the
// local greeting and any other model turns before the first user turn are
// dropped because the chat APIs expect the conversation to open with the user.
func WireTurns(history []domain.ChatMessage) []domain.ChatMessage {
	start := len(history)
	for i, m := range history {
		if m.Role == domain.RoleUser {
			start = i
			break
		}
	}
	out := make([]domain.ChatMessage, 0, len(history)-start+1)
	return append(out, history[start:]...)
}
