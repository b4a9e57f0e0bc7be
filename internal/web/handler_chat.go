package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/vbonduro/pillpal/internal/session"
)

const maxMessageLen = 4000

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)

	message := r.FormValue("message")
	if len(message) > maxMessageLen {
		http.Error(w, "message too long", http.StatusBadRequest)
		return
	}

	_, err := c.Send(context.WithoutCancel(r.Context()), message)
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, session.ErrChatBusy):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, session.ErrNotIdentified), errors.Is(err, session.ErrDiscarded):
		redirectHome(w, r)
		return
	case err != nil:
		http.Error(w, "chat failed", http.StatusInternalServerError)
		s.logger.Error("chat failed", "session_id", c.ID(), "error", err)
		return
	}

	if err := s.renderPartial(w, "partials/transcript.html", c.State()); err != nil {
		s.logger.Error("render partial failed", "session_id", c.ID(), "error", err)
	}
}
