package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vbonduro/pillpal/internal/session"
)

type stateEvent struct {
	View       string `json:"view"`
	Loading    bool   `json:"loading"`
	Chatting   bool   `json:"chatting"`
	HasImage   bool   `json:"hasImage"`
	Error      string `json:"error,omitempty"`
	Transcript int    `json:"transcript"`
}

func newStateEvent(st session.State) stateEvent {
	return stateEvent{
		View:       string(st.View),
		Loading:    st.Loading,
		Chatting:   st.Chatting,
		HasImage:   st.Image != nil,
		Error:      st.Error,
		Transcript: len(st.Transcript),
	}
}

// handleEvents streams the session's state changes as SSE "state" events so
// that other tabs of the same session follow along. The first event carries
// the current state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)

	changed := make(chan struct{}, 1)
	unsubscribe := c.Subscribe(func(session.State) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	enc := json.NewEncoder(w)
	send := func() bool {
		if _, err := w.Write([]byte("event: state\ndata: ")); err != nil {
			return false
		}
		if err := enc.Encode(newStateEvent(c.State())); err != nil {
			return false
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if !send() {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-changed:
			if !send() {
				s.logger.Info("event stream closed", "session_id", c.ID())
				return
			}
		}
	}
}
