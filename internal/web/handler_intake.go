package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/imagestore"
	"github.com/vbonduro/pillpal/internal/intake"
	"github.com/vbonduro/pillpal/internal/session"
)

// multipart overhead allowed on top of the decoder's image limit.
const formOverhead = 1 << 20

// viewData is what the page and panel templates render. Notice carries an
// upload problem that is not part of the session state.
type viewData struct {
	State  session.State
	Notice string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)
	st := c.State()

	files := []string{"base.html", "pages/intake.html", "partials/intake_panel.html"}
	if st.View == domain.ViewResult {
		files = []string{"base.html", "pages/result.html", "partials/medication.html", "partials/transcript.html"}
	}
	if err := s.renderPage(w, viewData{State: st}, files...); err != nil {
		s.logger.Error("render page failed", "session_id", c.ID(), "error", err)
	}
}

func (s *Server) handleSelectImage(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, s.decoder.MaxBytes+formOverhead)
	if err := r.ParseMultipartForm(s.decoder.MaxBytes + formOverhead); err != nil {
		s.renderIntakePanel(w, c, "The image is too large or the upload was interrupted.")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.renderIntakePanel(w, c, "Please choose an image file.")
		return
	}
	defer closeWithLog(file, "upload file", s.logger)

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		s.logger.Error("read upload failed", "session_id", c.ID(), "error", err)
		return
	}

	img, err := s.decoder.Decode(data, header.Filename)
	if err != nil {
		s.logger.Info("image rejected", "session_id", c.ID(), "error", err)
		s.renderIntakePanel(w, c, intakeNotice(err))
		return
	}

	if err := c.SelectImage(r.Context(), img); err != nil {
		switch {
		case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNotIntake):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "failed to store image", http.StatusInternalServerError)
			s.logger.Error("select image failed", "session_id", c.ID(), "error", err)
		}
		return
	}
	s.renderIntakePanel(w, c, "")
}

func intakeNotice(err error) string {
	switch {
	case errors.Is(err, intake.ErrEmptyImage):
		return "The selected file is empty."
	case errors.Is(err, intake.ErrImageTooLarge):
		return "The image is too large."
	case errors.Is(err, intake.ErrUnsupportedFormat):
		return "Please choose a JPEG, PNG, GIF or WebP image."
	default:
		return "The image could not be read."
	}
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)

	// The identification settles the session even if the browser goes away.
	outcome, err := c.Identify(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, session.ErrNoImage):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNotIntake):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, "identification failed", http.StatusInternalServerError)
		s.logger.Error("identify failed", "session_id", c.ID(), "error", err)
		return
	}

	if outcome == session.OutcomeIdentified {
		redirectHome(w, r)
		return
	}
	s.renderIntakePanel(w, c, "")
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)
	c.Reset(r.Context())
	redirectHome(w, r)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)
	st := c.State()
	if st.Image == nil {
		http.NotFound(w, r)
		return
	}

	reader, mimeType, err := s.images.Get(r.Context(), st.Image.Key)
	if err != nil {
		if !errors.Is(err, imagestore.ErrNotFound) {
			s.logger.Error("get image failed", "session_id", c.ID(), "error", err)
		}
		http.NotFound(w, r)
		return
	}
	defer closeWithLog(reader, "image reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, no-store")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write image failed", "session_id", c.ID(), "error", err)
	}
}

func (s *Server) renderIntakePanel(w http.ResponseWriter, c *session.Controller, notice string) {
	if err := s.renderPartial(w, "partials/intake_panel.html", viewData{State: c.State(), Notice: notice}); err != nil {
		s.logger.Error("render partial failed", "session_id", c.ID(), "error", err)
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
