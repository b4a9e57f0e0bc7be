package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/vbonduro/pillpal/internal/domain"
)

type identifyResponse struct {
	Status     string             `json:"status"`
	Medication *domain.Medication `json:"medication,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type chatRequest struct {
	Medication *domain.Medication   `json:"medication"`
	History    []domain.ChatMessage `json:"history"`
	Message    string               `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write json failed", "error", err)
	}
}

// handleAPIIdentify identifies a multipart "image" upload without creating a
// session.
func (s *Server) handleAPIIdentify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.decoder.MaxBytes+formOverhead)
	if err := r.ParseMultipartForm(s.decoder.MaxBytes + formOverhead); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to parse form"})
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "image file required"})
		return
	}
	defer closeWithLog(file, "upload file", s.logger)

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read file"})
		return
	}
	img, err := s.decoder.Decode(data, header.Filename)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: intakeNotice(err)})
		return
	}

	med, err := s.identifier.Identify(context.WithoutCancel(r.Context()), img)
	switch {
	case err != nil:
		s.logger.Error("api identify failed", "error", err)
		s.writeJSON(w, http.StatusBadGateway, identifyResponse{Status: "failed", Error: s.prompts.Messages.Failed})
	case med.IsUnknown():
		s.writeJSON(w, http.StatusOK, identifyResponse{Status: "unknown", Error: s.prompts.Messages.Unknown})
	default:
		s.writeJSON(w, http.StatusOK, identifyResponse{Status: "identified", Medication: med})
	}
}

// handleAPIChat answers one follow-up question. The caller owns the
// transcript and sends it back with every request.
func (s *Server) handleAPIChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if err := validateChat(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	reply := s.replier.Reply(context.WithoutCancel(r.Context()), req.History, strings.TrimSpace(req.Message), req.Medication)
	s.writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func validateChat(req *chatRequest) error {
	if req.Medication == nil || req.Medication.IsUnknown() {
		return errors.New("medication is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("message is required")
	}
	if len(req.Message) > maxMessageLen {
		return errors.New("message too long")
	}
	for _, m := range req.History {
		if !m.Role.Valid() {
			return errors.New("history contains an invalid role")
		}
	}
	return nil
}
