package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/PDIMentor/internal/models"
)

// messageRequest is the body of POST /api/messages.
type messageRequest struct {
	Text string `json:"text"`
}

// choiceRequest is the body of POST /api/choice/select.
type choiceRequest struct {
	Option string `json:"option"`
}

// sessionHandler returns the current view without changing the session.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	st, err := s.withSession(id, func(*models.SessionState) error { return nil })
	if err != nil {
		writeErrorResponse(w, err, nil)
		return
	}
	v := s.walker.Render(st)
	writeJSONResponse(w, http.StatusOK, models.Success(v))
}

func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.messagesHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	id := s.sessionID(w, r)
	st, err := s.withSession(id, func(st *models.SessionState) error {
		return s.submitText(r.Context(), st, req.Text)
	})
	s.writeViewResponse(w, st, err)
}

func (s *Server) selectHandler(w http.ResponseWriter, r *http.Request) {
	var req choiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.selectHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	id := s.sessionID(w, r)
	st, err := s.withSession(id, func(st *models.SessionState) error {
		return s.walker.Select(st, req.Option)
	})
	s.writeViewResponse(w, st, err)
}

func (s *Server) confirmHandler(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	st, err := s.withSession(id, s.walker.Confirm)
	s.writeViewResponse(w, st, err)
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	st, err := s.withSession(id, func(st *models.SessionState) error {
		s.reset(st)
		return nil
	})
	s.writeViewResponse(w, st, err)
}

// summaryHandler returns the summary text. Before the intake completes it answers 409 with a
// warning and makes no model call.
func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	var text string
	st, err := s.withSession(id, func(st *models.SessionState) error {
		var err error
		text, err = s.summaryText(r.Context(), st)
		return err
	})
	if err != nil {
		s.writeViewResponse(w, st, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"summary": text}))
}

// writeViewResponse answers with the rendered view, wrapped in an error envelope when err is set.
func (s *Server) writeViewResponse(w http.ResponseWriter, st *models.SessionState, err error) {
	if st == nil {
		writeErrorResponse(w, err, nil)
		return
	}
	v := s.walker.Render(st)
	if err != nil {
		writeErrorResponse(w, err, &v)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(v))
}
