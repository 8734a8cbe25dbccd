package api

import (
	"bytes"
	_ "embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/PDIMentor/internal/flow"
	"github.com/BTreeMap/PDIMentor/internal/models"
	"github.com/BTreeMap/PDIMentor/internal/transcript"
)

//go:embed ui.html
var pageHTML string

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"isUser": func(r models.Role) bool { return r == models.RoleUser },
}).Parse(pageHTML))

// pageData feeds ui.html.
type pageData struct {
	View     flow.View
	Rows     []transcript.Entry
	Progress int
}

// indexHandler renders the chat. A pending notice is shown once and then cleared.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	var data pageData
	_, err := s.withSession(id, func(st *models.SessionState) error {
		data.View = s.walker.Render(st)
		data.Rows = transcript.Format(st.Messages, flow.NamePrompt)
		if data.View.StepCount > 0 {
			data.Progress = data.View.StepIndex * 100 / data.View.StepCount
		}
		st.TakeNotice()
		return nil
	})
	if err != nil {
		http.Error(w, "Erro ao carregar a sessão.", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		slog.Error("Server.indexHandler: failed to render page", "error", err, "sessionID", id)
		http.Error(w, "Erro ao renderizar a página.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("Server.indexHandler: failed to write page", "error", err)
	}
}

func (s *Server) submitFormHandler(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	text := r.PostFormValue("text")
	s.runFormEvent(w, r, id, func(st *models.SessionState) error {
		return s.submitText(r.Context(), st, text)
	})
}

// choiceFormHandler selects the posted option and confirms it; the form's submit button is the
// confirm action.
func (s *Server) choiceFormHandler(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	option := r.PostFormValue("option")
	s.runFormEvent(w, r, id, func(st *models.SessionState) error {
		if option != "" {
			if err := s.walker.Select(st, option); err != nil {
				return err
			}
		}
		return s.walker.Confirm(st)
	})
}

func (s *Server) resetFormHandler(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	s.runFormEvent(w, r, id, func(st *models.SessionState) error {
		s.reset(st)
		return nil
	})
}

// runFormEvent applies fn, turns its error into the session notice, and redirects back to the chat.
func (s *Server) runFormEvent(w http.ResponseWriter, r *http.Request, id string, fn func(*models.SessionState) error) {
	_, err := s.withSession(id, func(st *models.SessionState) error {
		if err := fn(st); err != nil {
			st.Notice = userMessage(err)
			slog.Debug("Server.runFormEvent: event rejected", "sessionID", id, "path", r.URL.Path, "error", err)
		}
		return nil
	})
	if err != nil {
		http.Error(w, "Erro ao salvar a sessão.", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) transcriptPDFHandler(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	var pdf []byte
	_, err := s.withSession(id, func(st *models.SessionState) error {
		var err error
		pdf, err = s.transcriptPDF(st)
		return err
	})
	if err != nil {
		slog.Error("Server.transcriptPDFHandler: export failed", "error", err, "sessionID", id)
		http.Error(w, "Erro ao gerar o PDF.", http.StatusInternalServerError)
		return
	}
	writePDFResponse(w, transcriptFilename, pdf)
}

// summaryPDFHandler downloads the summary PDF. Before the intake completes, and on model errors,
// the user is sent back to the chat with a notice instead.
func (s *Server) summaryPDFHandler(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	var pdf []byte
	_, err := s.withSession(id, func(st *models.SessionState) error {
		var err error
		pdf, err = s.summaryPDF(r.Context(), st)
		if err != nil {
			st.Notice = userMessage(err)
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, flow.ErrIntakeIncomplete) {
			slog.Warn("Server.summaryPDFHandler: export failed", "error", err, "sessionID", id)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writePDFResponse(w, summaryFilename, pdf)
}
