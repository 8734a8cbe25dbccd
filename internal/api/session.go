package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/PDIMentor/internal/flow"
	"github.com/BTreeMap/PDIMentor/internal/genai"
	"github.com/BTreeMap/PDIMentor/internal/models"
	"github.com/BTreeMap/PDIMentor/internal/transcript"
	"github.com/BTreeMap/PDIMentor/internal/util"
)

// PDF titles and download names.
const (
	TranscriptTitle    = "Transcrição da Mentoria PDI"
	SummaryTitle       = "Resumo do Plano de Desenvolvimento Individual"
	transcriptFilename = "transcricao_pdi.pdf"
	summaryFilename    = "resumo_pdi.pdf"
)

// sessionID returns the id carried by the request cookie, minting and setting a new one when the
// cookie is missing or malformed.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && util.IsValidSessionID(c.Value) && !strings.HasPrefix(c.Value, util.WhatsAppSessionPrefix) {
		return c.Value
	}
	id := util.NewSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.opts.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   strings.HasPrefix(s.opts.PublicURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	})
	slog.Debug("Server.sessionID: issued new session cookie", "sessionID", id)
	return id
}

// loadSession returns the stored session or a freshly settled one. The caller must hold the
// session lock.
func (s *Server) loadSession(id string) (*models.SessionState, bool, error) {
	st, err := s.store.GetSession(id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if st != nil {
		return st, false, nil
	}
	st = s.walker.NewSession(id)
	slog.Info("Server.loadSession: created session", "sessionID", id)
	return st, true, nil
}

// withSession runs fn on the session under its lock and persists the result. fn's error is
// returned after saving so failed events still keep the rolled-back session.
func (s *Server) withSession(id string, fn func(st *models.SessionState) error) (*models.SessionState, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	st, _, err := s.loadSession(id)
	if err != nil {
		return nil, err
	}
	fnErr := fn(st)
	if err := s.store.SaveSession(st); err != nil {
		slog.Error("Server.withSession: failed to save session", "error", err, "sessionID", id)
		return st, err
	}
	return st, fnErr
}

// submitText runs a free-text submission and its effect.
func (s *Server) submitText(ctx context.Context, st *models.SessionState, text string) error {
	eff, err := s.walker.SubmitText(st, text)
	if err != nil {
		return err
	}
	if err := s.walker.Apply(ctx, st, eff); err != nil {
		slog.Warn("Server.submitText: model call failed", "sessionID", st.ID, "error", err)
		return err
	}
	return nil
}

// reset wipes the session and its cached summaries, replacing it with a fresh one under the same id.
func (s *Server) reset(st *models.SessionState) {
	if s.summarizer != nil {
		s.summarizer.Invalidate(st.ID)
	}
	*st = *s.walker.NewSession(st.ID)
	slog.Info("Server.reset: session reset", "sessionID", st.ID)
}

// transcriptPDF renders the session log. Valid at any point of the intake.
func (s *Server) transcriptPDF(st *models.SessionState) ([]byte, error) {
	entries := transcript.Format(st.Messages, flow.NamePrompt)
	return transcript.RenderTranscript(entries, TranscriptTitle, s.now())
}

// summaryPDF asks the summarizer for the session summary and renders it. Before the intake is
// complete it returns flow.ErrIntakeIncomplete without calling the model.
func (s *Server) summaryPDF(ctx context.Context, st *models.SessionState) ([]byte, error) {
	text, err := s.summaryText(ctx, st)
	if err != nil {
		return nil, err
	}
	return transcript.RenderSummary(text, SummaryTitle, s.now())
}

func (s *Server) summaryText(ctx context.Context, st *models.SessionState) (string, error) {
	if !s.walker.IntakeComplete(st) {
		return "", flow.ErrIntakeIncomplete
	}
	if s.summarizer == nil {
		return "", genai.ErrConfiguration
	}
	return s.summarizer.Summarize(ctx, st.ID, st.Messages, st.Configs[models.ConfigLanguage])
}
