package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/BTreeMap/PDIMentor/internal/flow"
	"github.com/BTreeMap/PDIMentor/internal/models"
	"github.com/BTreeMap/PDIMentor/internal/twiliowhatsapp"
	"github.com/BTreeMap/PDIMentor/internal/util"
)

// MaxWhatsAppBody is the Twilio limit for one WhatsApp message body, in characters.
const MaxWhatsAppBody = 1600

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// whatsappWebhookHandler runs one inbound WhatsApp message through the flow and replies with
// everything the mentor said since, sent through the Twilio REST API.
func (s *Server) whatsappWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.whatsappWebhookHandler: invalid form", "error", err)
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if !s.verifyTwilioSignature(r) {
		slog.Warn("Server.whatsappWebhookHandler: signature verification failed", "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	from := twiliowhatsapp.StripPrefix(r.PostForm.Get("From"))
	body := strings.TrimSpace(r.PostForm.Get("Body"))
	if from == "" {
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}
	id := util.WhatsAppSessionID(from)

	sid := r.PostForm.Get("MessageSid")
	if sid != "" {
		fresh, err := s.store.RecordInbound(sid, id)
		if err != nil {
			slog.Warn("Server.whatsappWebhookHandler: dedup check failed, processing anyway", "error", err, "messageSid", sid)
		} else if !fresh {
			slog.Info("Server.whatsappWebhookHandler: duplicate delivery ignored", "messageSid", sid, "sessionID", id)
			writeTwiML(w)
			return
		}
	}

	reply, err := s.handleWhatsAppText(r.Context(), id, body)
	if err != nil {
		slog.Error("Server.whatsappWebhookHandler: failed to process message", "error", err, "sessionID", id)
		if sid != "" {
			// A retry of a failed message is processed again.
			if ferr := s.store.ForgetInbound(sid); ferr != nil {
				slog.Error("Server.whatsappWebhookHandler: failed to forget inbound message", "error", ferr, "messageSid", sid)
			}
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if sid != "" {
		if err := s.store.MarkProcessed(sid); err != nil {
			slog.Warn("Server.whatsappWebhookHandler: failed to mark message processed", "error", err, "messageSid", sid)
		}
	}
	for _, chunk := range splitMessage(reply, MaxWhatsAppBody) {
		if err := s.opts.WhatsApp.SendMessage(r.Context(), from, chunk); err != nil {
			slog.Error("Server.whatsappWebhookHandler: failed to send reply", "error", err, "sessionID", id)
			break
		}
	}
	writeTwiML(w)
}

// handleWhatsAppText applies a text command to the session and returns the reply text.
// A message that opens a new session only greets; it is not taken as an answer.
func (s *Server) handleWhatsAppText(ctx context.Context, id, body string) (string, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	st, created, err := s.loadSession(id)
	if err != nil {
		return "", err
	}
	since := len(st.History())
	if created {
		since = 0
	} else if evErr := s.applyWhatsAppCommand(ctx, st, body, &since); evErr != nil {
		st.Notice = userMessage(evErr)
	}

	reply := flow.RenderText(s.walker.Render(st), since)
	st.TakeNotice()
	if err := s.store.SaveSession(st); err != nil {
		return "", err
	}
	return reply, nil
}

// applyWhatsAppCommand maps text onto walker events: "reiniciar" resets, a number or an option
// label selects, "confirmar" confirms, anything else is a free-text submission.
func (s *Server) applyWhatsAppCommand(ctx context.Context, st *models.SessionState, body string, since *int) error {
	cmd := strings.ToLower(strings.TrimSpace(body))
	if cmd == flow.CommandReset {
		s.reset(st)
		*since = 0
		return nil
	}

	state, _ := s.walker.State(st)
	if state != flow.StateChoice {
		return s.submitText(ctx, st, body)
	}
	if cmd == flow.CommandConfirm {
		return s.walker.Confirm(st)
	}
	v := s.walker.Render(st)
	if n, err := strconv.Atoi(cmd); err == nil {
		if n < 1 || n > len(v.Prompt.Options) {
			return flow.ErrInvalidOption
		}
		return s.walker.Select(st, v.Prompt.Options[n-1])
	}
	for _, opt := range v.Prompt.Options {
		if strings.EqualFold(opt, strings.TrimSpace(body)) {
			return s.walker.Select(st, opt)
		}
	}
	return flow.ErrChoiceRequiresConfirm
}

// verifyTwilioSignature checks X-Twilio-Signature when a validator is configured.
func (s *Server) verifyTwilioSignature(r *http.Request) bool {
	if s.opts.Validator == nil {
		return true
	}
	base := s.opts.PublicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	return s.opts.Validator.ValidateSignature(base+r.URL.RequestURI(), params, r.Header.Get("X-Twilio-Signature"))
}

func writeTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(emptyTwiML)); err != nil {
		slog.Error("Server.writeTwiML: failed to write response", "error", err)
	}
}

// splitMessage cuts text into chunks of at most limit characters, preferring paragraph and line
// breaks. Empty text yields no chunks.
func splitMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	var chunks []string
	for text != "" {
		if utf8.RuneCountInString(text) <= limit {
			chunks = append(chunks, text)
			break
		}
		cut := byteOffset(text, limit)
		head := text[:cut]
		if i := strings.LastIndex(head, "\n\n"); i > 0 {
			cut = i
		} else if i := strings.LastIndex(head, "\n"); i > 0 {
			cut = i
		} else if i := strings.LastIndex(head, " "); i > 0 {
			cut = i
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	return chunks
}

// byteOffset returns the byte index just past the first n runes of s.
func byteOffset(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}
