// Package api serves the PDIMentor chat over HTTP.
//
// It exposes a server-rendered chat page, a JSON API over the same sessions, PDF exports, and a
// Twilio webhook that drives the same flow from WhatsApp. Every request runs one external event
// through the flow walker, applies its effect, and persists the session.
package api

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/PDIMentor/internal/flow"
	"github.com/BTreeMap/PDIMentor/internal/models"
	"github.com/BTreeMap/PDIMentor/internal/store"
	"github.com/BTreeMap/PDIMentor/internal/twiliowhatsapp"
)

// Server defaults.
const (
	DefaultAddr            = ":8080"
	DefaultSessionTTL      = 24 * time.Hour
	DefaultShutdownTimeout = 5 * time.Second
	// SessionCookieName carries the browser session id.
	SessionCookieName = "pdi_session"
)

// Summarizer produces (and caches) the summary of a session's log.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID string, log []models.Message, language string) (string, error)
	Invalidate(sessionID string)
}

// SignatureValidator verifies inbound Twilio webhook signatures.
type SignatureValidator interface {
	ValidateSignature(url string, params map[string]string, signature string) bool
}

// Opts holds configuration for the HTTP server.
type Opts struct {
	Addr       string
	PublicURL  string
	SessionTTL time.Duration
	WhatsApp   twiliowhatsapp.Sender
	Validator  SignatureValidator
}

// Option defines a configuration option for the HTTP server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithPublicURL sets the externally visible base URL, used for secure cookies and webhook signatures.
func WithPublicURL(url string) Option {
	return func(o *Opts) { o.PublicURL = strings.TrimRight(url, "/") }
}

// WithSessionTTL sets the browser cookie lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = ttl }
}

// WithWhatsApp enables the Twilio webhook and sends replies through sender.
func WithWhatsApp(sender twiliowhatsapp.Sender) Option {
	return func(o *Opts) { o.WhatsApp = sender }
}

// WithSignatureValidator rejects webhook calls whose X-Twilio-Signature does not verify.
func WithSignatureValidator(v SignatureValidator) Option {
	return func(o *Opts) { o.Validator = v }
}

// Server wires the flow walker to a session store and the HTTP surfaces.
type Server struct {
	walker     *flow.Walker
	store      store.Store
	summarizer Summarizer
	opts       Opts
	locks      *keyedMutex
	page       *template.Template
	now        func() time.Time
}

// NewServer builds a server. summarizer may be nil, in which case summary export reports a
// configuration error.
func NewServer(walker *flow.Walker, st store.Store, summarizer Summarizer, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, SessionTTL: DefaultSessionTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Server.NewServer: configured",
		"addr", cfg.Addr, "publicURL", cfg.PublicURL, "sessionTTL", cfg.SessionTTL,
		"whatsapp", cfg.WhatsApp != nil, "signatureValidation", cfg.Validator != nil)
	return &Server{
		walker:     walker,
		store:      st,
		summarizer: summarizer,
		opts:       cfg,
		locks:      newKeyedMutex(),
		page:       pageTemplate,
		now:        time.Now,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Browser chat.
	mux.HandleFunc("GET /{$}", s.indexHandler)
	mux.HandleFunc("POST /chat/submit", s.submitFormHandler)
	mux.HandleFunc("POST /chat/choice", s.choiceFormHandler)
	mux.HandleFunc("POST /chat/reset", s.resetFormHandler)
	mux.HandleFunc("GET /export/transcript.pdf", s.transcriptPDFHandler)
	mux.HandleFunc("GET /export/summary.pdf", s.summaryPDFHandler)

	// JSON API.
	mux.HandleFunc("GET /api/session", s.sessionHandler)
	mux.HandleFunc("POST /api/messages", s.messagesHandler)
	mux.HandleFunc("POST /api/choice/select", s.selectHandler)
	mux.HandleFunc("POST /api/choice/confirm", s.confirmHandler)
	mux.HandleFunc("POST /api/reset", s.resetHandler)
	mux.HandleFunc("GET /api/summary", s.summaryHandler)

	if s.opts.WhatsApp != nil {
		mux.HandleFunc("POST /twilio/whatsapp", s.whatsappWebhookHandler)
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("Server.Run: listening", "addr", s.opts.Addr)

	select {
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server.Run: server error", "error", err)
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: shutdown error", "error", err)
		return err
	}
	slog.Info("Server.Run: server stopped")
	return nil
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"whatsapp":  s.opts.WhatsApp != nil,
	}))
}

// keyedMutex serializes requests that touch the same session.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
