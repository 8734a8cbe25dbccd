package genai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/BTreeMap/PDIMentor/internal/models"
	"github.com/openai/openai-go"
)

// Summarize asks the model for a plain-text synthesis of the whole non-system log, written in
// language.
func (c *Client) Summarize(ctx context.Context, log []models.Message, language string) (string, error) {
	if !c.Configured() {
		slog.Error("GenAI.Summarize: no API key configured")
		return "", ErrConfiguration
	}
	_, history := splitSystem(log)
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	msgs = append(msgs, openai.SystemMessage(SummarySystemInstruction))
	msgs = append(msgs, ToTurns(history)...)
	msgs = append(msgs, openai.UserMessage(BuildSummaryInstruction(language)))
	return c.complete(ctx, "Summarize", msgs)
}

// SummaryCacheKey hashes the ordered non-system log content together with the summary language
// and the credential identity.
func SummaryCacheKey(log []models.Message, language, keyIdentity string) string {
	_, history := splitSystem(log)
	h := sha256.New()
	for _, m := range history {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(keyIdentity))
	return hex.EncodeToString(h.Sum(nil))
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SummaryCache is a content-addressed store of summaries, scoped by session.
type SummaryCache struct {
	mu    sync.Mutex
	items map[string]map[string]string
}

// NewSummaryCache creates an empty cache.
func NewSummaryCache() *SummaryCache {
	return &SummaryCache{items: map[string]map[string]string{}}
}

// Get returns the cached summary for sessionID and key.
func (c *SummaryCache) Get(sessionID, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, ok := c.items[sessionID][key]
	return text, ok
}

// Put stores a summary for sessionID and key.
func (c *SummaryCache) Put(sessionID, key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	scoped, ok := c.items[sessionID]
	if !ok {
		scoped = map[string]string{}
		c.items[sessionID] = scoped
	}
	scoped[key] = text
}

// Invalidate drops every summary of sessionID.
func (c *SummaryCache) Invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, sessionID)
}

// Len returns the number of cached summaries across sessions.
func (c *SummaryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, scoped := range c.items {
		n += len(scoped)
	}
	return n
}

// summaryBackend is the uncached summary call.
type summaryBackend interface {
	Summarize(ctx context.Context, log []models.Message, language string) (string, error)
	KeyIdentity() string
}

// CachedSummarizer memoizes summaries so repeated exports of an unchanged log do not call upstream.
type CachedSummarizer struct {
	backend summaryBackend
	cache   *SummaryCache
}

// NewCachedSummarizer wraps backend with cache.
func NewCachedSummarizer(backend summaryBackend, cache *SummaryCache) *CachedSummarizer {
	if cache == nil {
		cache = NewSummaryCache()
	}
	return &CachedSummarizer{backend: backend, cache: cache}
}

// Summarize returns the cached summary of log for sessionID or computes and stores it.
// Failures are not cached.
func (s *CachedSummarizer) Summarize(ctx context.Context, sessionID string, log []models.Message, language string) (string, error) {
	key := SummaryCacheKey(log, language, s.backend.KeyIdentity())
	if text, ok := s.cache.Get(sessionID, key); ok {
		slog.Debug("CachedSummarizer hit", "sessionID", sessionID)
		return text, nil
	}
	text, err := s.backend.Summarize(ctx, log, language)
	if err != nil {
		return "", err
	}
	s.cache.Put(sessionID, key, text)
	slog.Debug("CachedSummarizer stored summary", "sessionID", sessionID)
	return text, nil
}

// Invalidate forgets every summary of sessionID.
func (s *CachedSummarizer) Invalidate(sessionID string) {
	s.cache.Invalidate(sessionID)
}
