// Package genai provides the mentor's model adapter on top of the OpenAI chat completions API.
//
// It maps the session message log into provider turns, sends the system instruction as a
// separate message, and classifies failures into configuration, upstream and unknown errors.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BTreeMap/PDIMentor/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default model configuration. The model identifier is fixed for the whole deployment.
const (
	DefaultModel       = openai.ChatModelGPT4oMini
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsAdapter adapts the SDK's completions service to chatService.
type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey      string
	Temperature float64
	MaxTokens   int64
	DebugMode   bool
	StateDir    string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the credential used for every call.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens overrides the completion token limit.
func WithMaxTokens(n int64) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithDebugMode records every request/response pair as JSON under <stateDir>/debug.
func WithDebugMode(stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = true
		o.StateDir = stateDir
	}
}

// Client wraps the OpenAI chat completion service for mentor conversations.
// A Client without a key is valid: every call fails with ErrConfiguration.
type Client struct {
	chat        chatService
	apiKey      string
	model       openai.ChatModel
	temperature float64
	maxTokens   int64
	debugMode   bool
	stateDir    string
}

// NewClient builds a client. A missing key is not an error here so the UI can start and
// report the configuration problem inline.
func NewClient(opts ...Option) *Client {
	cfg := Opts{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Client{
		apiKey:      cfg.APIKey,
		model:       DefaultModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
	}
	if cfg.APIKey == "" {
		slog.Warn("GenAI client created without API key; model calls will fail with a configuration error")
		return c
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	c.chat = completionsAdapter{svc: &cli.Chat.Completions}
	slog.Debug("GenAI client created", "model", c.model, "debug", c.debugMode)
	return c
}

// Configured reports whether a credential is present.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != "" && c.chat != nil
}

// KeyIdentity returns a stable, non-reversible identity of the credential for cache keys.
func (c *Client) KeyIdentity() string {
	if c == nil {
		return ""
	}
	return hashString(c.apiKey)
}

// Converse sends the conversation to the model and returns the reply text.
// messages[0], when it is a system message, is used as the system instruction and never as a turn.
func (c *Client) Converse(ctx context.Context, log []models.Message, prompt string) (string, error) {
	if !c.Configured() {
		slog.Error("GenAI.Converse: no API key configured")
		return "", ErrConfiguration
	}
	instruction, history := splitSystem(log)
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if instruction != "" {
		msgs = append(msgs, openai.SystemMessage(instruction))
	}
	msgs = append(msgs, ToTurns(history)...)
	msgs = append(msgs, openai.UserMessage(prompt))
	return c.complete(ctx, "Converse", msgs)
}

// complete performs exactly one blocking call and classifies the outcome.
func (c *Client) complete(ctx context.Context, method string, msgs []openai.ChatCompletionMessageParamUnion) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: msgs,
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.maxTokens)
	}

	slog.Debug("GenAI request", "method", method, "model", c.model, "turns", len(msgs))
	start := time.Now()
	resp, err := c.chat.Create(ctx, params)
	c.writeDebugLog(method, params, resp, err)
	if err != nil {
		classified := classify(err)
		slog.Error("GenAI call failed", "method", method, "error", classified, "elapsed", time.Since(start))
		return "", classified
	}
	if len(resp.Choices) == 0 {
		slog.Error("GenAI call returned no choices", "method", method)
		return "", &UnknownError{Err: ErrNoChoicesReturned}
	}
	slog.Debug("GenAI call succeeded", "method", method, "elapsed", time.Since(start))
	return resp.Choices[0].Message.Content, nil
}

// ToTurns maps log roles onto provider turns in original order: user stays user,
// assistant becomes the model's turn, system is dropped.
func ToTurns(log []models.Message) []openai.ChatCompletionMessageParamUnion {
	turns := make([]openai.ChatCompletionMessageParamUnion, 0, len(log))
	for _, m := range log {
		switch m.Role {
		case models.RoleUser:
			turns = append(turns, openai.UserMessage(m.Content))
		case models.RoleAssistant:
			turns = append(turns, openai.AssistantMessage(m.Content))
		}
	}
	return turns
}

func splitSystem(log []models.Message) (string, []models.Message) {
	if len(log) > 0 && log[0].Role == models.RoleSystem {
		return log[0].Content, log[1:]
	}
	return "", log
}

// debugEntry is the on-disk shape of one recorded call.
type debugEntry struct {
	Timestamp time.Time                      `json:"timestamp"`
	Method    string                         `json:"method"`
	Model     string                         `json:"model"`
	Params    openai.ChatCompletionNewParams `json:"params"`
	Response  *openai.ChatCompletion         `json:"response,omitempty"`
	Error     string                         `json:"error,omitempty"`
}

func (c *Client) writeDebugLog(method string, params openai.ChatCompletionNewParams, resp openai.ChatCompletion, callErr error) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	entry := debugEntry{
		Timestamp: time.Now(),
		Method:    method,
		Model:     string(c.model),
		Params:    params,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	} else {
		entry.Response = &resp
	}

	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("GenAI debug: failed to create directory", "dir", dir, "error", err)
		return
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("GenAI debug: failed to marshal entry", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s.json", entry.Timestamp.Format("20060102T150405.000000000"), method)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		slog.Warn("GenAI debug: failed to write entry", "error", err)
	}
}
