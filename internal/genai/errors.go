package genai

import (
	"errors"
	"fmt"

	"github.com/openai/openai-go"
)

var (
	// ErrConfiguration is returned when no credential is configured. No call is attempted.
	ErrConfiguration = errors.New("configuration error: OPENAI_API_KEY is not set")
	// ErrNoChoicesReturned is wrapped in an UnknownError when the provider answers without choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
)

// UpstreamError reports a provider-level rejection or failure of the call.
type UpstreamError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return "upstream error: " + e.Message
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// UnknownError reports any other failure during the call.
type UnknownError struct {
	Err error
}

func (e *UnknownError) Error() string {
	return "unexpected error: " + e.Err.Error()
}

func (e *UnknownError) Unwrap() error { return e.Err }

// classify maps an SDK error onto the adapter's error taxonomy.
func classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		msg := apierr.Message
		if msg == "" {
			msg = apierr.Error()
		}
		return &UpstreamError{StatusCode: apierr.StatusCode, Message: msg, Err: err}
	}
	return &UnknownError{Err: err}
}

// UserMessage renders err as the inline text shown to the user.
func UserMessage(err error) string {
	var up *UpstreamError
	var unk *UnknownError
	switch {
	case errors.Is(err, ErrConfiguration):
		return "Erro de configuração: a chave OPENAI_API_KEY não foi encontrada no ambiente."
	case errors.As(err, &up):
		return "Erro na API do modelo: verifique se a chave é válida e tem créditos. Detalhe: " + up.Message
	case errors.As(err, &unk):
		return "Ocorreu um erro inesperado: " + unk.Err.Error()
	default:
		return "Ocorreu um erro inesperado: " + err.Error()
	}
}
