// Package models defines the core data structures for PDIMentor.
//
// It includes the conversation message log, the intake flow steps, the per-user session
// state, and the JSON envelope returned by the HTTP API.
package models

import (
	"errors"
	"time"
	"unicode/utf8"
)

// Role identifies who authored a message in the conversation log.
type Role string

const (
	// RoleSystem marks the instruction message kept at index 0 of every log.
	RoleSystem Role = "system"
	// RoleUser marks messages typed or selected by the user.
	RoleUser Role = "user"
	// RoleAssistant marks messages produced by the mentor (scripted banners or model replies).
	RoleAssistant Role = "assistant"
)

// IsValidRole checks if the given role is one of the supported roles.
func IsValidRole(r Role) bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is one turn of the conversation log.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for a single user submission
	MaxMessageLength = 4096
	// MaxChoiceOptionsCount defines the maximum number of options a choice step may carry
	MaxChoiceOptionsCount = 10
)

// Error variables for better error handling and testability
var (
	ErrEmptyInput         = errors.New("input cannot be empty")
	ErrInputTooLong       = errors.New("input exceeds maximum length")
	ErrEmptyDefinition    = errors.New("flow definition has no steps")
	ErrInvalidStepKind    = errors.New("invalid step kind")
	ErrMissingConfigKey   = errors.New("choice step requires a config key")
	ErrMissingOptions     = errors.New("choice step requires at least one option")
	ErrTooManyOptions     = errors.New("choice step has too many options")
	ErrEmptyStepText      = errors.New("step text cannot be empty")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidSessionID   = errors.New("session id cannot be empty")
	ErrMissingSystemEntry = errors.New("message log does not start with a system message")
)

// ValidateInput checks a free-text submission before it enters the log.
func ValidateInput(text string) error {
	if text == "" {
		return ErrEmptyInput
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return ErrInputTooLong
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusWarning indicates the request was accepted but nothing was produced.
	APIStatusWarning APIStatus = "warning"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Warning creates a warning API response with a message.
func Warning(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusWarning).
		WithMessage(message).
		Build()
}
