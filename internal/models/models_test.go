package models

import (
	"strings"
	"testing"
	"time"
)

func TestFlowStepValidate(t *testing.T) {
	tests := []struct {
		name string
		step FlowStep
		want error
	}{
		{"intro ok", Intro("Olá"), nil},
		{"free text ok", FreeText("Quantos anos você tem?"), nil},
		{"choice ok", Choice("Idioma", ConfigLanguage, "Português", "English"), nil},
		{"empty text", Intro(""), ErrEmptyStepText},
		{"choice without key", Choice("Idioma", "", "Português"), ErrMissingConfigKey},
		{"choice without options", Choice("Idioma", ConfigLanguage), ErrMissingOptions},
		{"unknown kind", FlowStep{Kind: "poll", Text: "x"}, ErrInvalidStepKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.step.Validate(); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionStateRemoveLastKeepsSystem(t *testing.T) {
	now := time.Now()
	s := NewSessionState("s1", "sys", now)
	s.RemoveLast()
	if len(s.Messages) != 1 || s.Messages[0].Role != RoleSystem {
		t.Fatalf("system message must survive RemoveLast, got %+v", s.Messages)
	}

	s.Append(RoleUser, "oi", now)
	s.RemoveLast()
	if len(s.Messages) != 1 {
		t.Errorf("expected log length 1 after rollback, got %d", len(s.Messages))
	}
}

func TestSessionStateSetSystemRewrites(t *testing.T) {
	s := NewSessionState("s1", "old", time.Now())
	s.Append(RoleUser, "oi", time.Now())
	s.SetSystem("new")
	if len(s.Messages) != 2 {
		t.Fatalf("SetSystem must not append, got %d messages", len(s.Messages))
	}
	if s.Messages[0].Content != "new" {
		t.Errorf("expected rewritten system content, got %q", s.Messages[0].Content)
	}
}

func TestSessionStateCloneIsDeep(t *testing.T) {
	s := NewSessionState("s1", "sys", time.Now())
	s.Configs[ConfigTone] = "Direto e objetivo"
	cp := s.Clone()
	cp.Configs[ConfigTone] = "Motivacional"
	cp.Append(RoleUser, "x", time.Now())
	if s.Configs[ConfigTone] != "Direto e objetivo" {
		t.Error("clone shares configs map with original")
	}
	if len(s.Messages) != 1 {
		t.Error("clone shares message slice with original")
	}
}

func TestValidateInput(t *testing.T) {
	if err := ValidateInput(""); err != ErrEmptyInput {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
	long := make([]byte, MaxMessageLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidateInput(string(long)); err != ErrInputTooLong {
		t.Errorf("expected ErrInputTooLong, got %v", err)
	}
	if err := ValidateInput("Ana"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateInput_CountsCharacters(t *testing.T) {
	accented := strings.Repeat("ç", MaxMessageLength)
	if err := ValidateInput(accented); err != nil {
		t.Errorf("%d accented characters should be accepted, got %v", MaxMessageLength, err)
	}
	if err := ValidateInput(accented + "ã"); err != ErrInputTooLong {
		t.Errorf("expected ErrInputTooLong past the limit, got %v", err)
	}
}
