package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/PDIMentor/internal/genai"
	"github.com/BTreeMap/PDIMentor/internal/models"
	"github.com/BTreeMap/PDIMentor/internal/tone"
)

// mockConverser records every call and answers with reply or err.
type mockConverser struct {
	reply   string
	err     error
	calls   int
	lastLog []models.Message
	prompt  string
}

func (m *mockConverser) Converse(ctx context.Context, log []models.Message, prompt string) (string, error) {
	m.calls++
	m.lastLog = append([]models.Message(nil), log...)
	m.prompt = prompt
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func fixedClock() func() time.Time {
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func newTestWalker(t *testing.T, conv Converser) *Walker {
	t.Helper()
	w, err := NewWalker(DefaultDefinition(), conv, WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("NewWalker failed: %v", err)
	}
	return w
}

// confirmAll confirms the first option of every pending choice step.
func confirmAll(t *testing.T, w *Walker, s *models.SessionState, picks map[string]string) {
	t.Helper()
	for {
		state, i := w.State(s)
		if state != StateChoice {
			return
		}
		step, _ := w.Definition().Step(i)
		opt := step.Options[0]
		if p, ok := picks[step.ConfigKey]; ok {
			opt = p
		}
		if err := w.Select(s, opt); err != nil {
			t.Fatalf("Select(%q) failed: %v", opt, err)
		}
		if err := w.Confirm(s); err != nil {
			t.Fatalf("Confirm failed: %v", err)
		}
	}
}

// completeIntake walks a session to open chat and applies the final effect.
func completeIntake(t *testing.T, w *Walker, s *models.SessionState) {
	t.Helper()
	confirmAll(t, w, s, nil)
	for !w.IntakeComplete(s) {
		eff, err := w.SubmitText(s, "resposta")
		if err != nil {
			t.Fatalf("SubmitText failed: %v", err)
		}
		if eff != nil {
			if err := w.Apply(context.Background(), s, eff); err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
		}
	}
}

func TestDefaultDefinition(t *testing.T) {
	def := DefaultDefinition()
	if err := def.Validate(); err != nil {
		t.Fatalf("default definition invalid: %v", err)
	}
	if def.QuestionCount() != 11 {
		t.Errorf("expected 11 questions, got %d", def.QuestionCount())
	}
}

func TestDefinitionValidate(t *testing.T) {
	if err := (Definition{}).Validate(); !errors.Is(err, models.ErrEmptyDefinition) {
		t.Errorf("expected ErrEmptyDefinition, got %v", err)
	}
	endsWithIntro := Definition{models.FreeText("q"), models.Intro("fim")}
	if err := endsWithIntro.Validate(); !errors.Is(err, ErrFlowMustEndWithQuestion) {
		t.Errorf("expected ErrFlowMustEndWithQuestion, got %v", err)
	}
	badChoice := Definition{models.Choice("x", "k"), models.FreeText("q")}
	if err := badChoice.Validate(); !errors.Is(err, models.ErrMissingOptions) {
		t.Errorf("expected ErrMissingOptions, got %v", err)
	}
}

func TestNewSession_SettlesIntro(t *testing.T) {
	w := newTestWalker(t, &mockConverser{})
	s := w.NewSession("s1")

	if s.Messages[0].Role != models.RoleSystem {
		t.Fatal("messages[0] must be the system message")
	}
	state, _ := w.State(s)
	if state != StateChoice {
		t.Errorf("expected first input state to be a choice, got %s", state)
	}
	if len(s.Messages) != 2 {
		t.Fatalf("expected system + intro, got %d messages", len(s.Messages))
	}

	// Re-rendering must not record the intro again.
	w.Settle(s)
	w.Settle(s)
	if len(s.Messages) != 2 {
		t.Errorf("Settle duplicated messages: %d", len(s.Messages))
	}
}

func TestChoice_SelectionDoesNotAdvance(t *testing.T) {
	w := newTestWalker(t, &mockConverser{})
	s := w.NewSession("s1")
	before := s.StepIndex
	beforeLen := len(s.Messages)

	if err := w.Select(s, tone.LanguageEnglish); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if s.StepIndex != before || len(s.Messages) != beforeLen {
		t.Error("selection alone must not advance or record anything")
	}
	if _, ok := s.Configs[models.ConfigLanguage]; ok {
		t.Error("selection alone must not set the config")
	}
}

func TestChoice_ConfirmRecordsExactlyOneUserMessage(t *testing.T) {
	w := newTestWalker(t, &mockConverser{})
	s := w.NewSession("s1")
	step, _ := w.Definition().Step(s.StepIndex)

	if err := w.Select(s, tone.LanguageEnglish); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	users := countRole(s.Messages, models.RoleUser)
	if err := w.Confirm(s); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if got := countRole(s.Messages, models.RoleUser); got != users+1 {
		t.Errorf("expected exactly one new user message, got %d", got-users)
	}
	want := step.Text + ": " + tone.LanguageEnglish
	if !containsMessage(s.Messages, models.RoleUser, want) {
		t.Errorf("expected user message %q", want)
	}
	if s.Configs[models.ConfigLanguage] != tone.LanguageEnglish {
		t.Errorf("expected config set, got %q", s.Configs[models.ConfigLanguage])
	}
	if s.PendingChoice != "" {
		t.Error("pending selection must be cleared after confirm")
	}
}

func TestChoice_Errors(t *testing.T) {
	w := newTestWalker(t, &mockConverser{})
	s := w.NewSession("s1")

	if err := w.Confirm(s); !errors.Is(err, ErrNoPendingChoice) {
		t.Errorf("expected ErrNoPendingChoice, got %v", err)
	}
	if err := w.Select(s, "Klingon"); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
	if _, err := w.SubmitText(s, "English"); !errors.Is(err, ErrChoiceRequiresConfirm) {
		t.Errorf("expected ErrChoiceRequiresConfirm, got %v", err)
	}

	confirmAll(t, w, s, nil)
	if err := w.Select(s, tone.LanguageEnglish); !errors.Is(err, ErrNotChoiceStep) {
		t.Errorf("expected ErrNotChoiceStep on a free-text step, got %v", err)
	}
}

func TestWalk_StepIndexMonotonicAndReachesN(t *testing.T) {
	conv := &mockConverser{reply: "análise"}
	w := newTestWalker(t, conv)
	s := w.NewSession("s1")
	n := w.Definition().Len()

	visited := map[int]bool{}
	prev := s.StepIndex
	confirmAll(t, w, s, nil)
	for !w.IntakeComplete(s) {
		_, i := w.State(s)
		if visited[i] {
			t.Fatalf("step %d visited twice", i)
		}
		visited[i] = true
		eff, err := w.SubmitText(s, "resposta")
		if err != nil {
			t.Fatalf("SubmitText failed: %v", err)
		}
		if s.StepIndex < prev {
			t.Fatalf("step index decreased from %d to %d", prev, s.StepIndex)
		}
		prev = s.StepIndex
		if w.IntakeComplete(s) {
			if eff == nil || eff.Kind != EffectConverse {
				t.Fatal("completing the intake must request a converse effect")
			}
			if err := w.Apply(context.Background(), s, eff); err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
		} else if eff != nil {
			t.Fatalf("unexpected effect before intake completion at step %d", s.StepIndex)
		}
	}
	if s.StepIndex != n {
		t.Errorf("expected step index %d, got %d", n, s.StepIndex)
	}
	if conv.calls != 1 {
		t.Errorf("expected exactly one model call, got %d", conv.calls)
	}
	if last, _ := s.LastMessage(); last.Role != models.RoleAssistant || last.Content != "análise" {
		t.Errorf("expected reply appended, got %+v", last)
	}
	state, _ := w.State(s)
	if state != StateOpenChat {
		t.Errorf("expected open chat, got %s", state)
	}
}

func TestApply_SendsLogWithoutPendingMessage(t *testing.T) {
	conv := &mockConverser{reply: "ok"}
	w := newTestWalker(t, conv)
	s := w.NewSession("s1")
	completeIntake(t, w, s)

	eff, err := w.SubmitText(s, "Quais cursos faço?")
	if err != nil {
		t.Fatalf("SubmitText failed: %v", err)
	}
	if err := w.Apply(context.Background(), s, eff); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if conv.prompt != "Quais cursos faço?" {
		t.Errorf("expected prompt forwarded, got %q", conv.prompt)
	}
	last := conv.lastLog[len(conv.lastLog)-1]
	if last.Role == models.RoleUser && last.Content == "Quais cursos faço?" {
		t.Error("pending user message must not be duplicated in the log sent upstream")
	}
	if conv.lastLog[0].Role != models.RoleSystem {
		t.Error("log sent upstream must start with the system message")
	}
}

func TestApply_RollbackOnFailure(t *testing.T) {
	conv := &mockConverser{reply: "ok"}
	w := newTestWalker(t, conv)
	s := w.NewSession("s1")
	completeIntake(t, w, s)

	conv.err = &genai.UpstreamError{StatusCode: 500, Message: "indisponível"}
	l := len(s.Messages)
	eff, err := w.SubmitText(s, "X")
	if err != nil {
		t.Fatalf("SubmitText failed: %v", err)
	}
	if err := w.Apply(context.Background(), s, eff); err == nil {
		t.Fatal("expected upstream error")
	}
	if len(s.Messages) != l {
		t.Errorf("expected log length %d after rollback, got %d", l, len(s.Messages))
	}

	// The user may immediately retry the same input.
	conv.err = nil
	eff, _ = w.SubmitText(s, "X")
	if err := w.Apply(context.Background(), s, eff); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if len(s.Messages) != l+2 {
		t.Errorf("expected log length %d after retry, got %d", l+2, len(s.Messages))
	}
}

func TestApply_RollbackOnFinalIntakeStep(t *testing.T) {
	conv := &mockConverser{err: genai.ErrConfiguration}
	w := newTestWalker(t, conv)
	s := w.NewSession("s1")
	confirmAll(t, w, s, nil)

	for {
		l := len(s.Messages)
		eff, err := w.SubmitText(s, "resposta")
		if err != nil {
			t.Fatalf("SubmitText failed: %v", err)
		}
		if eff == nil {
			continue
		}
		if err := w.Apply(context.Background(), s, eff); !errors.Is(err, genai.ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration, got %v", err)
		}
		if len(s.Messages) != l {
			t.Errorf("expected log length %d after rollback, got %d", l, len(s.Messages))
		}
		break
	}
	if !w.IntakeComplete(s) {
		t.Error("the session stays in open chat after a failed first call")
	}
}

// submitUntilComplete answers every free-text question and returns the final effect.
func submitUntilComplete(t *testing.T, w *Walker, s *models.SessionState) *Effect {
	t.Helper()
	for {
		eff, err := w.SubmitText(s, "resposta")
		if err != nil {
			t.Fatalf("SubmitText failed: %v", err)
		}
		if eff != nil {
			return eff
		}
	}
}

func TestSubmitText_CompletionBanner(t *testing.T) {
	conv := &mockConverser{reply: "análise"}
	w := newTestWalker(t, conv)
	s := w.NewSession("s1")
	confirmAll(t, w, s, nil)

	eff := submitUntilComplete(t, w, s)
	n := len(s.Messages)
	banner := s.Messages[n-1]
	if banner.Role != models.RoleAssistant || !strings.Contains(banner.Content, "Formulário inicial completo") {
		t.Fatalf("expected completion banner as the last message, got %+v", banner)
	}
	if !strings.Contains(banner.Content, "11 respostas") {
		t.Errorf("banner should count the answers: %q", banner.Content)
	}
	if answer := s.Messages[n-2]; answer.Role != models.RoleUser || answer.Content != "resposta" {
		t.Errorf("banner must follow the last answer, got %+v", answer)
	}

	if err := w.Apply(context.Background(), s, eff); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if last := conv.lastLog[len(conv.lastLog)-1]; last.Role == models.RoleUser && last.Content == "resposta" {
		t.Error("pending answer must not be duplicated in the log sent upstream")
	}
	for _, m := range conv.lastLog {
		if strings.Contains(m.Content, "Formulário inicial completo") {
			t.Error("completion banner must not be sent upstream")
		}
	}
	if s.Messages[n-1].Content != banner.Content || s.Messages[n].Content != "análise" {
		t.Errorf("expected banner then analysis, got %+v", s.Messages[n-1:])
	}
}

func TestApply_RollbackRemovesCompletionBanner(t *testing.T) {
	conv := &mockConverser{err: &genai.UnknownError{Err: errors.New("timeout")}}
	w := newTestWalker(t, conv)
	s := w.NewSession("s1")
	confirmAll(t, w, s, nil)

	var l int
	var eff *Effect
	for eff == nil {
		l = len(s.Messages)
		var err error
		if eff, err = w.SubmitText(s, "resposta"); err != nil {
			t.Fatalf("SubmitText failed: %v", err)
		}
	}
	if err := w.Apply(context.Background(), s, eff); err == nil {
		t.Fatal("expected model error")
	}
	if len(s.Messages) != l {
		t.Fatalf("expected log length %d after rollback, got %d", l, len(s.Messages))
	}
	if last, _ := s.LastMessage(); strings.Contains(last.Content, "Formulário inicial completo") {
		t.Error("completion banner survived the rollback")
	}
}

func TestApply_SystemMessageReflectsLatestConfigs(t *testing.T) {
	conv := &mockConverser{reply: "ok"}
	w := newTestWalker(t, conv)
	s := w.NewSession("s1")
	confirmAll(t, w, s, map[string]string{models.ConfigTone: tone.ToneDirect})
	for !w.IntakeComplete(s) {
		eff, _ := w.SubmitText(s, "resposta")
		if eff != nil {
			if err := w.Apply(context.Background(), s, eff); err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
		}
	}
	if !strings.Contains(conv.lastLog[0].Content, tone.ToneDirect) {
		t.Errorf("instruction must carry the confirmed tone")
	}

	s.Configs[models.ConfigTone] = tone.ToneMotivational
	eff, _ := w.SubmitText(s, "e agora?")
	if err := w.Apply(context.Background(), s, eff); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !strings.Contains(conv.lastLog[0].Content, tone.ToneMotivational) {
		t.Errorf("instruction must be rebuilt from the latest configs")
	}
	if countRole(s.Messages, models.RoleSystem) != 1 {
		t.Error("system message must be rewritten, not appended")
	}
}

func TestSubmitText_RejectsEmpty(t *testing.T) {
	w := newTestWalker(t, &mockConverser{})
	s := w.NewSession("s1")
	confirmAll(t, w, s, nil)
	if _, err := w.SubmitText(s, "   "); !errors.Is(err, models.ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestRender_IsPure(t *testing.T) {
	w := newTestWalker(t, &mockConverser{})
	s := w.NewSession("s1")
	confirmAll(t, w, s, nil)
	s.Notice = "aviso"

	before := s.Clone()
	v := w.Render(s)
	if len(s.Messages) != len(before.Messages) || s.StepIndex != before.StepIndex || s.Notice != before.Notice {
		t.Error("Render mutated the session")
	}
	if v.State != StateFreeText || v.Prompt == nil || v.Prompt.Text != NamePrompt {
		t.Fatalf("expected name question, got %+v", v.Prompt)
	}
	if v.Prompt.Label != "1/11" {
		t.Errorf("expected label 1/11, got %q", v.Prompt.Label)
	}
	for _, m := range v.Messages {
		if m.Role == models.RoleSystem {
			t.Error("view must not expose the system message")
		}
	}
}

func TestRenderText_Choice(t *testing.T) {
	w := newTestWalker(t, &mockConverser{})
	s := w.NewSession("s1")

	out := RenderText(w.Render(s), 0)
	if !strings.Contains(out, "1. "+tone.LanguagePortuguese) || !strings.Contains(out, "número") {
		t.Errorf("unexpected choice rendering: %q", out)
	}

	_ = w.Select(s, tone.LanguageSpanish)
	out = RenderText(w.Render(s), len(s.History()))
	if !strings.Contains(out, CommandConfirm) || !strings.Contains(out, tone.LanguageSpanish) {
		t.Errorf("expected confirm hint for pending selection: %q", out)
	}
}

func countRole(msgs []models.Message, role models.Role) int {
	n := 0
	for _, m := range msgs {
		if m.Role == role {
			n++
		}
	}
	return n
}

func containsMessage(msgs []models.Message, role models.Role, content string) bool {
	for _, m := range msgs {
		if m.Role == role && m.Content == content {
			return true
		}
	}
	return false
}
