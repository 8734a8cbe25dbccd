package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/PDIMentor/internal/genai"
	"github.com/BTreeMap/PDIMentor/internal/models"
)

// StateKind names the walker state derived from a session's step index.
type StateKind string

const (
	StateIntro    StateKind = "intro"
	StateChoice   StateKind = "choice"
	StateFreeText StateKind = "free_text"
	StateOpenChat StateKind = "open_chat"
)

// Walker errors.
var (
	ErrChoiceRequiresConfirm = errors.New("current step is a choice; select an option and confirm it")
	ErrNotChoiceStep         = errors.New("current step is not a choice")
	ErrNoPendingChoice       = errors.New("no option selected")
	ErrInvalidOption         = errors.New("option is not offered by the current step")
	ErrIntakeIncomplete      = errors.New("intake has not been completed")
)

// Converser is the model call the walker issues once intake is complete.
type Converser interface {
	Converse(ctx context.Context, log []models.Message, prompt string) (string, error)
}

// EffectKind identifies a side effect requested by a walker transition.
type EffectKind string

// EffectConverse asks for one model call with the effect's prompt.
const EffectConverse EffectKind = "converse"

// Effect is a side effect that must run between renders. The walker never calls the model
// while mutating state; callers pass the effect back to Apply.
type Effect struct {
	Kind   EffectKind
	Prompt string

	// pending is the log index of the user message the effect answers, 0 when there is none.
	pending int
}

// IntakeCompleteBanner is recorded after the last intake answer, before the first analysis.
const IntakeCompleteBanner = "✅ **Formulário inicial completo!** O Mentor de Carreira já está analisando suas %d respostas. " +
	"Aguarde enquanto ele prepara a primeira análise e inicia a identificação de *Gaps*."

// Walker advances sessions through a Definition.
type Walker struct {
	def  Definition
	conv Converser
	now  func() time.Time
}

// WalkerOption configures a Walker.
type WalkerOption func(*Walker)

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) WalkerOption {
	return func(w *Walker) { w.now = now }
}

// NewWalker creates a walker over def using conv for model calls.
func NewWalker(def Definition, conv Converser, opts ...WalkerOption) (*Walker, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flow definition: %w", err)
	}
	w := &Walker{def: def, conv: conv, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Definition returns the walker's flow.
func (w *Walker) Definition() Definition { return w.def }

// NewSession creates a session positioned at the first step that needs user input.
func (w *Walker) NewSession(id string) *models.SessionState {
	s := models.NewSessionState(id, genai.BuildSystemInstruction(nil), w.now())
	w.Settle(s)
	return s
}

// State derives the walker state from the session's step index.
func (w *Walker) State(s *models.SessionState) (StateKind, int) {
	step, ok := w.def.Step(s.StepIndex)
	if !ok {
		return StateOpenChat, s.StepIndex
	}
	switch step.Kind {
	case models.StepIntro:
		return StateIntro, s.StepIndex
	case models.StepChoice:
		return StateChoice, s.StepIndex
	default:
		return StateFreeText, s.StepIndex
	}
}

// IntakeComplete reports whether the session reached open chat.
func (w *Walker) IntakeComplete(s *models.SessionState) bool {
	return s.StepIndex >= w.def.Len()
}

// recordAssistant appends text as an assistant message unless it is already the last message.
func (w *Walker) recordAssistant(s *models.SessionState, text string) {
	if last, ok := s.LastMessage(); ok && last.Role == models.RoleAssistant && last.Content == text {
		return
	}
	s.Append(models.RoleAssistant, text, w.now())
}

// advance moves the step pointer forward by one, never past N.
func (w *Walker) advance(s *models.SessionState) {
	if s.StepIndex < w.def.Len() {
		s.StepIndex++
	}
}

// Settle consumes every intro step at the pointer and records the prompt of a free-text step
// that became current. It returns the number of intro steps consumed.
func (w *Walker) Settle(s *models.SessionState) int {
	consumed := 0
	for {
		state, i := w.State(s)
		switch state {
		case StateIntro:
			step, _ := w.def.Step(i)
			w.recordAssistant(s, step.Text)
			w.advance(s)
			consumed++
			continue
		case StateFreeText:
			step, _ := w.def.Step(i)
			w.recordAssistant(s, step.Text)
		}
		return consumed
	}
}

// Select holds option as the pending answer of the current choice step without advancing.
func (w *Walker) Select(s *models.SessionState, option string) error {
	state, i := w.State(s)
	if state != StateChoice {
		return ErrNotChoiceStep
	}
	step, _ := w.def.Step(i)
	if !step.HasOption(option) {
		return ErrInvalidOption
	}
	s.PendingChoice = option
	s.UpdatedAt = w.now()
	slog.Debug("Walker.Select", "sessionID", s.ID, "step", i, "option", option)
	return nil
}

// Confirm commits the pending selection of the current choice step.
func (w *Walker) Confirm(s *models.SessionState) error {
	state, i := w.State(s)
	if state != StateChoice {
		return ErrNotChoiceStep
	}
	if s.PendingChoice == "" {
		return ErrNoPendingChoice
	}
	step, _ := w.def.Step(i)
	if !step.HasOption(s.PendingChoice) {
		s.PendingChoice = ""
		return ErrInvalidOption
	}
	option := s.PendingChoice
	if s.Configs == nil {
		s.Configs = make(map[string]string)
	}
	s.Configs[step.ConfigKey] = option
	s.Append(models.RoleUser, fmt.Sprintf("%s: %s", step.Text, option), w.now())
	s.PendingChoice = ""
	w.advance(s)
	w.Settle(s)
	slog.Debug("Walker.Confirm", "sessionID", s.ID, "key", step.ConfigKey, "option", option, "stepIndex", s.StepIndex)
	return nil
}

// SubmitText records a free-text submission. It returns a converse effect when the submission
// completes the intake or arrives during open chat, and nil otherwise.
func (w *Walker) SubmitText(s *models.SessionState, text string) (*Effect, error) {
	text = strings.TrimSpace(text)
	if err := models.ValidateInput(text); err != nil {
		return nil, err
	}
	state, i := w.State(s)
	switch state {
	case StateChoice:
		return nil, ErrChoiceRequiresConfirm
	case StateOpenChat:
		s.Append(models.RoleUser, text, w.now())
		return &Effect{Kind: EffectConverse, Prompt: text, pending: len(s.Messages) - 1}, nil
	case StateIntro:
		// Intro steps are consumed before input is accepted.
		w.Settle(s)
		return w.SubmitText(s, text)
	}

	s.Append(models.RoleUser, text, w.now())
	pending := len(s.Messages) - 1
	w.advance(s)
	w.Settle(s)
	slog.Debug("Walker.SubmitText recorded answer", "sessionID", s.ID, "step", i, "stepIndex", s.StepIndex)
	if w.IntakeComplete(s) {
		slog.Info("Walker intake complete", "sessionID", s.ID)
		w.recordAssistant(s, fmt.Sprintf(IntakeCompleteBanner, w.def.QuestionCount()))
		return &Effect{Kind: EffectConverse, Prompt: text, pending: pending}, nil
	}
	return nil, nil
}

// Apply runs eff. For a converse effect the system message is rebuilt from the current configs,
// the model sees the log preceding the pending user message plus the prompt, and on failure the
// log is cut back to its length before the submission.
func (w *Walker) Apply(ctx context.Context, s *models.SessionState, eff *Effect) error {
	if eff == nil {
		return nil
	}
	if eff.Kind != EffectConverse {
		return fmt.Errorf("unsupported effect %q", eff.Kind)
	}
	s.SetSystem(genai.BuildSystemInstruction(s.Configs))

	prior := s.Messages
	pending := eff.pending > 0 && eff.pending < len(s.Messages) &&
		s.Messages[eff.pending].Role == models.RoleUser && s.Messages[eff.pending].Content == eff.Prompt
	if pending {
		prior = s.Messages[:eff.pending]
	}

	reply, err := w.conv.Converse(ctx, prior, eff.Prompt)
	if err != nil {
		for pending && len(s.Messages) > eff.pending {
			s.RemoveLast()
		}
		slog.Warn("Walker.Apply rolled back user message", "sessionID", s.ID, "error", err, "logLength", len(s.Messages))
		return err
	}
	s.Append(models.RoleAssistant, reply, w.now())
	return nil
}
