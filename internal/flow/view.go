package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/PDIMentor/internal/models"
)

// PromptView describes the input the session is waiting for.
type PromptView struct {
	Kind     models.StepKind `json:"kind"`
	Text     string          `json:"text"`
	Label    string          `json:"label,omitempty"`
	Options  []string        `json:"options,omitempty"`
	Selected string          `json:"selected,omitempty"`
	Number   int             `json:"number,omitempty"`
	Total    int             `json:"total,omitempty"`
}

// View is everything a surface needs to draw one session.
type View struct {
	SessionID      string           `json:"session_id"`
	State          StateKind        `json:"state"`
	StepIndex      int              `json:"step_index"`
	StepCount      int              `json:"step_count"`
	Messages       []models.Message `json:"messages"`
	Prompt         *PromptView      `json:"prompt,omitempty"`
	IntakeComplete bool             `json:"intake_complete"`
	Notice         string           `json:"notice,omitempty"`
	StartTime      time.Time        `json:"start_time"`
}

// Render builds the view of s. It does not mutate the session.
func (w *Walker) Render(s *models.SessionState) View {
	state, i := w.State(s)
	v := View{
		SessionID:      s.ID,
		State:          state,
		StepIndex:      s.StepIndex,
		StepCount:      w.def.Len(),
		Messages:       append([]models.Message(nil), s.History()...),
		IntakeComplete: w.IntakeComplete(s),
		Notice:         s.Notice,
		StartTime:      s.StartTime,
	}
	step, ok := w.def.Step(i)
	if !ok {
		return v
	}
	pv := &PromptView{Kind: step.Kind, Text: step.Text}
	switch step.Kind {
	case models.StepChoice:
		pv.Options = append([]string(nil), step.Options...)
		pv.Selected = s.PendingChoice
	case models.StepFreeText:
		pv.Number = w.def.QuestionNumber(i)
		pv.Total = w.def.QuestionCount()
		pv.Label = fmt.Sprintf("%d/%d", pv.Number, pv.Total)
	}
	v.Prompt = pv
	return v
}

// Text-channel commands.
const (
	CommandConfirm = "confirmar"
	CommandReset   = "reiniciar"
)

// RenderText renders the part of a view a text-only channel must send: the messages appended
// since the first `since` history entries, followed by the choice prompt when one is pending.
func RenderText(v View, since int) string {
	var b strings.Builder
	if since < 0 {
		since = 0
	}
	for i := since; i < len(v.Messages); i++ {
		m := v.Messages[i]
		if m.Role != models.RoleAssistant {
			continue
		}
		content := m.Content
		if v.Prompt != nil && v.Prompt.Kind == models.StepFreeText && i == len(v.Messages)-1 && content == v.Prompt.Text {
			content = v.Prompt.Label + ". " + content
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	if v.Notice != "" {
		b.WriteString("⚠️ ")
		b.WriteString(v.Notice)
		b.WriteString("\n\n")
	}
	if v.Prompt != nil && v.Prompt.Kind == models.StepChoice {
		b.WriteString(v.Prompt.Text)
		b.WriteString("\n")
		for n, opt := range v.Prompt.Options {
			fmt.Fprintf(&b, "%d. %s\n", n+1, opt)
		}
		if v.Prompt.Selected != "" {
			fmt.Fprintf(&b, "\nSelecionado: %s. Responda \"%s\" para continuar.\n", v.Prompt.Selected, CommandConfirm)
		} else {
			b.WriteString("\nResponda com o número da opção.\n")
		}
	}
	return strings.TrimSpace(b.String())
}
