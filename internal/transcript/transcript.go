// Package transcript turns a session's message log into speaker-labelled entries and renders
// those entries, or a generated summary, as a PDF document.
package transcript

import (
	"strings"

	"github.com/BTreeMap/PDIMentor/internal/models"
)

// Speaker labels.
const (
	MentorLabel      = "Mentor"
	PlaceholderLabel = "Usuário"
)

// Entry is one row of a formatted transcript.
type Entry struct {
	Role    models.Role `json:"role"`
	Speaker string      `json:"speaker"`
	Text    string      `json:"text"`
}

// DisplayName returns the user's answer to namePrompt, or PlaceholderLabel when the question
// was never answered or the answer is blank. The answer is the first user message following the
// assistant message carrying namePrompt, or a user message of the form "<namePrompt>: <answer>".
func DisplayName(log []models.Message, namePrompt string) string {
	namePrompt = strings.TrimSpace(namePrompt)
	if namePrompt == "" {
		return PlaceholderLabel
	}
	for i, m := range log {
		switch m.Role {
		case models.RoleAssistant:
			if !strings.Contains(m.Content, namePrompt) {
				continue
			}
			for _, next := range log[i+1:] {
				if next.Role != models.RoleUser {
					continue
				}
				if name := strings.TrimSpace(next.Content); name != "" {
					return name
				}
				return PlaceholderLabel
			}
		case models.RoleUser:
			if rest, ok := strings.CutPrefix(m.Content, namePrompt+":"); ok {
				if name := strings.TrimSpace(rest); name != "" {
					return name
				}
			}
		}
	}
	return PlaceholderLabel
}

// Format maps the log onto transcript entries: system messages are dropped, assistant messages
// are labelled MentorLabel and user messages carry the display name.
func Format(log []models.Message, namePrompt string) []Entry {
	name := DisplayName(log, namePrompt)
	entries := make([]Entry, 0, len(log))
	for _, m := range log {
		switch m.Role {
		case models.RoleAssistant:
			entries = append(entries, Entry{Role: m.Role, Speaker: MentorLabel, Text: m.Content})
		case models.RoleUser:
			entries = append(entries, Entry{Role: m.Role, Speaker: name, Text: m.Content})
		}
	}
	return entries
}
