// Package models defines the intake flow step types.
package models

// StepKind defines how a flow step is presented and answered.
type StepKind string

const (
	// StepIntro is a banner recorded by the mentor without consuming input.
	StepIntro StepKind = "intro"
	// StepChoice is a single-select configuration prompt answered with an explicit confirm.
	StepChoice StepKind = "choice"
	// StepFreeText is a question answered with a free-text submission.
	StepFreeText StepKind = "free_text"
)

// Configuration keys collected by choice steps.
const (
	ConfigLanguage  = "language"
	ConfigTone      = "tone"
	ConfigVerbosity = "verbosity"
)

// FlowStep is one immutable entry of the intake flow.
// Text holds the banner for intro steps and the prompt for choice and free-text steps.
type FlowStep struct {
	Kind      StepKind `json:"kind"`
	Text      string   `json:"text"`
	ConfigKey string   `json:"config_key,omitempty"`
	Options   []string `json:"options,omitempty"`
}

// Intro builds a banner step.
func Intro(text string) FlowStep {
	return FlowStep{Kind: StepIntro, Text: text}
}

// Choice builds a single-select step storing its answer under configKey.
func Choice(prompt, configKey string, options ...string) FlowStep {
	return FlowStep{Kind: StepChoice, Text: prompt, ConfigKey: configKey, Options: options}
}

// FreeText builds a free-text question step.
func FreeText(prompt string) FlowStep {
	return FlowStep{Kind: StepFreeText, Text: prompt}
}

// HasOption reports whether option is one of the step's labels.
func (s FlowStep) HasOption(option string) bool {
	for _, o := range s.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Validate checks the step for structural problems.
func (s FlowStep) Validate() error {
	if s.Text == "" {
		return ErrEmptyStepText
	}
	switch s.Kind {
	case StepIntro, StepFreeText:
		return nil
	case StepChoice:
		if s.ConfigKey == "" {
			return ErrMissingConfigKey
		}
		if len(s.Options) == 0 {
			return ErrMissingOptions
		}
		if len(s.Options) > MaxChoiceOptionsCount {
			return ErrTooManyOptions
		}
		return nil
	default:
		return ErrInvalidStepKind
	}
}
