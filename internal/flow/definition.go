// Package flow implements the guided PDI intake: a fixed, ordered list of steps and the walker
// that advances a session through them before handing over to open chat with the mentor.
package flow

import (
	"errors"
	"fmt"

	"github.com/BTreeMap/PDIMentor/internal/models"
	"github.com/BTreeMap/PDIMentor/internal/tone"
)

// NamePrompt is the question whose answer becomes the user's display name.
const NamePrompt = "Como você preferiria que eu te chamasse?"

// ErrFlowMustEndWithQuestion is returned for definitions whose last step is not a free-text question.
var ErrFlowMustEndWithQuestion = errors.New("flow definition must end with a free-text step")

// Definition is the immutable ordered list of intake steps, addressed by position.
type Definition []models.FlowStep

// Len returns N, the number of steps.
func (d Definition) Len() int { return len(d) }

// Step returns the step at position i.
func (d Definition) Step(i int) (models.FlowStep, bool) {
	if i < 0 || i >= len(d) {
		return models.FlowStep{}, false
	}
	return d[i], true
}

// QuestionCount returns how many free-text questions the flow asks.
func (d Definition) QuestionCount() int {
	n := 0
	for _, s := range d {
		if s.Kind == models.StepFreeText {
			n++
		}
	}
	return n
}

// QuestionNumber returns the 1-based position of step i among free-text questions, or 0.
func (d Definition) QuestionNumber(i int) int {
	if i < 0 || i >= len(d) || d[i].Kind != models.StepFreeText {
		return 0
	}
	n := 0
	for _, s := range d[:i+1] {
		if s.Kind == models.StepFreeText {
			n++
		}
	}
	return n
}

// Validate checks every step and the overall shape of the flow.
func (d Definition) Validate() error {
	if len(d) == 0 {
		return models.ErrEmptyDefinition
	}
	for i, s := range d {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	if d[len(d)-1].Kind != models.StepFreeText {
		return ErrFlowMustEndWithQuestion
	}
	return nil
}

// DefaultDefinition returns the PDI intake: mentor configuration followed by eleven questions.
func DefaultDefinition() Definition {
	return Definition{
		models.Intro("Olá! Sou seu assistente de carreira. Vamos construir seu **Plano de Desenvolvimento Individual** juntos. Antes de começar, escolha como prefere que eu converse com você."),
		models.Choice("Em qual idioma você quer receber a análise?", models.ConfigLanguage, tone.LanguageOptions...),
		models.Choice("Qual tom você prefere para a mentoria?", models.ConfigTone, tone.ToneOptions...),
		models.Choice("Qual nível de detalhe você prefere nas respostas?", models.ConfigVerbosity, tone.VerbosityOptions...),

		models.Intro("**1. Sobre você**"),
		models.FreeText(NamePrompt),
		models.FreeText("Quantos anos você tem?"),

		models.Intro("**2. Sobre experiências educacionais**"),
		models.FreeText("Qual foi o maior nível de educação que você já obteve? (Opções: Ensino Fundamental, Ensino Médio, Bacharelado / Licenciatura / Tecnólogo, Pós-graduação, M.B.A., Mestrado, Doutorado, Pós-doutorado, Nenhum a declarar)"),
		models.FreeText("Em qual instituição você obteve essa formação?"),
		models.FreeText("Qual foi a sua área de estudo?"),

		models.Intro("**3. Sobre experiência profissional**"),
		models.FreeText("Você já trabalhou como jovem aprendiz? Se sim, em qual ano foi sua primeira experiência nesse formato?"),
		models.FreeText("Você já trabalhou como estagiário(a)? Se sim, em qual ano foi sua primeira experiência nesse formato?"),
		models.FreeText("Você já trabalhou como funcionário CLT? Se sim, em qual ano foi sua primeira experiência nesse formato?"),
		models.FreeText("Por favor, cite os nomes das empresas nas quais você já trabalhou como CLT (separe por vírgulas)"),
		models.FreeText("Você está trabalhando atualmente? Se sim, cite qual é o nome da sua posição e empresa atuais"),

		models.Intro("**4. Objetivos profissionais**"),
		models.FreeText("Quais são os seus principais objetivos profissionais?"),
	}
}
