package genai

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/PDIMentor/internal/models"
	"github.com/BTreeMap/PDIMentor/internal/tone"
)

const mentorMission = `Você é um Mentor de Carreira Sênior especializado em criar Planos de Desenvolvimento Individual (PDI).

SUA MISSÃO:
Você recebe as respostas iniciais do usuário, que cobrem: Nome, Idade, Educação, Experiências Profissionais (Aprendiz, Estágio, CLT), Empresas, Posição Atual e Objetivos.
1. REVISE E VALIDE: Revise as 11 respostas do usuário. Se alguma informação parecer incompleta, peça esclarecimento de forma educada.
2. INICIE A ANÁLISE: Após a validação, comece a etapa 2 do PDI: 'Identificar Gaps (O que falta aprender?)'. Baseie-se nas experiências passadas e nos objetivos futuros.`

// SummaryInstruction is sent as the final user turn of a summary request.
const SummaryInstruction = `Atue como um analista de carreira. Com base em toda a conversa acima, escreva uma síntese concisa em texto simples, sem formatação markdown, contendo: perfil do usuário, formação, trajetória profissional, objetivos, principais gaps identificados e três próximos passos recomendados.`

// summaryLanguageClause names the language the synthesis must be written in.
const summaryLanguageClause = "\nEscreva a síntese em %s."

// SummarySystemInstruction is the system instruction of a summary request.
const SummarySystemInstruction = `Você é um analista de carreira que produz sínteses objetivas de conversas de mentoria.`

// configOrDefault returns configs[key] or def when the key is absent or blank.
func configOrDefault(configs map[string]string, key, def string) string {
	if v := strings.TrimSpace(configs[key]); v != "" {
		return v
	}
	return def
}

// BuildSummaryInstruction returns the analyst instruction for a synthesis in language, or in the
// default language when language is blank.
func BuildSummaryInstruction(language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		language = tone.DefaultLanguage
	}
	return SummaryInstruction + fmt.Sprintf(summaryLanguageClause, language)
}

// BuildSystemInstruction renders the mentor instruction from the collected configuration.
// The output depends only on configs; missing keys take the defaults.
func BuildSystemInstruction(configs map[string]string) string {
	language := configOrDefault(configs, models.ConfigLanguage, tone.DefaultLanguage)
	toneLabel := configOrDefault(configs, models.ConfigTone, tone.DefaultTone)
	verbosity := configOrDefault(configs, models.ConfigVerbosity, tone.DefaultVerbosity)

	var b strings.Builder
	b.WriteString(mentorMission)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "IDIOMA DE RESPOSTA: %s. Responda sempre neste idioma.\n", language)
	fmt.Fprintf(&b, "TONALIDADE: %s.\n", toneLabel)
	fmt.Fprintf(&b, "NÍVEL DE DETALHE: %s.\n", verbosity)
	if guide := tone.BuildToneGuide(tone.TagsFor(toneLabel, verbosity)); guide != "" {
		b.WriteString("\n")
		b.WriteString(guide)
	}
	return b.String()
}
