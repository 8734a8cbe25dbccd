// Package tone provides the fixed whitelist of mentor tone, verbosity and language options,
// maps the user's choices onto tone tags, and builds the tone guide injected into the
// mentor's system instruction.
package tone

import (
	"strings"
)

// ---- Choice labels ----

// Tone option labels offered during intake.
const (
	ToneProfessional = "Profissional e acolhedor"
	ToneDirect       = "Direto e objetivo"
	ToneMotivational = "Motivacional"
)

// Verbosity option labels offered during intake.
const (
	VerbosityConcise  = "Conciso"
	VerbosityBalanced = "Equilibrado"
	VerbosityDetailed = "Detalhado"
)

// Language option labels offered during intake.
const (
	LanguagePortuguese = "Português"
	LanguageEnglish    = "English"
	LanguageSpanish    = "Español"
)

// Defaults applied when a choice was never confirmed.
const (
	DefaultTone      = ToneProfessional
	DefaultVerbosity = VerbosityBalanced
	DefaultLanguage  = LanguagePortuguese
)

// ToneOptions, VerbosityOptions and LanguageOptions are listed in display order.
var (
	ToneOptions      = []string{ToneProfessional, ToneDirect, ToneMotivational}
	VerbosityOptions = []string{VerbosityConcise, VerbosityBalanced, VerbosityDetailed}
	LanguageOptions  = []string{LanguagePortuguese, LanguageEnglish, LanguageSpanish}
)

// ---- Whitelist ----

// AllTags is the hard-coded set of safe tone tags.
var AllTags = map[string]bool{
	// Style
	"concise":       true,
	"detailed":      true,
	"formal":        true,
	"bullet_points": true,
	"no_emojis":     true,
	// Stance
	"warm_supportive": true,
	"direct_coach":    true,
	"motivational":    true,
	// Interaction
	"default_actionable": true,
}

// mutuallyExclusivePairs defines tags where at most one may be active.
var mutuallyExclusivePairs = [][2]string{
	{"concise", "detailed"},
	{"direct_coach", "warm_supportive"},
	{"direct_coach", "motivational"},
}

var toneTags = map[string][]string{
	ToneProfessional: {"formal", "warm_supportive", "default_actionable"},
	ToneDirect:       {"direct_coach", "bullet_points", "default_actionable", "no_emojis"},
	ToneMotivational: {"motivational", "warm_supportive", "default_actionable"},
}

var verbosityTags = map[string][]string{
	VerbosityConcise:  {"concise"},
	VerbosityBalanced: {},
	VerbosityDetailed: {"detailed", "bullet_points"},
}

// IsTone reports whether label is a whitelisted tone option.
func IsTone(label string) bool {
	_, ok := toneTags[label]
	return ok
}

// IsVerbosity reports whether label is a whitelisted verbosity option.
func IsVerbosity(label string) bool {
	_, ok := verbosityTags[label]
	return ok
}

// TagsFor resolves the chosen labels into a cleaned, ordered tag list.
// Unknown labels fall back to the defaults.
func TagsFor(toneLabel, verbosityLabel string) []string {
	if !IsTone(toneLabel) {
		toneLabel = DefaultTone
	}
	if !IsVerbosity(verbosityLabel) {
		verbosityLabel = DefaultVerbosity
	}

	var tags []string
	seen := map[string]bool{}
	add := func(list []string) {
		for _, t := range list {
			t = strings.TrimSpace(strings.ToLower(t))
			if AllTags[t] && !seen[t] {
				tags = append(tags, t)
				seen[t] = true
			}
		}
	}
	// Verbosity first so it wins exclusion ties against tone-implied style.
	add(verbosityTags[verbosityLabel])
	add(toneTags[toneLabel])

	return enforceExclusion(tags)
}

// enforceExclusion drops the later tag of every mutually exclusive pair.
func enforceExclusion(tags []string) []string {
	pos := make(map[string]int, len(tags))
	for i, t := range tags {
		pos[t] = i
	}
	drop := map[string]bool{}
	for _, pair := range mutuallyExclusivePairs {
		ia, okA := pos[pair[0]]
		ib, okB := pos[pair[1]]
		if !okA || !okB {
			continue
		}
		if ia < ib {
			drop[pair[1]] = true
		} else {
			drop[pair[0]] = true
		}
	}
	out := tags[:0:0]
	for _, t := range tags {
		if !drop[t] {
			out = append(out, t)
		}
	}
	return out
}

// BuildToneGuide produces a compact instruction snippet for injection into the system instruction.
// It returns an empty string when there are no active tags.
func BuildToneGuide(tags []string) string {
	if len(tags) == 0 {
		return ""
	}

	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}

	var b strings.Builder
	b.WriteString("<POLÍTICA DE TOM>\n")

	// Style rules.
	if set["concise"] {
		b.WriteString("- Seja conciso: frases curtas, sem rodeios.\n")
	}
	if set["detailed"] {
		b.WriteString("- Seja detalhado: explique o raciocínio e dê exemplos concretos.\n")
	}
	if set["formal"] {
		b.WriteString("- Use registro profissional.\n")
	}
	if set["bullet_points"] {
		b.WriteString("- Prefira listas com marcadores ao enumerar itens.\n")
	}
	if set["no_emojis"] {
		b.WriteString("- NÃO use emojis.\n")
	}

	// Stance rules.
	hasStance := false
	if set["warm_supportive"] {
		b.WriteString("- Adote uma postura acolhedora e encorajadora.\n")
		hasStance = true
	}
	if set["direct_coach"] {
		b.WriteString("- Seja um mentor direto: feedback claro e orientado à ação.\n")
		hasStance = true
	}
	if set["motivational"] {
		b.WriteString("- Seja motivacional: destaque conquistas e o potencial de crescimento.\n")
		hasStance = true
	}
	if !hasStance {
		b.WriteString("- Mantenha uma postura neutra e profissional.\n")
	}

	if set["default_actionable"] {
		b.WriteString("- Termine com próximos passos acionáveis.\n")
	}

	b.WriteString("</POLÍTICA DE TOM>\n")
	return b.String()
}
