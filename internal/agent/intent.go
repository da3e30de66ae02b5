package agent

import (
	"strings"
	"unicode"
)

// Intent is the classification of one committed utterance.
type Intent int

const (
	IntentChat Intent = iota
	IntentActivate
	IntentAdvance
	IntentFinish
	IntentExport
	IntentAnswer
	IntentNoise
)

func (i Intent) String() string {
	switch i {
	case IntentActivate:
		return "activate"
	case IntentAdvance:
		return "advance"
	case IntentFinish:
		return "finish"
	case IntentExport:
		return "export"
	case IntentAnswer:
		return "answer"
	case IntentNoise:
		return "noise"
	default:
		return "chat"
	}
}

var (
	activatePhrases = phraseSet("activate gdd", "activate gdd wizard", "gdd wizard", "start gdd", "start gdd wizard")
	advancePhrases  = phraseSet("next", "go next", "next question")
	finishPhrases   = phraseSet("finish gdd", "finish the gdd", "generate gdd", "finish")
	exportPhrases   = phraseSet("export", "export gdd", "download gdd", "export document", "export doc",
		"download document", "download gdd doc")
)

func phraseSet(ps ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		m[p] = struct{}{}
	}
	return m
}

// Classify maps text to an intent in priority order: activate, advance,
// finish, export, then answer or noise while the wizard is active, else chat.
// Commands must match a phrase exactly after normalization so answers that
// merely mention "next" stay answers.
func Classify(text string, wizardActive bool, minAnswerWords int) Intent {
	cmd := stripPoliteness(normalize(text))
	if _, ok := activatePhrases[cmd]; ok {
		return IntentActivate
	}
	if wizardActive {
		if _, ok := advancePhrases[cmd]; ok {
			return IntentAdvance
		}
		if _, ok := finishPhrases[cmd]; ok {
			return IntentFinish
		}
	}
	if _, ok := exportPhrases[cmd]; ok {
		return IntentExport
	}
	if wizardActive {
		if wordCount(text) < minAnswerWords {
			return IntentNoise
		}
		return IntentAnswer
	}
	return IntentChat
}

// normalize lowercases, drops punctuation and joins spelled-out "g d d".
func normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	s := strings.Join(strings.Fields(mapped), " ")
	s = " " + s + " "
	s = strings.ReplaceAll(s, " g d d ", " gdd ")
	return strings.TrimSpace(s)
}

func stripPoliteness(s string) string {
	for _, p := range []string{"please ", "okay ", "ok "} {
		if strings.HasPrefix(s, p) {
			s = strings.TrimPrefix(s, p)
			break
		}
	}
	for _, p := range []string{" please", " now"} {
		if strings.HasSuffix(s, p) {
			s = strings.TrimSuffix(s, p)
			break
		}
	}
	return s
}

func wordCount(s string) int {
	return len(strings.Fields(normalize(s)))
}
