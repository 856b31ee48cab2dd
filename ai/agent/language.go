package agent

import "unicode"

// Language tags carried in the response envelope. Prompt templates and
// degraded guidance messages are selected by this value.
const (
	LangChinese = "zh"
	LangEnglish = "en"
)

// DetectLanguage guesses the turn language from the CJK rune share of the
// message. Pure function, no model call: the agent serves a bilingual user
// base and only needs a zh/en split for prompt selection.
//
// Empty input defaults to Chinese at half confidence. A CJK share above 20%
// reads as Chinese; confidence grows with the share and caps at 0.9 because
// mixed-language messages are common.
func DetectLanguage(text string) (string, float64) {
	var total, cjk int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.Is(unicode.Han, r) {
			cjk++
		}
	}
	if total == 0 {
		return LangChinese, 0.5
	}

	ratio := float64(cjk) / float64(total)
	if ratio > 0.2 {
		return LangChinese, capConfidence(0.5 + ratio)
	}
	return LangEnglish, capConfidence(0.5 + (1 - ratio))
}

func capConfidence(v float64) float64 {
	if v > 0.9 {
		return 0.9
	}
	return v
}
