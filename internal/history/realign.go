package history

import "strings"

// RealignBreakdown re-derives per-token readings after targetTransliteration
// has been edited: breakdown entry i receives the i-th whitespace-delimited
// token of the edited transliteration. On a token count mismatch, unmatched
// entries keep their previous reading.
func RealignBreakdown(r *TranslationResult) {
	tokens := strings.Fields(r.TargetTransliteration)
	for i := range r.Breakdown {
		if i >= len(tokens) {
			break
		}
		r.Breakdown[i].Transliteration = tokens[i]
	}
}
