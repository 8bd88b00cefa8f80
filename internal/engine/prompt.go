package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pelden/lingobridge/internal/history"
)

// buildPrompt produces the translation instruction sent to every backend.
// The output rules match the contract the review UI expects: Japanese-script
// readings only, katakana for Dzongkha, hiragana for Japanese.
func buildPrompt(req Request) string {
	return fmt.Sprintf(`Role: Translator.
Task: Translate %q from %s to %s.

STRICT OUTPUT RULES:
1. Output MUST be valid JSON.
2. NO ROMAJI (Latin Characters). Use ONLY Japanese scripts (Hiragana/Katakana) for readings.
3. NO EXPLANATIONS. NO PART OF SPEECH. Keep it simple.
4. Reading for DZONGKHA MUST be in KATAKANA.
5. Reading for JAPANESE MUST be in HIRAGANA.

JSON Structure:
{
  "sourceTransliteration": "Reading of source in Japanese script",
  "targetText": "Translation",
  "targetTransliteration": "Reading of target in Japanese script",
  "breakdown": [
    {
      "original": "Target word",
      "sourceTerm": "Exact corresponding Source word",
      "translated": "Simple Meaning (in Japanese)",
      "transliteration": "Reading of Target word (in Japanese script)"
    }
  ]
}`, strings.TrimSpace(req.Text), req.SourceLang, req.TargetLang)
}

// payload mirrors the JSON structure requested from the engine.
type payload struct {
	SourceTransliteration string                  `json:"sourceTransliteration"`
	TargetText            string                  `json:"targetText"`
	TargetTransliteration string                  `json:"targetTransliteration"`
	Breakdown             []history.WordBreakdown `json:"breakdown"`
}

// parseResult validates a raw engine response and assembles the final
// TranslationResult. A malformed or incomplete response is a generation
// failure for the whole request.
func parseResult(raw string, req Request) (*history.TranslationResult, error) {
	raw = stripCodeFence(raw)

	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("engine returned malformed JSON: %w", err)
	}
	if p.TargetText == "" {
		return nil, fmt.Errorf("engine response missing targetText")
	}
	if p.TargetTransliteration == "" {
		return nil, fmt.Errorf("engine response missing targetTransliteration")
	}

	for i := range p.Breakdown {
		if p.Breakdown[i].SourceTerm == "" {
			p.Breakdown[i].SourceTerm = history.NoSourceTerm
		}
	}

	return &history.TranslationResult{
		SourceText:            strings.TrimSpace(req.Text),
		SourceTransliteration: p.SourceTransliteration,
		TargetText:            p.TargetText,
		TargetTransliteration: p.TargetTransliteration,
		Breakdown:             p.Breakdown,
		Language:              req.TargetLang,
		Source:                history.SourceAI,
	}, nil
}

// stripCodeFence removes a ```json ... ``` wrapper that some models emit
// even when asked for bare JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
