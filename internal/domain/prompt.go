package domain

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxPromptRunes is the longest prompt forwarded to the provider.
const MaxPromptRunes = 1500

// NormalizePrompt applies NFC normalization, collapses whitespace and bounds
// the prompt length. An empty result yields fallback.
func NormalizePrompt(prompt, fallback string) string {
	prompt = strings.Join(strings.Fields(norm.NFC.String(prompt)), " ")
	if prompt == "" {
		prompt = strings.Join(strings.Fields(norm.NFC.String(fallback)), " ")
	}
	if runes := []rune(prompt); len(runes) > MaxPromptRunes {
		prompt = strings.TrimSpace(string(runes[:MaxPromptRunes]))
	}
	return prompt
}
