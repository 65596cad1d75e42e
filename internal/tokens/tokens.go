// Package tokens approximates LLM token counts for short UI strings and
// truncates strings to fit a token budget. Exact tokenization is not needed:
// the serializer only uses these numbers to decide when to stop exploring.
package tokens

import (
	"math"
	"strings"
	"unicode"
)

// Ellipsis marks text cut by Truncate.
const Ellipsis = "…"

// cjkThreshold is the share of CJK runes, among non-space non-punctuation
// runes, above which a string is costed per character.
const cjkThreshold = 0.1

// Estimator holds the tuning ratios. The zero value is not useful; use
// Default, Legacy or set both ratios.
type Estimator struct {
	// LatinRatio is tokens per whitespace-delimited word.
	LatinRatio float64 `yaml:"latin_ratio"`
	// CJKRatio is tokens per character for CJK-dominant text.
	CJKRatio float64 `yaml:"cjk_ratio"`
}

// Default returns the ratios used by the detail-level-aware serializer.
func Default() Estimator { return Estimator{LatinRatio: 3.0, CJKRatio: 2.0} }

// Legacy returns the lighter ratios of the first serializer generation.
func Legacy() Estimator { return Estimator{LatinRatio: 2.0, CJKRatio: 1.0} }

// ByName resolves a ratio preset: "legacy" or anything else for Default.
func ByName(name string) Estimator {
	if strings.EqualFold(strings.TrimSpace(name), "legacy") {
		return Legacy()
	}
	return Default()
}

// Estimate returns the approximate token cost of s.
func (e Estimator) Estimate(s string) int {
	if s == "" {
		return 0
	}
	if IsCJK(s) {
		return int(math.Ceil(float64(len([]rune(s))) * e.CJKRatio))
	}
	return int(math.Ceil(float64(CountWords(s)) * e.LatinRatio))
}

// Truncate returns s unchanged when it fits budget (or budget <= 0). Otherwise
// the rune length is scaled by budget/estimate, one more rune is dropped and
// the ellipsis is appended, so the result is always shorter than s.
func (e Estimator) Truncate(s string, budget int) string {
	est := e.Estimate(s)
	if budget <= 0 || est <= budget {
		return s
	}
	runes := []rune(s)
	keep := max(0, len(runes)*budget/est-1)
	return string(runes[:keep]) + Ellipsis
}

// CountWords counts whitespace-delimited non-empty runs.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// IsCJK reports whether s is predominantly Chinese, Japanese or Korean.
func IsCJK(s string) bool {
	total, cjk := 0, 0
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		total++
		if isCJKRune(r) {
			cjk++
		}
	}
	return total > 0 && float64(cjk)/float64(total) > cjkThreshold
}

func isCJKRune(r rune) bool {
	switch {
	case unicode.Is(unicode.Han, r):
		return true
	case r >= 0x3300 && r <= 0x33FF: // CJK Compatibility
		return true
	case r >= 0xF900 && r <= 0xFAFF: // CJK Compatibility Ideographs
		return true
	case r >= 0x1100 && r <= 0x11FF: // Hangul Jamo
		return true
	case r >= 0x3130 && r <= 0x318F: // Hangul Compatibility Jamo
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // Hangul Syllables
		return true
	}
	return false
}
