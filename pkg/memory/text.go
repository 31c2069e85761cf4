package memory

import (
	"strings"
	"unicode"
)

const (
	minWordLen = 3
	maxWords   = 10
)

// ExtractWords returns up to ten lowercase search words from text. Words are
// runs of letters, digits and underscores at least three characters long.
func ExtractWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	words := make([]string, 0, maxWords)
	for _, f := range fields {
		if len(f) < minWordLen {
			continue
		}
		words = append(words, f)
		if len(words) == maxWords {
			break
		}
	}
	return words
}

// CountMatches counts how many words occur in text, case-insensitively.
func CountMatches(text string, words []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

// BestParagraph returns the paragraph of content sharing the most words,
// provided it shares at least atLeast. Paragraphs are separated by blank lines;
// ties go to the earlier paragraph.
func BestParagraph(content string, words []string, atLeast int) (string, int, bool) {
	best, bestCount := "", 0
	for _, p := range strings.Split(content, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if c := CountMatches(p, words); c > bestCount {
			best, bestCount = p, c
		}
	}
	if bestCount < atLeast {
		return "", 0, false
	}
	return best, bestCount, true
}

// TruncateRunes shortens s to at most n runes, adding "..." when it cut.
func TruncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
