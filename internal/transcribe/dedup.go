package transcribe

import (
	"strings"
	"unicode"
)

// normalizeWord lowercases a word and strips punctuation so "Fox," and
// "fox" compare equal during overlap matching
func normalizeWord(w string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(w) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// overlapLength returns how many leading words of next repeat the trailing
// words of prev. It checks overlaps from maxWindow words down to one and
// returns the longest match, or zero when the texts do not overlap.
func overlapLength(prev, next []string, maxWindow int) int {
	limit := maxWindow
	if len(prev) < limit {
		limit = len(prev)
	}
	if len(next) < limit {
		limit = len(next)
	}

	for k := limit; k >= 1; k-- {
		match := true
		for i := 0; i < k; i++ {
			if normalizeWord(prev[len(prev)-k+i]) != normalizeWord(next[i]) {
				match = false
				break
			}
		}
		if match {
			return k
		}
	}
	return 0
}
