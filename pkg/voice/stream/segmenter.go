package stream

import (
	"strings"
	"unicode"
)

// terminal punctuation that ends a spoken sentence
func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// SplitSentences cuts after terminal punctuation that is followed by
// whitespace. Empty pieces are dropped.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
		prev  rune
	)
	for i, r := range text {
		if unicode.IsSpace(r) && isSentenceEnd(prev) {
			if s := strings.TrimSpace(text[start:i]); s != "" {
				out = append(out, s)
			}
			start = i
		}
		prev = r
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// WordCount counts whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// TruncateForVoice keeps whole leading sentences within maxWords. When the
// first sentence alone is over budget it is cut to maxWords and closed
// with a period.
func TruncateForVoice(sentences []string, maxWords int) string {
	if maxWords <= 0 {
		maxWords = DefaultMaxSpokenWords
	}
	var (
		kept  []string
		count int
	)
	for _, s := range sentences {
		n := WordCount(s)
		if count+n > maxWords {
			break
		}
		kept = append(kept, s)
		count += n
	}
	if len(kept) > 0 || len(sentences) == 0 {
		return strings.Join(kept, " ")
	}

	words := strings.Fields(sentences[0])
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	// a dangling "-" or "," would be spoken as its own token
	for len(words) > 0 && !hasSpeakable(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	cut := strings.TrimRightFunc(strings.Join(words, " "), func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(",;:-", r)
	})
	if cut == "" {
		return ""
	}
	if r := []rune(cut); !isSentenceEnd(r[len(r)-1]) {
		cut += "."
	}
	return cut
}

func hasSpeakable(word string) bool {
	return strings.IndexFunc(word, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsNumber(r)
	}) >= 0
}
