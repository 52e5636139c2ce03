package stream

import (
	"regexp"
	"strings"
)

// DefaultMaxSpokenWords spoken reply budget
const DefaultMaxSpokenWords = 50

type rule struct {
	re   *regexp.Regexp
	repl string
}

func rules(pairs ...string) []rule {
	out := make([]rule, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, rule{regexp.MustCompile(pairs[i]), pairs[i+1]})
	}
	return out
}

func apply(text string, rs []rule) string {
	for _, r := range rs {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return text
}

// block constructs go before inline ones so fences and bullets are not
// mistaken for emphasis.
var markdownRules = rules(
	"(?s)```.*?```", "",
	`(?m)^[ \t]*#{1,6}[ \t]+`, "",
	`(?m)^[ \t]*[-*_]{3,}[ \t]*$`, "",
	`(?m)^[ \t]*>[ \t]?`, "",
	`(?m)^[ \t]*[-*+][ \t]+`, "",
	`(?m)^[ \t]*\d+\.[ \t]+`, "",
	`!\[([^\]]*)\]\([^)]+\)`, "",
	`\[([^\]]+)\]\([^)]+\)`, "$1",
	"`([^`]+)`", "$1",
	`\*\*\*(.+?)\*\*\*`, "$1",
	`\*\*(.+?)\*\*`, "$1",
	`\*(.+?)\*`, "$1",
	`___(.+?)___`, "$1",
	`__(.+?)__`, "$1",
	`_(.+?)_`, "$1",
)

var punctuationRules = rules(
	`https?://\S+`, "",
	`\S+@\S+\.\S+`, "",
	`\[\d+\]`, "",
	`[—–]`, ", ",
	`…`, ".",
	`\.{2,}`, ".",
	`\(([^)]+)\)`, ", $1, ",
	`\[([^\]]+)\]`, ", $1, ",
	`\{([^}]+)\}`, "$1",
	`<[^>]+>`, "",
	`"([^"]+)"`, "$1",
	`\x{201c}([^\x{201d}]+)\x{201d}`, "$1",
	// apostrophes inside words are kept
	`(^|[\s(])'([^']+)'([\s.,!?;:)]|$)`, "$1$2$3",
	`(^|[\s(])\x{2018}([^\x{2019}]+)\x{2019}([\s.,!?;:)]|$)`, "$1$2$3",
	`#[\p{L}\p{N}_]+`, "",
	`\*+`, "",
)

var whitespaceRules = rules(
	`[ \t]+`, " ",
	`\n{2,}`, "\n",
	`\s+([.,!?;:])`, "$1",
	`([.,!?;:])([A-Za-z])`, "$1 $2",
	`,\s*,+`, ",",
	`,([.!?])`, "$1",
)

var leadingPunct = regexp.MustCompile(`^[\s,;:]+`)

// RemoveMarkdown strips markdown markup, keeping link text.
func RemoveMarkdown(text string) string {
	return apply(text, markdownRules)
}

// NormalizePunctuation rewrites what a synthesizer reads badly.
func NormalizePunctuation(text string) string {
	return apply(text, punctuationRules)
}

// NormalizeWhitespace collapses spacing and joins lines.
func NormalizeWhitespace(text string) string {
	text = apply(text, whitespaceRules)
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return leadingPunct.ReplaceAllString(strings.TrimSpace(strings.Join(lines, " ")), "")
}

func clean(text string) string {
	return NormalizeWhitespace(NormalizePunctuation(RemoveMarkdown(text)))
}

// maxPasses bounds the fixed point search in Sanitize.
const maxPasses = 8

func settle(text string) string {
	for i := 0; i < maxPasses; i++ {
		next := clean(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

// Sanitize prepares reply text for speech synthesis. The result is stable:
// Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(text string, maxWords int) string {
	// cleaning can expose new matches (nested quotes, emphasis in links) and
	// a cut sentence can end in something cleaning rewrites
	out := TruncateForVoice(SplitSentences(settle(text)), maxWords)
	for i := 0; i < maxPasses; i++ {
		next := TruncateForVoice(SplitSentences(settle(out)), maxWords)
		if next == out {
			break
		}
		out = next
	}
	return out
}
