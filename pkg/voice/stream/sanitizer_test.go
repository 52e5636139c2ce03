package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var markdownFixtures = []string{
	"# Hello\n\nThis is **bold** and *italic* text.",
	"Check [the docs](https://example.com) for details. ![logo](logo.png)",
	"Here:\n```go\nfmt.Println(1)\n```\nDone.",
	"Steps:\n1. Open the app\n2. Tap record\n- done",
	"> quoted wisdom\n\n---\n\n***Very*** __strong__ and _soft_ `code`.",
	"Wait... what—really? Yes – really… ok",
	"Python (a language) is great [1]. Sets {like this} and <b>tags</b>.",
	"He said \"hello\" and “hi”, then 'bye' #farewell",
	"Contact me at a@b.com or visit https://x.io today.",
	"It's what I'd do, don't you think?",
	"",
	"   ",
}

func TestSanitize_Examples(t *testing.T) {
	cases := []struct{ in, want string }{
		{"# Hello\n\nThis is **bold** and *italic* text.", "Hello This is bold and italic text."},
		{"Check [the docs](https://example.com) for details.", "Check the docs for details."},
		{"Here:\n```go\nfmt.Println(1)\n```\nDone.", "Here: Done."},
		{"Steps:\n1. Open the app\n2. Tap record\n- done", "Steps: Open the app Tap record done"},
		{"Wait... what—really?", "Wait. what, really?"},
		{"Python (a language) is great [1].", "Python, a language, is great."},
		{"Contact me at a@b.com or visit https://x.io today.", "Contact me at or visit today."},
		{"It's what I'd do, don't you think?", "It's what I'd do, don't you think?"},
		{"He said \"hello\" and “hi” then 'bye'. #farewell", "He said hello and hi then bye."},
		{"![only an image](a.png)", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Sanitize(c.in, DefaultMaxSpokenWords), "input %q", c.in)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	for _, in := range markdownFixtures {
		once := Sanitize(in, DefaultMaxSpokenWords)
		assert.Equal(t, once, Sanitize(once, DefaultMaxSpokenWords), "input %q", in)
	}
}

func TestSanitize_CleanTextUnchanged(t *testing.T) {
	in := "The weather is sunny today. Take a light jacket."
	assert.Equal(t, in, Sanitize(in, DefaultMaxSpokenWords))
}

func sentenceOf(words int, word string) string {
	return strings.TrimSpace(strings.Repeat(word+" ", words-1)+word) + "."
}

func TestSanitize_WordBudgetKeepsWholeSentences(t *testing.T) {
	in := strings.Join([]string{sentenceOf(20, "alpha"), sentenceOf(20, "beta"), sentenceOf(20, "gamma")}, " ")
	out := Sanitize(in, 50)

	assert.Equal(t, 40, WordCount(out))
	assert.Contains(t, out, "beta.")
	assert.NotContains(t, out, "gamma")
}

func TestSanitize_LongFirstSentenceIsCut(t *testing.T) {
	in := strings.TrimSuffix(sentenceOf(60, "word"), ".") + ", and more words follow here."
	out := Sanitize(in, 50)

	assert.Equal(t, 50, WordCount(out))
	assert.True(t, strings.HasSuffix(out, "."), out)
	assert.Equal(t, out, Sanitize(out, 50))
}

func TestSanitize_CutAfterDanglingDash(t *testing.T) {
	in := strings.Repeat("one ", 49) + "- two three four"
	out := Sanitize(in, 50)

	assert.Equal(t, sentenceOf(49, "one"), out)
	assert.Equal(t, out, Sanitize(out, 50))
}

// replyPieces mixes markdown and punctuation that cleaning rewrites, so joined
// replies hit both the whole-sentence and the hard-cut branches.
var replyPieces = []string{
	"pros - cons",
	"**bold move**",
	"(an aside)",
	"[the link](https://x.io)",
	"wait — what",
	"so...",
	"'quoted' words",
	"one, two,",
	"-",
	"#tag",
	"`code`",
	"\n1. first item\n",
	"Done.",
	"really?!",
}

func TestSanitize_IdempotentAcrossBudgets(t *testing.T) {
	for _, a := range replyPieces {
		for _, b := range replyPieces {
			for _, c := range replyPieces {
				in := a + " " + b + " " + c
				for _, budget := range []int{1, 2, 3, 5, 50} {
					once := Sanitize(in, budget)
					if !assert.Equal(t, once, Sanitize(once, budget), "input %q budget %d", in, budget) {
						return
					}
					assert.LessOrEqual(t, WordCount(once), budget)
				}
			}
		}
	}
}

func TestTruncateForVoice_DropsTrailingSymbols(t *testing.T) {
	assert.Equal(t, "pros.", TruncateForVoice([]string{"pros - cons"}, 2))
	assert.Equal(t, "a b.", TruncateForVoice([]string{"a b , c"}, 3))
	assert.Equal(t, "", TruncateForVoice([]string{"- -- c"}, 2))
}

func TestSanitize_DefaultBudget(t *testing.T) {
	in := strings.TrimSuffix(sentenceOf(80, "x"), ".")
	assert.Equal(t, DefaultMaxSpokenWords, WordCount(Sanitize(in, 0)))
}

func TestSplitSentences(t *testing.T) {
	assert.Equal(t, []string{"One.", "Two!", "Three?", "four"}, SplitSentences("One. Two!  Three?\nfour"))
	assert.Equal(t, []string{"v1.2 is out."}, SplitSentences("v1.2 is out."))
	assert.Empty(t, SplitSentences("   "))
}

func TestTruncateForVoice(t *testing.T) {
	assert.Equal(t, "", TruncateForVoice(nil, 10))
	assert.Equal(t, "a b c.", TruncateForVoice([]string{"a b c d e,"}, 3))
	assert.Equal(t, "a b c,", TruncateForVoice([]string{"a b c,"}, 3))
	assert.Equal(t, "a b. c d.", TruncateForVoice([]string{"a b.", "c d.", "e f."}, 5))
}
