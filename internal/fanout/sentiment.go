package fanout

import "strings"

var (
	positiveWords = map[string]bool{"good": true, "great": true, "excellent": true, "best": true, "happy": true}
	negativeWords = map[string]bool{"bad": true, "worst": true, "poor": true, "terrible": true, "sad": true}
)

// ClassifySentiment counts lexicon words, ignoring case, among the whitespace separated tokens of text.
// Tokens are matched exactly, so "good!" does not count.
func ClassifySentiment(text string) *Sentiment {
	s := &Sentiment{}
	for _, token := range strings.Fields(strings.ToLower(text)) {
		if positiveWords[token] {
			s.PositiveWords++
		}
		if negativeWords[token] {
			s.NegativeWords++
		}
	}
	switch {
	case s.PositiveWords > s.NegativeWords:
		s.Label = "positive"
	case s.NegativeWords > s.PositiveWords:
		s.Label = "negative"
	default:
		s.Label = "neutral"
	}
	return s
}
