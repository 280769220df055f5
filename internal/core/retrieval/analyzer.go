package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Analyzer turns text into index terms: case folding, splitting on anything
// that is not a letter or digit, and dropping English stop words. Terms are
// not stemmed so control identifiers such as "mfa" or "27001" match exactly.
type Analyzer struct {
	name      string
	stopwords map[string]struct{}
}

func NewAnalyzer() *Analyzer {
	stop := make(map[string]struct{}, len(englishStopwords))
	for _, w := range englishStopwords {
		stop[w] = struct{}{}
	}
	return &Analyzer{name: "casefold-en-stop-v1", stopwords: stop}
}

func (a *Analyzer) Name() string {
	return a.name
}

func (a *Analyzer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	tokens := make([]string, 0, 16)
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		token := b.String()
		b.Reset()
		if !keepToken(token) {
			return
		}
		if _, stop := a.stopwords[token]; stop {
			return
		}
		tokens = append(tokens, token)
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// single letters carry no signal, single digits do ("control 5")
func keepToken(token string) bool {
	if utf8.RuneCountInString(token) >= 2 {
		return true
	}
	r, _ := utf8.DecodeRuneInString(token)
	return unicode.IsDigit(r)
}

var englishStopwords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and",
	"any", "are", "as", "at", "be", "because", "been", "before", "being", "below",
	"between", "both", "but", "by", "can", "could", "did", "do", "does", "doing",
	"down", "during", "each", "few", "for", "from", "further", "had", "has", "have",
	"having", "he", "her", "here", "hers", "herself", "him", "himself", "his", "how",
	"i", "if", "in", "into", "is", "it", "its", "itself", "just", "me", "more",
	"most", "my", "myself", "no", "nor", "not", "now", "of", "off", "on", "once",
	"only", "or", "other", "our", "ours", "ourselves", "out", "over", "own", "same",
	"she", "should", "so", "some", "such", "than", "that", "the", "their", "theirs",
	"them", "themselves", "then", "there", "these", "they", "this", "those",
	"through", "to", "too", "under", "until", "up", "very", "was", "we", "were",
	"what", "when", "where", "which", "while", "who", "whom", "why", "will", "with",
	"would", "you", "your", "yours", "yourself", "yourselves",
}
