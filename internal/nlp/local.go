package nlp

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"paperchat/internal/faults"
)

const (
	// analysis window, roughly one abstract plus the opening section
	maxAnalyzedBytes = 5000
	maxKeyPhrases    = 20
	maxPhraseTokens  = 4
)

// LocalAnalyzer is an in-process analyzer: frequency-ranked key phrases,
// pattern-based entity grouping and a lexicon sentiment. It is fully
// deterministic, which the ingestion idempotence contract relies on.
type LocalAnalyzer struct {
	tokenPattern  *regexp.Regexp
	entityPattern *regexp.Regexp
	yearPattern   *regexp.Regexp
	stopwords     map[string]struct{}
	positive      map[string]struct{}
	negative      map[string]struct{}
}

func NewLocalAnalyzer() *LocalAnalyzer {
	return &LocalAnalyzer{
		tokenPattern:  regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		entityPattern: regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*\b`),
		yearPattern:   regexp.MustCompile(`\b(1[89]|20)\d{2}\b`),
		stopwords:     defaultStopwords(),
		positive:      wordSet(positiveWords),
		negative:      wordSet(negativeWords),
	}
}

func (a *LocalAnalyzer) Analyze(_ context.Context, text string) (Analysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Analysis{}, faults.Input("empty text")
	}
	text = truncateUTF8(text, maxAnalyzedBytes)

	return Analysis{
		KeyPhrases: a.keyPhrases(text),
		Entities:   a.entities(text),
		Sentiment:  a.sentiment(text),
	}, nil
}

// keyPhrases ranks runs of consecutive non-stopword tokens by normalized
// token frequency.
func (a *LocalAnalyzer) keyPhrases(text string) []KeyPhrase {
	tokens := a.tokens(text)
	freq := map[string]float64{}
	for _, tok := range tokens {
		if _, ok := a.stopwords[tok]; ok {
			continue
		}
		freq[tok]++
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF == 0 {
		return nil
	}
	for k, v := range freq {
		freq[k] = v / maxF
	}

	type scored struct {
		phrase string
		score  float64
		order  int
	}
	seen := map[string]int{}
	var phrases []scored

	var run []string
	order := 0
	flush := func() {
		if len(run) == 0 {
			return
		}
		phrase := strings.Join(run, " ")
		score := 0.0
		for _, tok := range run {
			score += freq[tok]
		}
		score /= math.Sqrt(float64(len(run)))
		if idx, ok := seen[phrase]; ok {
			if score > phrases[idx].score {
				phrases[idx].score = score
			}
		} else {
			seen[phrase] = len(phrases)
			phrases = append(phrases, scored{phrase, score, order})
			order++
		}
		run = nil
	}
	for _, tok := range tokens {
		if _, stop := a.stopwords[tok]; stop {
			flush()
			continue
		}
		run = append(run, tok)
		if len(run) == maxPhraseTokens {
			flush()
		}
	}
	flush()

	sort.SliceStable(phrases, func(i, j int) bool {
		if phrases[i].score != phrases[j].score {
			return phrases[i].score > phrases[j].score
		}
		return phrases[i].order < phrases[j].order
	})
	if len(phrases) > maxKeyPhrases {
		phrases = phrases[:maxKeyPhrases]
	}
	out := make([]KeyPhrase, len(phrases))
	for i, p := range phrases {
		out[i] = KeyPhrase{Text: p.phrase, Score: round3(p.score)}
	}
	return out
}

// entities groups capitalized spans and years by a coarse type, mirroring
// the grouped-by-type shape of a managed entity detector.
func (a *LocalAnalyzer) entities(text string) map[string][]Entity {
	out := map[string][]Entity{}
	seen := map[string]struct{}{}
	add := func(kind, value string, score float64) {
		key := kind + "\x00" + value
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out[kind] = append(out[kind], Entity{Text: value, Score: round3(score)})
	}

	for _, span := range a.entityPattern.FindAllString(text, -1) {
		lower := strings.ToLower(span)
		if _, stop := a.stopwords[lower]; stop {
			continue
		}
		words := strings.Fields(span)
		switch {
		case len(words) == 1 && span == strings.ToUpper(span) && len(span) >= 2:
			add("ORGANIZATION", span, 0.8)
		case len(words) >= 2:
			add("OTHER", span, 0.6)
		}
	}
	for _, year := range a.yearPattern.FindAllString(text, -1) {
		add("DATE", year, 0.9)
	}
	return out
}

func (a *LocalAnalyzer) sentiment(text string) Sentiment {
	tokens := a.tokens(text)
	var pos, neg float64
	for _, tok := range tokens {
		if _, ok := a.positive[tok]; ok {
			pos++
		}
		if _, ok := a.negative[tok]; ok {
			neg++
		}
	}
	total := pos + neg
	scores := map[string]float64{"positive": 0, "negative": 0, "neutral": 1, "mixed": 0}
	label := "NEUTRAL"
	if total > 0 {
		p := pos / total
		n := neg / total
		neutral := 1 - math.Min(1, total/math.Max(1, float64(len(tokens))/10))
		scores["positive"] = round3(p * (1 - neutral))
		scores["negative"] = round3(n * (1 - neutral))
		scores["neutral"] = round3(neutral)
		switch {
		case p >= 0.65:
			label = "POSITIVE"
		case n >= 0.65:
			label = "NEGATIVE"
		default:
			label = "MIXED"
			scores["mixed"] = round3(1 - neutral)
		}
	}
	return Sentiment{Label: label, Scores: scores}
}

func (a *LocalAnalyzer) tokens(text string) []string {
	raw := a.tokenPattern.FindAllString(strings.ToLower(text), -1)
	return raw
}

func truncateUTF8(text string, maxBytes int) string {
	if len(text) <= maxBytes {
		return text
	}
	cut := text[:maxBytes]
	// drop any partial rune at the cut point
	return strings.ToValidUTF8(cut, "")
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

var positiveWords = []string{
	"improve", "improves", "improved", "improvement", "effective", "efficient",
	"outperform", "outperforms", "outperformed", "novel", "robust", "significant",
	"success", "successful", "successfully", "accurate", "accuracy", "benefit",
	"benefits", "advantage", "advantages", "strong", "best", "better", "gain", "gains",
}

var negativeWords = []string{
	"fail", "fails", "failed", "failure", "limitation", "limitations", "weak",
	"weakness", "poor", "worse", "worst", "degrade", "degrades", "degraded",
	"error", "errors", "drawback", "drawbacks", "insufficient", "costly", "slow",
}

func defaultStopwords() map[string]struct{} {
	return wordSet([]string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "of", "to",
		"in", "on", "for", "with", "as", "by", "at", "from", "that", "this",
		"these", "those", "is", "are", "was", "were", "be", "been", "being",
		"it", "its", "we", "our", "they", "their", "he", "she", "his", "her",
		"which", "who", "whom", "what", "when", "where", "how", "why", "not",
		"no", "nor", "can", "could", "will", "would", "shall", "should", "may",
		"might", "must", "do", "does", "did", "done", "have", "has", "had",
		"i", "you", "your", "them", "there", "here", "than", "such", "into",
		"also", "both", "each", "more", "most", "other", "some", "only", "own",
		"so", "too", "very", "s", "t", "just", "using", "used", "use", "based",
		"paper", "results", "show", "shows", "shown", "however", "thus", "while",
	})
}
