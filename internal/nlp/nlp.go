// Package nlp provides the text-analysis capability used by the insight
// extractor: key phrases, named entities grouped by type, and sentiment.
package nlp

import "context"

// KeyPhrase is a ranked phrase extracted from the text.
type KeyPhrase struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Entity is a named entity occurrence.
type Entity struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Sentiment is the overall document sentiment with a score breakdown.
type Sentiment struct {
	Label  string             `json:"sentiment"` // POSITIVE, NEGATIVE, NEUTRAL or MIXED
	Scores map[string]float64 `json:"scores"`
}

// Analysis is the combined result for one document.
type Analysis struct {
	KeyPhrases []KeyPhrase         `json:"key_phrases"`
	Entities   map[string][]Entity `json:"entities"`
	Sentiment  Sentiment           `json:"sentiment"`
}

// Analyzer analyzes document text. Implementations must be pure functions
// of the input so insight regeneration is reproducible.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (Analysis, error)
}
