// Package insights derives structured knowledge about one paper: an NLP
// analysis of its text plus a methodology graph extracted by the language
// model.
package insights

import (
	"time"

	"paperchat/internal/nlp"
)

// Node is one step in the methodology graph.
type Node struct {
	ID          string   `json:"id" validate:"required"`
	Label       string   `json:"label" validate:"required"`
	Description string   `json:"description"`
	Details     []string `json:"details"`
}

// Edge is a directed link between two methodology nodes.
type Edge struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// MethodologyGraph is the problem -> method -> results -> conclusion
// structure of a paper.
type MethodologyGraph struct {
	Nodes []Node `json:"nodes" validate:"required,min=2,dive"`
	Edges []Edge `json:"edges" validate:"required,min=1,dive"`
}

// Insight is the derived record stored per document. Methodology is nil
// when that sub-step failed; the NLP fields survive independently.
type Insight struct {
	Summary     string                  `json:"summary"`
	KeyPhrases  []nlp.KeyPhrase         `json:"key_phrases"`
	Entities    map[string][]nlp.Entity `json:"entities"`
	Sentiment   nlp.Sentiment           `json:"sentiment"`
	Methodology *MethodologyGraph       `json:"methodology_graph,omitempty"`
	GeneratedAt time.Time               `json:"generated_at"`
}
