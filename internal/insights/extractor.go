package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"paperchat/internal/faults"
	"paperchat/internal/llm"
	"paperchat/internal/nlp"
	"paperchat/internal/retry"
)

const (
	// analysis window fed to the model, abstract plus opening sections
	methodologyTextLimit = 6000
	methodologyMaxTokens = 1500
)

const methodologySystemPrompt = "You extract the structure of research papers. Respond with ONLY valid JSON, no other text."

// Extractor runs the two insight sub-steps. Their failures are isolated:
// a bad methodology response nulls only the graph, a failed NLP analysis
// still leaves the graph intact. Extract fails only when both sub-steps do.
type Extractor struct {
	analyzer nlp.Analyzer
	llm      llm.Client
	log      *slog.Logger
	validate *validator.Validate
	retry    retry.Policy
}

func NewExtractor(analyzer nlp.Analyzer, client llm.Client, log *slog.Logger, policy retry.Policy) *Extractor {
	return &Extractor{
		analyzer: analyzer,
		llm:      client,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		retry:    policy,
	}
}

// Extract analyzes the full text and prompts the model for the
// methodology structure. The returned Insight is partial when one
// sub-step fails.
func (e *Extractor) Extract(ctx context.Context, title, text string) (Insight, error) {
	if strings.TrimSpace(text) == "" {
		return Insight{}, faults.Input("empty document text")
	}

	var analysis nlp.Analysis
	analysisErr := retry.Do(ctx, e.retry, func(ctx context.Context) error {
		var err error
		analysis, err = e.analyzer.Analyze(ctx, text)
		return err
	})
	if analysisErr != nil {
		e.log.Warn("nlp analysis failed", "title", title, "err", analysisErr)
	}

	summary, graph, graphErr := e.methodology(ctx, title, text)
	if graphErr != nil {
		e.log.Warn("methodology extraction failed", "title", title, "err", graphErr)
	}

	if analysisErr != nil && graphErr != nil {
		return Insight{}, fmt.Errorf("insight extraction failed: %w", graphErr)
	}

	return Insight{
		Summary:     summary,
		KeyPhrases:  analysis.KeyPhrases,
		Entities:    analysis.Entities,
		Sentiment:   analysis.Sentiment,
		Methodology: graph,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// methodologyResponse is the JSON shape requested from the model.
type methodologyResponse struct {
	Summary    string             `json:"summary"`
	Problem    methodologySection `json:"problem" validate:"required"`
	Method     methodologySection `json:"method" validate:"required"`
	Results    methodologySection `json:"results" validate:"required"`
	Conclusion methodologySection `json:"conclusion" validate:"required"`
}

type methodologySection struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Details     []string `json:"details"`
}

func (e *Extractor) methodology(ctx context.Context, title, text string) (string, *MethodologyGraph, error) {
	prompt := methodologyPrompt(title, text)

	var raw string
	err := retry.Do(ctx, e.retry, func(ctx context.Context) error {
		var genErr error
		raw, genErr = e.llm.Generate(ctx, methodologySystemPrompt, prompt, methodologyMaxTokens)
		return genErr
	})
	if err != nil {
		return "", nil, err
	}

	parsed, err := parseMethodologyResponse(raw)
	if err != nil {
		return "", nil, err
	}
	if err := e.validate.Struct(parsed); err != nil {
		return "", nil, fmt.Errorf("methodology response failed schema validation: %w", err)
	}

	graph := buildGraph(parsed)
	if err := e.validate.Struct(graph); err != nil {
		return "", nil, fmt.Errorf("methodology graph invalid: %w", err)
	}
	return strings.TrimSpace(parsed.Summary), graph, nil
}

func methodologyPrompt(title, text string) string {
	if len(text) > methodologyTextLimit {
		text = text[:methodologyTextLimit]
	}
	return fmt.Sprintf(`Analyze this research paper and extract the methodology structure.

PAPER TITLE: %s

PAPER CONTENT:
%s

Extract the following components in JSON format:
{
    "summary": "2-3 sentence summary of the paper",
    "problem": {"title": "Problem Statement", "description": "1-2 sentence description of the problem being addressed", "details": ["key", "terms"]},
    "method": {"title": "Methodology", "description": "1-2 sentence description of the approach used", "details": ["step1", "step2"]},
    "results": {"title": "Key Results", "description": "1-2 sentence summary of main findings", "details": ["finding1", "finding2"]},
    "conclusion": {"title": "Conclusion", "description": "1-2 sentence summary of implications and contributions", "details": ["implication1"]}
}

Respond with ONLY valid JSON, no other text.`, title, text)
}

// parseMethodologyResponse tolerates prose around the JSON object but
// never tolerates an invalid object: untyped model output must not leak
// past this boundary.
func parseMethodologyResponse(raw string) (methodologyResponse, error) {
	var resp methodologyResponse
	candidate := raw
	if err := json.Unmarshal([]byte(candidate), &resp); err == nil {
		return resp, nil
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return resp, fmt.Errorf("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &resp); err != nil {
		return resp, fmt.Errorf("malformed methodology JSON: %w", err)
	}
	return resp, nil
}

func buildGraph(resp methodologyResponse) *MethodologyGraph {
	sections := []struct {
		id      string
		section methodologySection
	}{
		{"problem", resp.Problem},
		{"method", resp.Method},
		{"results", resp.Results},
		{"conclusion", resp.Conclusion},
	}
	graph := &MethodologyGraph{}
	for _, s := range sections {
		graph.Nodes = append(graph.Nodes, Node{
			ID:          s.id,
			Label:       s.section.Title,
			Description: s.section.Description,
			Details:     s.section.Details,
		})
	}
	for i := 0; i < len(graph.Nodes)-1; i++ {
		graph.Edges = append(graph.Edges, Edge{
			Source: graph.Nodes[i].ID,
			Target: graph.Nodes[i+1].ID,
		})
	}
	return graph
}
