package nlp

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"paperchat/internal/faults"
)

const sampleAbstract = `Transformer models improve machine translation accuracy.
We present a novel attention mechanism evaluated on WMT benchmarks in 2023.
Our approach outperforms strong baselines, although training remains costly.
John Smith and the ACL community released the datasets.`

func TestAnalyzeEmptyText(t *testing.T) {
	a := NewLocalAnalyzer()
	_, err := a.Analyze(context.Background(), "   ")
	if !faults.IsKind(err, faults.KindInput) {
		t.Fatalf("expected input fault, got %v", err)
	}
}

func TestAnalyzeKeyPhrases(t *testing.T) {
	a := NewLocalAnalyzer()
	analysis, err := a.Analyze(context.Background(), sampleAbstract)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(analysis.KeyPhrases) == 0 {
		t.Fatal("expected key phrases")
	}
	if len(analysis.KeyPhrases) > 20 {
		t.Fatalf("expected at most 20 phrases, got %d", len(analysis.KeyPhrases))
	}
	for _, p := range analysis.KeyPhrases {
		if p.Score <= 0 {
			t.Errorf("phrase %q has non-positive score", p.Text)
		}
		if len(strings.Fields(p.Text)) > 4 {
			t.Errorf("phrase %q exceeds 4 tokens", p.Text)
		}
	}
}

func TestAnalyzeEntities(t *testing.T) {
	a := NewLocalAnalyzer()
	analysis, err := a.Analyze(context.Background(), sampleAbstract)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dates := analysis.Entities["DATE"]
	found := false
	for _, e := range dates {
		if e.Text == "2023" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected 2023 under DATE, got %v", dates)
	}
	orgs := analysis.Entities["ORGANIZATION"]
	foundACL := false
	for _, e := range orgs {
		if e.Text == "ACL" {
			foundACL = true
		}
	}
	if !foundACL {
		t.Errorf("expected ACL under ORGANIZATION, got %v", orgs)
	}
}

func TestAnalyzeSentimentLeansPositive(t *testing.T) {
	a := NewLocalAnalyzer()
	analysis, err := a.Analyze(context.Background(),
		"The novel method shows significant improvement and robust accuracy gains.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if analysis.Sentiment.Label != "POSITIVE" {
		t.Errorf("expected POSITIVE, got %s (%v)", analysis.Sentiment.Label, analysis.Sentiment.Scores)
	}
}

func TestAnalyzeNeutralWithoutSignal(t *testing.T) {
	a := NewLocalAnalyzer()
	analysis, err := a.Analyze(context.Background(), "the cat sat on the mat near the door")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if analysis.Sentiment.Label != "NEUTRAL" {
		t.Errorf("expected NEUTRAL, got %s", analysis.Sentiment.Label)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := NewLocalAnalyzer()
	first, err := a.Analyze(context.Background(), sampleAbstract)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Analyze(context.Background(), sampleAbstract)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("analysis must be deterministic for identical input")
	}
}

func TestAnalyzeTruncatesLongInput(t *testing.T) {
	a := NewLocalAnalyzer()
	long := strings.Repeat("significant improvement across benchmarks ", 2000)
	if _, err := a.Analyze(context.Background(), long); err != nil {
		t.Fatalf("long input should be truncated, not rejected: %v", err)
	}
}
