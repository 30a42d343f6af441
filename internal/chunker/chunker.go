package chunker

import (
	"strings"
)

// Options controls how document text is chunked.
type Options struct {
	TargetTokens  int // chunk size in tokens
	OverlapTokens int // tokens shared by adjacent chunks
}

// Chunk is one bounded segment of the document text.
type Chunk struct {
	Index      int
	Start      int // word offset of the chunk within the document
	Text       string
	TokenCount int
}

// Split performs a token-based sliding window with overlap. Tokens are
// whitespace-delimited words, which keeps the output deterministic for
// identical input and lets re-ingestion upsert the same chunk positions.
// Empty text yields zero chunks; text shorter than one window yields one.
func Split(text string, opts Options) []Chunk {
	if opts.TargetTokens <= 0 {
		opts.TargetTokens = 512
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = 0
	}

	words := strings.Fields(text)
	var chunks []Chunk
	if len(words) == 0 {
		return chunks
	}

	step := opts.TargetTokens - opts.OverlapTokens
	if step <= 0 {
		step = opts.TargetTokens
	}

	for start := 0; start < len(words); start += step {
		end := start + opts.TargetTokens
		if end > len(words) {
			end = len(words)
		}
		segment := strings.Join(words[start:end], " ")
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Start:      start,
			Text:       segment,
			TokenCount: end - start,
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}
