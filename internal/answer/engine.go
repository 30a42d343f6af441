// Package answer implements retrieval-augmented question answering over a
// session's papers: embed the question, search the tenant's index scoped
// to the session, and ground the model's answer in the retrieved chunks.
package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"

	"paperchat/internal/cache"
	"paperchat/internal/embeddings"
	"paperchat/internal/faults"
	"paperchat/internal/llm"
	"paperchat/internal/retry"
	"paperchat/internal/store"
	"paperchat/internal/telemetry"
	"paperchat/internal/vectorstore"
)

// User-facing fallbacks. These are answers, not errors: the chat keeps
// flowing even when retrieval or generation cannot help.
const (
	emptyScopeAnswer = "This session has no ingested papers yet. Add a paper and ask again once it finishes processing."
	noContextAnswer  = "The papers in this session do not contain enough information to answer that question."
	generationFailed = "I could not generate an answer right now. Please try again."
)

const answerMaxTokens = 1024

const systemPrompt = `You are a research assistant answering questions about academic papers.
Use only the provided sources. When you use a source, cite it inline as [Source N].
If the sources do not contain the answer, say so plainly instead of guessing.`

// Citation points an answer back at one paper, with the best relevance
// score among the chunks retrieved from it.
type Citation struct {
	DocumentID     string  `json:"document_id"`
	Title          string  `json:"title"`
	Authors        string  `json:"authors,omitempty"`
	RelevanceScore float32 `json:"relevance_score"`
}

// Result is one answered question.
type Result struct {
	Answer     string
	Citations  []Citation
	ChunksUsed int
	Cached     bool
}

// Engine wires question answering to its backing capabilities.
type Engine struct {
	Store    store.Store
	Index    vectorstore.Index
	Embedder embeddings.Embedder
	LLM      llm.Client
	Cache    cache.Cache
	Log      *slog.Logger
	TopK     int
	History  int // prior turns included in the prompt
	CacheTTL time.Duration
	Retry    retry.Policy
}

// Answer resolves the session's retrieval scope, retrieves supporting
// chunks and generates a grounded answer. Every exchange, including the
// fallback answers, lands in the session transcript. includeHistory
// controls whether prior turns are folded into the prompt.
func (e *Engine) Answer(ctx context.Context, tenant string, sessionID uuid.UUID, question string, includeHistory bool) (res Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "answer.Answer",
		attribute.String("tenant", tenant),
		attribute.String("session_id", sessionID.String()),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, faults.Input("question must not be empty")
	}

	sess, err := e.Store.GetSession(ctx, tenant, sessionID)
	if err != nil {
		return Result{}, err
	}
	log := e.Log.With("tenant", tenant, "session_id", sessionID)

	scope := e.resolveScope(ctx, log, tenant, sess.PaperIDs)
	if len(scope) == 0 {
		// Nothing searchable: answer without touching any provider.
		res := Result{Answer: emptyScopeAnswer}
		e.record(ctx, log, tenant, sessionID, question, res)
		return res, nil
	}

	key := cache.Key(sessionID, question, scope)
	if hit, err := e.Cache.GetAnswer(ctx, tenant, key); err != nil {
		log.Warn("answer cache lookup failed", "err", err)
	} else if hit != nil {
		res := Result{Answer: hit.Answer, ChunksUsed: hit.ChunksUsed, Cached: true}
		if len(hit.Citations) > 0 {
			if err := json.Unmarshal(hit.Citations, &res.Citations); err != nil {
				log.Warn("undecodable cached citations, dropping them", "err", err)
			}
		}
		e.record(ctx, log, tenant, sessionID, question, res)
		return res, nil
	}

	var vector embeddings.Vector
	err = retry.Do(ctx, e.Retry, func(ctx context.Context) error {
		var embedErr error
		vector, embedErr = e.Embedder.Embed(ctx, question)
		return embedErr
	})
	if err != nil {
		return Result{}, fmt.Errorf("embed question: %w", err)
	}

	matches, err := e.Index.Query(ctx, tenant, vector, e.TopK, scopeStrings(scope))
	if err != nil {
		return Result{}, fmt.Errorf("search index: %w", err)
	}
	if len(matches) == 0 {
		res := Result{Answer: noContextAnswer}
		e.record(ctx, log, tenant, sessionID, question, res)
		return res, nil
	}

	var history []store.ChatTurn
	if includeHistory {
		history, err = e.Store.ListTurns(ctx, tenant, sessionID, e.History)
		if err != nil {
			log.Warn("could not load chat history, answering without it", "err", err)
			history = nil
		}
	}

	var generated string
	err = retry.Do(ctx, e.Retry, func(ctx context.Context) error {
		var genErr error
		generated, genErr = e.LLM.Chat(ctx, systemPrompt, buildMessages(history, matches, question), answerMaxTokens)
		return genErr
	})
	if err != nil {
		log.Error("answer generation failed", "err", err)
		res := Result{Answer: generationFailed, ChunksUsed: len(matches)}
		e.record(ctx, log, tenant, sessionID, question, res)
		return res, nil
	}

	res = Result{
		Answer:     strings.TrimSpace(generated),
		Citations:  citations(matches),
		ChunksUsed: len(matches),
	}
	e.record(ctx, log, tenant, sessionID, question, res)
	e.cacheResult(ctx, log, tenant, key, res)
	return res, nil
}

// resolveScope keeps only fully ingested papers. Deleted or still
// processing papers silently drop out of retrieval.
func (e *Engine) resolveScope(ctx context.Context, log *slog.Logger, tenant string, paperIDs []uuid.UUID) []uuid.UUID {
	scope := make([]uuid.UUID, 0, len(paperIDs))
	for _, id := range paperIDs {
		doc, err := e.Store.GetDocument(ctx, tenant, id)
		if err != nil {
			if !errors.Is(err, store.ErrDocumentNotFound) {
				log.Warn("could not resolve session paper", "document_id", id, "err", err)
			}
			continue
		}
		if doc.Status == store.StatusCompleted {
			scope = append(scope, id)
		}
	}
	return scope
}

func scopeStrings(scope []uuid.UUID) []string {
	out := make([]string, 0, len(scope))
	for _, id := range scope {
		out = append(out, id.String())
	}
	return out
}

// buildMessages interleaves recent history with a final user message
// carrying the numbered sources and the question.
func buildMessages(history []store.ChatTurn, matches []vectorstore.Match, question string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}

	var b strings.Builder
	b.WriteString("Sources:\n\n")
	for i, m := range matches {
		fmt.Fprintf(&b, "[Source %d] %s", i+1, m.Title)
		if m.Authors != "" {
			fmt.Fprintf(&b, " (%s)", m.Authors)
		}
		b.WriteString("\n")
		b.WriteString(m.Text)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)

	return append(messages, llm.Message{Role: "user", Content: b.String()})
}

// citations collapses matches to one citation per paper, keeping the best
// score, ordered by score descending.
func citations(matches []vectorstore.Match) []Citation {
	best := make(map[string]Citation, len(matches))
	for _, m := range matches {
		c, seen := best[m.DocumentID]
		if !seen || m.Score > c.RelevanceScore {
			best[m.DocumentID] = Citation{
				DocumentID:     m.DocumentID,
				Title:          m.Title,
				Authors:        m.Authors,
				RelevanceScore: m.Score,
			}
		}
	}

	out := make([]Citation, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RelevanceScore != out[j].RelevanceScore {
			return out[i].RelevanceScore > out[j].RelevanceScore
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}

// record appends the question/answer pair to the transcript. ksuid turn
// ids are time-sortable, so insertion order is the read order.
func (e *Engine) record(ctx context.Context, log *slog.Logger, tenant string, sessionID uuid.UUID, question string, res Result) {
	userTurn := store.ChatTurn{
		SessionID: sessionID,
		TurnID:    ksuid.New().String(),
		Role:      "user",
		Content:   question,
	}
	assistantTurn := store.ChatTurn{
		SessionID: sessionID,
		TurnID:    ksuid.New().String(),
		Role:      "assistant",
		Content:   res.Answer,
		Sources:   toSources(res.Citations),
	}

	if err := e.Store.AppendTurn(ctx, tenant, userTurn); err != nil {
		log.Warn("could not append user turn", "err", err)
		return
	}
	if err := e.Store.AppendTurn(ctx, tenant, assistantTurn); err != nil {
		log.Warn("could not append assistant turn", "err", err)
	}
	if err := e.Store.TouchSession(ctx, tenant, sessionID); err != nil {
		log.Warn("could not touch session", "err", err)
	}
}

func toSources(cits []Citation) []store.Source {
	if len(cits) == 0 {
		return nil
	}
	out := make([]store.Source, 0, len(cits))
	for _, c := range cits {
		out = append(out, store.Source{
			DocumentID:     c.DocumentID,
			Title:          c.Title,
			Authors:        c.Authors,
			RelevanceScore: c.RelevanceScore,
		})
	}
	return out
}

func (e *Engine) cacheResult(ctx context.Context, log *slog.Logger, tenant, key string, res Result) {
	payload, err := json.Marshal(res.Citations)
	if err != nil {
		log.Warn("could not marshal citations for cache", "err", err)
		payload = nil
	}
	entry := &cache.Result{Answer: res.Answer, Citations: payload, ChunksUsed: res.ChunksUsed}
	if err := e.Cache.SetAnswer(ctx, tenant, key, entry, e.CacheTTL); err != nil {
		log.Warn("could not cache answer", "err", err)
	}
}
