package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"

	"paperchat/internal/answer"
	"paperchat/internal/app"
	"paperchat/internal/httputil"
	"paperchat/internal/retry"
	"paperchat/internal/telemetry"
)

type chatRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
	Question  string `json:"question" validate:"required,min=3,max=2000"`
	// Omitting the field keeps the default of answering with history.
	IncludeHistory *bool `json:"include_history"`
}

type chatResponse struct {
	Answer     string            `json:"answer"`
	Citations  []answer.Citation `json:"citations"`
	ChunksUsed int               `json:"chunks_used"`
	Cached     bool              `json:"cached"`
}

func main() {
	deps, err := app.Build("query")
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	shutdown, err := telemetry.Init("query", deps.Config.JaegerEndpoint)
	if err != nil {
		deps.Log.Warn("tracing disabled", "err", err)
	} else {
		defer shutdown(context.Background())
	}

	engine := &answer.Engine{
		Store:    deps.Store,
		Index:    deps.Index,
		Embedder: deps.Embedder,
		LLM:      deps.LLM,
		Cache:    deps.Cache,
		Log:      deps.Log,
		TopK:     deps.Config.TopK,
		History:  deps.Config.HistoryTurns,
		CacheTTL: deps.Config.CacheTTL,
		Retry:    retry.DefaultPolicy,
	}

	r := httputil.NewRouter(deps.Log)
	r.Get("/healthz", httputil.HealthHandler(deps.Log))
	r.With(httputil.RequireTenant).Post("/api/chat", chatHandler(deps, engine))

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("query service listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server error", "err", err)
	}
}

func chatHandler(deps app.Deps, engine *answer.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.FailErr(deps.Log, w, "invalid payload", err)
			return
		}
		sessionID := uuid.MustParse(req.SessionID) // format checked by the uuid validate tag
		includeHistory := req.IncludeHistory == nil || *req.IncludeHistory

		res, err := engine.Answer(r.Context(), httputil.TenantID(r), sessionID, req.Question, includeHistory)
		if err != nil {
			httputil.FailErr(deps.Log, w, "failed to answer question", err)
			return
		}

		if res.Citations == nil {
			res.Citations = []answer.Citation{}
		}
		httputil.WriteJSON(w, http.StatusOK, chatResponse{
			Answer:     res.Answer,
			Citations:  res.Citations,
			ChunksUsed: res.ChunksUsed,
			Cached:     res.Cached,
		})
	}
}
