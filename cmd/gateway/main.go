package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"paperchat/internal/app"
	"paperchat/internal/httputil"
	"paperchat/internal/ingest"
	"paperchat/internal/telemetry"
)

func main() {
	deps, err := app.Build("gateway")
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	shutdown, err := telemetry.Init("gateway", deps.Config.JaegerEndpoint)
	if err != nil {
		deps.Log.Warn("tracing disabled", "err", err)
	} else {
		defer shutdown(context.Background())
	}

	r := httputil.NewRouter(deps.Log)
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	r.Route("/api", func(r chi.Router) {
		r.Use(httputil.RequireTenant)

		r.Post("/papers/upload", uploadHandler(deps))
		r.Post("/papers/import", importHandler(deps))
		r.Get("/papers", listPapersHandler(deps))
		r.Get("/papers/{id}", paperStatusHandler(deps))
		r.Patch("/papers/{id}", updatePaperHandler(deps))
		r.Delete("/papers/{id}", deletePaperHandler(deps))
		r.Get("/papers/{id}/insights", insightsHandler(deps))
		r.Post("/papers/{id}/reingest", reingestHandler(deps))
		r.Post("/papers/{id}/insights/refresh", refreshInsightsHandler(deps))

		r.Post("/sessions", createSessionHandler(deps))
		r.Get("/sessions", listSessionsHandler(deps))
		r.Get("/sessions/{id}", getSessionHandler(deps))
		r.Patch("/sessions/{id}", renameSessionHandler(deps))
		r.Delete("/sessions/{id}", deleteSessionHandler(deps))
		r.Post("/sessions/{id}/papers", addSessionPaperHandler(deps))
		r.Delete("/sessions/{id}/papers/{paperID}", removeSessionPaperHandler(deps))
		r.Post("/sessions/{id}/chat", chatProxyHandler(deps))
		r.Get("/sessions/{id}/history", historyHandler(deps))
		r.Delete("/sessions/{id}/history", clearHistoryHandler(deps))

		r.Post("/admin/requeue-stalled", requeueStalledHandler(deps))
	})

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("gateway listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server failed", "err", err)
	}
}

func requeueStalledHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := ingest.RequeueStalled(r.Context(), deps.Store, deps.Queue, deps.Log, deps.Config.StallAfter)
		if err != nil {
			httputil.FailErr(deps.Log, w, "failed to requeue stalled documents", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"requeued": n})
	}
}
