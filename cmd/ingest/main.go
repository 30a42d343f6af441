package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"paperchat/internal/app"
	"paperchat/internal/chunker"
	"paperchat/internal/httputil"
	"paperchat/internal/ingest"
	"paperchat/internal/insights"
	"paperchat/internal/queue"
	"paperchat/internal/retry"
	"paperchat/internal/telemetry"
)

func main() {
	deps, err := app.Build("ingest")
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()
	deps.Log.Info("ingest worker starting")

	shutdown, err := telemetry.Init("ingest", deps.Config.JaegerEndpoint)
	if err != nil {
		deps.Log.Warn("tracing disabled", "err", err)
	} else {
		defer shutdown(context.Background())
	}

	pipeline := &ingest.Pipeline{
		Store:    deps.Store,
		Blobs:    deps.Blobs,
		Index:    deps.Index,
		Embedder: deps.Embedder,
		Insights: insights.NewExtractor(deps.Analyzer, deps.LLM, deps.Log, retry.DefaultPolicy),
		Cache:    deps.Cache,
		Log:      deps.Log,
		Chunks: chunker.Options{
			TargetTokens:  deps.Config.ChunkTokens,
			OverlapTokens: deps.Config.ChunkOverlap,
		},
		Retry: retry.DefaultPolicy,
	}

	g, ctx := errgroup.WithContext(context.Background())

	// Run ingestion queue worker
	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeIngest, pipeline.HandleTask)
	})

	// Run insight refresh worker
	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeReingest, pipeline.HandleRefreshTask)
	})

	// Periodically requeue runs orphaned by crashed workers
	g.Go(func() error {
		ticker := time.NewTicker(deps.Config.StallAfter)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				n, err := ingest.RequeueStalled(ctx, deps.Store, deps.Queue, deps.Log, deps.Config.StallAfter)
				if err != nil {
					deps.Log.Error("stalled-run sweep failed", "err", err)
				} else if n > 0 {
					deps.Log.Info("stalled-run sweep requeued documents", "count", n)
				}
			}
		}
	})

	// Run health check server
	g.Go(func() error {
		return httputil.ServeHealth(deps.Log, deps.Config.Port)
	})

	// Wait for either to fail
	if err := g.Wait(); err != nil {
		deps.Log.Error("ingest service stopped", "err", err)
	}
}
