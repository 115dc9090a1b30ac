// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/gitlab-rag/indexer/internal/ai"
	"github.com/gitlab-rag/indexer/internal/config"
	"github.com/gitlab-rag/indexer/internal/embeddings"
	"github.com/gitlab-rag/indexer/internal/gitlab"
	"github.com/gitlab-rag/indexer/internal/jobs"
	"github.com/gitlab-rag/indexer/internal/logger"
	"github.com/gitlab-rag/indexer/internal/manifest"
	"github.com/gitlab-rag/indexer/internal/orchestrator"
	"github.com/gitlab-rag/indexer/internal/processor"
	"github.com/gitlab-rag/indexer/internal/queue"
	"github.com/gitlab-rag/indexer/internal/retriever"
	"github.com/gitlab-rag/indexer/internal/server"
	"github.com/gitlab-rag/indexer/internal/vectordb"
	"github.com/gitlab-rag/indexer/internal/worker"
)

var logFile = flag.String("log-file", "gitlab-rag.log", "log file path (stdout is always written to)")

// staleSyncSweepInterval is how often RecoverStaleSyncs runs to unwedge
// projects left in "syncing" by a crashed worker.
const staleSyncSweepInterval = 1 * time.Minute

func main() {
	flag.Parse()

	log, err := logger.New(*logFile)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v, using stdout only\n", err)
		log, _ = logger.New("")
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, using process environment: %v", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN())
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	store, err := manifest.NewStore(ctx, pool, log)
	if err != nil {
		log.Fatalf("failed to initialize manifest store: %v", err)
	}

	gitlabClient := gitlab.NewClient(cfg.GitLabURL, cfg.GitLabPAT, log)

	embedder, err := newEmbedder(cfg)
	if err != nil {
		log.Fatalf("failed to initialize embedder: %v", err)
	}

	vdb, err := connectVectorDB(ctx, cfg, embedder.Dimension(), log)
	if err != nil {
		log.Fatalf("failed to initialize vector db: %v", err)
	}

	chunker, err := processor.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatalf("failed to initialize chunker: %v", err)
	}

	orch := orchestrator.New(gitlabClient, cfg.GitLabPAT, chunker, vdb, embedder, store, log, cfg.ReposPath)

	aiClient := ai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	ret := retriever.New(vdb, embedder, gitlabClient, log, cfg.TopKResults)

	indexQueue, syncQueue := connectJobQueues(ctx, cfg, log)
	if indexQueue != nil {
		startWorkerPool(ctx, indexQueue, jobs.HandleFullIndex(orch), cfg.WorkerCount, log)
	}
	if syncQueue != nil {
		startWorkerPool(ctx, syncQueue, jobs.HandleSync(orch), cfg.WorkerCount, log)
	}

	go staleSyncSweep(ctx, orch, log)

	srv := server.New(store, gitlabClient, orch, aiClient, ret, indexQueue, syncQueue, log, cfg.TopKResults)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: srv.Routes(),
	}

	go func() {
		log.Printf("HTTP server listening on %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http shutdown error: %v", err)
	}
	if err := log.Close(); err != nil {
		fmt.Printf("failed to close logger: %v\n", err)
	}
}

func newEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "local":
		return embeddings.NewEmbedder("local", map[string]string{
			"base_url":  cfg.LocalEmbeddingURL,
			"dimension": fmt.Sprintf("%d", cfg.LocalEmbeddingDimension),
		})
	default:
		return embeddings.NewEmbedder("openai", map[string]string{
			"api_key": cfg.OpenAIAPIKey,
			"model":   cfg.OpenAIEmbeddingModel,
		})
	}
}

// connectVectorDB dials Qdrant and ensures the collection exists. A
// dial or collection-setup failure is non-fatal: the service falls
// back to an in-memory mock so the HTTP API still comes up for
// project/provider management while search degrades.
func connectVectorDB(ctx context.Context, cfg *config.Config, dimension int, log *logger.Logger) (vectordb.VectorDB, error) {
	conn, err := grpc.NewClient(cfg.QdrantAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Warnf("failed to dial qdrant at %s: %v, using mock vector db", cfg.QdrantAddr(), err)
		return vectordb.NewMockVectorDB(), nil
	}

	_ = qdrant.NewQdrantClient(conn)

	vdb, err := vectordb.NewQdrantVectorDB(ctx, conn, dimension, log)
	if err != nil {
		log.Warnf("failed to initialize qdrant collection: %v, using mock vector db", err)
		return vectordb.NewMockVectorDB(), nil
	}
	log.Printf("connected to qdrant at %s", cfg.QdrantAddr())
	return vdb, nil
}

// connectJobQueues dials Redis and wraps it in the two logical queues
// the service runs: "jobs:indexing" for full-index jobs and
// "jobs:gitlab_sync" for incremental-sync jobs, each with its own
// worker pool. Returns (nil, nil) if Redis is unavailable: indexing
// runs then happen in a detached goroutine started by the request
// handler instead of through a worker pool.
func connectJobQueues(ctx context.Context, cfg *config.Config, log *logger.Logger) (queue.Queue, queue.Queue) {
	client, err := config.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Warnf("failed to connect to redis at %s: %v, job queues disabled", cfg.RedisAddr, err)
		return nil, nil
	}

	indexQueue, err := queue.NewRedisQueue(client, "jobs:indexing", log)
	if err != nil {
		log.Warnf("failed to create indexing queue: %v, job queues disabled", err)
		return nil, nil
	}
	syncQueue, err := queue.NewRedisQueue(client, "jobs:gitlab_sync", log)
	if err != nil {
		log.Warnf("failed to create gitlab_sync queue: %v, job queues disabled", err)
		return nil, nil
	}
	log.Printf("connected to redis at %s", cfg.RedisAddr)
	return indexQueue, syncQueue
}

// startWorkerPool launches a background worker pool for a single
// logical queue, running until ctx is cancelled.
func startWorkerPool(ctx context.Context, q queue.Queue, handler worker.HandlerFunc, workerCount int, log *logger.Logger) {
	go func() {
		log.Printf("starting %d background worker(s)", workerCount)
		if err := worker.StartWorkers(ctx, q, handler, workerCount, log); err != nil {
			log.Errorf("worker pool error: %v", err)
		}
	}()
}

// staleSyncSweep periodically resets projects wedged in "syncing" by a
// worker that died mid-run, so a later index or sync request is not
// rejected by the status guard forever. The server schedules no
// periodic sync of its own.
func staleSyncSweep(ctx context.Context, orch *orchestrator.Orchestrator, log *logger.Logger) {
	ticker := time.NewTicker(staleSyncSweepInterval)
	defer ticker.Stop()

	if _, err := orch.RecoverStaleSyncs(ctx); err != nil {
		log.Errorf("stale sync recovery failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := orch.RecoverStaleSyncs(ctx); err != nil {
				log.Errorf("stale sync recovery failed: %v", err)
			}
		}
	}
}
