package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/nextlevelbuilder/convoy/internal/chatapi"
	"github.com/nextlevelbuilder/convoy/internal/config"
	"github.com/nextlevelbuilder/convoy/internal/convo"
	"github.com/nextlevelbuilder/convoy/internal/gateway/audit"
	"github.com/nextlevelbuilder/convoy/internal/gateway/pg"
	"github.com/nextlevelbuilder/convoy/internal/generation"
	"github.com/nextlevelbuilder/convoy/internal/obs"
	"github.com/nextlevelbuilder/convoy/internal/procedure"
	"github.com/nextlevelbuilder/convoy/internal/retrieval"
	"github.com/nextlevelbuilder/convoy/internal/semcache"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	obs.InitLogger(cfg.Obs.LogLevel)

	shutdown, err := obs.InitOTel(context.Background(), obs.Config{
		OTLPEndpoint:   cfg.Obs.OTLPEndpoint,
		ServiceName:    cfg.Obs.ServiceName,
		ServiceVersion: cfg.Obs.ServiceVersion,
		Environment:    cfg.Obs.Environment,
	})
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	ctx := context.Background()

	pool, err := pg.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	store := pg.NewStore(pool)
	if err := store.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init postgres schema")
	}

	cache, err := semcache.New(cfg.Redis.Addr, time.Duration(cfg.Redis.CacheTTLSeconds)*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis cache")
	}

	embedder := retrieval.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Vector.Dimension)

	var vectorStore retrieval.VectorStore
	switch cfg.Vector.Backend {
	case "qdrant":
		qs, err := retrieval.NewQdrantVectorStore(ctx, cfg.Vector.QdrantHost, cfg.Vector.QdrantPort, cfg.Vector.Dimension)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to qdrant")
		}
		vectorStore = qs
	default:
		vectorStore = retrieval.NewPGVectorStore(pool)
	}

	retriever := &retrieval.Retriever{Embedder: embedder, Store: vectorStore}

	var genProvider generation.Provider
	switch cfg.LLM.Provider {
	case "anthropic":
		genProvider = generation.NewAnthropicProvider(cfg.LLM.Anthropic.APIKey, cfg.LLM.Anthropic.Model)
	case "google":
		gp, err := generation.NewGoogleProvider(ctx, cfg.LLM.Google.APIKey, cfg.LLM.Google.Model)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init google generation provider")
		}
		genProvider = gp
	default:
		genProvider = generation.NewOpenAIProvider(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.BaseURL, cfg.LLM.OpenAI.Model)
	}

	var auditor procedure.AuditEmitter
	if cfg.ClickHouse.DSN != "" {
		sink, err := audit.NewSink(ctx, cfg.ClickHouse.DSN, cfg.ClickHouse.Table, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("clickhouse audit sink unavailable, audit events will be dropped")
		} else {
			if err := sink.Init(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to init clickhouse audit schema")
			}
			defer sink.Close()
			auditor = sink
		}
	}

	procExec := &procedure.Executor{
		Connectors: store,
		HTTP:       procedure.NewHTTPConnector(obs.InstrumentedClient(nil)),
		MCP:        procedure.NewMCPConnector("convoy", "0.1.0"),
		Audit:      auditor,
	}

	orchestrator := &convo.Orchestrator{
		Tenants:         store,
		Conversations:   store,
		Policies:        store,
		Procedures:      store,
		ProcedureExec:   procExec,
		Cache:           cache,
		Retriever:       retriever,
		Embedder:        embedder,
		Generation:      genProvider,
		Audit:           auditor,
		DefaultTopK:     cfg.Retrieval.TopK,
		CacheSimilarity: cfg.Retrieval.CacheSimilarity,
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           chatapi.NewServer(orchestrator),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("orchestratord listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown failed")
	}
}
