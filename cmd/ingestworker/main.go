package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/nextlevelbuilder/convoy/internal/config"
	"github.com/nextlevelbuilder/convoy/internal/gateway/audit"
	"github.com/nextlevelbuilder/convoy/internal/gateway/pg"
	"github.com/nextlevelbuilder/convoy/internal/ingestion"
	"github.com/nextlevelbuilder/convoy/internal/obs"
	"github.com/nextlevelbuilder/convoy/internal/objectstore"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pg.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	store := pg.NewStore(pool)
	if err := store.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init postgres schema")
	}

	cache, err := semcache.New(cfg.Redis.Addr, 0)
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

	var fileStore ingestion.FileStore
	if cfg.S3.Bucket != "" {
		s3store, err := objectstore.NewS3Store(ctx, cfg.S3)
		if err != nil {
			log.Warn().Err(err).Msg("s3 object store unavailable, file-kind sources will fail to extract")
		} else {
			fileStore = s3store
		}
	}

	extractor := ingestion.NewExtractor(obs.InstrumentedClient(nil), fileStore)

	processor := &ingestion.Processor{
		Sources:      store,
		Extractor:    extractor,
		VectorStore:  vectorStore,
		Embedder:     embedder,
		Cache:        cache,
		Audit:        auditor,
		ChunkSize:    cfg.Ingestion.ChunkSize,
		ChunkOverlap: cfg.Ingestion.ChunkOverlap,
	}

	brokers := strings.Split(cfg.Ingestion.KafkaBrokers, ",")
	consumer := ingestion.NewConsumer(brokers, "ingestworker", cfg.Ingestion.Topic, cfg.Ingestion.DLQTopic, processor, cfg.Ingestion.Concurrency, cfg.Ingestion.MaxRetries)

	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		log.Info().Msg("ingestworker health endpoint listening on :8081")
		if err := http.ListenAndServe(":8081", mux); err != nil {
			log.Warn().Err(err).Msg("ingestworker health endpoint stopped")
		}
	}()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	log.Info().Str("topic", cfg.Ingestion.Topic).Int("concurrency", cfg.Ingestion.Concurrency).Msg("ingestworker consuming")
	if err := consumer.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("ingestion consumer failed")
	}
}
