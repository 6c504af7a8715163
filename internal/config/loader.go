package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/nextlevelbuilder/convoy/internal/version"
)

// Load reads configuration from environment variables, applying an .env
// overlay first when present so local development can override the shell
// environment deterministically.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.HTTPAddr = firstNonEmpty(os.Getenv("HTTP_ADDR"), ":8080")

	cfg.Postgres.DSN = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.Redis.Addr = firstNonEmpty(os.Getenv("REDIS_ADDR"), "localhost:6379")
	cfg.Redis.CacheTTLSeconds = intFromEnv("CACHE_TTL_SECONDS", 3600)
	cfg.Redis.DialTimeoutSeconds = intFromEnv("REDIS_DIAL_TIMEOUT_SECONDS", 5)

	cfg.Vector.Backend = firstNonEmpty(os.Getenv("VECTOR_BACKEND"), "postgres")
	cfg.Vector.Dimension = intFromEnv("VECTOR_DIMENSION", 1024)
	cfg.Vector.QdrantHost = strings.TrimSpace(os.Getenv("QDRANT_HOST"))
	cfg.Vector.QdrantPort = intFromEnv("QDRANT_PORT", 6334)

	cfg.ClickHouse.DSN = strings.TrimSpace(os.Getenv("CLICKHOUSE_DSN"))
	cfg.ClickHouse.Table = firstNonEmpty(os.Getenv("CLICKHOUSE_AUDIT_TABLE"), "audit_events")

	cfg.Embedding.APIKey = strings.TrimSpace(os.Getenv("EMBED_API_KEY"))
	cfg.Embedding.BaseURL = strings.TrimSpace(os.Getenv("EMBED_BASE_URL"))
	cfg.Embedding.Model = firstNonEmpty(os.Getenv("EMBED_MODEL"), "text-embedding-3-large")

	cfg.LLM.Provider = firstNonEmpty(os.Getenv("LLM_PROVIDER"), "openai")
	cfg.LLM.OpenAI.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.LLM.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	cfg.LLM.OpenAI.Model = firstNonEmpty(os.Getenv("OPENAI_MODEL"), "gpt-4o-mini")
	cfg.LLM.Anthropic.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.LLM.Anthropic.Model = firstNonEmpty(os.Getenv("ANTHROPIC_MODEL"), "claude-3-5-haiku-latest")
	cfg.LLM.Google.APIKey = strings.TrimSpace(os.Getenv("GOOGLE_LLM_API_KEY"))
	cfg.LLM.Google.Model = firstNonEmpty(os.Getenv("GOOGLE_LLM_MODEL"), "gemini-1.5-flash")

	cfg.Ingestion.KafkaBrokers = strings.TrimSpace(firstNonEmpty(os.Getenv("KAFKA_BROKERS"), os.Getenv("KAFKA_BOOTSTRAP_SERVERS")))
	cfg.Ingestion.Topic = firstNonEmpty(os.Getenv("INGESTION_TOPIC"), "knowledge.chunk-and-embed")
	cfg.Ingestion.DLQTopic = firstNonEmpty(os.Getenv("INGESTION_DLQ_TOPIC"), "knowledge.chunk-and-embed.dlq")
	cfg.Ingestion.Concurrency = intFromEnv("INGESTION_CONCURRENCY", 5)
	cfg.Ingestion.MaxRetries = intFromEnv("INGESTION_MAX_RETRIES", 3)
	cfg.Ingestion.ChunkSize = intFromEnv("INGESTION_CHUNK_SIZE", 1000)
	cfg.Ingestion.ChunkOverlap = intFromEnv("INGESTION_CHUNK_OVERLAP", 200)
	cfg.Ingestion.EmbedBatchSize = intFromEnv("INGESTION_EMBED_BATCH_SIZE", 20)

	cfg.Obs.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), "info")
	cfg.Obs.ServiceName = firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "convoy")
	cfg.Obs.ServiceVersion = firstNonEmpty(os.Getenv("SERVICE_VERSION"), version.Version)
	cfg.Obs.Environment = firstNonEmpty(os.Getenv("ENVIRONMENT"), "development")
	cfg.Obs.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	cfg.Retrieval.TopK = intFromEnv("RETRIEVAL_TOP_K", 5)
	cfg.Retrieval.ConfidenceThreshold = floatFromEnv("RETRIEVAL_CONFIDENCE_THRESHOLD", 0.55)
	cfg.Retrieval.CacheSimilarity = floatFromEnv("CACHE_SIMILARITY_THRESHOLD", 0.95)

	cfg.S3.Endpoint = strings.TrimSpace(os.Getenv("KNOWLEDGE_S3_ENDPOINT"))
	cfg.S3.Region = firstNonEmpty(os.Getenv("KNOWLEDGE_S3_REGION"), "us-east-1")
	cfg.S3.Bucket = strings.TrimSpace(os.Getenv("KNOWLEDGE_S3_BUCKET"))
	cfg.S3.Prefix = firstNonEmpty(os.Getenv("KNOWLEDGE_S3_PREFIX"), "knowledge-sources")
	cfg.S3.AccessKey = strings.TrimSpace(os.Getenv("KNOWLEDGE_S3_ACCESS_KEY"))
	cfg.S3.SecretKey = strings.TrimSpace(os.Getenv("KNOWLEDGE_S3_SECRET_KEY"))
	cfg.S3.UsePathStyle = boolFromEnv("KNOWLEDGE_S3_USE_PATH_STYLE", false)
	cfg.S3.TLSInsecureSkipVerify = boolFromEnv("KNOWLEDGE_S3_TLS_INSECURE", false)
	cfg.S3.SSE.Mode = strings.TrimSpace(os.Getenv("KNOWLEDGE_S3_SSE_MODE"))
	cfg.S3.SSE.KMSKeyID = strings.TrimSpace(os.Getenv("KNOWLEDGE_S3_SSE_KMS_KEY_ID"))

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
