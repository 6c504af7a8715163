// Package config loads runtime configuration for the orchestration engine
// and its ingestion worker from environment variables (with an optional
// .env overlay for local development).
package config

// PostgresConfig points at the tenant-scoped persistence gateway's backing
// store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig backs the semantic cache.
type RedisConfig struct {
	Addr              string `yaml:"addr"`
	CacheTTLSeconds   int    `yaml:"cache_ttl_seconds"`
	DialTimeoutSeconds int   `yaml:"dial_timeout_seconds"`
}

// VectorConfig selects and configures the retrieval backend. Backend is
// "postgres" (reference linear-scan semantics) or "qdrant" (ANN).
type VectorConfig struct {
	Backend    string `yaml:"backend"`
	Dimension  int    `yaml:"dimension"`
	QdrantHost string `yaml:"qdrant_host"`
	QdrantPort int    `yaml:"qdrant_port"`
}

// ClickHouseConfig backs the async audit event sink.
type ClickHouseConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// EmbeddingConfig configures the embedding provider used by retrieval and
// ingestion.
type EmbeddingConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// LLMConfig selects the generation provider ("openai", "anthropic", or
// "google") and carries per-provider credentials.
type LLMConfig struct {
	Provider string         `yaml:"provider"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Google   GoogleConfig   `yaml:"google"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type GoogleConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// IngestionConfig configures the ingestion worker pool.
type IngestionConfig struct {
	KafkaBrokers   string `yaml:"kafka_brokers"`
	Topic          string `yaml:"topic"`
	DLQTopic       string `yaml:"dlq_topic"`
	Concurrency    int    `yaml:"concurrency"`
	MaxRetries     int    `yaml:"max_retries"`
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	EmbedBatchSize int    `yaml:"embed_batch_size"`
}

// S3SSEConfig configures server-side encryption for objects the ingestion
// pipeline writes or reads.
type S3SSEConfig struct {
	Mode     string `yaml:"mode"` // "", "sse-s3", or "sse-kms"
	KMSKeyID string `yaml:"kms_key_id"`
}

// S3Config points the file-kind knowledge source extractor at the blob
// store backing uploaded documents. Works against AWS S3 or any
// S3-compatible service (e.g. MinIO) via Endpoint/UsePathStyle.
type S3Config struct {
	Endpoint              string      `yaml:"endpoint"`
	Region                string      `yaml:"region"`
	Bucket                string      `yaml:"bucket"`
	Prefix                string      `yaml:"prefix"`
	AccessKey             string      `yaml:"access_key"`
	SecretKey             string      `yaml:"secret_key"`
	UsePathStyle          bool        `yaml:"use_path_style"`
	TLSInsecureSkipVerify bool        `yaml:"tls_insecure_skip_verify"`
	SSE                   S3SSEConfig `yaml:"sse"`
}

// ObsConfig configures structured logging and OpenTelemetry export.
type ObsConfig struct {
	LogLevel       string `yaml:"log_level"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

// RetrievalConfig tunes the conversational pipeline's retrieval and
// confidence behavior.
type RetrievalConfig struct {
	TopK                int     `yaml:"top_k"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	CacheSimilarity     float64 `yaml:"cache_similarity_threshold"`
}

// Config is the fully resolved runtime configuration.
type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	Postgres  PostgresConfig
	Redis     RedisConfig
	Vector    VectorConfig
	ClickHouse ClickHouseConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Ingestion IngestionConfig
	Obs       ObsConfig
	Retrieval RetrievalConfig
	S3        S3Config
}
