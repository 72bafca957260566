package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	LLM         LLMConfig
	GigaChat    GigaChatConfig
	Embedding   EmbeddingConfig
	VectorStore VectorStoreConfig
	Storage     StorageConfig
	RAG         RAGConfig
	Chunking    ChunkingConfig
	Ingest      IngestConfig
	Timeouts    TimeoutConfig
	Logger      LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimitMB  int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
	RefreshExp time.Duration
}

// LLMConfig selects the completion provider. Provider is "openai" or "gigachat".
type LLMConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	InsecureSkipVerify bool
}

type EmbeddingConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

type VectorStoreConfig struct {
	Backend    string // qdrant | redis | pgvector | memory
	Collection string
	Qdrant     QdrantConfig
	Redis      RedisConfig
}

type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

type RedisConfig struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

type StorageConfig struct {
	Backend       string // minio | local
	UploadDir     string
	PublicBaseURL string
	MinIO         MinIOConfig
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

type RAGConfig struct {
	TopK            int
	MaxContextChars int
	SessionIDMode   string // random | hash
}

type ChunkingConfig struct {
	ChunkSize     int
	MinCharacters int
}

type IngestConfig struct {
	PurgeExistingChunks bool
	Concurrency         int
	PreviewLength       int
}

type TimeoutConfig struct {
	Storage     time.Duration
	Embedding   time.Duration
	VectorStore time.Duration
	Completion  time.Duration
}

// Load reads configuration from the process environment. A .env file is
// picked up if present, and CONFIG_FILE may point to a YAML file of
// KEY: value pairs used as defaults underneath the environment.
func Load() (*Config, error) {
	// Try to load .env file from current directory or project root
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	file := map[string]string{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		values, err := readYAML(path)
		if err != nil {
			return nil, err
		}
		file = values
	}

	cfg := build(func(key string) string {
		if value := os.Getenv(key); value != "" {
			return value
		}
		return file[key]
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case []any:
			parts := make([]string, 0, len(t))
			for _, item := range t {
				parts = append(parts, fmt.Sprint(item))
			}
			values[strings.ToUpper(k)] = strings.Join(parts, ",")
		case nil:
		default:
			values[strings.ToUpper(k)] = fmt.Sprint(t)
		}
	}
	return values, nil
}

func build(lookup func(string) string) *Config {
	e := env{lookup: lookup}

	return &Config{
		Server: ServerConfig{
			Port:         e.get("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(e.int("SERVER_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout: time.Duration(e.int("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
			BodyLimitMB:  e.int("SERVER_BODY_LIMIT_MB", 50),
		},
		Database: DatabaseConfig{
			Host:     e.get("DB_HOST", "localhost"),
			Port:     e.get("DB_PORT", "5432"),
			User:     e.get("DB_USER", "postgres"),
			Password: e.get("DB_PASSWORD", "postgres"),
			DBName:   e.get("DB_NAME", "rag_kb"),
			SSLMode:  e.get("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey:  e.get("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: time.Duration(e.int("JWT_EXPIRATION_HOURS", 24)) * time.Hour,
			RefreshExp: time.Duration(e.int("JWT_REFRESH_EXPIRATION_HOURS", 168)) * time.Hour,
		},
		LLM: LLMConfig{
			Provider:    e.get("LLM_PROVIDER", "openai"),
			APIKey:      e.get("OPENAI_API_KEY", ""),
			BaseURL:     e.get("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       e.get("OPENAI_MODEL", "gpt-4o-mini"),
			MaxTokens:   e.int("LLM_MAX_TOKENS", 500),
			Temperature: float32(e.float("LLM_TEMPERATURE", 0.7)),
		},
		GigaChat: GigaChatConfig{
			APIKey:             e.get("GIGACHAT_API_KEY", ""),
			Scope:              e.get("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			Model:              e.get("GIGACHAT_MODEL", "GigaChat"),
			InsecureSkipVerify: e.bool("GIGACHAT_INSECURE_SKIP_VERIFY", true),
		},
		Embedding: EmbeddingConfig{
			APIKey:    e.get("EMBEDDING_API_KEY", ""),
			BaseURL:   e.get("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
			Model:     e.get("EMBEDDING_MODEL_NAME", "text-embedding-3-small"),
			Dimension: e.int("EMBEDDING_DIM", 1024),
		},
		VectorStore: VectorStoreConfig{
			Backend:    e.get("VECTOR_BACKEND", "qdrant"),
			Collection: e.get("VECTOR_COLLECTION_NAME", "knowledge_base"),
			Qdrant: QdrantConfig{
				Host:   e.get("QDRANT_HOST", "localhost"),
				Port:   e.int("QDRANT_PORT", 6334),
				APIKey: e.get("QDRANT_API_KEY", ""),
				UseTLS: e.bool("QDRANT_USE_TLS", false),
			},
			Redis: RedisConfig{
				Addrs:    e.list("REDIS_ADDRS", "localhost:6379"),
				Username: e.get("REDIS_USERNAME", ""),
				Password: e.get("REDIS_PASSWORD", ""),
				DB:       e.int("REDIS_DB", 0),
			},
		},
		Storage: StorageConfig{
			Backend:       e.get("STORAGE_BACKEND", "minio"),
			UploadDir:     e.get("UPLOAD_DIR", "uploads"),
			PublicBaseURL: e.get("PUBLIC_BASE_URL", "http://localhost:8080"),
			MinIO: MinIOConfig{
				Endpoint:  e.get("MINIO_ENDPOINT", "localhost:9000"),
				AccessKey: e.get("MINIO_ACCESS_KEY", "minioadmin"),
				SecretKey: e.get("MINIO_SECRET_KEY", "minioadmin"),
				Bucket:    e.get("MINIO_BUCKET_NAME", "knowledge-base"),
				Secure:    e.bool("MINIO_SECURE", false),
			},
		},
		RAG: RAGConfig{
			TopK:            e.int("RAG_TOP_K", 5),
			MaxContextChars: e.int("RAG_MAX_CONTEXT_CHARS", 4000),
			SessionIDMode:   e.get("CHAT_SESSION_ID_MODE", "random"),
		},
		Chunking: ChunkingConfig{
			ChunkSize:     e.int("CHUNK_SIZE", 500),
			MinCharacters: e.int("CHUNK_MIN_CHARACTERS", 24),
		},
		Ingest: IngestConfig{
			PurgeExistingChunks: e.bool("INGEST_PURGE_EXISTING_CHUNKS", false),
			Concurrency:         e.int("INGEST_CONCURRENCY", 1),
			PreviewLength:       e.int("INGEST_PREVIEW_LENGTH", 500),
		},
		Timeouts: TimeoutConfig{
			Storage:     e.duration("TIMEOUT_STORAGE", 30*time.Second),
			Embedding:   e.duration("TIMEOUT_EMBEDDING", 20*time.Second),
			VectorStore: e.duration("TIMEOUT_VECTOR", 10*time.Second),
			Completion:  e.duration("TIMEOUT_COMPLETION", 60*time.Second),
		},
		Logger: LoggerConfig{
			Level: e.get("LOG_LEVEL", "info"),
		},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Embedding.Dimension <= 0 {
		errs = append(errs, errors.New("EMBEDDING_DIM must be positive"))
	}
	switch c.VectorStore.Backend {
	case "qdrant", "redis", "pgvector", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorStore.Backend))
	}
	switch c.Storage.Backend {
	case "minio", "local":
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend))
	}
	switch c.LLM.Provider {
	case "openai", "gigachat":
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider))
	}
	switch c.RAG.SessionIDMode {
	case "random", "hash":
	default:
		errs = append(errs, fmt.Errorf("unknown CHAT_SESSION_ID_MODE %q", c.RAG.SessionIDMode))
	}
	if c.Chunking.ChunkSize <= 0 || c.Chunking.MinCharacters < 0 || c.Chunking.MinCharacters >= c.Chunking.ChunkSize {
		errs = append(errs, errors.New("CHUNK_MIN_CHARACTERS must be non-negative and below CHUNK_SIZE"))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, errors.New("RAG_TOP_K must be positive"))
	}
	if c.Ingest.Concurrency <= 0 {
		errs = append(errs, errors.New("INGEST_CONCURRENCY must be positive"))
	}

	return errors.Join(errs...)
}

type env struct {
	lookup func(string) string
}

func (e env) get(key, defaultValue string) string {
	if value := e.lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func (e env) int(key string, defaultValue int) int {
	n, err := strconv.Atoi(e.get(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

func (e env) float(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(e.get(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func (e env) bool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(e.get(key, ""))
	if err != nil {
		return defaultValue
	}
	return b
}

func (e env) duration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(e.get(key, ""))
	if err != nil {
		return defaultValue
	}
	return d
}

func (e env) list(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(e.get(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
