package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	VectorBackendPgvector = "pgvector"
	VectorBackendWeaviate = "weaviate"
)

type Config struct {
	DatabaseURL string
	SslCertPath string
	Port        string
	JWTSecret   string

	AIAPIKey   string
	EmbedModel string
	EmbedDim   int
	GenModel   string

	VectorBackend  string
	WeaviateHost   string
	WeaviateScheme string
	WeaviateAPIKey string
	WeaviateClass  string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	ArchiveEnabled bool
	AwsAccessKey   string
	AwsSecretKey   string
	AwsRegion      string
	BucketName     string

	PagesPerChunk      int
	MinChunkTextLength int
	ExtractConcurrency int
	IngestWorkers      int
	DownloadTimeout    time.Duration
	WorkDir            string

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxJitter   time.Duration
	ExternalRPS      float64
	ExternalBurst    int

	LogLevel  string
	LogFormat string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbedModel: getEnv("EMBED_MODEL", "gemini-embedding-001"),
		EmbedDim:   getEnvInt("EMBED_DIM", 3072),
		GenModel:   getEnv("GEN_MODEL", "gemini-2.5-flash"),

		VectorBackend:  strings.ToLower(getEnv("VECTOR_BACKEND", VectorBackendPgvector)),
		WeaviateHost:   getEnv("WEAVIATE_HOST", "localhost:8081"),
		WeaviateScheme: getEnv("WEAVIATE_SCHEME", "http"),
		WeaviateAPIKey: getEnv("WEAVIATE_API_KEY", ""),
		WeaviateClass:  getEnv("WEAVIATE_CLASS", "ExamChunk"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 24*time.Hour),

		ArchiveEnabled: getEnvBool("ARCHIVE_ENABLED", false),
		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:      getEnv("AWS_REGION", "us-east-2"),
		BucketName:     getEnv("BUCKET_NAME", "examvault-docs"),

		PagesPerChunk:      getEnvInt("PAGES_PER_CHUNK", 8),
		MinChunkTextLength: getEnvInt("MIN_CHUNK_TEXT", 50),
		ExtractConcurrency: getEnvInt("EXTRACT_CONCURRENCY", 2),
		IngestWorkers:      getEnvInt("INGEST_WORKERS", 2),
		DownloadTimeout:    getEnvDuration("DOWNLOAD_TIMEOUT", 60*time.Second),
		WorkDir:            getEnv("WORK_DIR", os.TempDir()),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),
		RetryMaxJitter:   getEnvDuration("RETRY_MAX_JITTER", time.Second),
		ExternalRPS:      getEnvFloat("EXTERNAL_RPS", 1),
		ExternalBurst:    getEnvInt("EXTERNAL_BURST", 5),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	return cfg
}

// Validate reports every missing or out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET not set"))
	}
	if c.AIAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY not set"))
	}
	if c.PagesPerChunk < 1 {
		errs = append(errs, fmt.Errorf("PAGES_PER_CHUNK must be >= 1, got %d", c.PagesPerChunk))
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1, got %d", c.RetryMaxAttempts))
	}
	switch c.VectorBackend {
	case VectorBackendPgvector:
	case VectorBackendWeaviate:
		if c.WeaviateHost == "" {
			errs = append(errs, errors.New("WEAVIATE_HOST not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend))
	}
	if c.ArchiveEnabled && (c.AwsAccessKey == "" || c.AwsSecretKey == "") {
		errs = append(errs, errors.New("ARCHIVE_ENABLED requires AWS_ACCESS_KEY and AWS_SECRET_KEY"))
	}
	return errors.Join(errs...)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a number, using default %v", key, v, def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
