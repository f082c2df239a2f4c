package config

import (
	"bufio"
	"bytes"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true" desc:"postgres://... or sqlite://path/to/file.db"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"docchat-uploads"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	UploadDir   string `envconfig:"UPLOAD_DIR" default:"./uploads"`

	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	ChatModel           string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	ChunkSize              int           `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap           int           `envconfig:"CHUNK_OVERLAP" default:"200"`
	SimilarityThreshold    float64       `envconfig:"SIMILARITY_THRESHOLD" default:"0.5"`
	MaxContextLength       int           `envconfig:"MAX_CONTEXT_LENGTH" default:"4000"`
	EmbeddingBatchSize     int           `envconfig:"EMBEDDING_BATCH_SIZE" default:"10"`
	EmbeddingBatchInterval time.Duration `envconfig:"EMBEDDING_BATCH_INTERVAL" default:"1s"`
	ExtractTimeout         time.Duration `envconfig:"EXTRACT_TIMEOUT" default:"10s"`

	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"5s"`

	SnapshotPath string `envconfig:"SNAPSHOT_PATH" desc:"vector store snapshot written on shutdown and read on startup"`
	InboxDir     string `envconfig:"INBOX_DIR" desc:"files dropped here are uploaded automatically"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

// Prefix is prepended to every environment variable name
const Prefix = "DOCCHAT"

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be less than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

// UsesSQLite reports whether DatabaseURL points at an embedded SQLite file.
func (c *Config) UsesSQLite() bool {
	return strings.HasPrefix(c.DatabaseURL, "sqlite://")
}

// SQLitePath returns the file path portion of a sqlite:// DatabaseURL.
func (c *Config) SQLitePath() string {
	return strings.TrimPrefix(c.DatabaseURL, "sqlite://")
}

// Variable describes one environment variable read by Load.
type Variable struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

const variableFormat = "{{range .}}{{usage_key .}}\t{{usage_type .}}\t{{usage_default .}}\t{{usage_required .}}\t{{usage_description .}}\n{{end}}"

// Variables lists the environment variables Load reads, in field order.
func Variables() ([]Variable, error) {
	var buf bytes.Buffer
	if err := envconfig.Usagef(Prefix, &Config{}, &buf, variableFormat); err != nil {
		return nil, fmt.Errorf("failed to describe config: %w", err)
	}

	var vars []Variable
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != 5 {
			continue
		}
		vars = append(vars, Variable{
			Name:        fields[0],
			Type:        fields[1],
			Default:     fields[2],
			Required:    fields[3] == "true",
			Description: fields[4],
		})
	}
	return vars, scanner.Err()
}
