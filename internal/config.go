package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notesrag/internal/chunker"
	"github.com/starford/notesrag/internal/ingest"
	"github.com/starford/notesrag/internal/llm"
	"github.com/starford/notesrag/internal/rag"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Chunking  ChunkingConfig    `yaml:"chunking"`
	Retrieval RetrievalConfig   `yaml:"retrieval"`
	Ingest    IngestConfig      `yaml:"ingest"`
	OpenAI    OpenAIConfig      `yaml:"openai"`
	Identity  IdentityConfig    `yaml:"identity"`
	Inbox     InboxConfig       `yaml:"inbox"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.SQLite, &c.Auth, &c.Chunking, &c.Retrieval, &c.Ingest, &c.OpenAI, &c.Inbox,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if c.Inbox.Enabled && strings.TrimSpace(c.Identity.Seed) == "" {
		return errors.New("inbox: enabled but identity.seed is empty")
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// ChunkingConfig is the window policy for splitting documents.
type ChunkingConfig struct {
	MaxLen  int `yaml:"max_len"`
	Overlap int `yaml:"overlap"`
}

// Validate rejects policies that would never advance.
func (c *ChunkingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxLen, validation.Required, validation.Min(1)),
		validation.Field(&c.Overlap, validation.Min(0), validation.Max(c.MaxLen-1).Error("must be less than max_len")),
	)
}

// Chunker builds the configured chunker.
func (c *ChunkingConfig) Chunker() (*chunker.Chunker, error) {
	return chunker.New(c.MaxLen, c.Overlap)
}

// RetrievalConfig bounds retrieval and citation output.
type RetrievalConfig struct {
	MatchLimit    int `yaml:"match_limit"`
	CitationLimit int `yaml:"citation_limit"`
	SnippetLen    int `yaml:"snippet_len"`
	MaxMatchCount int `yaml:"max_match_count"`
}

// Validate validates the retrieval configuration.
func (c *RetrievalConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MatchLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.CitationLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.SnippetLen, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxMatchCount, validation.Required, validation.Min(c.MatchLimit).Error("must be at least match_limit")),
	)
}

// Rag converts to the orchestrator configuration.
func (c *RetrievalConfig) Rag() rag.Config {
	return rag.Config{
		MatchLimit:    c.MatchLimit,
		CitationLimit: c.CitationLimit,
		SnippetLen:    c.SnippetLen,
		MaxMatchCount: c.MaxMatchCount,
	}
}

// IngestConfig bounds ingestion parallelism.
type IngestConfig struct {
	DocumentWorkers int `yaml:"document_workers"`
	ChunkWorkers    int `yaml:"chunk_workers"`
}

// Validate validates the ingest configuration.
func (c *IngestConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DocumentWorkers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.ChunkWorkers, validation.Required, validation.Min(1), validation.Max(64)),
	)
}

// Pipeline converts to the pipeline configuration.
func (c *IngestConfig) Pipeline() ingest.Config {
	return ingest.Config{DocumentWorkers: c.DocumentWorkers, ChunkWorkers: c.ChunkWorkers}
}

// OpenAIConfig configures the OpenAI-compatible embeddings and chat endpoints.
type OpenAIConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	EmbeddingModel    string        `yaml:"embedding_model"`
	ChatModel         string        `yaml:"chat_model"`
	Temperature       float64       `yaml:"temperature"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// Validate validates the OpenAI configuration. An empty API key is allowed
// for local OpenAI-compatible servers.
func (c *OpenAIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.EmbeddingModel, validation.Required),
		validation.Field(&c.ChatModel, validation.Required),
		validation.Field(&c.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.Timeout, validation.Required),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
	)
}

// Client converts to the llm client configuration.
func (c *OpenAIConfig) Client() llm.Config {
	return llm.Config{
		BaseURL:           c.BaseURL,
		APIKey:            c.APIKey,
		EmbeddingModel:    c.EmbeddingModel,
		ChatModel:         c.ChatModel,
		Temperature:       c.Temperature,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
	}
}

// IdentityConfig is the tenant seed used by the CLI, MCP server and inbox.
// HTTP callers pass their own seed per request.
type IdentityConfig struct {
	Seed string `yaml:"seed"`
}

// InboxConfig configures the optional watched drop folder.
type InboxConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Path       string   `yaml:"path"`
	Extensions []string `yaml:"extensions"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./notesrag.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Chunking: ChunkingConfig{
			MaxLen:  chunker.DefaultMaxLen,
			Overlap: chunker.DefaultOverlap,
		},
		Retrieval: RetrievalConfig{
			MatchLimit:    rag.DefaultMatchLimit,
			CitationLimit: rag.DefaultCitationLimit,
			SnippetLen:    rag.DefaultSnippetLen,
			MaxMatchCount: rag.DefaultMaxMatchCount,
		},
		Ingest: IngestConfig{
			DocumentWorkers: 4,
			ChunkWorkers:    4,
		},
		OpenAI: OpenAIConfig{
			BaseURL:           llm.DefaultBaseURL,
			EmbeddingModel:    llm.DefaultEmbeddingModel,
			ChatModel:         llm.DefaultChatModel,
			Temperature:       0.2,
			Timeout:           llm.DefaultTimeout,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Inbox: InboxConfig{
			Path:       "./inbox",
			Extensions: []string{".md", ".txt"},
		},
	}
}
