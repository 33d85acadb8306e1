package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/notesrag/internal/apperr"
	"github.com/starford/notesrag/internal/models"
	"github.com/starford/notesrag/internal/tenant"
)

// DefaultMaxMatchCount caps caller-supplied match counts.
const DefaultMaxMatchCount = 50

// Embedder maps the question to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces the answer text.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Store is the read side of storage the orchestrator needs.
type Store interface {
	Searcher
	TitleLookup
}

// Config holds the retrieval limits.
type Config struct {
	MatchLimit    int
	CitationLimit int
	SnippetLen    int
	MaxMatchCount int
}

// Answer is the result of one question.
type Answer struct {
	Answer  string            `json:"answer"`
	Sources []models.Citation `json:"sources"`
}

// Orchestrator answers questions for a tenant.
type Orchestrator struct {
	embedder  Embedder
	retriever *Retriever
	assembler *Assembler
	generator Generator
	cfg       Config
	logger    *slog.Logger
}

// NewOrchestrator wires the collaborators. Zero limits take the defaults.
func NewOrchestrator(embedder Embedder, store Store, generator Generator, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MatchLimit <= 0 {
		cfg.MatchLimit = DefaultMatchLimit
	}
	if cfg.MaxMatchCount <= 0 {
		cfg.MaxMatchCount = DefaultMaxMatchCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		embedder:  embedder,
		retriever: NewRetriever(store),
		assembler: NewAssembler(store, cfg.CitationLimit, cfg.SnippetLen),
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Answer embeds the question, retrieves and assembles context, and returns
// the generated text with its sources. matchCount overrides the configured
// match limit when positive. Any collaborator failure fails the whole
// question; no partial sources are returned.
func (o *Orchestrator) Answer(ctx context.Context, key tenant.Key, question string, matchCount int) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("rag: empty question: %w", apperr.ErrInvalidInput)
	}

	vec, err := o.embedder.Embed(ctx, question)
	if err != nil {
		return nil, o.failed("embed question", key, fmt.Errorf("rag: embed question: %w", wrapSentinel(err, apperr.ErrEmbedding)))
	}

	matches, err := o.retriever.Retrieve(ctx, key, vec, o.matchLimit(matchCount))
	if err != nil {
		return nil, o.failed("retrieve", key, err)
	}

	asm, err := o.assembler.Assemble(ctx, key, matches)
	if err != nil {
		return nil, o.failed("assemble", key, err)
	}

	text, err := o.generator.Generate(ctx, SystemMessage, BuildPrompt(question, asm.Blocks))
	if err != nil {
		return nil, o.failed("generate", key, fmt.Errorf("rag: generate: %w", wrapSentinel(err, apperr.ErrGeneration)))
	}

	o.logger.Debug("rag: answered",
		slog.String("tenant", key.String()),
		slog.Int("matches", len(matches)),
		slog.Int("sources", len(asm.Citations)))
	return &Answer{Answer: text, Sources: asm.Citations}, nil
}

func (o *Orchestrator) matchLimit(requested int) int {
	if requested <= 0 {
		return o.cfg.MatchLimit
	}
	return min(requested, o.cfg.MaxMatchCount)
}

func (o *Orchestrator) failed(step string, key tenant.Key, err error) error {
	o.logger.Error("rag: answer failed",
		slog.String("step", step),
		slog.String("tenant", key.String()),
		slog.String("error", err.Error()))
	return err
}

// wrapSentinel attaches sentinel unless err already carries it.
func wrapSentinel(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
