package internal

import (
	"io"

	"github.com/starford/notesrag/internal/rag"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	embedder  rag.Embedder
	generator rag.Generator
	logOutput io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithModels replaces the OpenAI client with other collaborators.
func WithModels(embedder rag.Embedder, generator rag.Generator) Option {
	return func(a *application) {
		a.embedder = embedder
		a.generator = generator
	}
}

// WithLogOutput sends JSON logs to w instead of stdout.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}
