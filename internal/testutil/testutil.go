// Package testutil provides shared test helpers for databases, inbox folders
// and the model collaborators.
package testutil

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/starford/notesrag/internal/index"
	"github.com/starford/notesrag/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "notesrag-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInbox creates a temporary drop folder with a storage.Provider.
func TestInbox(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// ErrFake is returned by fakes configured to fail.
var ErrFake = errors.New("fake collaborator failure")

// Embedder is a deterministic in-process embedder. Texts sharing more
// letters have higher cosine similarity.
type Embedder struct {
	mu    sync.Mutex
	calls int
	// FailOn makes Embed fail for any text containing it.
	FailOn string
}

// Embed returns a 26-dimensional letter-frequency vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.FailOn != "" && strings.Contains(text, e.FailOn) {
		return nil, ErrFake
	}
	vec := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec, nil
}

// Calls returns how many times Embed was called.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Generator records the last prompt and returns a fixed reply.
type Generator struct {
	mu     sync.Mutex
	Reply  string
	Err    error
	System string
	Prompt string
}

// Generate stores the prompt and returns Reply or Err.
func (g *Generator) Generate(_ context.Context, system, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.System = system
	g.Prompt = prompt
	if g.Err != nil {
		return "", g.Err
	}
	return g.Reply, nil
}

// LastPrompt returns the most recent prompt.
func (g *Generator) LastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Prompt
}
