package rag

import (
	"context"
	"fmt"

	"github.com/starford/notesrag/internal/apperr"
	"github.com/starford/notesrag/internal/models"
	"github.com/starford/notesrag/internal/tenant"
)

// Assembly defaults.
const (
	DefaultCitationLimit = 8
	DefaultSnippetLen    = 180
	UntitledTitle        = "Untitled"
)

// TitleLookup resolves document ids to display titles in one call.
type TitleLookup interface {
	GetTitles(ctx context.Context, tenantKey string, ids []string) (map[string]string, error)
}

// Assembly is the grounding context and the caller-facing citations.
type Assembly struct {
	Blocks    []models.ContextBlock
	Citations []models.Citation
}

// Assembler builds an Assembly from ranked matches.
type Assembler struct {
	titles        TitleLookup
	citationLimit int
	snippetLen    int
}

// NewAssembler creates an Assembler. Non-positive limits take the defaults.
func NewAssembler(titles TitleLookup, citationLimit, snippetLen int) *Assembler {
	if citationLimit <= 0 {
		citationLimit = DefaultCitationLimit
	}
	if snippetLen <= 0 {
		snippetLen = DefaultSnippetLen
	}
	return &Assembler{titles: titles, citationLimit: citationLimit, snippetLen: snippetLen}
}

// Assemble looks up titles for the distinct documents in matches and builds
// the assembly.
func (a *Assembler) Assemble(ctx context.Context, key tenant.Key, matches []models.Match) (Assembly, error) {
	ids := distinctDocuments(matches)
	titles := map[string]string{}
	if len(ids) > 0 {
		got, err := a.titles.GetTitles(ctx, key.String(), ids)
		if err != nil {
			return Assembly{}, fmt.Errorf("rag: title lookup: %w", wrapSentinel(err, apperr.ErrRetrieval))
		}
		titles = got
	}
	return Assemble(matches, titles, a.citationLimit, a.snippetLen), nil
}

// Assemble produces one context block per match in match order, and at most
// citationLimit citations de-duplicated by document id in first-seen order.
func Assemble(matches []models.Match, titles map[string]string, citationLimit, snippetLen int) Assembly {
	out := Assembly{
		Blocks:    make([]models.ContextBlock, 0, len(matches)),
		Citations: []models.Citation{},
	}
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		title := titles[m.DocumentID]
		if title == "" {
			title = UntitledTitle
		}
		out.Blocks = append(out.Blocks, models.ContextBlock{Title: title, Content: m.Content})

		if seen[m.DocumentID] || len(out.Citations) >= citationLimit {
			continue
		}
		seen[m.DocumentID] = true
		out.Citations = append(out.Citations, models.Citation{
			NoteID:  m.DocumentID,
			Title:   title,
			Snippet: snippet(m.Content, snippetLen),
		})
	}
	return out
}

func distinctDocuments(matches []models.Match) []string {
	seen := make(map[string]bool, len(matches))
	var ids []string
	for _, m := range matches {
		if !seen[m.DocumentID] {
			seen[m.DocumentID] = true
			ids = append(ids, m.DocumentID)
		}
	}
	return ids
}

// snippet returns the first n characters of s.
func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
