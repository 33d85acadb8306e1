package rag

import (
	"fmt"
	"strings"

	"github.com/starford/notesrag/internal/models"
)

// SystemMessage is sent as the system role of every chat completion.
const SystemMessage = "You are a helpful assistant."

// Policy is the answering policy appended to every prompt.
const Policy = `Instructions:
- Answer strictly from the context above.
- If the answer is not in the context, say you don't have enough information.
- Keep answers concise.
- Cite sources inline like (See: Title).`

// BuildPrompt renders the question and numbered context blocks. An empty
// block list still produces a prompt so the generator reports insufficient
// context itself.
func BuildPrompt(question string, blocks []models.ContextBlock) string {
	var b strings.Builder
	b.WriteString("You are an assistant answering questions strictly using the provided notes context.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\nContext:\n", question)
	for i, blk := range blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] Title: %s\n%s", i+1, blk.Title, blk.Content)
	}
	b.WriteString("\n\n")
	b.WriteString(Policy)
	return b.String()
}
