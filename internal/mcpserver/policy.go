package mcpserver

// AnswerPolicy describes how ask_notes builds answers, so MCP clients know
// what the returned text and sources mean.
const AnswerPolicy = `# notesrag Answer Policy

Answers from ask_notes are grounded only in the caller's own ingested notes.

## Retrieval

- The question is embedded and compared by cosine similarity against every
  chunk of the configured identity's processed documents.
- The highest scoring chunks (match_count, default 8) become numbered context
  blocks of the form ` + "`[n] Title: <title>`" + ` followed by the chunk text.
- Documents from other identities are never visible.

## Answer

- The model answers strictly from the context blocks.
- When the context does not contain the answer it says there is not enough
  information instead of guessing.
- Answers are concise and cite sources inline as ` + "`(See: Title)`" + `.

## Sources

- ` + "`sources`" + ` lists each matched document once, in order of best match.
- Each source carries ` + "`noteId`" + `, ` + "`title`" + ` and a 180 character ` + "`snippet`" + `
  of the best matching chunk.

## Ingestion

- ingest_note stores the text as a new document; re-ingesting the same text
  creates another document rather than updating the old one.
- Empty content is skipped. Text is split into overlapping windows before
  embedding.
`
