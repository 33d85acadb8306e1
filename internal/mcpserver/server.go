// Package mcpserver exposes notesrag over the Model Context Protocol (stdio),
// scoped to the configured identity seed.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notesrag/internal/ingest"
	"github.com/starford/notesrag/internal/noteservice"
)

// AnswerPolicyURI is the resource URI of AnswerPolicy.
const AnswerPolicyURI = "notesrag://answer-policy"

// Server wraps the MCP server with notesrag tools.
type Server struct {
	mcp  *server.MCPServer
	svc  *noteservice.Service
	seed string
}

// New creates an MCP server whose tools act on seed's notes.
func New(svc *noteservice.Service, seed, version string) *Server {
	s := &Server{svc: svc, seed: seed}

	s.mcp = server.NewMCPServer(
		"notesrag",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("ask_notes",
		mcp.WithDescription("Answer a question using only the user's notes. Returns JSON with "+
			"`answer` and de-duplicated `sources`. See the notesrag://answer-policy resource."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Natural-language question")),
		mcp.WithNumber("match_count", mcp.Description("Number of chunks to retrieve (default 8)")),
	), s.askNotes)

	s.mcp.AddTool(mcp.NewTool("ingest_note",
		mcp.WithDescription("Store a note as a new document: it is chunked, embedded and becomes searchable."),
		mcp.WithString("name", mcp.Required(), mcp.Description("File name, e.g. trip-plan.md")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Decoded text content of the note")),
		mcp.WithString("type", mcp.Description("Content type (default text/plain; text/markdown enables title detection)")),
	), s.ingestNote)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List ingested documents with status and chunk count, newest first."),
	), s.listDocuments)

	s.mcp.AddResource(
		mcp.NewResource(AnswerPolicyURI, "Answer Policy",
			mcp.WithResourceDescription("How ask_notes retrieves context, answers and cites sources."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readAnswerPolicy,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) askNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ans, err := s.svc.Ask(ctx, s.seed, question, req.GetInt("match_count", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ans)
}

func (s *Server) ingestNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Ingest(ctx, s.seed, []ingest.File{{
		Name:     name,
		MimeType: req.GetString("type", ""),
		Text:     content,
	}})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := results[0]
	if res.Status == ingest.StatusError {
		return mcp.NewToolResultError(fmt.Sprintf("ingest %s failed: %s", res.Name, res.Reason)), nil
	}
	return jsonResult(res)
}

func (s *Server) listDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := s.svc.ListDocuments(ctx, s.seed)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rows)
}

func (s *Server) readAnswerPolicy(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      AnswerPolicyURI,
			MIMEType: "text/markdown",
			Text:     AnswerPolicy,
		},
	}, nil
}
