// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes zettenote tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/zettenote/internal/apperr"
	"github.com/starford/zettenote/internal/models"
	"github.com/starford/zettenote/internal/noteservice"
)

const (
	syntaxURI          = "zettenote://note-syntax"
	defaultSearchLimit = 20
)

// Server wraps the MCP server with zettenote tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all zettenote tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"zettenote",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search notes by title, content and tags, ignoring case."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note by ID, including its content, tags and backlinks."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. Content uses the zettenote Markdown subset "+
			"with #tags and [[wikilinks]]; read it first via the get_note_syntax tool or "+
			"the "+syntaxURI+" resource."),
		mcp.WithString("title", mcp.Description("Note title; required when content is empty")),
		mcp.WithString("content", mcp.Description("Markdown body")),
		mcp.WithString("tags", mcp.Description("Optional comma-separated tags, added to the #tags found in content")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("List the notes that contain a [[wikilink]] to the given note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("ID of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("resolve_link",
		mcp.WithDescription("Find the note a [[wikilink]] title points at, ignoring case."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Link title without brackets")),
	), s.resolveLink)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List registered tags with colours and usage counts."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("get_note_syntax",
		mcp.WithDescription("Returns the note syntax reference. "+
			"Call this before creating notes to use tags and links correctly."),
	), s.getNoteSyntax)

	s.mcp.AddResource(
		mcp.NewResource(syntaxURI, "Note Syntax",
			mcp.WithResourceDescription("Markdown subset, tag and wikilink rules for zettenote notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteSyntaxResource,
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

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := defaultSearchLimit
	if n, err := req.RequireInt("limit"); err == nil && n > 0 {
		limit = n
	}
	results, err := s.svc.Search(ctx, query, limit)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(n), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in models.NoteInput
	if v, err := req.RequireString("title"); err == nil {
		in.Title = v
	}
	if v, err := req.RequireString("content"); err == nil {
		in.Content = v
	}
	if v, err := req.RequireString("tags"); err == nil {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				in.Tags = append(in.Tags, t)
			}
		}
	}

	n, err := s.svc.Create(ctx, in)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.ID)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	lines := make([]string, 0, len(bl))
	for _, r := range bl {
		lines = append(lines, r.ID+"\t"+r.Title)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) resolveLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Resolve(ctx, title)
	if err != nil {
		return toolError(err), nil
	}
	if !res.Found() {
		return mcp.NewToolResultText(fmt.Sprintf("no note titled %q", res.Title)), nil
	}
	return jsonResult(res.Note), nil
}

func (s *Server) listTags(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	all, err := s.svc.Tags(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(all), nil
}

func (s *Server) getNoteSyntax(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteSyntax), nil
}

func (s *Server) readNoteSyntaxResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      syntaxURI,
			MIMEType: "text/markdown",
			Text:     NoteSyntax,
		},
	}, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

// toolError hides internal failures; validation and lookup errors are
// reported as they are.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError("internal error: " + err.Error())
}
