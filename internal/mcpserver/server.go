// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notechain tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notechain/internal/apperr"
	"github.com/starford/notechain/internal/export"
	"github.com/starford/notechain/internal/models"
	"github.com/starford/notechain/internal/noteservice"
)

const formatURI = "notechain://note-format"

// Server wraps the MCP server with notechain tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all notechain tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"notechain",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles and bodies."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read one note, rendered as Markdown by default."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("format", mcp.Description("md, txt or html (default md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note from Markdown. Long notes are stored as a chain "+
			"of parts linked by an \"Open next part\" link. Read the contract first via "+
			"the get_note_contract tool or the "+formatURI+" resource."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content following the note format contract")),
		mcp.WithString("title", mcp.Description("Title to use when the content has none")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the notechain note format contract. "+
			"Call this before creating notes to ensure correct structure."),
	), s.getNoteContract)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, newest first."),
		mcp.WithString("folder", mcp.Description("NOTES (default), ARCHIVED or DELETED")),
		mcp.WithString("label", mcp.Description("Only notes carrying this label")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_chain",
		mcp.WithDescription("List the parts of a split note, head first, following its navigation links."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Id of the first part")),
	), s.getChain)

	s.mcp.AddTool(mcp.NewTool("import_backup",
		mcp.WithDescription("Import a JSON, YAML or Markdown backup from an http(s) URL or a base64 data URI."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI of the backup")),
		mcp.WithString("filename", mcp.Description("File name; the extension selects the decoder")),
	), s.importBackup)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Note Format Contract",
			mcp.WithResourceDescription("Markdown dialect accepted by create_note."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
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

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func noteID(req mcp.CallToolRequest) (int64, error) {
	id := int64(req.GetFloat("id", 0))
	if id <= 0 {
		return 0, fmt.Errorf("id must be a positive integer")
	}
	return id, nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := noteID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format, err := export.ParseFormat(req.GetString("format", ""))
	if err != nil {
		return toolError(err), nil
	}
	out, err := s.svc.ExportNote(ctx, id, format)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.CreateMarkdown(ctx, []byte(content), req.GetString("title", ""))
	if err != nil {
		return toolError(err), nil
	}
	if len(note.Parts) > 1 {
		ids := make([]string, len(note.Parts))
		for i, id := range note.Parts {
			ids[i] = strconv.FormatInt(id, 10)
		}
		return mcp.NewToolResultText(fmt.Sprintf("created: %d (split into parts %s)", note.ID, strings.Join(ids, ", "))), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %d", note.ID)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := models.Folder(strings.ToUpper(req.GetString("folder", "")))
	items, _, err := s.svc.ListNotes(ctx, 0, 0, req.GetString("label", ""), folder, "")
	if err != nil {
		return toolError(err), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	lines := make([]string, len(items))
	for i, n := range items {
		lines[i] = fmt.Sprintf("%d\t%s", n.ID, n.Title)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getChain(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := noteID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parts, err := s.svc.Chain(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	lines := make([]string, len(parts))
	for i, p := range parts {
		lines[i] = fmt.Sprintf("%d\t%s\t%d chars", p.ID, p.Title, p.BodyLen())
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
