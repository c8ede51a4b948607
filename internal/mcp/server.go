// Package mcp implements the Model Context Protocol server surface
// (spec.md §6): it bridges AI clients (Claude Code, Cursor) to the
// daemon's index/search engine over stdio, using
// github.com/modelcontextprotocol/go-sdk/mcp the same way the teacher's
// internal/mcp does.
//
// Grounded on the teacher's internal/mcp.Server (tool registration via
// mcp.AddTool, markdown-formatted results, Serve(ctx, transport, addr)),
// generalized from the teacher's hybrid BM25/vector SearchEngine to
// internal/daemon.RequestHandler's index/search/status RPCs, and
// narrowed from four tools (search/search_code/search_docs/index_status)
// to the three corecache's symbol-level index actually supports.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/corecache/internal/daemon"
	"github.com/standardbeagle/corecache/pkg/version"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"the search query to execute"`
	RootPath string `json:"root_path" jsonschema:"absolute path to the indexed project root"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Language string `json:"language,omitempty" jsonschema:"filter by programming language, e.g. go, typescript"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []daemon.SearchResult `json:"results" jsonschema:"list of matching symbols"`
}

// IndexInput defines the input schema for the index tool.
type IndexInput struct {
	RootPath string `json:"root_path" jsonschema:"absolute path to the project root to index"`
	Force    bool   `json:"force,omitempty" jsonschema:"accepted but has no effect: every index run scans the whole root"`
}

// IndexOutput defines the output schema for the index tool.
type IndexOutput struct {
	Result daemon.IndexResult `json:"result"`
}

// StatusInput defines the input schema for the index_status tool (no
// parameters).
type StatusInput struct{}

// StatusOutput defines the output schema for the index_status tool.
type StatusOutput struct {
	Status daemon.StatusResult `json:"status"`
}

// Server is the MCP server for corecache. It holds no index state of its
// own - every tool call is forwarded to handler, which is normally a
// *daemon.Indexer wired to the full component chain (scanner, parser,
// symbol extractor, coordinator, vector store, query cache).
type Server struct {
	mcp     *sdkmcp.Server
	handler daemon.RequestHandler
	logger  *slog.Logger
}

// NewServer creates a new MCP server delegating to handler.
func NewServer(handler daemon.RequestHandler) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("mcp: request handler is required")
	}

	s := &Server{
		handler: handler,
		logger:  slog.Default(),
	}

	s.mcp = sdkmcp.NewServer(
		&sdkmcp.Implementation{
			Name:    "corecache",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP SDK server instance.
func (s *Server) MCPServer() *sdkmcp.Server { return s.mcp }

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "search",
		Description: "Search an indexed project's symbols by meaning, not just keyword matching. Requires the project to already be indexed via the index tool.",
	}, s.mcpSearchHandler)
	s.logger.Debug("registered tool", slog.String("name", "search"))

	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "index",
		Description: "Index (or re-index) a project root so it becomes searchable. Run this before search on a new project.",
	}, s.mcpIndexHandler)
	s.logger.Debug("registered tool", slog.String("name", "index"))

	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "index_status",
		Description: "Report how many projects are currently resident in the daemon and which embedder backs them.",
	}, s.mcpStatusHandler)
	s.logger.Debug("registered tool", slog.String("name", "index_status"))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *sdkmcp.CallToolRequest, input SearchInput) (
	*sdkmcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	if input.RootPath == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("root_path parameter is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := s.handler.HandleSearch(ctx, daemon.SearchParams{
		Query:    input.Query,
		RootPath: input.RootPath,
		Limit:    limit,
		Language: input.Language,
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	return nil, SearchOutput{Results: results}, nil
}

func (s *Server) mcpIndexHandler(ctx context.Context, _ *sdkmcp.CallToolRequest, input IndexInput) (
	*sdkmcp.CallToolResult,
	IndexOutput,
	error,
) {
	if input.RootPath == "" {
		return nil, IndexOutput{}, NewInvalidParamsError("root_path parameter is required")
	}

	result, err := s.handler.HandleIndex(ctx, daemon.IndexParams{
		RootPath: input.RootPath,
		Force:    input.Force,
	})
	if err != nil {
		return nil, IndexOutput{}, MapError(err)
	}

	return nil, IndexOutput{Result: result}, nil
}

func (s *Server) mcpStatusHandler(_ context.Context, _ *sdkmcp.CallToolRequest, _ StatusInput) (
	*sdkmcp.CallToolResult,
	StatusOutput,
	error,
) {
	return nil, StatusOutput{Status: s.handler.GetStatus()}, nil
}

// Serve starts the server with the given transport. Only "stdio" is
// supported, matching the teacher's Serve and spec.md §6's MCP surface.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &sdkmcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
