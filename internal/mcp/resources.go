package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// ── board://boards ─────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		"board://boards",
		"Open Boards",
		mcp.WithMIMEType("application/json"),
	), s.handleBoardsResource)

	// ── board://{boardId}/components ───────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"board://{boardId}/components",
			"Components on a Board",
		),
		s.handleBoardComponentsResource,
	)
}

func (s *Server) handleBoardsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	type boardSummary struct {
		ID         string `json:"id"`
		Components int    `json:"components"`
		Layers     int    `json:"layers"`
		Pending    int    `json:"pendingOperations"`
	}

	var summaries []boardSummary
	for _, id := range s.boards.Sessions() {
		b, err := s.boards.Get(ctx, id)
		if err != nil {
			continue
		}
		summaries = append(summaries, boardSummary{
			ID:         id,
			Components: b.Engine.Components.Count(),
			Layers:     b.Engine.Layers.Count(),
			Pending:    b.Queue.Pending(),
		})
	}

	data, _ := json.MarshalIndent(summaries, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "board://boards",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleBoardComponentsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	boardID := boardIDFromURI(uri)
	if boardID == "" {
		return nil, fmt.Errorf("could not extract boardId from URI: %s", uri)
	}
	b, err := s.boards.Get(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("open board %s: %w", boardID, err)
	}

	data, _ := json.MarshalIndent(listComponents(b, nil), "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// boardIDFromURI extracts the id from board://{boardId}/components.
func boardIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, "board://")
	if !ok {
		return ""
	}
	id, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return id
}
