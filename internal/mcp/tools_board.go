package mcpserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"whiteboard/internal/domain"
)

func (s *Server) registerBoardTools() {
	// ── list_boards ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_boards",
		mcp.WithDescription("List the boards that are currently open"),
	), s.handleListBoards)

	// ── set_active_board ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_active_board",
		mcp.WithDescription("Set the active board for subsequent tool calls. Opens the board if needed. Tools that accept boardId default to this."),
		mcp.WithString("boardId",
			mcp.Description("ID of the board to make active"),
			mcp.Required(),
		),
	), s.handleSetActiveBoard)

	// ── list_layers ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_layers",
		mcp.WithDescription("List the layers of a board in draw order"),
		mcp.WithString("boardId", mcp.Description("Board ID (defaults to the active board)")),
	), s.handleListLayers)

	// ── create_layer ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_layer",
		mcp.WithDescription("Create a content layer and make it the active layer"),
		mcp.WithString("boardId", mcp.Description("Board ID (defaults to the active board)")),
		mcp.WithString("name",
			mcp.Description("Layer name"),
			mcp.Required(),
		),
	), s.handleCreateLayer)

	// ── undo / redo ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the last change on a board"),
		mcp.WithString("boardId", mcp.Description("Board ID (defaults to the active board)")),
	), s.handleUndo)
	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the last undone change on a board"),
		mcp.WithString("boardId", mcp.Description("Board ID (defaults to the active board)")),
	), s.handleRedo)

	// ── fit_to_content ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("fit_to_content",
		mcp.WithDescription("Zoom and pan the board view so every component is visible"),
		mcp.WithString("boardId", mcp.Description("Board ID (defaults to the active board)")),
	), s.handleFitToContent)

	// ── export_board ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("export_board",
		mcp.WithDescription("Export a board as a PNG/JPG image or as JSON state"),
		mcp.WithString("boardId", mcp.Description("Board ID (defaults to the active board)")),
		mcp.WithString("format",
			mcp.Description("Output format"),
			mcp.Enum("png", "jpg", "json"),
		),
		mcp.WithNumber("scale", mcp.Description("Raster scale factor, default 1")),
		mcp.WithBoolean("grid", mcp.Description("Draw the grid behind the content")),
	), s.handleExportBoard)

	// ── sync_board ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("sync_board",
		mcp.WithDescription("Push queued changes to the shared remote store now"),
		mcp.WithString("boardId", mcp.Description("Board ID (defaults to the active board)")),
	), s.handleSyncBoard)
}

func (s *Server) handleListBoards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"active": s.active(),
		"boards": s.boards.Sessions(),
	})
}

func (s *Server) handleSetActiveBoard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("boardId", "")
	if id == "" {
		return nil, fmt.Errorf("boardId is required")
	}
	b, err := s.boards.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open board %s: %w", id, err)
	}
	s.setActive(id)
	return textResult(fmt.Sprintf("Active board set to %s (%d components)", id, b.Engine.Components.Count())), nil
}

func (s *Server) handleListLayers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	active, _ := b.Engine.ActiveLayer()
	return jsonResult(map[string]any{
		"activeLayerId": active.ID,
		"layers":        b.Engine.Layers.All(),
	})
}

func (s *Server) handleCreateLayer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	name := req.GetString("name", "")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	layer, err := b.Engine.CreateLayer(name)
	if err != nil {
		return nil, fmt.Errorf("create layer: %w", err)
	}
	b.Engine.SetActiveLayer(layer.ID)
	s.emitBoardChanged(ctx, b.SessionID())
	return jsonResult(layer)
}

func (s *Server) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	if !b.Engine.Undo() {
		return textResult("Nothing to undo"), nil
	}
	s.emitBoardChanged(ctx, b.SessionID())
	return textResult("Undone"), nil
}

func (s *Server) handleRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	if !b.Engine.Redo() {
		return textResult("Nothing to redo"), nil
	}
	s.emitBoardChanged(ctx, b.SessionID())
	return textResult("Redone"), nil
}

func (s *Server) handleFitToContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	b.Engine.FitToContent()
	return jsonResult(b.Engine.State().Viewport)
}

func (s *Server) handleExportBoard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	args := req.GetArguments()
	format := domain.ExportFormat(req.GetString("format", string(domain.ExportPNG)))
	opts := domain.ExportOptions{
		Scale:       getFloat(args, "scale", 1),
		IncludeGrid: getBool(args, "grid", false),
	}
	out, err := b.Engine.Export(format, opts)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", format, err)
	}
	if format == domain.ExportJSON {
		return textResult(string(out)), nil
	}
	mime := "image/png"
	if format == domain.ExportJPG {
		mime = "image/jpeg"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: fmt.Sprintf("Exported %s as %s (%d bytes)", b.SessionID(), format, len(out))},
			mcp.ImageContent{Type: "image", Data: base64.StdEncoding.EncodeToString(out), MIMEType: mime},
		},
	}, nil
}

func (s *Server) handleSyncBoard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	res, ran := b.SyncNow(ctx)
	if !ran {
		return textResult("Sync skipped: no remote store configured or a sync is already running"), nil
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("sync: %d synced, %d failed: %w", res.Synced, res.Failed, errors.Join(res.Errors...))
	}
	return textResult(fmt.Sprintf("Synced %d operations", res.Synced)), nil
}
