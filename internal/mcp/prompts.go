package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("system_diagram",
		mcp.WithPromptDescription("Draw a system architecture diagram with shapes and connectors"),
		mcp.WithArgument("systemName",
			mcp.ArgumentDescription("Name of the system to diagram"),
			mcp.RequiredArgument(),
		),
	), s.handleSystemDiagramPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("retrospective",
		mcp.WithPromptDescription("Set up a retrospective board with frames and starter sticky notes"),
		mcp.WithArgument("team",
			mcp.ArgumentDescription("Team running the retrospective"),
			mcp.RequiredArgument(),
		),
	), s.handleRetrospectivePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("tidy_board",
		mcp.WithPromptDescription("Review the active board and clean up its layout"),
	), s.handleTidyBoardPrompt)
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent{Type: "text", Text: text},
			},
		},
	}
}

func (s *Server) handleSystemDiagramPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	systemName := req.Params.Arguments["systemName"]
	return userPrompt(fmt.Sprintf("Create a system diagram for: %s", systemName), fmt.Sprintf(`Create a system architecture diagram for "%s" on the active board. Follow these steps:

1. Identify the main components of the system
2. Use add_frame to create a frame titled "%s"
3. Use add_shape (rectangle) for each service and add_shape (ellipse) for each datastore
4. Use add_text to label every shape
5. Use add_connector between related components, with pathType "orthogonal"
6. Use arrange_components to tidy the shapes, then fit_to_content

Use consistent colors: #3b82f6 for services, #10b981 for databases, #f59e0b for external systems.`, systemName, systemName)), nil
}

func (s *Server) handleRetrospectivePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	team := req.Params.Arguments["team"]
	return userPrompt(fmt.Sprintf("Retrospective board for %s", team), fmt.Sprintf(`Set up a retrospective board for the %s team. Follow these steps:

1. Use create_layer to add a layer named "Retro"
2. Use add_frame three times, side by side: "Went well", "To improve", "Action items"
3. Inside each frame add two add_sticky notes with example prompts for the team
4. Use add_text above the frames with the title "%s retrospective"
5. Finish with fit_to_content and export_board (png) so the result can be shared`, team, team)), nil
}

func (s *Server) handleTidyBoardPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	board := s.active()
	if board == "" {
		board = "(call set_active_board first)"
	}
	return userPrompt("Tidy the active board", fmt.Sprintf(`Tidy board %s. Follow these steps:

1. Use list_components to see what is on the board
2. Find overlapping components and group related ones
3. Use arrange_components on each group so nothing overlaps
4. Update any connector whose endpoints moved with update_component or recreate it with add_connector
5. Only delete components with delete_components if they are clearly empty or duplicated`, board)), nil
}
