package app

import (
	"log"

	mcpserver "whiteboard/internal/mcp"
)

// ServeMCP runs board tools on stdin/stdout until the client disconnects.
// sessionID becomes the active board. With no one to confirm destructive
// tools, autoApprove decides whether they run.
func (a *App) ServeMCP(sessionID string, autoApprove bool) error {
	if sessionID != "" {
		if _, err := a.boards.Get(a.ctx, sessionID); err != nil {
			return err
		}
	}
	mcpSrv := mcpserver.New(a.ctx, mcpserver.Deps{
		Emitter:      a.emitter,
		Boards:       a.boards,
		DefaultBoard: sessionID,
		AutoApprove:  autoApprove,
	})

	log.Println("[MCP] Starting standalone stdio server...")
	return mcpSrv.ServeStdio()
}
