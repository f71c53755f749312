package mcpserver

import (
	"context"
	"fmt"
	"log"
	"sync"

	"whiteboard/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for the whiteboard.
// It exposes tools, resources, and prompts so AI agents can draw on boards.
type Server struct {
	mcp      *server.MCPServer
	emitter  service.EventEmitter
	approval *ApprovalQueue
	layout   *LayoutEngine
	boards   *service.Registry

	mu          sync.Mutex
	activeBoard string
}

// Deps holds the dependencies passed from main to the MCP server.
type Deps struct {
	Emitter service.EventEmitter
	Boards  *service.Registry
	// DefaultBoard is active until set_active_board is called.
	DefaultBoard string
	// AutoApprove skips the confirmation step for destructive tools.
	AutoApprove bool
}

// New creates and configures a new MCP server with all tools and resources.
func New(ctx context.Context, deps Deps) *Server {
	emitter := deps.Emitter
	if emitter == nil {
		emitter = service.LogEmitter{}
	}
	approval := NewApprovalQueue(ctx, emitter)
	approval.SetAutoApprove(deps.AutoApprove)
	s := &Server{
		emitter:     emitter,
		approval:    approval,
		layout:      NewLayoutEngine(),
		boards:      deps.Boards,
		activeBoard: deps.DefaultBoard,
	}

	s.mcp = server.NewMCPServer(
		"whiteboard-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerBoardTools()
	s.registerComponentTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// Approve forwards a user approval to the approval queue.
func (s *Server) Approve(actionID string) {
	s.approval.Approve(actionID)
}

// Reject forwards a user rejection to the approval queue.
func (s *Server) Reject(actionID string) {
	s.approval.Reject(actionID)
}

// ── Helpers ────────────────────────────────────────────────

// emitBoardChanged notifies listeners that an agent edited a board.
func (s *Server) emitBoardChanged(ctx context.Context, boardID string) {
	s.emitter.Emit(ctx, "mcp:board-changed", map[string]string{"boardId": boardID})
}

func (s *Server) active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeBoard
}

func (s *Server) setActive(id string) {
	s.mu.Lock()
	s.activeBoard = id
	s.mu.Unlock()
}

// resolveBoard opens the board named by the boardId argument, falling back
// to the active board.
func (s *Server) resolveBoard(ctx context.Context, req mcp.CallToolRequest) (*service.BoardService, error) {
	id := req.GetString("boardId", "")
	if id == "" {
		id = s.active()
	}
	if id == "" {
		return nil, fmt.Errorf("no boardId provided and no active board set (use set_active_board first)")
	}
	b, err := s.boards.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open board %s: %w", id, err)
	}
	return b, nil
}
