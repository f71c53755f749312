package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"whiteboard/internal/domain"
	"whiteboard/internal/engine"
	"whiteboard/internal/offline"
	"whiteboard/internal/service"
)

func newTestServer(t *testing.T, deps Deps) (*Server, *service.MockEmitter) {
	t.Helper()
	reg := service.NewRegistry(func(ctx context.Context, id string) (*service.BoardService, error) {
		return service.OpenBoard(ctx, service.BoardDeps{Local: offline.NewMemoryStore()}, service.BoardOptions{
			Engine: engine.Options{
				SessionID:     id,
				Width:         200,
				Height:        150,
				SyncDebounce:  time.Hour,
				PruneInterval: time.Hour,
			},
			Participant: service.Participant{UserID: "agent"},
		})
	})
	t.Cleanup(func() { reg.Close() })
	emitter := &service.MockEmitter{}
	deps.Boards = reg
	deps.Emitter = emitter
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, deps), emitter
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

// decode unmarshals the text content of a tool result.
func decode[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	var out T
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("decode result %q: %v", text.Text, err)
	}
	return out
}

func board(t *testing.T, s *Server, id string) *service.BoardService {
	t.Helper()
	b, err := s.boards.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("open board: %v", err)
	}
	return b
}

func TestResolveBoard_RequiresActiveBoard(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	_, err := s.handleListComponents(context.Background(), call(nil))
	if err == nil || !strings.Contains(err.Error(), "set_active_board") {
		t.Errorf("expected a hint to set the active board, got %v", err)
	}

	if _, err := s.handleSetActiveBoard(context.Background(), call(map[string]any{"boardId": "b9"})); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if s.active() != "b9" {
		t.Errorf("expected active board b9, got %q", s.active())
	}
}

func TestAddShape_AutoPlaces(t *testing.T) {
	s, emitter := newTestServer(t, Deps{DefaultBoard: "b1"})
	ctx := context.Background()

	first, err := s.handleAddShape(ctx, call(map[string]any{"shape": "rectangle", "x": 0.0, "y": 0.0}))
	if err != nil {
		t.Fatalf("add shape: %v", err)
	}
	a := decode[componentSummary](t, first)
	second, err := s.handleAddShape(ctx, call(map[string]any{"shape": "ellipse", "fill": "#10b981"}))
	if err != nil {
		t.Fatalf("add shape: %v", err)
	}
	b := decode[componentSummary](t, second)

	boxA := domain.Bounds{X: a.X, Y: a.Y, Width: a.Width, Height: a.Height}
	boxB := domain.Bounds{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}
	if boxA.Intersects(boxB) {
		t.Errorf("expected auto placement to avoid %+v, got %+v", boxA, boxB)
	}
	if b.Label != "ellipse" || b.Width != defaultShapeW {
		t.Errorf("expected default sized ellipse, got %+v", b)
	}
	if n := emitter.Count("mcp:board-changed"); n != 2 {
		t.Errorf("expected 2 board-changed events, got %d", n)
	}
}

func TestAddConnector_AnchorsFacingSides(t *testing.T) {
	s, _ := newTestServer(t, Deps{DefaultBoard: "b1"})
	ctx := context.Background()
	add := func(x float64) string {
		res, err := s.handleAddShape(ctx, call(map[string]any{"shape": "rectangle", "x": x, "y": 0.0, "width": 100.0, "height": 100.0}))
		if err != nil {
			t.Fatalf("add shape: %v", err)
		}
		return decode[componentSummary](t, res).ID
	}
	from, to := add(0), add(400)

	res, err := s.handleAddConnector(ctx, call(map[string]any{"fromId": from, "toId": to, "pathType": "orthogonal"}))
	if err != nil {
		t.Fatalf("add connector: %v", err)
	}
	id := decode[componentSummary](t, res).ID
	c := board(t, s, "b1").Engine.Components.Get(id)
	data, ok := c.Data.(*domain.ConnectorData)
	if !ok {
		t.Fatalf("expected connector data, got %T", c.Data)
	}
	if data.StartPoint != (domain.Point{X: 100, Y: 50}) || data.EndPoint != (domain.Point{X: 400, Y: 50}) {
		t.Errorf("expected right-to-left anchors, got %+v -> %+v", data.StartPoint, data.EndPoint)
	}
	if !data.EndArrow || data.PathType != domain.PathOrthogonal {
		t.Errorf("expected orthogonal arrow, got %+v", data)
	}

	if _, err := s.handleAddConnector(ctx, call(map[string]any{"fromId": from, "toId": "missing"})); err == nil {
		t.Error("expected error for unknown target")
	}
}

func TestAnchors_Vertical(t *testing.T) {
	start, end := anchors(domain.Bounds{X: 0, Y: 200, Width: 100, Height: 50}, domain.Bounds{X: 0, Y: 0, Width: 100, Height: 50})
	if start != (domain.Point{X: 50, Y: 200}) || end != (domain.Point{X: 50, Y: 50}) {
		t.Errorf("expected top-to-bottom anchors, got %+v -> %+v", start, end)
	}
}

func TestUpdateComponent_TextAndColor(t *testing.T) {
	s, _ := newTestServer(t, Deps{DefaultBoard: "b1"})
	ctx := context.Background()
	res, err := s.handleAddSticky(ctx, call(map[string]any{"text": "draft"}))
	if err != nil {
		t.Fatalf("add sticky: %v", err)
	}
	id := decode[componentSummary](t, res).ID

	res, err = s.handleUpdateComponent(ctx, call(map[string]any{"id": id, "text": "final", "x": 300.0}))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got := decode[componentSummary](t, res)
	if got.Label != "final" || got.X != 300 {
		t.Errorf("expected text and x updated, got %+v", got)
	}
	c := board(t, s, "b1").Engine.Components.Get(id)
	if d := c.Data.(*domain.StickyData); d.Color != "#fff176" {
		t.Errorf("expected color untouched, got %q", d.Color)
	}

	if _, err := s.handleUndo(ctx, call(nil)); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if d := board(t, s, "b1").Engine.Components.Get(id).Data.(*domain.StickyData); d.Text != "draft" {
		t.Errorf("expected undo to restore text, got %q", d.Text)
	}
}

func TestListComponents_FiltersByType(t *testing.T) {
	s, _ := newTestServer(t, Deps{DefaultBoard: "b1"})
	ctx := context.Background()
	s.handleAddSticky(ctx, call(map[string]any{"text": "one"}))
	s.handleAddText(ctx, call(map[string]any{"text": "title\nsubtitle", "fontSize": 20.0}))

	res, err := s.handleListComponents(ctx, call(map[string]any{"type": "text"}))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	list := decode[[]componentSummary](t, res)
	if len(list) != 1 || list[0].Type != domain.ComponentText {
		t.Fatalf("expected one text component, got %+v", list)
	}
	if h := list[0].Height; h < 40 || h > 50 {
		t.Errorf("expected two lines of height, got %.0f", h)
	}
}

func TestDeleteComponents_WaitsForApproval(t *testing.T) {
	s, emitter := newTestServer(t, Deps{DefaultBoard: "b1"})
	ctx := context.Background()
	res, _ := s.handleAddSticky(ctx, call(map[string]any{"text": "bye"}))
	id := decode[componentSummary](t, res).ID

	type outcome struct {
		res *mcp.CallToolResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := s.handleDeleteComponents(ctx, call(map[string]any{"ids": id + ", " + id}))
		done <- outcome{r, err}
	}()

	var action PendingAction
	deadline := time.Now().Add(2 * time.Second)
	for action.ID == "" && time.Now().Before(deadline) {
		for _, e := range emitter.All() {
			if e.Event == "mcp:approval-required" {
				action = e.Data.(PendingAction)
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	if action.ID == "" {
		t.Fatal("expected an approval request")
	}
	if !strings.Contains(action.Metadata, id) {
		t.Errorf("expected component id in metadata, got %s", action.Metadata)
	}
	if !board(t, s, "b1").Engine.Components.Has(id) {
		t.Fatal("expected nothing deleted before approval")
	}

	s.Approve(action.ID)
	out := <-done
	if out.err != nil {
		t.Fatalf("delete: %v", out.err)
	}
	if board(t, s, "b1").Engine.Components.Has(id) {
		t.Error("expected component deleted after approval")
	}
}

func TestDeleteComponents_Rejected(t *testing.T) {
	s, _ := newTestServer(t, Deps{DefaultBoard: "b1"})
	ctx := context.Background()
	res, _ := s.handleAddSticky(ctx, call(map[string]any{"text": "keep"}))
	id := decode[componentSummary](t, res).ID

	done := make(chan error, 1)
	go func() {
		_, err := s.handleDeleteComponents(ctx, call(map[string]any{"ids": id}))
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for len(s.approval.Pending()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	for _, pending := range s.approval.Pending() {
		s.Reject(pending)
	}
	if err := <-done; err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Errorf("expected rejection error, got %v", err)
	}
	if !board(t, s, "b1").Engine.Components.Has(id) {
		t.Error("expected component kept")
	}
}

func TestDeleteComponents_AutoApprove(t *testing.T) {
	s, _ := newTestServer(t, Deps{DefaultBoard: "b1", AutoApprove: true})
	ctx := context.Background()
	res, _ := s.handleAddSticky(ctx, call(map[string]any{"text": "gone"}))
	id := decode[componentSummary](t, res).ID

	if _, err := s.handleDeleteComponents(ctx, call(map[string]any{"ids": id})); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if board(t, s, "b1").Engine.Components.Has(id) {
		t.Error("expected component deleted")
	}
}

func TestExportBoard_Image(t *testing.T) {
	s, _ := newTestServer(t, Deps{DefaultBoard: "b1"})
	ctx := context.Background()
	s.handleAddShape(ctx, call(map[string]any{"shape": "star", "x": 10.0, "y": 10.0, "fill": "#f59e0b"}))

	res, err := s.handleExportBoard(ctx, call(map[string]any{"format": "png"}))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(res.Content) != 2 {
		t.Fatalf("expected text and image content, got %d items", len(res.Content))
	}
	img, ok := res.Content[1].(mcp.ImageContent)
	if !ok || img.MIMEType != "image/png" {
		t.Fatalf("expected png image content, got %+v", res.Content[1])
	}
	raw, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	if _, err := png.Decode(strings.NewReader(string(raw))); err != nil {
		t.Errorf("expected decodable png: %v", err)
	}

	if _, err := s.handleExportBoard(ctx, call(map[string]any{"format": "svg"})); err == nil {
		t.Error("expected svg export to fail")
	}
}

func TestBoardIDFromURI(t *testing.T) {
	tests := []struct {
		uri, want string
	}{
		{"board://b1/components", "b1"},
		{"board://b1", ""},
		{"notes://b1/components", ""},
	}
	for _, tt := range tests {
		if got := boardIDFromURI(tt.uri); got != tt.want {
			t.Errorf("boardIDFromURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestSplitIDs(t *testing.T) {
	got := splitIDs(" a, b,,a ,c ")
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("expected [a b c], got %v", got)
	}
}
