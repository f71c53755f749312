package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"

	"whiteboard/internal/domain"
	"whiteboard/internal/service"
)

const (
	defaultShapeW  = 160.0
	defaultShapeH  = 100.0
	defaultSticky  = 200.0
	defaultFrameW  = 640.0
	defaultFrameH  = 400.0
	defaultStrokeC = "#1f2937"
)

func (s *Server) registerComponentTools() {
	boardArg := mcp.WithString("boardId", mcp.Description("Board ID (defaults to the active board)"))
	posArgs := []mcp.ToolOption{
		mcp.WithNumber("x", mcp.Description("X position (omit to auto-place)")),
		mcp.WithNumber("y", mcp.Description("Y position (omit to auto-place)")),
	}

	// ── list_components ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_components",
		mcp.WithDescription("List components on a board with their position, size and label"),
		boardArg,
		mcp.WithString("type",
			mcp.Description("Only list this component type"),
			mcp.Enum("stroke", "shape", "text", "image", "sticky", "connector", "frame"),
		),
		mcp.WithNumber("layerId", mcp.Description("Only list components on this layer")),
	), s.handleListComponents)

	// ── get_component ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_component",
		mcp.WithDescription("Get the full JSON of one component"),
		boardArg,
		mcp.WithString("id", mcp.Description("Component ID"), mcp.Required()),
	), s.handleGetComponent)

	// ── add_shape ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_shape",
		append([]mcp.ToolOption{
			mcp.WithDescription("Add a shape to the active layer"),
			boardArg,
			mcp.WithString("shape",
				mcp.Description("Shape type"),
				mcp.Enum("rectangle", "ellipse", "triangle", "line", "arrow", "star", "polygon"),
				mcp.Required(),
			),
			mcp.WithNumber("width", mcp.Description("Width (default 160)")),
			mcp.WithNumber("height", mcp.Description("Height (default 100)")),
			mcp.WithString("fill", mcp.Description("Fill color, e.g. #3b82f6")),
			mcp.WithString("stroke", mcp.Description("Outline color")),
			mcp.WithNumber("strokeWidth", mcp.Description("Outline width (default 2)")),
			mcp.WithNumber("sides", mcp.Description("Number of sides for polygons")),
		}, posArgs...)...,
	), s.handleAddShape)

	// ── add_sticky ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_sticky",
		append([]mcp.ToolOption{
			mcp.WithDescription("Add a sticky note"),
			boardArg,
			mcp.WithString("text", mcp.Description("Note text"), mcp.Required()),
			mcp.WithString("color", mcp.Description("Note color (default #fff176)")),
		}, posArgs...)...,
	), s.handleAddSticky)

	// ── add_text ───────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_text",
		append([]mcp.ToolOption{
			mcp.WithDescription("Add a text label"),
			boardArg,
			mcp.WithString("text", mcp.Description("Text content"), mcp.Required()),
			mcp.WithNumber("fontSize", mcp.Description("Font size (default 16)")),
			mcp.WithString("color", mcp.Description("Text color")),
		}, posArgs...)...,
	), s.handleAddText)

	// ── add_frame ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_frame",
		append([]mcp.ToolOption{
			mcp.WithDescription("Add a named frame to group an area of the board"),
			boardArg,
			mcp.WithString("name", mcp.Description("Frame title"), mcp.Required()),
			mcp.WithNumber("width", mcp.Description("Width (default 640)")),
			mcp.WithNumber("height", mcp.Description("Height (default 400)")),
			mcp.WithString("backgroundColor", mcp.Description("Background color")),
		}, posArgs...)...,
	), s.handleAddFrame)

	// ── add_connector ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_connector",
		mcp.WithDescription("Connect two components with a line. Endpoints attach to the facing sides."),
		boardArg,
		mcp.WithString("fromId", mcp.Description("Source component ID"), mcp.Required()),
		mcp.WithString("toId", mcp.Description("Target component ID"), mcp.Required()),
		mcp.WithString("pathType",
			mcp.Description("Line routing"),
			mcp.Enum("straight", "curved", "orthogonal"),
		),
		mcp.WithString("color", mcp.Description("Line color")),
		mcp.WithBoolean("endArrow", mcp.Description("Draw an arrow head at the target (default true)")),
	), s.handleAddConnector)

	// ── move_components ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("move_components",
		mcp.WithDescription("Move components by an offset as one undo step"),
		boardArg,
		mcp.WithString("ids", mcp.Description("Comma separated component IDs"), mcp.Required()),
		mcp.WithNumber("dx", mcp.Description("Horizontal offset")),
		mcp.WithNumber("dy", mcp.Description("Vertical offset")),
	), s.handleMoveComponents)

	// ── update_component ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_component",
		mcp.WithDescription("Change position, size, text or color of a component"),
		boardArg,
		mcp.WithString("id", mcp.Description("Component ID"), mcp.Required()),
		mcp.WithNumber("x", mcp.Description("New X")),
		mcp.WithNumber("y", mcp.Description("New Y")),
		mcp.WithNumber("width", mcp.Description("New width")),
		mcp.WithNumber("height", mcp.Description("New height")),
		mcp.WithString("text", mcp.Description("New text for sticky and text components")),
		mcp.WithString("color", mcp.Description("New fill, note or text color")),
	), s.handleUpdateComponent)

	// ── arrange_components ─────────────────────────────
	s.mcp.AddTool(mcp.NewTool("arrange_components",
		mcp.WithDescription("Lay components out in tidy rows starting at a point"),
		boardArg,
		mcp.WithString("ids", mcp.Description("Comma separated component IDs, in order"), mcp.Required()),
		mcp.WithNumber("x", mcp.Description("Start X (default: first component)")),
		mcp.WithNumber("y", mcp.Description("Start Y (default: first component)")),
	), s.handleArrangeComponents)

	// ── delete_components ──────────────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_components",
		mcp.WithDescription("Delete components. Requires user approval."),
		boardArg,
		mcp.WithString("ids", mcp.Description("Comma separated component IDs"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteComponents)
}

// componentSummary is the compact listing shape for agents.
type componentSummary struct {
	ID      string               `json:"id"`
	Type    domain.ComponentType `json:"type"`
	LayerID int                  `json:"layerId"`
	X       float64              `json:"x"`
	Y       float64              `json:"y"`
	Width   float64              `json:"width"`
	Height  float64              `json:"height"`
	Label   string               `json:"label,omitempty"`
}

func summarize(c *domain.Component) componentSummary {
	w, h := c.Size()
	return componentSummary{
		ID:      c.ID,
		Type:    c.Type,
		LayerID: c.LayerID,
		X:       c.X,
		Y:       c.Y,
		Width:   w,
		Height:  h,
		Label:   label(c),
	}
}

func label(c *domain.Component) string {
	switch d := c.Data.(type) {
	case *domain.StickyData:
		return d.Text
	case *domain.TextData:
		return d.Text
	case *domain.FrameData:
		return d.Name
	case *domain.ShapeData:
		return string(d.ShapeType)
	case *domain.ConnectorData:
		if d.StartComponentID != "" || d.EndComponentID != "" {
			return d.StartComponentID + " -> " + d.EndComponentID
		}
	case *domain.ImageData:
		if !strings.HasPrefix(d.Src, "data:") {
			return d.Src
		}
	}
	return ""
}

func (s *Server) handleListComponents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	return jsonResult(listComponents(b, req.GetArguments()))
}

func listComponents(b *service.BoardService, args map[string]any) []componentSummary {
	typ, _ := args["type"].(string)
	layerID := int(getFloat(args, "layerId", 0))
	comps := lo.Filter(b.Engine.Components.All(), func(c *domain.Component, _ int) bool {
		if typ != "" && string(c.Type) != typ {
			return false
		}
		return layerID == 0 || c.LayerID == layerID
	})
	return lo.Map(comps, func(c *domain.Component, _ int) componentSummary { return summarize(c) })
}

func (s *Server) handleGetComponent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	c, err := component(b, req.GetString("id", ""))
	if err != nil {
		return nil, err
	}
	return jsonResult(c)
}

func component(b *service.BoardService, id string) (*domain.Component, error) {
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}
	c := b.Engine.Components.Get(id)
	if c == nil {
		return nil, fmt.Errorf("component %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

// place returns the requested position, or the next free spot when x/y are
// omitted.
func (s *Server) place(b *service.BoardService, args map[string]any, w, h float64) domain.Point {
	x, hasX := args["x"].(float64)
	y, hasY := args["y"].(float64)
	if hasX && hasY {
		return domain.Point{X: x, Y: y}
	}
	existing := lo.Map(b.Engine.Components.All(), func(c *domain.Component, _ int) domain.Bounds { return c.Bounds() })
	px, py := s.layout.NextPosition(existing, w, h)
	if hasX {
		px = x
	}
	if hasY {
		py = y
	}
	return domain.Point{X: px, Y: py}
}

// add creates a component and reports it back to the agent.
func (s *Server) add(ctx context.Context, b *service.BoardService, typ domain.ComponentType, pos domain.Point, data domain.ComponentData, w, h float64) (*mcp.CallToolResult, error) {
	c, err := b.Engine.AddComponent(typ, 0, pos, data, w, h)
	if err != nil {
		return nil, fmt.Errorf("add %s: %w", typ, err)
	}
	s.emitBoardChanged(ctx, b.SessionID())
	return jsonResult(summarize(c))
}

func (s *Server) handleAddShape(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	args := req.GetArguments()
	shape := domain.ShapeType(req.GetString("shape", string(domain.ShapeRectangle)))
	w := getFloat(args, "width", defaultShapeW)
	h := getFloat(args, "height", defaultShapeH)
	data := &domain.ShapeData{
		ShapeType:   shape,
		Fill:        req.GetString("fill", ""),
		Stroke:      req.GetString("stroke", defaultStrokeC),
		StrokeWidth: getFloat(args, "strokeWidth", 2),
		Opacity:     1,
		Sides:       int(getFloat(args, "sides", 0)),
	}
	if shape == domain.ShapePolygon && data.Sides < 3 {
		data.Sides = 6
	}
	return s.add(ctx, b, domain.ComponentShape, s.place(b, args, w, h), data, w, h)
}

func (s *Server) handleAddSticky(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	text := req.GetString("text", "")
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	data := &domain.StickyData{Text: text, Color: req.GetString("color", "#fff176"), FontSize: 16}
	pos := s.place(b, req.GetArguments(), defaultSticky, defaultSticky)
	return s.add(ctx, b, domain.ComponentSticky, pos, data, defaultSticky, defaultSticky)
}

func (s *Server) handleAddText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	text := req.GetString("text", "")
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	args := req.GetArguments()
	size := getFloat(args, "fontSize", 16)
	w, h := textBox(text, size)
	data := &domain.TextData{
		Text:       text,
		FontSize:   size,
		FontFamily: "sans-serif",
		Color:      req.GetString("color", defaultStrokeC),
		Align:      domain.AlignLeft,
		LineHeight: 1.2,
	}
	return s.add(ctx, b, domain.ComponentText, s.place(b, args, w, h), data, w, h)
}

// textBox estimates the box a text needs at the given font size.
func textBox(text string, size float64) (float64, float64) {
	lines := strings.Split(text, "\n")
	longest := lo.MaxBy(lines, func(a, b string) bool { return len([]rune(a)) > len([]rune(b)) })
	w := math.Max(float64(len([]rune(longest)))*size*0.6, size)
	return math.Ceil(w), math.Ceil(float64(len(lines)) * size * 1.2)
}

func (s *Server) handleAddFrame(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	name := req.GetString("name", "")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	args := req.GetArguments()
	w := getFloat(args, "width", defaultFrameW)
	h := getFloat(args, "height", defaultFrameH)
	data := &domain.FrameData{Name: name, BackgroundColor: req.GetString("backgroundColor", "")}
	return s.add(ctx, b, domain.ComponentFrame, s.place(b, args, w, h), data, w, h)
}

func (s *Server) handleAddConnector(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	from, err := component(b, req.GetString("fromId", ""))
	if err != nil {
		return nil, fmt.Errorf("fromId: %w", err)
	}
	to, err := component(b, req.GetString("toId", ""))
	if err != nil {
		return nil, fmt.Errorf("toId: %w", err)
	}
	pathType := domain.PathType(req.GetString("pathType", string(domain.PathStraight)))
	start, end := anchors(from.Bounds(), to.Bounds())
	data := &domain.ConnectorData{
		StartComponentID: from.ID,
		EndComponentID:   to.ID,
		StartPoint:       start,
		EndPoint:         end,
		PathType:         pathType,
		EndArrow:         getBool(req.GetArguments(), "endArrow", true),
		Color:            req.GetString("color", defaultStrokeC),
		Thickness:        2,
	}
	return s.add(ctx, b, domain.ComponentConnector, start, data, 0, 0)
}

// anchors picks the midpoints of the facing sides of src and dst.
func anchors(src, dst domain.Bounds) (domain.Point, domain.Point) {
	sc, dc := src.Center(), dst.Center()
	dx, dy := dc.X-sc.X, dc.Y-sc.Y
	if math.Abs(dy) > math.Abs(dx) {
		if dy > 0 {
			return domain.Point{X: sc.X, Y: src.Y + src.Height}, domain.Point{X: dc.X, Y: dst.Y}
		}
		return domain.Point{X: sc.X, Y: src.Y}, domain.Point{X: dc.X, Y: dst.Y + dst.Height}
	}
	if dx > 0 {
		return domain.Point{X: src.X + src.Width, Y: sc.Y}, domain.Point{X: dst.X, Y: dc.Y}
	}
	return domain.Point{X: src.X, Y: sc.Y}, domain.Point{X: dst.X + dst.Width, Y: dc.Y}
}

func (s *Server) handleMoveComponents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := splitIDs(req.GetString("ids", ""))
	if len(ids) == 0 {
		return nil, fmt.Errorf("ids is required")
	}
	args := req.GetArguments()
	n := b.Engine.MoveComponents(ids, getFloat(args, "dx", 0), getFloat(args, "dy", 0))
	if n > 0 {
		s.emitBoardChanged(ctx, b.SessionID())
	}
	return textResult(fmt.Sprintf("Moved %d of %d components", n, len(ids))), nil
}

func (s *Server) handleUpdateComponent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	c, err := component(b, req.GetString("id", ""))
	if err != nil {
		return nil, err
	}
	args := req.GetArguments()
	var patch domain.ComponentPatch
	for key, dst := range map[string]**float64{"x": &patch.X, "y": &patch.Y, "width": &patch.Width, "height": &patch.Height} {
		if v, ok := args[key].(float64); ok {
			*dst = domain.Float(v)
		}
	}
	text, hasText := args["text"].(string)
	color, hasColor := args["color"].(string)
	if hasText || hasColor {
		data := c.Data.Clone()
		switch d := data.(type) {
		case *domain.StickyData:
			d.Text = lo.Ternary(hasText, text, d.Text)
			d.Color = lo.Ternary(hasColor, color, d.Color)
		case *domain.TextData:
			d.Text = lo.Ternary(hasText, text, d.Text)
			d.Color = lo.Ternary(hasColor, color, d.Color)
		case *domain.ShapeData:
			d.Fill = lo.Ternary(hasColor, color, d.Fill)
		case *domain.ConnectorData:
			d.Color = lo.Ternary(hasColor, color, d.Color)
		case *domain.FrameData:
			d.Name = lo.Ternary(hasText, text, d.Name)
			d.BackgroundColor = lo.Ternary(hasColor, color, d.BackgroundColor)
		default:
			return nil, fmt.Errorf("%w: %s components have no text or color", domain.ErrValidation, c.Type)
		}
		patch.Data = data
	}
	updated, err := b.Engine.UpdateComponent(c.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("update component: %w", err)
	}
	s.emitBoardChanged(ctx, b.SessionID())
	return jsonResult(summarize(updated))
}

func (s *Server) handleArrangeComponents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	var comps []*domain.Component
	for _, id := range splitIDs(req.GetString("ids", "")) {
		c, err := component(b, id)
		if err != nil {
			return nil, err
		}
		comps = append(comps, c)
	}
	if len(comps) == 0 {
		return nil, fmt.Errorf("ids is required")
	}
	args := req.GetArguments()
	startX := getFloat(args, "x", comps[0].X)
	startY := getFloat(args, "y", comps[0].Y)
	boxes := lo.Map(comps, func(c *domain.Component, _ int) domain.Bounds { return c.Bounds() })
	placed := s.layout.ArrangeGroup(boxes, startX, startY)

	// One undo step for the whole arrangement.
	b.Engine.History.StartBatch()
	defer b.Engine.History.EndBatch()
	for i, c := range comps {
		if _, err := b.Engine.UpdateComponent(c.ID, domain.MoveTo(placed[i].X, placed[i].Y)); err != nil {
			return nil, fmt.Errorf("arrange %s: %w", c.ID, err)
		}
	}
	s.emitBoardChanged(ctx, b.SessionID())
	return jsonResult(placed)
}

func (s *Server) handleDeleteComponents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.resolveBoard(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := splitIDs(req.GetString("ids", ""))
	if len(ids) == 0 {
		return nil, fmt.Errorf("ids is required")
	}
	meta, _ := json.Marshal(map[string]any{"boardId": b.SessionID(), "componentIds": ids})
	desc := fmt.Sprintf("Delete %d component(s) from board %s", len(ids), b.SessionID())
	if _, err := s.approval.Request(ctx, "delete_components", desc, string(meta)); err != nil {
		return nil, err
	}
	n := b.Engine.DeleteComponents(ids)
	s.emitBoardChanged(ctx, b.SessionID())
	return textResult(fmt.Sprintf("Deleted %d components", n)), nil
}
