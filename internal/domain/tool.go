package domain

type ToolKind string

const (
	ToolSelect      ToolKind = "select"
	ToolPan         ToolKind = "pan"
	ToolPencil      ToolKind = "pencil"
	ToolMarker      ToolKind = "marker"
	ToolHighlighter ToolKind = "highlighter"
	ToolEraser      ToolKind = "eraser"
	ToolShape       ToolKind = "shape"
	ToolText        ToolKind = "text"
	ToolImage       ToolKind = "image"
	ToolSticky      ToolKind = "sticky"
	ToolConnector   ToolKind = "connector"
	ToolLaser       ToolKind = "laser"
)

// AllTools lists every tool kind in toolbar order.
var AllTools = []ToolKind{
	ToolSelect, ToolPan, ToolPencil, ToolMarker, ToolHighlighter, ToolEraser,
	ToolShape, ToolText, ToolImage, ToolSticky, ToolConnector, ToolLaser,
}

type ToolConfig struct {
	Color         string    `json:"color"`
	Thickness     float64   `json:"thickness"`
	Opacity       float64   `json:"opacity"`
	ShapeType     ShapeType `json:"shapeType,omitempty"`
	FontSize      float64   `json:"fontSize,omitempty"`
	FontFamily    string    `json:"fontFamily,omitempty"`
	StickyColor   string    `json:"stickyColor,omitempty"`
	ConnectorType PathType  `json:"connectorType,omitempty"`
	ImageSrc      string    `json:"imageSrc,omitempty"`
}

// ToolConfigPatch is a partial ToolConfig update.
type ToolConfigPatch struct {
	Color         *string    `json:"color,omitempty"`
	Thickness     *float64   `json:"thickness,omitempty"`
	Opacity       *float64   `json:"opacity,omitempty"`
	ShapeType     *ShapeType `json:"shapeType,omitempty"`
	FontSize      *float64   `json:"fontSize,omitempty"`
	FontFamily    *string    `json:"fontFamily,omitempty"`
	StickyColor   *string    `json:"stickyColor,omitempty"`
	ConnectorType *PathType  `json:"connectorType,omitempty"`
	ImageSrc      *string    `json:"imageSrc,omitempty"`
}

func (p ToolConfigPatch) Apply(c ToolConfig) ToolConfig {
	if p.Color != nil {
		c.Color = *p.Color
	}
	if p.Thickness != nil {
		c.Thickness = *p.Thickness
	}
	if p.Opacity != nil {
		c.Opacity = *p.Opacity
	}
	if p.ShapeType != nil {
		c.ShapeType = *p.ShapeType
	}
	if p.FontSize != nil {
		c.FontSize = *p.FontSize
	}
	if p.FontFamily != nil {
		c.FontFamily = *p.FontFamily
	}
	if p.StickyColor != nil {
		c.StickyColor = *p.StickyColor
	}
	if p.ConnectorType != nil {
		c.ConnectorType = *p.ConnectorType
	}
	if p.ImageSrc != nil {
		c.ImageSrc = *p.ImageSrc
	}
	return c
}

// DefaultToolConfig returns the starting style for a tool kind.
func DefaultToolConfig(kind ToolKind) ToolConfig {
	cfg := ToolConfig{
		Color:         "#000000",
		Thickness:     2,
		Opacity:       1,
		ShapeType:     ShapeRectangle,
		FontSize:      16,
		FontFamily:    "sans-serif",
		StickyColor:   "#fff740",
		ConnectorType: PathStraight,
	}
	switch kind {
	case ToolMarker:
		cfg.Thickness = 4
	case ToolHighlighter:
		cfg.Color = "#ffeb3b"
		cfg.Thickness = 5
		cfg.Opacity = 0.3
	case ToolEraser:
		cfg.Thickness = 10
	case ToolLaser:
		cfg.Color = "#ff0000"
	}
	return cfg
}
