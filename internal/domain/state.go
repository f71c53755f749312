package domain

// BoardState is the full snapshot of one session, used for persistence,
// fast resume and JSON export.
type BoardState struct {
	SessionID  string      `json:"sessionId"`
	Layers     []Layer     `json:"layers"`
	Components []Component `json:"components"`
	Viewport   Viewport    `json:"viewport"`
	Version    int         `json:"version"`
}

type RemoteCursor struct {
	ID         string   `json:"id"`
	UserID     string   `json:"userId"`
	UserName   string   `json:"userName"`
	Color      string   `json:"color"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Tool       ToolKind `json:"tool,omitempty"`
	LastUpdate int64    `json:"lastUpdate"`
}

type GridConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Size    float64 `json:"size" yaml:"size"`
	Color   string  `json:"color" yaml:"color"`
	Opacity float64 `json:"opacity" yaml:"opacity"`
	Snap    bool    `json:"snap" yaml:"snap"`
}

type RenderOptions struct {
	ShowGrid      bool   `json:"showGrid"`
	ShowCursors   bool   `json:"showCursors"`
	ShowSelection bool   `json:"showSelection"`
	Quality       string `json:"quality,omitempty"`
}

type ExportFormat string

const (
	ExportPNG  ExportFormat = "png"
	ExportJPG  ExportFormat = "jpg"
	ExportSVG  ExportFormat = "svg"
	ExportPDF  ExportFormat = "pdf"
	ExportJSON ExportFormat = "json"
)

type ExportOptions struct {
	Viewport    bool    `json:"viewport"`
	Quality     int     `json:"quality,omitempty"`
	Scale       float64 `json:"scale,omitempty"`
	Background  string  `json:"background,omitempty"`
	IncludeGrid bool    `json:"includeGrid"`
}
