package domain

type StrokeTool string

const (
	StrokePencil      StrokeTool = "pencil"
	StrokeMarker      StrokeTool = "marker"
	StrokeHighlighter StrokeTool = "highlighter"
)

type StrokeData struct {
	Points    []Point    `json:"points"`
	Color     string     `json:"color"`
	Thickness float64    `json:"thickness"`
	Opacity   float64    `json:"opacity"`
	Tool      StrokeTool `json:"tool"`
	Smoothing float64    `json:"smoothing,omitempty"`
}

func (d *StrokeData) Kind() ComponentType { return ComponentStroke }

func (d *StrokeData) Clone() ComponentData {
	cp := *d
	cp.Points = append([]Point(nil), d.Points...)
	return &cp
}

type ShapeType string

const (
	ShapeRectangle ShapeType = "rectangle"
	ShapeEllipse   ShapeType = "ellipse"
	ShapeTriangle  ShapeType = "triangle"
	ShapeLine      ShapeType = "line"
	ShapeArrow     ShapeType = "arrow"
	ShapeStar      ShapeType = "star"
	ShapePolygon   ShapeType = "polygon"
)

type ShapeData struct {
	ShapeType    ShapeType `json:"shapeType"`
	Fill         string    `json:"fill,omitempty"`
	Stroke       string    `json:"stroke,omitempty"`
	StrokeWidth  float64   `json:"strokeWidth,omitempty"`
	Opacity      float64   `json:"opacity,omitempty"`
	CornerRadius float64   `json:"cornerRadius,omitempty"`
	Sides        int       `json:"sides,omitempty"`
}

func (d *ShapeData) Kind() ComponentType { return ComponentShape }

func (d *ShapeData) Clone() ComponentData {
	cp := *d
	return &cp
}

type TextAlign string

const (
	AlignLeft   TextAlign = "left"
	AlignCenter TextAlign = "center"
	AlignRight  TextAlign = "right"
)

type TextData struct {
	Text          string    `json:"text"`
	FontSize      float64   `json:"fontSize"`
	FontFamily    string    `json:"fontFamily"`
	FontWeight    int       `json:"fontWeight,omitempty"`
	FontStyle     string    `json:"fontStyle,omitempty"`
	Color         string    `json:"color"`
	Align         TextAlign `json:"align,omitempty"`
	VerticalAlign string    `json:"verticalAlign,omitempty"`
	LineHeight    float64   `json:"lineHeight,omitempty"`
}

func (d *TextData) Kind() ComponentType { return ComponentText }

func (d *TextData) Clone() ComponentData {
	cp := *d
	return &cp
}

type ImageFilters struct {
	Brightness float64 `json:"brightness,omitempty"`
	Contrast   float64 `json:"contrast,omitempty"`
	Saturation float64 `json:"saturation,omitempty"`
	Blur       float64 `json:"blur,omitempty"`
}

type ImageData struct {
	Src            string        `json:"src"`
	OriginalWidth  float64       `json:"originalWidth"`
	OriginalHeight float64       `json:"originalHeight"`
	Crop           *Bounds       `json:"crop,omitempty"`
	Filters        *ImageFilters `json:"filters,omitempty"`
}

func (d *ImageData) Kind() ComponentType { return ComponentImage }

func (d *ImageData) Clone() ComponentData {
	cp := *d
	if d.Crop != nil {
		crop := *d.Crop
		cp.Crop = &crop
	}
	if d.Filters != nil {
		f := *d.Filters
		cp.Filters = &f
	}
	return &cp
}

type StickyData struct {
	Text     string  `json:"text"`
	Color    string  `json:"color"`
	FontSize float64 `json:"fontSize,omitempty"`
}

func (d *StickyData) Kind() ComponentType { return ComponentSticky }

func (d *StickyData) Clone() ComponentData {
	cp := *d
	return &cp
}

type PathType string

const (
	PathStraight   PathType = "straight"
	PathCurved     PathType = "curved"
	PathOrthogonal PathType = "orthogonal"
)

// Next cycles straight -> curved -> orthogonal -> straight.
func (p PathType) Next() PathType {
	switch p {
	case PathStraight:
		return PathCurved
	case PathCurved:
		return PathOrthogonal
	default:
		return PathStraight
	}
}

type ConnectorData struct {
	StartComponentID string   `json:"startComponentId,omitempty"`
	EndComponentID   string   `json:"endComponentId,omitempty"`
	StartPoint       Point    `json:"startPoint"`
	EndPoint         Point    `json:"endPoint"`
	PathType         PathType `json:"pathType"`
	StartArrow       bool     `json:"startArrow,omitempty"`
	EndArrow         bool     `json:"endArrow,omitempty"`
	Color            string   `json:"color"`
	Thickness        float64  `json:"thickness"`
}

func (d *ConnectorData) Kind() ComponentType { return ComponentConnector }

func (d *ConnectorData) Clone() ComponentData {
	cp := *d
	return &cp
}

type FrameData struct {
	Name            string `json:"name"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
}

func (d *FrameData) Kind() ComponentType { return ComponentFrame }

func (d *FrameData) Clone() ComponentData {
	cp := *d
	return &cp
}
