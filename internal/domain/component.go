package domain

import (
	"encoding/json"
	"fmt"
)

type ComponentType string

const (
	ComponentStroke    ComponentType = "stroke"
	ComponentShape     ComponentType = "shape"
	ComponentText      ComponentType = "text"
	ComponentImage     ComponentType = "image"
	ComponentSticky    ComponentType = "sticky"
	ComponentConnector ComponentType = "connector"
	ComponentFrame     ComponentType = "frame"
)

// DefaultComponentSize is applied to sized kinds created without explicit dimensions.
const DefaultComponentSize = 100.0

// HasDefaultSize reports whether new components of this type get a 100x100 box.
func (t ComponentType) HasDefaultSize() bool {
	switch t {
	case ComponentShape, ComponentSticky, ComponentImage, ComponentText:
		return true
	}
	return false
}

// ComponentData is the per-type payload of a Component.
type ComponentData interface {
	Kind() ComponentType
	Clone() ComponentData
}

type Component struct {
	ID       string        `json:"id"`
	Type     ComponentType `json:"type"`
	LayerID  int           `json:"layerId"`
	X        float64       `json:"x"`
	Y        float64       `json:"y"`
	Width    *float64      `json:"width,omitempty"`
	Height   *float64      `json:"height,omitempty"`
	Rotation float64       `json:"rotation"`
	ScaleX   float64       `json:"scaleX"`
	ScaleY   float64       `json:"scaleY"`
	Data     ComponentData `json:"data"`
	Locked   bool          `json:"locked"`
	Visible  bool          `json:"visible"`
	Version  int           `json:"version"`
}

// Size returns width and height, treating missing values as zero.
func (c *Component) Size() (float64, float64) {
	var w, h float64
	if c.Width != nil {
		w = *c.Width
	}
	if c.Height != nil {
		h = *c.Height
	}
	return w, h
}

func (c *Component) Bounds() Bounds {
	w, h := c.Size()
	return Bounds{X: c.X, Y: c.Y, Width: w, Height: h}
}

func (c *Component) SetSize(w, h float64) {
	c.Width = Float(w)
	c.Height = Float(h)
}

// Clone returns a deep copy, including Data.
func (c *Component) Clone() *Component {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Width != nil {
		cp.Width = Float(*c.Width)
	}
	if c.Height != nil {
		cp.Height = Float(*c.Height)
	}
	if c.Data != nil {
		cp.Data = c.Data.Clone()
	}
	return &cp
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// ComponentPatch is a partial update. Nil fields are left unchanged.
type ComponentPatch struct {
	LayerID  *int          `json:"layerId,omitempty"`
	X        *float64      `json:"x,omitempty"`
	Y        *float64      `json:"y,omitempty"`
	Width    *float64      `json:"width,omitempty"`
	Height   *float64      `json:"height,omitempty"`
	Rotation *float64      `json:"rotation,omitempty"`
	ScaleX   *float64      `json:"scaleX,omitempty"`
	ScaleY   *float64      `json:"scaleY,omitempty"`
	Data     ComponentData `json:"-"`
	Locked   *bool         `json:"locked,omitempty"`
	Visible  *bool         `json:"visible,omitempty"`
}

// Apply writes the non-nil fields of p onto c. It does not touch Version.
func (p ComponentPatch) Apply(c *Component) {
	if p.LayerID != nil {
		c.LayerID = *p.LayerID
	}
	if p.X != nil {
		c.X = *p.X
	}
	if p.Y != nil {
		c.Y = *p.Y
	}
	if p.Width != nil {
		c.Width = Float(*p.Width)
	}
	if p.Height != nil {
		c.Height = Float(*p.Height)
	}
	if p.Rotation != nil {
		c.Rotation = *p.Rotation
	}
	if p.ScaleX != nil {
		c.ScaleX = *p.ScaleX
	}
	if p.ScaleY != nil {
		c.ScaleY = *p.ScaleY
	}
	if p.Data != nil {
		c.Data = p.Data.Clone()
	}
	if p.Locked != nil {
		c.Locked = *p.Locked
	}
	if p.Visible != nil {
		c.Visible = *p.Visible
	}
}

// MoveTo builds a patch that only changes position.
func MoveTo(x, y float64) ComponentPatch {
	return ComponentPatch{X: &x, Y: &y}
}

// ── JSON ────────────────────────────────────────────────────

type componentJSON struct {
	ID       string          `json:"id"`
	Type     ComponentType   `json:"type"`
	LayerID  int             `json:"layerId"`
	X        float64         `json:"x"`
	Y        float64         `json:"y"`
	Width    *float64        `json:"width,omitempty"`
	Height   *float64        `json:"height,omitempty"`
	Rotation float64         `json:"rotation"`
	ScaleX   float64         `json:"scaleX"`
	ScaleY   float64         `json:"scaleY"`
	Data     json.RawMessage `json:"data"`
	Locked   bool            `json:"locked"`
	Visible  bool            `json:"visible"`
	Version  int             `json:"version"`
}

func (c Component) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(c.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", c.Type, err)
	}
	return json.Marshal(componentJSON{
		ID: c.ID, Type: c.Type, LayerID: c.LayerID,
		X: c.X, Y: c.Y, Width: c.Width, Height: c.Height,
		Rotation: c.Rotation, ScaleX: c.ScaleX, ScaleY: c.ScaleY,
		Data: data, Locked: c.Locked, Visible: c.Visible, Version: c.Version,
	})
}

func (c *Component) UnmarshalJSON(b []byte) error {
	var raw componentJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := DecodeComponentData(raw.Type, raw.Data)
	if err != nil {
		return err
	}
	*c = Component{
		ID: raw.ID, Type: raw.Type, LayerID: raw.LayerID,
		X: raw.X, Y: raw.Y, Width: raw.Width, Height: raw.Height,
		Rotation: raw.Rotation, ScaleX: raw.ScaleX, ScaleY: raw.ScaleY,
		Data: data, Locked: raw.Locked, Visible: raw.Visible, Version: raw.Version,
	}
	return nil
}

// DecodeComponentData unmarshals raw into the variant selected by t.
func DecodeComponentData(t ComponentType, raw json.RawMessage) (ComponentData, error) {
	var data ComponentData
	switch t {
	case ComponentStroke:
		data = &StrokeData{}
	case ComponentShape:
		data = &ShapeData{}
	case ComponentText:
		data = &TextData{}
	case ComponentImage:
		data = &ImageData{}
	case ComponentSticky:
		data = &StickyData{}
	case ComponentConnector:
		data = &ConnectorData{}
	case ComponentFrame:
		data = &FrameData{}
	default:
		return nil, fmt.Errorf("%w: unknown component type %q", ErrValidation, t)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return data, nil
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("decode %s data: %w", t, err)
	}
	return data, nil
}

// Translate moves c by (dx, dy). Point-based payloads are shifted with it so
// the drawn geometry follows the component box.
func (c *Component) Translate(dx, dy float64) {
	c.X += dx
	c.Y += dy
	switch d := c.Data.(type) {
	case *StrokeData:
		for i := range d.Points {
			d.Points[i].X += dx
			d.Points[i].Y += dy
		}
	case *ConnectorData:
		d.StartPoint.X += dx
		d.StartPoint.Y += dy
		d.EndPoint.X += dx
		d.EndPoint.Y += dy
	}
}

// PatchFrom builds a patch that rewrites every mutable field to match c.
func PatchFrom(c *Component) ComponentPatch {
	cp := c.Clone()
	p := ComponentPatch{
		LayerID:  &cp.LayerID,
		X:        &cp.X,
		Y:        &cp.Y,
		Rotation: &cp.Rotation,
		ScaleX:   &cp.ScaleX,
		ScaleY:   &cp.ScaleY,
		Data:     cp.Data,
		Locked:   &cp.Locked,
		Visible:  &cp.Visible,
	}
	w, h := cp.Size()
	if cp.Width != nil {
		p.Width = &w
	}
	if cp.Height != nil {
		p.Height = &h
	}
	return p
}
