package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"math"
	"slices"

	"github.com/fogleman/gg"

	"whiteboard/internal/domain"
)

const (
	DefaultBackground = "#ffffff"
	DefaultGridSize   = 20.0
	DefaultGridColor  = "#e0e0e0"
	DefaultGridAlpha  = 0.5

	SelectionPadding    = 4.0
	SelectionHandleSize = 8.0
	SelectionColor      = "#2196f3"
	SelectionFill       = "rgba(33, 150, 243, 0.08)"
)

var black = color.NRGBA{A: 255}

// Frame is everything one paint pass needs.
type Frame struct {
	Components []domain.Component
	Viewport   domain.Viewport
	Options    domain.RenderOptions
	Selection  []domain.Component
	Cursors    []domain.RemoteCursor
	// Layers gives draw order and opacity. Without them components paint
	// by layer id at full opacity.
	Layers []domain.Layer
	// Background overrides the renderer background for this frame.
	Background string
}

// Renderer paints frames onto a Surface. It keeps no per-frame state, so
// one Renderer can serve the live surface and export surfaces alike.
type Renderer struct {
	background string
	grid       domain.GridConfig
	images     ImageSource
	fonts      *fontCache
}

type Option func(*Renderer)

func WithImages(src ImageSource) Option {
	return func(r *Renderer) { r.images = src }
}

func WithGrid(g domain.GridConfig) Option {
	return func(r *Renderer) { r.grid = g }
}

func WithBackground(c string) Option {
	return func(r *Renderer) { r.background = c }
}

func New(opts ...Option) *Renderer {
	r := &Renderer{
		background: DefaultBackground,
		grid: domain.GridConfig{
			Enabled: true,
			Size:    DefaultGridSize,
			Color:   DefaultGridColor,
			Opacity: DefaultGridAlpha,
		},
		fonts: newFontCache(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render paints f onto s. A component that fails to draw is skipped and
// reported in the returned slice; the rest of the frame still paints.
func (r *Renderer) Render(s *Surface, f Frame) []error {
	vp := f.Viewport
	if vp.Zoom <= 0 {
		vp.Zoom = 1
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		vp.Width, vp.Height = float64(s.Width()), float64(s.Height())
	}
	p := &pass{r: r, dc: s.dc, vp: vp, faces: &passFaces{cache: r.fonts}}

	bg := f.Background
	if bg == "" {
		bg = r.background
	}
	p.dc.Identity()
	p.dc.SetColor(parseColor(bg, color.NRGBA{255, 255, 255, 255}))
	p.dc.Clear()

	if f.Options.ShowGrid {
		p.grid()
	}

	order, opacity := layerTable(f.Layers)
	visible := p.cull(f.Components, order)
	var errs []error
	for start := 0; start < len(visible); {
		end := start + 1
		for end < len(visible) && visible[end].LayerID == visible[start].LayerID {
			end++
		}
		alpha := 1.0
		if a, ok := opacity[visible[start].LayerID]; ok {
			alpha = a
		}
		errs = append(errs, p.layer(s, visible[start:end], alpha)...)
		start = end
	}

	if f.Options.ShowSelection && len(f.Selection) > 0 {
		p.selection(f.Selection)
	}
	if f.Options.ShowCursors && len(f.Cursors) > 0 {
		p.cursors(f.Cursors)
	}
	p.dc.Identity()
	return errs
}

// pass carries the state of a single Render call.
type pass struct {
	r     *Renderer
	dc    *gg.Context
	vp    domain.Viewport
	faces *passFaces
}

// layerTable indexes draw order and opacity by layer id.
func layerTable(layers []domain.Layer) (map[int]int, map[int]float64) {
	order := make(map[int]int, len(layers))
	opacity := make(map[int]float64, len(layers))
	for _, l := range layers {
		order[l.ID] = l.Order
		opacity[l.ID] = math.Max(0, math.Min(1, l.Opacity))
	}
	return order, opacity
}

// layer paints the components of one layer. Below full opacity they are
// drawn on a scratch surface and composited with the layer alpha.
func (p *pass) layer(s *Surface, comps []domain.Component, alpha float64) []error {
	if alpha <= 0 {
		return nil
	}
	if alpha >= 1 {
		return p.drawAll(comps)
	}
	scratch := gg.NewContext(s.Width(), s.Height())
	sub := &pass{r: p.r, dc: scratch, vp: p.vp, faces: p.faces}
	errs := sub.drawAll(comps)
	dst := s.Image()
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(alpha * 255))})
	draw.DrawMask(dst, dst.Bounds(), scratch.Image(), image.Point{}, mask, image.Point{}, draw.Over)
	return errs
}

func (p *pass) drawAll(comps []domain.Component) []error {
	var errs []error
	for i := range comps {
		c := &comps[i]
		if err := p.drawSafe(c); err != nil {
			rerr := &domain.RenderError{ComponentID: c.ID, Type: c.Type, Err: err}
			log.Printf("[RENDER] %v", rerr)
			errs = append(errs, rerr)
		}
	}
	return errs
}

// cull drops hidden and off-screen components and orders the rest by layer
// draw order, falling back to the layer id for unknown layers.
func (p *pass) cull(comps []domain.Component, order map[int]int) []domain.Component {
	world := p.vp.WorldRect()
	out := make([]domain.Component, 0, len(comps))
	for _, c := range comps {
		if !c.Visible {
			continue
		}
		if !c.Bounds().Intersects(world) {
			continue
		}
		out = append(out, c)
	}
	rank := func(id int) int {
		if o, ok := order[id]; ok {
			return o
		}
		return id
	}
	slices.SortStableFunc(out, func(a, b domain.Component) int {
		if ra, rb := rank(a.LayerID), rank(b.LayerID); ra != rb {
			return ra - rb
		}
		return a.LayerID - b.LayerID
	})
	return out
}

// world resets the matrix to the viewport transform.
func (p *pass) world() {
	p.dc.Identity()
	p.dc.Translate(-p.vp.X*p.vp.Zoom, -p.vp.Y*p.vp.Zoom)
	p.dc.Scale(p.vp.Zoom, p.vp.Zoom)
}

// px converts a world length to device pixels. gg strokes in device space.
func (p *pass) px(w float64) float64 {
	return w * p.vp.Zoom
}

func (p *pass) reset() {
	p.world()
	p.dc.ClearPath()
	p.dc.SetDash()
	p.dc.SetLineWidth(1)
	p.dc.SetLineCapRound()
	p.dc.SetLineJoinRound()
}

func (p *pass) grid() {
	g := p.r.grid
	size := g.Size
	if size <= 0 {
		size = DefaultGridSize
	}
	opacity := g.Opacity
	if opacity <= 0 {
		opacity = DefaultGridAlpha
	}
	b := p.vp.WorldRect()
	// Too dense to be useful and expensive to rasterize.
	if b.Width/size > 2000 || b.Height/size > 2000 {
		return
	}

	p.reset()
	startX := math.Floor(b.X/size) * size
	startY := math.Floor(b.Y/size) * size
	for x := startX; x <= b.X+b.Width; x += size {
		p.dc.MoveTo(x, b.Y)
		p.dc.LineTo(x, b.Y+b.Height)
	}
	for y := startY; y <= b.Y+b.Height; y += size {
		p.dc.MoveTo(b.X, y)
		p.dc.LineTo(b.X+b.Width, y)
	}
	p.dc.SetColor(withOpacity(parseColor(g.Color, color.NRGBA{224, 224, 224, 255}), opacity))
	p.dc.SetLineWidth(1)
	p.dc.SetLineCapButt()
	p.dc.Stroke()
}

func (p *pass) drawSafe(c *domain.Component) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	p.reset()
	return p.draw(c)
}

func (p *pass) draw(c *domain.Component) error {
	switch d := c.Data.(type) {
	case *domain.StrokeData:
		p.rotateAbout(c)
		return p.stroke(c, d)
	case *domain.ConnectorData:
		p.rotateAbout(c)
		return p.connector(d)
	case *domain.ShapeData:
		p.local(c)
		return p.shape(c, d)
	case *domain.TextData:
		p.local(c)
		return p.text(c, d)
	case *domain.ImageData:
		p.local(c)
		return p.image(c, d)
	case *domain.StickyData:
		p.local(c)
		return p.sticky(c, d)
	case *domain.FrameData:
		p.local(c)
		return p.frame(c, d)
	case nil:
		return fmt.Errorf("%w: component has no data", domain.ErrValidation)
	}
	return fmt.Errorf("%w: no draw routine for %T", domain.ErrNotImplemented, c.Data)
}

// local enters the component frame: origin at (X, Y), then rotation, then
// scale.
func (p *pass) local(c *domain.Component) {
	p.dc.Translate(c.X, c.Y)
	if c.Rotation != 0 {
		p.dc.Rotate(gg.Radians(c.Rotation))
	}
	sx, sy := scaleOf(c)
	if sx != 1 || sy != 1 {
		p.dc.Scale(sx, sy)
	}
}

// rotateAbout rotates point-based kinds, whose geometry is stored in world
// coordinates, around their box center.
func (p *pass) rotateAbout(c *domain.Component) {
	if c.Rotation == 0 {
		return
	}
	ctr := c.Bounds().Center()
	p.dc.RotateAbout(gg.Radians(c.Rotation), ctr.X, ctr.Y)
}

func scaleOf(c *domain.Component) (float64, float64) {
	sx, sy := c.ScaleX, c.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	return sx, sy
}

// lineScale is the device pixel size of one local unit for c.
func (p *pass) lineScale(c *domain.Component) float64 {
	sx, sy := scaleOf(c)
	return p.vp.Zoom * math.Sqrt(math.Abs(sx*sy))
}

func sizeOr(c *domain.Component, def float64) (float64, float64) {
	w, h := def, def
	if c.Width != nil {
		w = *c.Width
	}
	if c.Height != nil {
		h = *c.Height
	}
	return w, h
}

func opacityOr(o float64) float64 {
	if o <= 0 {
		return 1
	}
	return o
}
