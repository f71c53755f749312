package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/fogleman/gg"

	"whiteboard/internal/domain"
)

const (
	arrowHeadSize      = 10.0
	defaultStickySize  = 200.0
	defaultStickyFont  = 14.0
	stickyPadding      = 12.0
	stickyTextColor    = "#333333"
	defaultStrokeWidth = 2.0
)

// ── Strokes ─────────────────────────────────────────────────

// tracePath smooths pts with quadratic segments through the midpoints of
// consecutive points.
func tracePath(dc *gg.Context, pts []domain.Point) {
	dc.MoveTo(pts[0].X, pts[0].Y)
	for i := 1; i < len(pts); i++ {
		p0, p1 := pts[i-1], pts[i]
		dc.QuadraticTo(p0.X, p0.Y, (p0.X+p1.X)/2, (p0.Y+p1.Y)/2)
	}
	last := pts[len(pts)-1]
	dc.LineTo(last.X, last.Y)
}

func (p *pass) stroke(c *domain.Component, d *domain.StrokeData) error {
	if len(d.Points) < 2 {
		return nil
	}
	col := withOpacity(parseColor(d.Color, black), opacityOr(d.Opacity))
	if d.Tool == domain.StrokeHighlighter {
		return p.highlight(c, d, col)
	}
	tracePath(p.dc, d.Points)
	p.dc.SetColor(col)
	p.dc.SetLineWidth(p.px(d.Thickness))
	p.dc.Stroke()
	return nil
}

// highlight paints the stroke on a scratch layer and multiplies it onto the
// surface, so overlapping ink darkens instead of covering.
func (p *pass) highlight(c *domain.Component, d *domain.StrokeData, col color.NRGBA) error {
	w, h := p.dc.Width(), p.dc.Height()
	layer := gg.NewContext(w, h)
	layer.Translate(-p.vp.X*p.vp.Zoom, -p.vp.Y*p.vp.Zoom)
	layer.Scale(p.vp.Zoom, p.vp.Zoom)
	if c.Rotation != 0 {
		ctr := c.Bounds().Center()
		layer.RotateAbout(gg.Radians(c.Rotation), ctr.X, ctr.Y)
	}
	tracePath(layer, d.Points)
	layer.SetColor(col)
	layer.SetLineWidth(p.px(d.Thickness))
	layer.SetLineCapRound()
	layer.SetLineJoinRound()
	layer.Stroke()

	dst := p.dc.Image().(*image.RGBA)
	src := layer.Image().(*image.RGBA)
	multiply(dst, src, p.screenRect(c.Bounds().Expand(d.Thickness)))
	return nil
}

// screenRect maps a world box to the device pixel rectangle covering it.
func (p *pass) screenRect(b domain.Bounds) image.Rectangle {
	z := p.vp.Zoom
	x0 := (b.X - p.vp.X) * z
	y0 := (b.Y - p.vp.Y) * z
	// Rotation can swing the box up to its diagonal.
	pad := math.Hypot(b.Width, b.Height) * z / 2
	return image.Rect(
		int(math.Floor(x0-pad)), int(math.Floor(y0-pad)),
		int(math.Ceil(x0+b.Width*z+pad)), int(math.Ceil(y0+b.Height*z+pad)),
	)
}

// ── Shapes ──────────────────────────────────────────────────

func (p *pass) shape(c *domain.Component, d *domain.ShapeData) error {
	w, h := sizeOr(c, domain.DefaultComponentSize)
	dc := p.dc

	switch d.ShapeType {
	case domain.ShapeRectangle, "":
		if d.CornerRadius > 0 {
			dc.DrawRoundedRectangle(0, 0, w, h, d.CornerRadius)
		} else {
			dc.DrawRectangle(0, 0, w, h)
		}
	case domain.ShapeEllipse:
		dc.DrawEllipse(w/2, h/2, math.Abs(w/2), math.Abs(h/2))
	case domain.ShapeTriangle:
		dc.MoveTo(w/2, 0)
		dc.LineTo(w, h)
		dc.LineTo(0, h)
		dc.ClosePath()
	case domain.ShapeLine, domain.ShapeArrow:
		dc.MoveTo(0, 0)
		dc.LineTo(w, h)
	case domain.ShapeStar:
		star(dc, w/2, h/2, 5, w/2, w/4)
	case domain.ShapePolygon:
		sides := d.Sides
		if sides < 3 {
			sides = 6
		}
		polygon(dc, w/2, h/2, math.Min(w, h)/2, sides)
	default:
		dc.ClearPath()
		return fmt.Errorf("%w: unknown shape type %q", domain.ErrValidation, d.ShapeType)
	}

	opacity := opacityOr(d.Opacity)
	strokeCol := withOpacity(parseColor(d.Stroke, black), opacity)
	open := d.ShapeType == domain.ShapeLine || d.ShapeType == domain.ShapeArrow
	if d.Fill != "" && !open {
		dc.SetColor(withOpacity(parseColor(d.Fill, black), opacity))
		if d.Stroke != "" {
			dc.FillPreserve()
		} else {
			dc.Fill()
		}
	}
	if d.Stroke != "" {
		sw := d.StrokeWidth
		if sw <= 0 {
			sw = defaultStrokeWidth
		}
		dc.SetColor(strokeCol)
		dc.SetLineWidth(sw * p.lineScale(c))
		dc.Stroke()
	}
	dc.ClearPath()

	if d.ShapeType == domain.ShapeArrow {
		arrowHead(dc, w, h, math.Atan2(h, w))
		dc.SetColor(strokeCol)
		dc.Fill()
	}
	return nil
}

// arrowHead adds a closed triangle with its tip at (x, y) pointing along angle.
func arrowHead(dc *gg.Context, x, y, angle float64) {
	s := arrowHeadSize
	cos, sin := math.Cos(angle), math.Sin(angle)
	rot := func(lx, ly float64) (float64, float64) {
		return x + lx*cos - ly*sin, y + lx*sin + ly*cos
	}
	dc.MoveTo(x, y)
	dc.LineTo(rot(-s, -s/2))
	dc.LineTo(rot(-s, s/2))
	dc.ClosePath()
}

func star(dc *gg.Context, cx, cy float64, spikes int, outer, inner float64) {
	rot := math.Pi / 2 * 3
	step := math.Pi / float64(spikes)
	dc.MoveTo(cx, cy-outer)
	for i := 0; i < spikes; i++ {
		dc.LineTo(cx+math.Cos(rot)*outer, cy+math.Sin(rot)*outer)
		rot += step
		dc.LineTo(cx+math.Cos(rot)*inner, cy+math.Sin(rot)*inner)
		rot += step
	}
	dc.LineTo(cx, cy-outer)
	dc.ClosePath()
}

func polygon(dc *gg.Context, cx, cy, r float64, sides int) {
	angle := 2 * math.Pi / float64(sides)
	dc.MoveTo(cx+r, cy)
	for i := 1; i <= sides; i++ {
		dc.LineTo(cx+r*math.Cos(angle*float64(i)), cy+r*math.Sin(angle*float64(i)))
	}
	dc.ClosePath()
}

// ── Text ────────────────────────────────────────────────────

func (p *pass) text(c *domain.Component, d *domain.TextData) error {
	size := d.FontSize
	if size <= 0 {
		size = 16
	}
	face, err := p.faces.Face(styleFor(d.FontFamily, d.FontWeight, d.FontStyle), size)
	if err != nil {
		return err
	}
	p.dc.SetFontFace(face)
	p.dc.SetColor(parseColor(d.Color, black))

	lineHeight := d.LineHeight
	if lineHeight <= 0 {
		lineHeight = size * 1.2
	}
	w, _ := c.Size()
	x, ax := 0.0, 0.0
	switch d.Align {
	case domain.AlignCenter:
		x, ax = w/2, 0.5
	case domain.AlignRight:
		x, ax = w, 1
	}
	for i, line := range strings.Split(d.Text, "\n") {
		p.dc.DrawStringAnchored(line, x, float64(i)*lineHeight, ax, 1)
	}
	return nil
}

// ── Images ──────────────────────────────────────────────────

func (p *pass) image(c *domain.Component, d *domain.ImageData) error {
	var img image.Image
	ok := false
	if p.r.images != nil {
		img, ok = p.r.images.Image(d.Src)
	}
	if !ok {
		w, h := sizeOr(c, domain.DefaultComponentSize)
		p.placeholder(c, w, h)
		return nil
	}

	if d.Crop != nil {
		if sub, ok := img.(interface {
			SubImage(image.Rectangle) image.Image
		}); ok {
			r := image.Rect(int(d.Crop.X), int(d.Crop.Y), int(d.Crop.X+d.Crop.Width), int(d.Crop.Y+d.Crop.Height))
			img = sub.SubImage(r.Add(img.Bounds().Min))
		}
	}

	b := img.Bounds()
	iw, ih := float64(b.Dx()), float64(b.Dy())
	if iw == 0 || ih == 0 {
		return nil
	}
	w, h := iw, ih
	if c.Width != nil {
		w = *c.Width
	}
	if c.Height != nil {
		h = *c.Height
	}
	p.dc.Scale(w/iw, h/ih)
	// DrawImage maps source coordinates, so sub images need their origin
	// moved back to zero.
	p.dc.DrawImage(img, -b.Min.X, -b.Min.Y)
	return nil
}

func (p *pass) placeholder(c *domain.Component, w, h float64) {
	dc := p.dc
	dc.DrawRectangle(0, 0, w, h)
	dc.SetColor(color.NRGBA{240, 240, 240, 255})
	dc.FillPreserve()
	dc.SetColor(color.NRGBA{180, 180, 180, 255})
	dc.SetLineWidth(p.lineScale(c))
	dc.Stroke()
	dc.DrawLine(0, 0, w, h)
	dc.DrawLine(w, 0, 0, h)
	dc.Stroke()
}

// ── Sticky notes ────────────────────────────────────────────

func (p *pass) sticky(c *domain.Component, d *domain.StickyData) error {
	w, h := sizeOr(c, defaultStickySize)
	dc := p.dc

	// Soft drop shadow, offset down by 5.
	for i, a := range []float64{0.06, 0.07, 0.07} {
		grow := float64(3 - i)
		dc.DrawRoundedRectangle(-grow, 5-grow, w+2*grow, h+2*grow, 4+grow)
		dc.SetColor(color.NRGBA{A: uint8(a * 255)})
		dc.Fill()
	}

	dc.DrawRoundedRectangle(0, 0, w, h, 4)
	dc.SetColor(parseColor(d.Color, color.NRGBA{255, 247, 64, 255}))
	dc.Fill()

	if d.Text == "" {
		return nil
	}
	size := d.FontSize
	if size <= 0 {
		size = defaultStickyFont
	}
	face, err := p.faces.Face(styleRegular, size)
	if err != nil {
		return err
	}
	dc.SetFontFace(face)
	dc.SetColor(parseColor(stickyTextColor, black))
	lineHeight := size * 1.4
	maxWidth := w - stickyPadding*2
	for i, line := range dc.WordWrap(d.Text, maxWidth) {
		y := stickyPadding + float64(i)*lineHeight
		if y+lineHeight > h {
			break
		}
		dc.DrawStringAnchored(line, stickyPadding, y, 0, 1)
	}
	return nil
}

// ── Connectors ──────────────────────────────────────────────

func (p *pass) connector(d *domain.ConnectorData) error {
	dc := p.dc
	start, end := d.StartPoint, d.EndPoint
	midX := (start.X + end.X) / 2

	dc.MoveTo(start.X, start.Y)
	switch d.PathType {
	case domain.PathCurved:
		dc.QuadraticTo(midX, start.Y, end.X, end.Y)
	case domain.PathOrthogonal:
		dc.LineTo(midX, start.Y)
		dc.LineTo(midX, end.Y)
		dc.LineTo(end.X, end.Y)
	default:
		dc.LineTo(end.X, end.Y)
	}

	col := parseColor(d.Color, black)
	thickness := d.Thickness
	if thickness <= 0 {
		thickness = defaultStrokeWidth
	}
	dc.SetColor(col)
	dc.SetLineWidth(p.px(thickness))
	dc.Stroke()

	if d.EndArrow {
		arrowHead(dc, end.X, end.Y, math.Atan2(end.Y-start.Y, end.X-start.X))
		dc.Fill()
	}
	if d.StartArrow {
		arrowHead(dc, start.X, start.Y, math.Atan2(start.Y-end.Y, start.X-end.X))
		dc.Fill()
	}
	return nil
}

// ── Frames ──────────────────────────────────────────────────

func (p *pass) frame(c *domain.Component, d *domain.FrameData) error {
	w, h := sizeOr(c, domain.DefaultComponentSize)
	dc := p.dc
	dc.DrawRectangle(0, 0, w, h)
	dc.SetColor(parseColor(d.BackgroundColor, color.NRGBA{255, 255, 255, 255}))
	dc.FillPreserve()
	dc.SetColor(color.NRGBA{204, 204, 204, 255})
	dc.SetLineWidth(p.lineScale(c))
	dc.Stroke()

	if d.Name == "" {
		return nil
	}
	face, err := p.faces.Face(styleRegular, 12)
	if err != nil {
		return err
	}
	dc.SetFontFace(face)
	dc.SetColor(color.NRGBA{102, 102, 102, 255})
	dc.DrawString(d.Name, 0, -4)
	return nil
}
