package render

import (
	"image/color"

	"whiteboard/internal/domain"
)

// selection paints the dashed union box of comps and its 8 resize handles.
// Padding and handle size stay constant in screen pixels.
func (p *pass) selection(comps []domain.Component) {
	box := comps[0].Bounds()
	for _, c := range comps[1:] {
		box = box.Union(c.Bounds())
	}
	z := p.vp.Zoom
	pad := SelectionPadding / z
	hs := SelectionHandleSize / z
	outline := parseColor(SelectionColor, black)

	p.reset()
	dc := p.dc
	minX, minY := box.X-pad, box.Y-pad
	maxX, maxY := box.X+box.Width+pad, box.Y+box.Height+pad

	dc.DrawRectangle(minX, minY, maxX-minX, maxY-minY)
	dc.SetColor(parseColor(SelectionFill, color.NRGBA{}))
	dc.FillPreserve()
	dc.SetColor(outline)
	dc.SetLineWidth(1)
	dc.SetDash(5, 5)
	dc.SetLineCapButt()
	dc.Stroke()
	dc.SetDash()

	midX, midY := (minX+maxX)/2, (minY+maxY)/2
	handles := []domain.Point{
		{X: minX, Y: minY}, {X: maxX, Y: minY}, {X: maxX, Y: maxY}, {X: minX, Y: maxY},
		{X: midX, Y: minY}, {X: midX, Y: maxY}, {X: minX, Y: midY}, {X: maxX, Y: midY},
	}
	for _, h := range handles {
		dc.DrawRectangle(h.X-hs/2, h.Y-hs/2, hs, hs)
		dc.SetColor(color.NRGBA{255, 255, 255, 255})
		dc.FillPreserve()
		dc.SetColor(outline)
		dc.Stroke()
	}
}

// cursors paints remote pointers as an arrow glyph with a name tag. Glyphs
// are drawn in screen space so they keep their size at any zoom.
func (p *pass) cursors(list []domain.RemoteCursor) {
	face, err := p.faces.Face(styleRegular, 12)
	if err != nil {
		return
	}
	dc := p.dc
	for _, c := range list {
		sx := (c.X - p.vp.X) * p.vp.Zoom
		sy := (c.Y - p.vp.Y) * p.vp.Zoom
		dc.Identity()
		dc.ClearPath()
		dc.Translate(sx, sy)

		col := parseColor(c.Color, color.NRGBA{33, 150, 243, 255})
		dc.SetColor(col)
		dc.MoveTo(0, 0)
		dc.LineTo(0, 16)
		dc.LineTo(4, 12)
		dc.LineTo(8, 20)
		dc.LineTo(10, 19)
		dc.LineTo(6, 11)
		dc.LineTo(11, 11)
		dc.ClosePath()
		dc.Fill()

		if c.UserName == "" {
			continue
		}
		dc.SetFontFace(face)
		tw, _ := dc.MeasureString(c.UserName)
		dc.DrawRoundedRectangle(12, 14, tw+8, 18, 4)
		dc.Fill()
		dc.SetColor(color.NRGBA{255, 255, 255, 255})
		dc.DrawString(c.UserName, 16, 28)
	}
	dc.Identity()
}
