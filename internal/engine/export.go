package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math"

	"whiteboard/internal/domain"
	"whiteboard/internal/render"
)

// ExportPadding surrounds the content box in full-board exports.
const ExportPadding = 20.0

// MaxExportSide bounds either side of a raster export in pixels. Larger
// boards are exported at a lower zoom.
const MaxExportSide = 16384

type exportDoc struct {
	Layers     []domain.Layer     `json:"layers"`
	Components []domain.Component `json:"components"`
}

// Export encodes the board. Raster formats paint either the current
// viewport or the content box onto a dedicated surface, so the live surface
// is left untouched.
func (e *Engine) Export(format domain.ExportFormat, opts domain.ExportOptions) ([]byte, error) {
	if !e.alive() {
		return nil, domain.ErrDestroyed
	}
	switch format {
	case domain.ExportJSON:
		raw, err := json.MarshalIndent(exportDoc{
			Layers:     e.Layers.All(),
			Components: deref(e.Components.All()),
		}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode board json: %w", err)
		}
		return raw, nil
	case domain.ExportPNG, domain.ExportJPG:
		return e.exportRaster(format, opts)
	case domain.ExportSVG, domain.ExportPDF:
		return nil, fmt.Errorf("%w: %s export", domain.ErrNotImplemented, format)
	}
	return nil, fmt.Errorf("%w: unknown export format %q", domain.ErrValidation, format)
}

func (e *Engine) exportRaster(format domain.ExportFormat, opts domain.ExportOptions) ([]byte, error) {
	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}
	vp, comps := e.exportView(opts.Viewport)
	if side := math.Max(vp.Width, vp.Height); side*scale > MaxExportSide {
		scale = MaxExportSide / side
		log.Printf("[ENGINE] export clamped to %dpx, scale %.4f", MaxExportSide, scale)
	}
	w := min(int(math.Ceil(vp.Width*scale)), MaxExportSide)
	h := min(int(math.Ceil(vp.Height*scale)), MaxExportSide)
	s, err := render.NewSurface(w, h)
	if err != nil {
		return nil, err
	}

	// The export viewport addresses device pixels directly.
	vp.Zoom *= scale
	vp.Width, vp.Height = float64(w), float64(h)
	f := render.Frame{
		Components: comps,
		Viewport:   vp,
		Options:    domain.RenderOptions{ShowGrid: opts.IncludeGrid},
		Background: opts.Background,
		Layers:     e.Layers.All(),
	}
	if errs := e.renderer.Render(s, f); len(errs) > 0 {
		log.Printf("[ENGINE] export skipped %d components", len(errs))
	}

	var buf bytes.Buffer
	if format == domain.ExportPNG {
		err = s.EncodePNG(&buf)
	} else {
		err = s.EncodeJPEG(&buf, opts.Quality)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// exportView picks the region to export. The whole-board view falls back to
// the current viewport when the board is empty.
func (e *Engine) exportView(current bool) (domain.Viewport, []domain.Component) {
	vp := e.Viewport.Viewport()
	if current {
		return vp, e.visible(e.Components.InViewport(vp, e.opts.ViewportBuffer))
	}
	comps := e.visible(e.Components.All())
	if len(comps) == 0 {
		return vp, comps
	}
	b := comps[0].Bounds()
	for _, c := range comps[1:] {
		b = b.Union(c.Bounds())
	}
	b = b.Expand(ExportPadding)
	return domain.Viewport{X: b.X, Y: b.Y, Zoom: 1, Width: b.Width, Height: b.Height}, comps
}
