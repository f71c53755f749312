package render

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/fogleman/gg"

	"whiteboard/internal/domain"
)

// Surface is a raster drawing target backed by a gg context.
type Surface struct {
	dc *gg.Context
}

// NewSurface allocates a w x h surface. Non-positive sizes cannot be
// acquired and return ErrConstruction.
func NewSurface(w, h int) (*Surface, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: surface size %dx%d", domain.ErrConstruction, w, h)
	}
	return &Surface{dc: gg.NewContext(w, h)}, nil
}

func (s *Surface) Width() int { return s.dc.Width() }
func (s *Surface) Height() int { return s.dc.Height() }

// Image returns the backing RGBA image. It is reused across frames.
func (s *Surface) Image() *image.RGBA {
	return s.dc.Image().(*image.RGBA)
}

func (s *Surface) EncodePNG(w io.Writer) error {
	if err := s.dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// EncodeJPEG writes the surface as JPEG. Quality is clamped to 1..100, with
// zero meaning the encoder default.
func (s *Surface) EncodeJPEG(w io.Writer, quality int) error {
	if quality == 0 {
		quality = jpeg.DefaultQuality
	}
	quality = int(clamp(float64(quality), 1, 100))
	if err := jpeg.Encode(w, s.dc.Image(), &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return nil
}
