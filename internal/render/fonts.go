package render

import (
	"fmt"
	"math"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

type fontStyle int

const (
	styleRegular fontStyle = iota
	styleBold
	styleItalic
	styleBoldItalic
	styleMono
)

type faceKey struct {
	style fontStyle
	size  float64
}

// fontCache parses the embedded Go fonts once. Parsed fonts are shared;
// faces hold glyph buffers and belong to a single render pass.
type fontCache struct {
	mu    sync.Mutex
	fonts map[fontStyle]*truetype.Font
}

func newFontCache() *fontCache {
	return &fontCache{fonts: make(map[fontStyle]*truetype.Font)}
}

func styleFor(family string, weight int, style string) fontStyle {
	if family == "monospace" || family == "mono" {
		return styleMono
	}
	bold := weight >= 600
	italic := style == "italic" || style == "oblique"
	switch {
	case bold && italic:
		return styleBoldItalic
	case bold:
		return styleBold
	case italic:
		return styleItalic
	}
	return styleRegular
}

func ttfFor(s fontStyle) []byte {
	switch s {
	case styleBold:
		return gobold.TTF
	case styleItalic:
		return goitalic.TTF
	case styleBoldItalic:
		return gobolditalic.TTF
	case styleMono:
		return gomono.TTF
	}
	return goregular.TTF
}

func (fc *fontCache) font(s fontStyle) (*truetype.Font, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if ft, ok := fc.fonts[s]; ok {
		return ft, nil
	}
	parsed, err := truetype.Parse(ttfFor(s))
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	fc.fonts[s] = parsed
	return parsed, nil
}

// passFaces builds faces on demand for one render pass. Sizes are rounded
// to half units to bound the set.
type passFaces struct {
	cache *fontCache
	faces map[faceKey]font.Face
}

func (pf *passFaces) Face(s fontStyle, size float64) (font.Face, error) {
	if size <= 0 {
		size = 16
	}
	size = math.Round(size*2) / 2
	key := faceKey{s, size}
	if f, ok := pf.faces[key]; ok {
		return f, nil
	}
	ft, err := pf.cache.font(s)
	if err != nil {
		return nil, err
	}
	if pf.faces == nil {
		pf.faces = make(map[faceKey]font.Face)
	}
	face := truetype.NewFace(ft, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
	pf.faces[key] = face
	return face, nil
}
