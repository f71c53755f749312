package tools

import (
	"log"
	"math"
	"strings"
	"unicode/utf8"

	"whiteboard/internal/domain"
)

const (
	DefaultStickySize = 200.0
	DefaultFontSize   = 16.0
	stickyFontSize    = 14.0
	// glyphWidth approximates the advance of one character in font units.
	glyphWidth = 0.6
)

// TextTool edits text labels and sticky notes in place. A click opens the
// note under the pointer or creates an empty one; typing edits it and
// Escape commits.
type TextTool struct {
	base
	env  *Env
	kind domain.ToolKind

	id      string
	created bool
	before  *domain.Component
}

func NewTextTool(env *Env, kind domain.ToolKind) *TextTool {
	return &TextTool{env: env, kind: kind}
}

func (t *TextTool) Kind() domain.ToolKind { return t.kind }

func (t *TextTool) componentType() domain.ComponentType {
	if t.kind == domain.ToolSticky {
		return domain.ComponentSticky
	}
	return domain.ComponentText
}

func (t *TextTool) Activate(cfg domain.ToolConfig) {
	t.cfg = cfg
	t.id = ""
}

func (t *TextTool) Deactivate() { t.finish() }

// Editing returns the id of the open component, if any.
func (t *TextTool) Editing() (string, bool) {
	return t.id, t.id != ""
}

func (t *TextTool) PointerDown(_ domain.PointerEvent, world domain.Point) {
	if t.id != "" {
		t.finish()
	}
	typ := t.componentType()
	if hit := t.env.topmost(world, func(c *domain.Component) bool { return c.Type == typ }); hit != nil {
		t.id = hit.ID
		t.created = false
		t.before = hit
		return
	}

	layerID, ok := t.env.drawLayer()
	if !ok {
		return
	}
	var data domain.ComponentData
	if typ == domain.ComponentSticky {
		data = &domain.StickyData{Color: t.cfg.StickyColor, FontSize: stickyFontSize}
	} else {
		size := t.cfg.FontSize
		if size <= 0 {
			size = DefaultFontSize
		}
		data = &domain.TextData{
			FontSize:   size,
			FontFamily: t.cfg.FontFamily,
			Color:      t.cfg.Color,
			Align:      domain.AlignLeft,
		}
	}
	c, err := t.env.Store.Create(typ, layerID, world, data)
	if err != nil {
		log.Printf("[TOOLS] start %s: %v", typ, err)
		return
	}
	t.id = c.ID
	t.created = true
	t.before = nil
	if typ == domain.ComponentSticky {
		size := DefaultStickySize
		t.env.Store.Update(t.id, domain.ComponentPatch{Width: &size, Height: &size})
	} else {
		t.setText(c, "")
	}
}

func (t *TextTool) PointerMove(domain.PointerEvent, domain.Point) {}
func (t *TextTool) PointerUp(domain.PointerEvent, domain.Point) {}

func (t *TextTool) KeyDown(ev domain.KeyEvent) bool {
	if t.id == "" {
		return false
	}
	c := t.env.Store.Get(t.id)
	if c == nil {
		t.id = ""
		return false
	}
	text := textOf(c)
	switch {
	case ev.Key == "Escape":
		t.finish()
	case ev.Key == "Backspace":
		if text != "" {
			_, size := utf8.DecodeLastRuneInString(text)
			t.setText(c, text[:len(text)-size])
		}
	case ev.Key == "Enter":
		t.setText(c, text+"\n")
	case ev.Ctrl || ev.Meta:
		return false
	case utf8.RuneCountInString(ev.Key) == 1:
		t.setText(c, text+ev.Key)
	default:
		return false
	}
	return true
}

func textOf(c *domain.Component) string {
	switch d := c.Data.(type) {
	case *domain.TextData:
		return d.Text
	case *domain.StickyData:
		return d.Text
	}
	return ""
}

// setText stores text on c. Text labels are resized to fit their lines;
// sticky notes keep their size and wrap.
func (t *TextTool) setText(c *domain.Component, text string) {
	switch d := c.Data.(type) {
	case *domain.TextData:
		d.Text = text
		w, h := measureText(text, d.FontSize, d.LineHeight)
		t.env.Store.Update(c.ID, domain.ComponentPatch{Data: d, Width: &w, Height: &h})
	case *domain.StickyData:
		d.Text = text
		t.env.Store.Update(c.ID, domain.ComponentPatch{Data: d})
	}
}

// measureText estimates the box of a text label from character counts.
func measureText(text string, fontSize, lineHeight float64) (float64, float64) {
	if lineHeight <= 0 {
		lineHeight = fontSize * 1.2
	}
	lines := strings.Split(text, "\n")
	longest := 1
	for _, l := range lines {
		longest = max(longest, utf8.RuneCountInString(l))
	}
	return math.Ceil(float64(longest) * fontSize * glyphWidth), math.Ceil(float64(len(lines)) * lineHeight)
}

func (t *TextTool) finish() {
	if t.id == "" {
		return
	}
	id := t.id
	t.id = ""
	c := t.env.Store.Get(id)
	if c == nil {
		return
	}
	switch {
	case t.created && strings.TrimSpace(textOf(c)) == "":
		t.env.Store.Delete(id)
	case t.created:
		t.env.record(domain.ActionCreate, id, nil, c)
	case t.before != nil && textOf(t.before) != textOf(c):
		t.env.record(domain.ActionUpdate, id, t.before, c)
	}
	t.before = nil
}
