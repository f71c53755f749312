package domain

// Mouse buttons as reported by pointer events.
const (
	ButtonLeft   = 0
	ButtonMiddle = 1
	ButtonRight  = 2
)

// PointerEvent is a raw pointer sample in screen coordinates.
type PointerEvent struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Button   int     `json:"button"`
	Pressure float64 `json:"pressure,omitempty"`
	Shift    bool    `json:"shift,omitempty"`
	Alt      bool    `json:"alt,omitempty"`
	Ctrl     bool    `json:"ctrl,omitempty"`
	Meta     bool    `json:"meta,omitempty"`
}

// Screen returns the event position as a point.
func (e PointerEvent) Screen() Point { return Point{X: e.X, Y: e.Y} }

// KeyEvent carries a key name in the DOM KeyboardEvent.key convention
// ("a", "Enter", "Escape", "ArrowLeft", "Tab", "Shift").
type KeyEvent struct {
	Key   string `json:"key"`
	Shift bool   `json:"shift,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Meta  bool   `json:"meta,omitempty"`
}
