package tools

import (
	"fmt"

	"whiteboard/internal/domain"
	"whiteboard/internal/events"
)

type EventType string

const (
	ToolChanged   EventType = "tool-change"
	ConfigChanged EventType = "tool-config-change"
)

type Event struct {
	Type   EventType
	Kind   domain.ToolKind
	Config domain.ToolConfig
}

// Dispatcher owns the tool registry, the active tool and the per-kind
// style. Input is forwarded to the active tool only.
type Dispatcher struct {
	tools   map[domain.ToolKind]Tool
	configs map[domain.ToolKind]domain.ToolConfig
	active  domain.ToolKind

	Events *events.Bus[Event]
}

// NewDispatcher registers every built-in tool against env and activates
// the select tool.
func NewDispatcher(env *Env) *Dispatcher {
	d := &Dispatcher{
		tools:   make(map[domain.ToolKind]Tool),
		configs: make(map[domain.ToolKind]domain.ToolConfig),
		Events:  events.NewBus[Event](),
	}
	d.Register(NewSelect(env))
	d.Register(NewPan(env))
	d.Register(NewFreehand(env, domain.ToolPencil))
	d.Register(NewFreehand(env, domain.ToolMarker))
	d.Register(NewFreehand(env, domain.ToolHighlighter))
	d.Register(NewEraser(env))
	d.Register(NewShape(env))
	d.Register(NewTextTool(env, domain.ToolText))
	d.Register(NewTextTool(env, domain.ToolSticky))
	d.Register(NewImage(env))
	d.Register(NewConnector(env))
	d.Register(NewLaser(env))

	d.active = domain.ToolSelect
	d.tools[d.active].Activate(d.configs[d.active])
	return d
}

// Register adds or replaces the tool for its kind.
func (d *Dispatcher) Register(t Tool) {
	k := t.Kind()
	d.tools[k] = t
	if _, ok := d.configs[k]; !ok {
		d.configs[k] = domain.DefaultToolConfig(k)
	}
}

// SetActive deactivates the current tool, flushing its work, and activates
// kind with its stored config.
func (d *Dispatcher) SetActive(kind domain.ToolKind) error {
	next, ok := d.tools[kind]
	if !ok {
		return fmt.Errorf("%w: unknown tool %q", domain.ErrValidation, kind)
	}
	if kind == d.active {
		return nil
	}
	if cur, ok := d.tools[d.active]; ok {
		cur.Deactivate()
	}
	d.active = kind
	next.Activate(d.configs[kind])
	d.Events.Publish(Event{Type: ToolChanged, Kind: kind, Config: d.configs[kind]})
	return nil
}

func (d *Dispatcher) ActiveKind() domain.ToolKind { return d.active }

func (d *Dispatcher) Active() Tool { return d.tools[d.active] }

func (d *Dispatcher) Config(kind domain.ToolKind) domain.ToolConfig {
	if cfg, ok := d.configs[kind]; ok {
		return cfg
	}
	return domain.DefaultToolConfig(kind)
}

// UpdateConfig merges patch into the stored config for kind. The active
// tool picks the change up immediately.
func (d *Dispatcher) UpdateConfig(kind domain.ToolKind, patch domain.ToolConfigPatch) domain.ToolConfig {
	cfg := patch.Apply(d.Config(kind))
	d.configs[kind] = cfg
	if kind == d.active {
		if t, ok := d.tools[kind]; ok {
			t.Configure(cfg)
		}
	}
	d.Events.Publish(Event{Type: ConfigChanged, Kind: kind, Config: cfg})
	return cfg
}

func (d *Dispatcher) SetColor(color string) {
	d.UpdateConfig(d.active, domain.ToolConfigPatch{Color: &color})
}

func (d *Dispatcher) SetThickness(t float64) {
	d.UpdateConfig(d.active, domain.ToolConfigPatch{Thickness: &t})
}

// Deactivate flushes the active tool without switching. Used on teardown.
func (d *Dispatcher) Deactivate() {
	if t, ok := d.tools[d.active]; ok {
		t.Deactivate()
	}
}

func (d *Dispatcher) PointerDown(ev domain.PointerEvent, world domain.Point) {
	d.tools[d.active].PointerDown(ev, world)
}

func (d *Dispatcher) PointerMove(ev domain.PointerEvent, world domain.Point) {
	d.tools[d.active].PointerMove(ev, world)
}

func (d *Dispatcher) PointerUp(ev domain.PointerEvent, world domain.Point) {
	d.tools[d.active].PointerUp(ev, world)
}

func (d *Dispatcher) KeyDown(ev domain.KeyEvent) bool {
	return d.tools[d.active].KeyDown(ev)
}

func (d *Dispatcher) KeyUp(ev domain.KeyEvent) bool {
	return d.tools[d.active].KeyUp(ev)
}
