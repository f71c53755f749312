package engine

import (
	"context"
	"encoding/json"
	"image"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"whiteboard/internal/canvas"
	"whiteboard/internal/domain"
	"whiteboard/internal/events"
	"whiteboard/internal/history"
	"whiteboard/internal/render"
	"whiteboard/internal/selection"
	"whiteboard/internal/tools"
	"whiteboard/internal/viewport"
)

const (
	DefaultSyncDebounce   = 2 * time.Second
	DefaultCursorTimeout  = 5 * time.Second
	DefaultPruneInterval  = time.Second
	DefaultViewportBuffer = canvas.DefaultViewportBuffer
)

type EventType string

const (
	Ready            EventType = "ready"
	Failed           EventType = "error"
	ViewportChanged  EventType = "viewport-change"
	ToolChanged      EventType = "tool-change"
	ToolConfigChange EventType = "tool-config-change"
	SelectionChanged EventType = "selection-change"
	LayersChanged    EventType = "layer-change"
	HistoryChanged   EventType = "history-change"
	HistoryTruncated EventType = "history-truncated"
	SyncStatus       EventType = "sync-status"
	CursorUpdated    EventType = "cursor-update"
	CursorRemoved    EventType = "cursor-remove"
	LocalCursor      EventType = "local-cursor"
	LaserTrail       EventType = "laser-trail"
	Operation        EventType = "operation"
	Rendered         EventType = "render"
	Saved            EventType = "saved"
)

// Event is the single notification type the engine forwards to its host.
// Only the fields relevant to Type are set.
type Event struct {
	Type       EventType
	Viewport   *domain.Viewport
	Tool       domain.ToolKind
	ToolConfig *domain.ToolConfig
	Selection  []*domain.Component
	Layers     []domain.Layer
	CanUndo    bool
	CanRedo    bool
	Status     domain.SyncStatus
	Cursor     *domain.RemoteCursor
	Point      *domain.Point
	Trail      *tools.Trail
	Operation  *domain.BoardOperation
	Errors     []error
	Err        error
	DroppedID  string
	Capacity   int
}

// OperationSink receives board operations produced by local edits. The
// offline queue satisfies it.
type OperationSink interface {
	Queue(op domain.BoardOperation) bool
}

// StateStore keeps the local resume snapshot. The offline queue satisfies it.
type StateStore interface {
	SaveLocalState(state *domain.BoardState) error
	LoadLocalState() (*domain.BoardState, error)
}

type Options struct {
	SessionID string
	Width     int
	Height    int

	MaxLayers      int
	HistorySize    int
	SyncDebounce   time.Duration
	CursorTimeout  time.Duration
	PruneInterval  time.Duration
	ViewportBuffer float64

	Viewport   viewport.Config
	Render     domain.RenderOptions
	Grid       *domain.GridConfig
	Background string

	// Scheduler paces repaints. Defaults to a TimerScheduler.
	Scheduler Scheduler
	// Queue receives operations for local edits. Optional.
	Queue OperationSink
	// Local stores the resume snapshot. Optional.
	Local StateStore
	// Persist replaces the autosave target. When nil, autosave writes to
	// Local.
	Persist func(ctx context.Context, state *domain.BoardState) error
	// Images resolves image sources for drawing and sizing. Optional.
	Images render.ImageSource

	Now func() time.Time
}

func (o *Options) defaults() {
	if o.SyncDebounce <= 0 {
		o.SyncDebounce = DefaultSyncDebounce
	}
	if o.CursorTimeout <= 0 {
		o.CursorTimeout = DefaultCursorTimeout
	}
	if o.PruneInterval <= 0 {
		o.PruneInterval = DefaultPruneInterval
	}
	if o.ViewportBuffer <= 0 {
		o.ViewportBuffer = DefaultViewportBuffer
	}
	if o.Scheduler == nil {
		o.Scheduler = TimerScheduler{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.SessionID == "" {
		o.SessionID = uuid.New().String()
	}
}

// DefaultRenderOptions turns every overlay on.
func DefaultRenderOptions() domain.RenderOptions {
	return domain.RenderOptions{ShowGrid: true, ShowCursors: true, ShowSelection: true}
}

// Engine owns one editing session: the stores, the tools, the render loop,
// autosave and the remote cursor registry.
type Engine struct {
	opts Options

	Layers     *canvas.LayerStore
	Components *canvas.ComponentStore
	Selection  *selection.Tracker
	History    *history.Tracker
	Viewport   *viewport.Controller
	Tools      *tools.Dispatcher

	renderer  *render.Renderer
	renderMu  sync.Mutex
	surface   *render.Surface
	lastFrame []error

	frames frameGate
	subs   events.Group
	// input serializes calls into the tool dispatcher.
	input sync.Mutex

	mu        sync.Mutex
	destroyed bool
	saveTimer *time.Timer
	cursors   map[string]domain.RemoteCursor
	stopPrune context.CancelFunc
	pruneDone chan struct{}

	Events *events.Bus[Event]
}

// New builds an engine with a drawing surface of the given size. A surface
// that cannot be allocated is a construction error.
func New(opts Options) (*Engine, error) {
	opts.defaults()
	surface, err := render.NewSurface(opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}

	layers := canvas.NewLayerStore(opts.MaxLayers)
	comps := canvas.NewComponentStore(layers)
	e := &Engine{
		opts:       opts,
		Layers:     layers,
		Components: comps,
		Selection:  selection.New(comps),
		History:    history.New(opts.HistorySize),
		Viewport:   viewport.New(opts.Viewport, float64(opts.Width), float64(opts.Height)),
		surface:    surface,
		frames:     frameGate{sched: opts.Scheduler},
		cursors:    make(map[string]domain.RemoteCursor),
		Events:     events.NewBus[Event](),
	}

	var ropts []render.Option
	if opts.Images != nil {
		ropts = append(ropts, render.WithImages(opts.Images))
	}
	if opts.Grid != nil {
		ropts = append(ropts, render.WithGrid(*opts.Grid))
	}
	if opts.Background != "" {
		ropts = append(ropts, render.WithBackground(opts.Background))
	}
	e.renderer = render.New(ropts...)

	e.Tools = tools.NewDispatcher(&tools.Env{
		Store:     comps,
		Layers:    layers,
		Selection: e.Selection,
		History:   e.History,
		Viewport:  e.Viewport,
		Zoom:      func() float64 { return e.Viewport.Viewport().Zoom },
		ImageSize: e.imageSize,
		Laser:     e.laser,
		Now:       opts.Now,
	})

	e.wire()
	e.startPrune()
	return e, nil
}

func (e *Engine) SessionID() string { return e.opts.SessionID }

func (e *Engine) alive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.destroyed
}

// emit forwards ev to the host unless the engine is destroyed.
func (e *Engine) emit(ev Event) {
	if e.alive() {
		e.Events.Publish(ev)
	}
}

// wire subscribes the engine to every collaborator. Each subscription is
// kept so Destroy can detach them all.
func (e *Engine) wire() {
	e.subs.Add(e.Viewport.Events.Subscribe(func(ev viewport.Event) {
		if ev.Type != viewport.Changed {
			return
		}
		vp := ev.Viewport
		e.emit(Event{Type: ViewportChanged, Viewport: &vp})
		e.RequestRender()
	}))

	e.subs.Add(e.Components.Events.Subscribe(e.onComponent))

	e.subs.Add(e.Layers.Events.Subscribe(func(ev canvas.LayerEvent) {
		e.emit(Event{Type: LayersChanged, Layers: e.Layers.All()})
		switch ev.Type {
		case canvas.LayerUpdated, canvas.LayerReordered, canvas.LayerRemoved:
			e.scheduleSave()
			e.RequestRender()
		}
	}))

	e.subs.Add(e.Selection.Events.Subscribe(func(ev selection.Event) {
		if ev.Type == selection.Changed {
			e.emit(Event{Type: SelectionChanged, Selection: e.Selection.Components()})
		}
		e.RequestRender()
	}))

	e.subs.Add(e.History.Events.Subscribe(func(ev history.Event) {
		switch ev.Type {
		case history.Changed:
			e.emit(Event{Type: HistoryChanged, CanUndo: ev.CanUndo, CanRedo: ev.CanRedo})
		case history.Truncated:
			log.Printf("[ENGINE] history full (%d), dropped entry %s", ev.Capacity, ev.DroppedID)
			e.emit(Event{Type: HistoryTruncated, DroppedID: ev.DroppedID, Capacity: ev.Capacity})
		}
	}))

	e.subs.Add(e.Tools.Events.Subscribe(func(ev tools.Event) {
		cfg := ev.Config
		switch ev.Type {
		case tools.ToolChanged:
			e.emit(Event{Type: ToolChanged, Tool: ev.Kind, ToolConfig: &cfg})
		case tools.ConfigChanged:
			e.emit(Event{Type: ToolConfigChange, Tool: ev.Kind, ToolConfig: &cfg})
		}
	}))
}

// onComponent reacts to store mutations: repaint, autosave, and for local
// edits an outgoing operation.
func (e *Engine) onComponent(ev canvas.ComponentEvent) {
	if !e.alive() {
		return
	}
	if ev.Type == canvas.ComponentDeleted {
		e.Selection.Deselect(ev.ID)
	}
	e.RequestRender()
	e.scheduleSave()
	if ev.Remote {
		return
	}
	op, ok := operationFor(ev)
	if !ok {
		return
	}
	if e.opts.Queue != nil {
		e.opts.Queue.Queue(op)
	}
	e.emit(Event{Type: Operation, Operation: &op})
}

func operationFor(ev canvas.ComponentEvent) (domain.BoardOperation, bool) {
	op := domain.BoardOperation{ID: uuid.New().String(), ComponentID: ev.ID}
	switch ev.Type {
	case canvas.ComponentCreated:
		op.Type = domain.OpCreate
	case canvas.ComponentUpdated:
		op.Type = domain.OpUpdate
	case canvas.ComponentDeleted:
		op.Type = domain.OpDelete
		return op, true
	default:
		return op, false
	}
	raw, err := json.Marshal(ev.Component)
	if err != nil {
		log.Printf("[ENGINE] encode operation for %s: %v", ev.ID, err)
		return op, false
	}
	op.Data = raw
	return op, true
}

func (e *Engine) imageSize(src string) (float64, float64, bool) {
	if e.opts.Images == nil {
		return 0, 0, false
	}
	img, ok := e.opts.Images.Image(src)
	if !ok {
		return 0, 0, false
	}
	b := img.Bounds()
	return float64(b.Dx()), float64(b.Dy()), true
}

func (e *Engine) laser(tr tools.Trail) {
	e.emit(Event{Type: LaserTrail, Trail: &tr})
}

// ── Rendering ───────────────────────────────────────────────

// RequestRender schedules a repaint. Calls made while a frame is pending
// are coalesced into it.
func (e *Engine) RequestRender() {
	if !e.alive() {
		return
	}
	e.frames.request(func() { e.renderFrame() })
}

// RenderPending reports whether a frame is scheduled.
func (e *Engine) RenderPending() bool { return e.frames.isPending() }

// RenderNow paints synchronously and returns per-component failures.
func (e *Engine) RenderNow() []error {
	if !e.alive() {
		return []error{domain.ErrDestroyed}
	}
	return e.renderFrame()
}

func (e *Engine) renderFrame() []error {
	if !e.alive() {
		return nil
	}
	f := e.frame()
	e.renderMu.Lock()
	errs := e.renderer.Render(e.surface, f)
	e.lastFrame = errs
	e.renderMu.Unlock()
	e.emit(Event{Type: Rendered, Errors: errs})
	return errs
}

// frame collects the visible scene for the current viewport.
func (e *Engine) frame() render.Frame {
	vp := e.Viewport.Viewport()
	opts := e.opts.Render
	if opts == (domain.RenderOptions{}) {
		opts = DefaultRenderOptions()
	}
	return render.Frame{
		Components: e.visible(e.Components.InViewport(vp, e.opts.ViewportBuffer)),
		Viewport:   vp,
		Options:    opts,
		Selection:  deref(e.Selection.Components()),
		Cursors:    e.RemoteCursors(),
		Layers:     e.Layers.All(),
	}
}

// visible drops components on hidden layers.
func (e *Engine) visible(comps []*domain.Component) []domain.Component {
	out := make([]domain.Component, 0, len(comps))
	for _, c := range comps {
		if e.Layers.IsVisible(c.LayerID) {
			out = append(out, *c)
		}
	}
	return out
}

func deref(comps []*domain.Component) []domain.Component {
	out := make([]domain.Component, len(comps))
	for i, c := range comps {
		out[i] = *c
	}
	return out
}

// Snapshot copies the live surface.
func (e *Engine) Snapshot() *image.RGBA {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	src := e.surface.Image()
	cp := image.NewRGBA(src.Bounds())
	copy(cp.Pix, src.Pix)
	return cp
}

// Resize replaces the drawing surface and updates the viewport size.
func (e *Engine) Resize(width, height int) error {
	if !e.alive() {
		return domain.ErrDestroyed
	}
	s, err := render.NewSurface(width, height)
	if err != nil {
		return err
	}
	e.renderMu.Lock()
	e.surface = s
	e.renderMu.Unlock()
	e.Viewport.SetSize(float64(width), float64(height))
	e.RequestRender()
	return nil
}

// ── Teardown ────────────────────────────────────────────────

// Destroy stops every timer, flushes the active tool and detaches from all
// collaborators. It is safe to call more than once.
func (e *Engine) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	// Flush while listeners are still attached so the finished drawing is
	// queued like any other edit.
	e.input.Lock()
	e.Tools.Deactivate()
	e.input.Unlock()

	e.mu.Lock()
	e.destroyed = true
	if e.saveTimer != nil {
		e.saveTimer.Stop()
		e.saveTimer = nil
	}
	stop, done := e.stopPrune, e.pruneDone
	e.stopPrune = nil
	e.mu.Unlock()

	e.frames.close()
	if stop != nil {
		stop()
		<-done
	}
	e.subs.Close()
	e.Events.Reset()
	log.Printf("[ENGINE] session %s destroyed", e.opts.SessionID)
}

// Destroyed reports whether Destroy has run.
func (e *Engine) Destroyed() bool { return !e.alive() }
