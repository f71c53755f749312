package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"whiteboard/internal/domain"
	"whiteboard/internal/engine"
	"whiteboard/internal/events"
	"whiteboard/internal/offline"
	"whiteboard/internal/remote"
	"whiteboard/internal/storage"
	"whiteboard/internal/tools"
	"whiteboard/internal/transport"
)

// ─────────────────────────────────────────────────────────────
// Board Service: one editing session and everything around it
// ─────────────────────────────────────────────────────────────

// Participant identifies the local user to other participants.
type Participant struct {
	UserID string
	Name   string
	Color  string
}

// BoardDeps are the collaborators a session runs against. Only Local is
// required.
type BoardDeps struct {
	Local     domain.LocalStore
	History   *storage.HistoryStore
	Remote    remote.Store
	Transport domain.Transport
	Emitter   EventEmitter
}

type BoardOptions struct {
	Engine engine.Options
	Queue  offline.Options
	// SyncSchedule is a cron spec for pushing the queue to the remote
	// store. Empty disables scheduled sync.
	SyncSchedule  string
	CursorPublish time.Duration
	Participant   Participant
}

// opMessage wraps a board operation on the ops channel.
type opMessage struct {
	Origin    string                `json:"origin"`
	Operation domain.BoardOperation `json:"operation"`
}

type presenceType string

const (
	presenceCursor presenceType = "cursor"
	presenceLeave  presenceType = "leave"
	presenceLaser  presenceType = "laser"
)

// presenceMessage travels on the cursors channel.
type presenceMessage struct {
	Type   presenceType         `json:"type"`
	UserID string               `json:"userId"`
	Cursor *domain.RemoteCursor `json:"cursor,omitempty"`
	Trail  *tools.Trail         `json:"trail,omitempty"`
}

func OpsChannel(sessionID string) string     { return "board:" + sessionID + ":ops" }
func CursorsChannel(sessionID string) string { return "board:" + sessionID + ":cursors" }

// BoardService binds an engine to its offline queue, local and remote
// storage, the transport and an event emitter.
type BoardService struct {
	deps BoardDeps
	opts BoardOptions

	Engine *engine.Engine
	Queue  *offline.Queue

	ctx    context.Context
	cancel context.CancelFunc
	guard  syncGuard
	cron   *cron.Cron
	subs   events.Group

	cursorMu      sync.Mutex
	cursor        *domain.Point
	publishCursor func(func())

	closeOnce sync.Once
}

// OpenBoard restores a session and starts its background work. The local
// snapshot wins; without one the remote snapshot and its pending operations
// are loaded.
func OpenBoard(ctx context.Context, deps BoardDeps, opts BoardOptions) (*BoardService, error) {
	if deps.Local == nil {
		return nil, fmt.Errorf("%w: board needs a local store", domain.ErrValidation)
	}
	if deps.Emitter == nil {
		deps.Emitter = LogEmitter{}
	}
	if opts.Engine.SessionID == "" {
		opts.Engine.SessionID = uuid.New().String()
	}
	if opts.Participant.UserID == "" {
		opts.Participant.UserID = uuid.New().String()
	}
	if opts.CursorPublish <= 0 {
		opts.CursorPublish = 50 * time.Millisecond
	}
	sessionID := opts.Engine.SessionID

	s := &BoardService{
		deps:          deps,
		opts:          opts,
		publishCursor: debounce.New(opts.CursorPublish),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.Queue = offline.New(sessionID, deps.Local, opts.Queue)
	eopts := opts.Engine
	// Without a remote nothing drains the queue.
	if deps.Remote != nil {
		eopts.Queue = s.Queue
	}
	eopts.Local = s.Queue
	eopts.Persist = s.persist
	e, err := engine.New(eopts)
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("open board %s: %w", sessionID, err)
	}
	s.Engine = e

	if err := s.load(ctx); err != nil {
		e.Destroy()
		s.cancel()
		return nil, err
	}

	s.subs.Add(e.Events.Subscribe(s.onEngine))
	s.subs.Add(s.Queue.Events.Subscribe(s.onQueue))
	s.attachTransport()
	if err := s.startSchedule(); err != nil {
		s.Close()
		return nil, err
	}
	log.Printf("[SYNC] board %s open as %s", sessionID, opts.Participant.UserID)
	return s, nil
}

func (s *BoardService) SessionID() string { return s.Engine.SessionID() }

func (s *BoardService) Participant() Participant { return s.opts.Participant }

// ── Loading ────────────────────────────────────────────────

func (s *BoardService) load(ctx context.Context) error {
	found, err := s.Engine.LoadSession()
	if err != nil {
		log.Printf("[SYNC] local snapshot for %s unreadable: %v", s.SessionID(), err)
	}
	if found {
		s.restoreHistory()
		return nil
	}
	if s.deps.Remote == nil {
		return nil
	}
	return s.pullRemote(ctx)
}

// pullRemote replaces the board with the remote snapshot and replays the
// operations submitted after it.
func (s *BoardService) pullRemote(ctx context.Context) error {
	state, err := s.deps.Remote.FetchSnapshot(ctx, s.SessionID())
	if err != nil {
		return fmt.Errorf("fetch remote snapshot: %w", err)
	}
	if len(state.Layers) > 0 {
		s.Engine.LoadState(state)
	}
	backlog, err := s.deps.Remote.Backlog(ctx, s.SessionID())
	if err != nil {
		return fmt.Errorf("fetch remote backlog: %w", err)
	}
	applied := 0
	for _, op := range backlog {
		n, err := s.Engine.ApplyRemoteOperation(op)
		if err != nil {
			log.Printf("[SYNC] skip backlog operation %s: %v", op.ID, err)
		}
		applied += n
	}
	log.Printf("[SYNC] pulled %s: %d components, %d backlog changes", s.SessionID(), len(state.Components), applied)
	return nil
}

func (s *BoardService) restoreHistory() {
	if s.deps.History == nil {
		return
	}
	undo, redo, err := s.deps.History.Load(s.SessionID())
	if err != nil {
		log.Printf("[SYNC] load history %s: %v", s.SessionID(), err)
		return
	}
	s.Engine.History.Restore(undo, redo)
}

// ── Persistence ────────────────────────────────────────────

// persist is the engine's autosave target: the local snapshot, the undo
// history and the remote snapshot are written in parallel.
func (s *BoardService) persist(ctx context.Context, state *domain.BoardState) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Queue.SaveLocalState(state)
	})
	if s.deps.History != nil {
		undo, redo := s.Engine.History.Stacks()
		g.Go(func() error {
			return s.deps.History.Save(state.SessionID, undo, redo)
		})
	}
	if s.deps.Remote != nil && s.Queue.Online() {
		g.Go(func() error {
			if err := s.deps.Remote.SaveSnapshot(gctx, state.SessionID, state); err != nil {
				return fmt.Errorf("%w: %w", domain.ErrSync, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// SyncNow pushes the queue to the remote store. It returns false without
// syncing when there is no remote or a sync for this session is running.
func (s *BoardService) SyncNow(ctx context.Context) (domain.SyncResult, bool) {
	if s.deps.Remote == nil {
		return domain.SyncResult{}, false
	}
	if !s.guard.TryLock(s.SessionID()) {
		return domain.SyncResult{}, false
	}
	defer s.guard.Unlock(s.SessionID())
	return s.Queue.Sync(ctx, s.deps.Remote), true
}

func (s *BoardService) startSchedule() error {
	if s.deps.Remote == nil || s.opts.SyncSchedule == "" {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(s.opts.SyncSchedule, func() {
		res, ran := s.SyncNow(s.ctx)
		if ran && res.Synced > 0 {
			log.Printf("[SYNC] scheduled sync %s: %d operations", s.SessionID(), res.Synced)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: sync schedule %q: %w", domain.ErrValidation, s.opts.SyncSchedule, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// ── Event forwarding ───────────────────────────────────────

func (s *BoardService) onEngine(ev engine.Event) {
	switch ev.Type {
	case engine.Operation:
		if ev.Operation != nil {
			s.publishOperation(*ev.Operation)
		}
	case engine.LocalCursor:
		if ev.Point != nil {
			s.cursorMu.Lock()
			p := *ev.Point
			s.cursor = &p
			s.cursorMu.Unlock()
			s.publishCursor(s.flushCursor)
		}
		// Pointer moves are too frequent for the host.
		return
	case engine.LaserTrail:
		if ev.Trail != nil {
			s.publishPresence(presenceMessage{Type: presenceLaser, Trail: ev.Trail})
		}
	case engine.Rendered:
		return
	}
	s.deps.Emitter.Emit(s.ctx, "board:"+string(ev.Type), enginePayload(ev))
}

// enginePayload picks the part of an engine event worth sending to a host.
func enginePayload(ev engine.Event) any {
	switch ev.Type {
	case engine.ViewportChanged:
		return ev.Viewport
	case engine.ToolChanged:
		return ev.Tool
	case engine.ToolConfigChange:
		return ev.ToolConfig
	case engine.SelectionChanged:
		ids := make([]string, len(ev.Selection))
		for i, c := range ev.Selection {
			ids[i] = c.ID
		}
		return ids
	case engine.LayersChanged:
		return ev.Layers
	case engine.HistoryChanged:
		return map[string]bool{"canUndo": ev.CanUndo, "canRedo": ev.CanRedo}
	case engine.HistoryTruncated:
		return map[string]any{"droppedId": ev.DroppedID, "capacity": ev.Capacity}
	case engine.SyncStatus:
		return ev.Status
	case engine.CursorUpdated, engine.CursorRemoved:
		return ev.Cursor
	case engine.Operation:
		return ev.Operation
	case engine.LaserTrail:
		return ev.Trail
	case engine.Failed:
		if ev.Err != nil {
			return ev.Err.Error()
		}
		return len(ev.Errors)
	}
	return nil
}

func (s *BoardService) onQueue(ev offline.Event) {
	switch ev.Type {
	case offline.ForceSync:
		go s.SyncNow(s.ctx)
	case offline.StatusChanged:
		s.deps.Emitter.Emit(s.ctx, "sync:status", ev.Status)
		return
	case offline.Overflowed:
		s.deps.Emitter.Emit(s.ctx, "sync:overflow", ev.Overflow)
		return
	}
	s.deps.Emitter.Emit(s.ctx, "sync:"+string(ev.Type), ev.Pending)
}

// ── Transport ──────────────────────────────────────────────

func (s *BoardService) attachTransport() {
	t := s.deps.Transport
	if t == nil {
		return
	}
	s.subs.Add(t.Subscribe(OpsChannel(s.SessionID()), s.onRemoteOp))
	s.subs.Add(t.Subscribe(CursorsChannel(s.SessionID()), s.onPresence))

	// A reconnecting client also drives the queue's online state.
	if c, ok := t.(*transport.Client); ok {
		s.subs.Add(c.Events.Subscribe(func(ev transport.StatusEvent) {
			switch ev.Status {
			case domain.ConnOpen:
				s.Queue.SetOnline(true)
				go s.SyncNow(s.ctx)
			case domain.ConnOffline:
				s.Queue.SetOnline(false)
			}
			s.deps.Emitter.Emit(s.ctx, "transport:status", ev.Status)
		}))
	}
}

func (s *BoardService) publishOperation(op domain.BoardOperation) {
	s.relay(s.opts.Participant.UserID, op)
}

func (s *BoardService) onRemoteOp(payload []byte) {
	var msg opMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Printf("[SYNC] bad operation payload: %v", err)
		return
	}
	if msg.Origin == s.opts.Participant.UserID {
		return
	}
	if _, err := s.Engine.ApplyRemoteOperation(msg.Operation); err != nil && !errors.Is(err, domain.ErrDestroyed) {
		log.Printf("[SYNC] apply operation %s from %s: %v", msg.Operation.ID, msg.Origin, err)
	}
}

func (s *BoardService) flushCursor() {
	s.cursorMu.Lock()
	p := s.cursor
	s.cursor = nil
	s.cursorMu.Unlock()
	if p == nil {
		return
	}
	me := s.opts.Participant
	s.publishPresence(presenceMessage{
		Type: presenceCursor,
		Cursor: &domain.RemoteCursor{
			ID:         me.UserID,
			UserID:     me.UserID,
			UserName:   me.Name,
			Color:      me.Color,
			X:          p.X,
			Y:          p.Y,
			Tool:       s.Engine.Tool(),
			LastUpdate: time.Now().UnixMilli(),
		},
	})
}

func (s *BoardService) publishPresence(msg presenceMessage) {
	if s.deps.Transport == nil {
		return
	}
	msg.UserID = s.opts.Participant.UserID
	raw, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[SYNC] encode presence: %v", err)
		return
	}
	if err := s.deps.Transport.Publish(CursorsChannel(s.SessionID()), raw); err != nil {
		log.Printf("[SYNC] publish presence: %v", err)
	}
}

func (s *BoardService) onPresence(payload []byte) {
	var msg presenceMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Printf("[SYNC] bad presence payload: %v", err)
		return
	}
	if msg.UserID == "" || msg.UserID == s.opts.Participant.UserID {
		return
	}
	switch msg.Type {
	case presenceCursor:
		if msg.Cursor != nil {
			c := *msg.Cursor
			c.UserID = msg.UserID
			c.LastUpdate = 0
			s.Engine.UpdateRemoteCursor(c)
		}
	case presenceLeave:
		s.Engine.RemoveRemoteCursor(msg.UserID)
	case presenceLaser:
		if msg.Trail != nil {
			s.deps.Emitter.Emit(s.ctx, "board:remote-laser", map[string]any{"userId": msg.UserID, "trail": msg.Trail})
		}
	}
}

// ── Teardown ───────────────────────────────────────────────

// Close stops the schedule, announces departure, saves the session and
// destroys the engine. It is safe to call more than once.
func (s *BoardService) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		s.guard.WaitAll(waitCtx)
		cancel()

		s.publishPresence(presenceMessage{Type: presenceLeave})
		s.subs.Close()

		saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = s.Engine.SaveSession(saveCtx)
		cancel()
		if errors.Is(err, domain.ErrDestroyed) {
			err = nil
		}
		s.Engine.Destroy()
		s.cancel()
		log.Printf("[SYNC] board %s closed", s.SessionID())
	})
	return err
}

// ApplyOperations applies operations received outside the transport, such
// as over HTTP, and relays the ones that changed the board to the other
// participants under origin.
func (s *BoardService) ApplyOperations(origin string, ops []domain.BoardOperation) (int, error) {
	total := 0
	var errs []error
	for _, op := range ops {
		n, err := s.Engine.ApplyRemoteOperation(op)
		if err != nil {
			errs = append(errs, fmt.Errorf("operation %s: %w", op.ID, err))
			continue
		}
		total += n
		if n > 0 {
			s.relay(origin, op)
		}
	}
	return total, errors.Join(errs...)
}

func (s *BoardService) relay(origin string, op domain.BoardOperation) {
	if s.deps.Transport == nil {
		return
	}
	raw, err := json.Marshal(opMessage{Origin: origin, Operation: op})
	if err != nil {
		log.Printf("[SYNC] encode operation %s: %v", op.ID, err)
		return
	}
	if err := s.deps.Transport.Publish(OpsChannel(s.SessionID()), raw); err != nil {
		log.Printf("[SYNC] publish operation %s: %v", op.ID, err)
	}
}
