package app

import (
	"context"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"

	"whiteboard/internal/config"
	"whiteboard/internal/domain"
	"whiteboard/internal/remote"
	"whiteboard/internal/render"
	"whiteboard/internal/secret"
	"whiteboard/internal/service"
	"whiteboard/internal/storage"
	"whiteboard/internal/transport"
)

// App wires storage, the remote store, the transport and the open boards
// for one process. It backs every run mode: HTTP server, MCP stdio and
// one-shot export.
type App struct {
	ctx context.Context
	cfg config.Config

	db      *storage.DB
	local   *storage.LocalStore
	history *storage.HistoryStore
	remote  remote.Store
	hub     *transport.Hub
	images  *render.ImageCache
	emitter service.EventEmitter
	secrets secret.SecretStore
	boards  *service.Registry

	clientsMu sync.Mutex
	clients   map[string]*transport.Client
}

// New creates an App. Call Startup before use.
func New(cfg config.Config, emitter service.EventEmitter) *App {
	if emitter == nil {
		emitter = service.LogEmitter{}
	}
	return &App{
		cfg:     cfg,
		emitter: emitter,
		secrets: secret.Chain{secret.NewEnvStore(), secret.NewKeychainStore("")},
		clients: make(map[string]*transport.Client),
	}
}

// Startup opens the local database, the optional remote store and the
// board registry.
func (a *App) Startup(ctx context.Context) error {
	a.ctx = ctx

	db, err := storage.New(a.cfg.DBPath(), a.cfg.AssetDir())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db
	a.local = storage.NewLocalStore(db)
	a.history = storage.NewHistoryStore(db, a.cfg.Limits.HistoryDepth)

	if a.cfg.Remote.Driver != "" {
		r, err := remote.Open(ctx, a.remoteConn())
		if err != nil {
			db.Close()
			return fmt.Errorf("open remote store: %w", err)
		}
		a.remote = r
	}

	images, err := render.NewImageCache(a.onImageChanged)
	if err != nil {
		log.Printf("[RENDER] image watcher unavailable: %v", err)
	}
	a.images = images

	a.hub = transport.NewHub()
	a.boards = service.NewRegistry(a.openBoard)
	return nil
}

// remoteConn fills in the remote password from the secret stores when the
// config leaves it out.
func (a *App) remoteConn() remote.Conn {
	conn := a.cfg.Remote
	if conn.Password != "" || conn.DSN != "" || a.secrets == nil {
		return conn
	}
	key := secret.RemoteKey(string(conn.Driver), conn.Host, conn.Username)
	pw, err := a.secrets.Get(key)
	if err != nil {
		log.Printf("[SYNC] read secret %s: %v", key, err)
		return conn
	}
	conn.Password = string(pw)
	return conn
}

// Shutdown closes every board, then the transports and stores.
func (a *App) Shutdown() {
	if a.boards != nil {
		if err := a.boards.Close(); err != nil {
			log.Printf("[SYNC] shutdown: %v", err)
		}
	}
	a.clientsMu.Lock()
	for id, c := range a.clients {
		c.Close()
		delete(a.clients, id)
	}
	a.clientsMu.Unlock()

	if a.images != nil {
		a.images.Close()
	}
	if a.remote != nil {
		a.remote.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// Boards is the registry of open boards.
func (a *App) Boards() *service.Registry { return a.boards }

// Hub is the in-process transport shared by boards and websocket clients.
func (a *App) Hub() *transport.Hub { return a.hub }

func (a *App) openBoard(ctx context.Context, sessionID string) (*service.BoardService, error) {
	opts := service.BoardOptions{
		Engine:        a.cfg.EngineOptions(sessionID),
		Queue:         a.cfg.QueueOptions(),
		SyncSchedule:  a.cfg.Intervals.SyncSchedule,
		CursorPublish: a.cfg.Intervals.CursorPublish.Std(),
		Participant: service.Participant{
			UserID: a.cfg.Transport.UserID,
			Name:   a.cfg.Transport.Name,
			Color:  a.cfg.Transport.Color,
		},
	}
	if a.images != nil {
		opts.Engine.Images = assetImages{cache: a.images, db: a.db}
	}
	if a.remote == nil {
		opts.SyncSchedule = ""
	}

	return service.OpenBoard(ctx, service.BoardDeps{
		Local:     a.local,
		History:   a.history,
		Remote:    a.remote,
		Transport: a.transportFor(sessionID),
		Emitter:   a.emitter,
	}, opts)
}

// transportFor returns the websocket client for sessionID when a hub URL is
// configured, otherwise the in-process hub.
func (a *App) transportFor(sessionID string) domain.Transport {
	url := a.cfg.Transport.URL
	if url == "" {
		return a.hub
	}
	a.clientsMu.Lock()
	defer a.clientsMu.Unlock()
	if c, ok := a.clients[sessionID]; ok {
		return c
	}
	c := transport.NewClient(strings.ReplaceAll(url, "{id}", sessionID), transport.ClientOptions{})
	c.Start(a.ctx)
	a.clients[sessionID] = c
	return c
}

// onImageChanged repaints every open board after an image file changed.
func (a *App) onImageChanged(src string) {
	if a.boards == nil {
		return
	}
	for _, id := range a.boards.Sessions() {
		if b, err := a.boards.Get(a.ctx, id); err == nil {
			b.Engine.RequestRender()
		}
	}
}

// assetImages resolves relative image paths against the asset directory.
type assetImages struct {
	cache *render.ImageCache
	db    *storage.DB
}

func (s assetImages) Image(src string) (image.Image, bool) {
	if src != "" && !strings.HasPrefix(src, "data:") && !strings.HasPrefix(src, "file://") {
		src = s.db.AssetPath(src)
	}
	return s.cache.Image(src)
}
