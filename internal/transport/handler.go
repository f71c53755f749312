package transport

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
	sendBacklog = 64
)

// Handler bridges websocket connections onto a Hub. Each connection gets an
// id, announced in a connected frame, that suppresses echoes of its own
// publishes.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SYNC] websocket upgrade: %v", err)
		return
	}
	c := &serverConn{
		id:   uuid.New().String(),
		hub:  h.hub,
		ws:   ws,
		send: make(chan Frame, sendBacklog),
		subs: make(map[string]func()),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	c.enqueue(Frame{Type: FrameConnected, Sender: c.id})
	c.readLoop()
}

type serverConn struct {
	id   string
	hub  *Hub
	ws   *websocket.Conn
	send chan Frame

	mu   sync.Mutex
	subs map[string]func()
	done chan struct{}
	once sync.Once
}

// enqueue drops the frame when the client is lagging; the next state it
// receives catches it up.
func (c *serverConn) enqueue(f Frame) {
	select {
	case <-c.done:
	case c.send <- f:
	default:
		log.Printf("[SYNC] dropping %s frame for lagging connection %s", f.Type, c.id)
	}
}

func (c *serverConn) readLoop() {
	defer c.close()
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var f Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[SYNC] read %s: %v", c.id, err)
			}
			return
		}
		c.handle(f)
	}
}

func (c *serverConn) handle(f Frame) {
	switch f.Type {
	case FrameSubscribe:
		c.mu.Lock()
		if _, ok := c.subs[f.Channel]; !ok && c.subs != nil {
			channel := f.Channel
			c.subs[channel] = c.hub.SubscribeAs(c.id, channel, func(sender string, payload []byte) {
				c.enqueue(Frame{Type: FrameMessage, Channel: channel, Sender: sender, Payload: json.RawMessage(payload)})
			})
		}
		c.mu.Unlock()
	case FrameUnsubscribe:
		c.mu.Lock()
		if off, ok := c.subs[f.Channel]; ok {
			off()
			delete(c.subs, f.Channel)
		}
		c.mu.Unlock()
	case FramePublish:
		if f.Channel == "" || !json.Valid(f.Payload) {
			c.enqueue(Frame{Type: FrameError, Error: "publish needs a channel and a JSON payload"})
			return
		}
		c.hub.PublishFrom(c.id, f.Channel, f.Payload)
	default:
		c.enqueue(Frame{Type: FrameError, Error: "unknown frame type " + string(f.Type)})
	}
}

func (c *serverConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *serverConn) close() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		for _, off := range c.subs {
			off()
		}
		c.subs = nil
		c.mu.Unlock()
		c.ws.Close()
	})
}
