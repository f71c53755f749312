package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"whiteboard/internal/domain"
	"whiteboard/internal/events"
)

const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultMaxAttempts  = 5
	DefaultHeartbeat    = 25 * time.Second
	DefaultMaxPending   = 256
)

// Backoff yields exponentially growing reconnect delays and gives up after
// MaxAttempts consecutive failures.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int

	attempt int
}

// Next returns the delay before the next attempt, or false once the
// attempts are exhausted.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.MaxAttempts > 0 && b.attempt >= b.MaxAttempts {
		return 0, false
	}
	initial := b.Initial
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	d := initial << b.attempt
	if b.Max > 0 && (d > b.Max || d <= 0) {
		d = b.Max
	}
	b.attempt++
	return d, true
}

func (b *Backoff) Reset() { b.attempt = 0 }

func (b *Backoff) Attempts() int { return b.attempt }

type StatusEvent struct {
	Status  domain.ConnectionStatus
	Attempt int
	Err     error
}

type ClientOptions struct {
	Header     http.Header
	Backoff    Backoff
	Heartbeat  time.Duration
	MaxPending int
	Dialer     *websocket.Dialer
}

// Client is a reconnecting websocket transport. Publishes made while
// disconnected are held and flushed on the next connection; subscriptions
// are replayed after every reconnect.
type Client struct {
	url  string
	opts ClientOptions

	mu       sync.Mutex
	ws       *websocket.Conn
	selfID   string
	status   domain.ConnectionStatus
	handlers map[string]map[int]func([]byte)
	nextSub  int
	pending  []Frame
	cancel   context.CancelFunc
	done     chan struct{}

	writeMu sync.Mutex

	Events *events.Bus[StatusEvent]
}

func NewClient(url string, opts ClientOptions) *Client {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}
	if opts.Backoff.MaxAttempts == 0 {
		opts.Backoff.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff.Max == 0 {
		opts.Backoff.Max = DefaultMaxDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		url:      url,
		opts:     opts,
		status:   domain.ConnClosed,
		handlers: make(map[string]map[int]func([]byte)),
		Events:   events.NewBus[StatusEvent](),
	}
}

func (c *Client) Status() domain.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Pending returns the number of frames waiting for a connection.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) setStatus(s domain.ConnectionStatus, err error) {
	c.mu.Lock()
	changed := c.status != s
	c.status = s
	attempt := c.opts.Backoff.Attempts()
	c.mu.Unlock()
	if changed {
		c.Events.Publish(StatusEvent{Status: s, Attempt: attempt, Err: err})
	}
}

// Start runs the connect loop until ctx ends, Close is called or the
// backoff gives up. Calling Start while the loop runs is a no-op.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.opts.Backoff.Reset()
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(ctx)
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()
}

// Close stops the loop and closes the connection normally.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel, done, ws := c.cancel, c.done, c.ws
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if ws != nil {
		c.writeMu.Lock()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		ws.Close()
	}
	<-done
	return nil
}

func (c *Client) run(ctx context.Context) {
	for {
		c.setStatus(domain.ConnConnecting, nil)
		ws, _, err := c.opts.Dialer.DialContext(ctx, c.url, c.opts.Header)
		if err == nil {
			c.mu.Lock()
			c.opts.Backoff.Reset()
			c.mu.Unlock()
			err = c.serve(ctx, ws)
		}
		if ctx.Err() != nil {
			c.setStatus(domain.ConnClosed, nil)
			return
		}

		c.mu.Lock()
		delay, ok := c.opts.Backoff.Next()
		attempt := c.opts.Backoff.Attempts()
		c.mu.Unlock()
		if !ok {
			log.Printf("[SYNC] giving up on %s after %d attempts: %v", c.url, attempt, err)
			c.setStatus(domain.ConnOffline, err)
			return
		}
		log.Printf("[SYNC] reconnect %d to %s in %s: %v", attempt, c.url, delay, err)
		select {
		case <-ctx.Done():
			c.setStatus(domain.ConnClosed, nil)
			return
		case <-time.After(delay):
		}
	}
}

// serve owns one connection until it fails.
func (c *Client) serve(ctx context.Context, ws *websocket.Conn) error {
	c.mu.Lock()
	c.ws = ws
	channels := make([]string, 0, len(c.handlers))
	for ch := range c.handlers {
		channels = append(channels, ch)
	}
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.selfID = ""
		c.mu.Unlock()
		ws.Close()
	}()

	for _, ch := range channels {
		if err := c.write(ws, Frame{Type: FrameSubscribe, Channel: ch}); err != nil {
			c.requeue(pending)
			return err
		}
	}
	for i, f := range pending {
		if err := c.write(ws, f); err != nil {
			c.requeue(pending[i:])
			return err
		}
	}
	c.setStatus(domain.ConnOpen, nil)

	stop := make(chan struct{})
	defer close(stop)
	go c.heartbeat(ctx, ws, stop)

	deadline := 2 * c.opts.Heartbeat
	ws.SetReadDeadline(time.Now().Add(deadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(deadline))
	})
	for {
		var f Frame
		if err := ws.ReadJSON(&f); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		ws.SetReadDeadline(time.Now().Add(deadline))
		c.dispatch(f)
	}
}

// heartbeat pings until the connection ends and closes it when ctx does.
func (c *Client) heartbeat(ctx context.Context, ws *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			ws.Close()
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(f Frame) {
	switch f.Type {
	case FrameConnected:
		c.mu.Lock()
		c.selfID = f.Sender
		c.mu.Unlock()
	case FrameMessage:
		c.mu.Lock()
		if f.Sender != "" && f.Sender == c.selfID {
			c.mu.Unlock()
			return
		}
		fns := make([]func([]byte), 0, len(c.handlers[f.Channel]))
		for _, fn := range c.handlers[f.Channel] {
			fns = append(fns, fn)
		}
		c.mu.Unlock()
		for _, fn := range fns {
			fn(f.Payload)
		}
	case FrameError:
		log.Printf("[SYNC] server error: %s", f.Error)
	}
}

func (c *Client) write(ws *websocket.Conn, f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(f)
}

// requeue puts unsent frames back in front of anything queued since.
func (c *Client) requeue(frames []Frame) {
	if len(frames) == 0 {
		return
	}
	c.mu.Lock()
	c.pending = append(append([]Frame(nil), frames...), c.pending...)
	if over := len(c.pending) - c.opts.MaxPending; over > 0 {
		c.pending = c.pending[over:]
	}
	c.mu.Unlock()
}

// send writes f now when connected, otherwise holds it.
func (c *Client) send(f Frame) error {
	c.mu.Lock()
	ws := c.ws
	if ws == nil {
		if len(c.pending) >= c.opts.MaxPending {
			c.mu.Unlock()
			return fmt.Errorf("%w: %d frames waiting for a connection", domain.ErrCapacity, len(c.pending))
		}
		c.pending = append(c.pending, f)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	if err := c.write(ws, f); err != nil {
		c.requeue([]Frame{f})
		return nil
	}
	return nil
}

// Publish sends message on channel. While disconnected it is held for the
// next connection.
func (c *Client) Publish(channel string, message []byte) error {
	if !json.Valid(message) {
		return fmt.Errorf("%w: payload for %s is not JSON", domain.ErrValidation, channel)
	}
	return c.send(Frame{Type: FramePublish, Channel: channel, Payload: json.RawMessage(message)})
}

// Subscribe registers handler for channel and returns its remover.
func (c *Client) Subscribe(channel string, handler func(payload []byte)) func() {
	c.mu.Lock()
	first := len(c.handlers[channel]) == 0
	if c.handlers[channel] == nil {
		c.handlers[channel] = make(map[int]func([]byte))
	}
	c.nextSub++
	id := c.nextSub
	c.handlers[channel][id] = handler
	ws := c.ws
	c.mu.Unlock()

	if first && ws != nil {
		if err := c.write(ws, Frame{Type: FrameSubscribe, Channel: channel}); err != nil {
			log.Printf("[SYNC] subscribe %s: %v", channel, err)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.handlers[channel], id)
			last := len(c.handlers[channel]) == 0
			if last {
				delete(c.handlers, channel)
			}
			ws := c.ws
			c.mu.Unlock()
			if last && ws != nil {
				if err := c.write(ws, Frame{Type: FrameUnsubscribe, Channel: channel}); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
					log.Printf("[SYNC] unsubscribe %s: %v", channel, err)
				}
			}
		})
	}
}
