package transport

import "encoding/json"

type FrameType string

const (
	FrameConnected   FrameType = "connected"
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FramePublish     FrameType = "publish"
	FrameMessage     FrameType = "message"
	FrameError       FrameType = "error"
)

// Frame is the JSON envelope exchanged over a websocket. Sender carries the
// connection id the server assigned to the publisher.
type Frame struct {
	Type    FrameType       `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Sender  string          `json:"sender,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}
