// Package twilio wraps the caller-leg media stream WebSocket and its JSON
// frame protocol.
package twilio

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"frontdesk-server/internal/observability"

	"github.com/gorilla/websocket"
)

// ErrMalformedFrame marks a frame that could not be parsed. The caller should
// skip the frame, not end the call.
var ErrMalformedFrame = errors.New("malformed media stream frame")

// Stream event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
)

// StreamEvent is one inbound JSON frame on the media stream.
type StreamEvent struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
}

// StartPayload carries the call identifiers and the custom parameters set by
// the inbound-call webhook (caller and called numbers).
type StartPayload struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	AccountSid       string            `json:"accountSid"`
	CustomParameters map[string]string `json:"customParameters"`
}

type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type StopPayload struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

// Conn is the caller leg of one call. Reads happen from a single goroutine;
// writes are serialized and may come from any goroutine.
type Conn struct {
	conn      *websocket.Conn
	logger    *observability.Logger
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func NewConn(conn *websocket.Conn, logger *observability.Logger) *Conn {
	return &Conn{conn: conn, logger: logger}
}

// ReadEvent blocks for the next frame. Transport errors are returned as-is so
// the caller can distinguish a normal close; unparseable frames return
// ErrMalformedFrame.
func (c *Conn) ReadEvent() (StreamEvent, error) {
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return StreamEvent{}, err
	}
	return parseStreamEvent(payload)
}

func parseStreamEvent(payload []byte) (StreamEvent, error) {
	var event StreamEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return StreamEvent{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if event.Event == "" {
		return StreamEvent{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	return event, nil
}

// WriteMedia plays one base64 audio payload to the caller.
func (c *Conn) WriteMedia(streamSid, payload string) error {
	message := map[string]interface{}{
		"event":     "media",
		"streamSid": streamSid,
		"media": map[string]string{
			"payload": payload,
		},
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(message); err != nil {
		return fmt.Errorf("failed to write media frame: %w", err)
	}
	return nil
}

// Close ends the caller leg. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// IsNormalClose reports whether err is an expected end-of-call close.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
