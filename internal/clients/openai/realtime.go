package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"frontdesk-server/internal/observability"

	"github.com/gorilla/websocket"
)

const (
	defaultRealtimeURL   = "wss://api.openai.com/v1/realtime"
	defaultRealtimeModel = "gpt-4o-realtime-preview"

	handshakeTimeout = 10 * time.Second
	eventBuffer      = 64
)

// ToolDefinition declares one function the model may invoke, with a JSON
// Schema argument shape. Passed verbatim inside session.update.
type ToolDefinition struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SessionConfig is everything the bridge declares up front for one call.
// Input and output audio formats must name the same encoding the media codec
// was built with.
type SessionConfig struct {
	Voice              string
	Instructions       string
	Tools              []ToolDefinition
	InputAudioFormat   string
	OutputAudioFormat  string
	TranscriptionModel string
}

// RealtimeClient dials speech-to-speech realtime sessions.
type RealtimeClient struct {
	apiKey  string
	baseURL string
	model   string
	logger  *observability.Logger
}

func NewRealtimeClient(apiKey, baseURL, model string, logger *observability.Logger) (*RealtimeClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if baseURL == "" {
		baseURL = defaultRealtimeURL
	}
	if model == "" {
		model = defaultRealtimeModel
	}
	return &RealtimeClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		logger:  logger,
	}, nil
}

// Dial opens one realtime session. The returned session owns the connection;
// closing either end stops the event stream.
func (c *RealtimeClient) Dial(ctx context.Context) (*RealtimeSession, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.apiKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	endpoint := fmt.Sprintf("%s?model=%s", c.baseURL, url.QueryEscape(c.model))
	conn, _, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		c.logger.Error(ctx, "Failed to connect to realtime endpoint", err)
		return nil, fmt.Errorf("failed to dial realtime endpoint: %w", err)
	}

	session := &RealtimeSession{
		conn:   conn,
		logger: c.logger,
		events: make(chan ServerEvent, eventBuffer),
		done:   make(chan struct{}),
	}
	go session.readLoop(ctx)
	return session, nil
}

// RealtimeSession is one live connection to the realtime service. Writes are
// serialized; events arrive on the Events channel until the connection drops
// or Close is called, after which the channel is closed.
type RealtimeSession struct {
	conn      *websocket.Conn
	logger    *observability.Logger
	writeMu   sync.Mutex
	events    chan ServerEvent
	done      chan struct{}
	closeOnce sync.Once
}

// Events yields parsed server events. The channel closes when the session
// ends, whichever side ends it.
func (s *RealtimeSession) Events() <-chan ServerEvent {
	return s.events
}

func (s *RealtimeSession) readLoop(ctx context.Context) {
	defer close(s.events)
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !isClosed(s.done) {
				s.logger.InfoWithError(ctx, "Realtime connection read ended", err)
			}
			return
		}

		event, err := parseServerEvent(payload)
		if err != nil {
			s.logger.InfoWithError(ctx, "Dropping malformed realtime event", err)
			continue
		}
		if event == nil {
			continue
		}

		select {
		case s.events <- event:
		case <-s.done:
			return
		}
	}
}

// UpdateSession sends the one session.update that configures voice,
// instructions, tools, the symmetric audio format pair, caller-speech
// transcription, and server-side turn detection.
func (s *RealtimeSession) UpdateSession(cfg SessionConfig) error {
	session := map[string]interface{}{
		"modalities":          []string{"text", "audio"},
		"voice":               cfg.Voice,
		"instructions":        cfg.Instructions,
		"input_audio_format":  cfg.InputAudioFormat,
		"output_audio_format": cfg.OutputAudioFormat,
		"turn_detection": map[string]interface{}{
			"type":                "server_vad",
			"threshold":           0.5,
			"prefix_padding_ms":   300,
			"silence_duration_ms": 500,
		},
	}
	if cfg.TranscriptionModel != "" {
		session["input_audio_transcription"] = map[string]interface{}{
			"model": cfg.TranscriptionModel,
		}
	}
	if len(cfg.Tools) > 0 {
		session["tools"] = cfg.Tools
		session["tool_choice"] = "auto"
	}

	return s.send(map[string]interface{}{
		"type":    "session.update",
		"session": session,
	})
}

// AppendAudio forwards one chunk of caller audio, already transcoded to the
// session's input format.
func (s *RealtimeSession) AppendAudio(audio []byte) error {
	return s.send(map[string]interface{}{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(audio),
	})
}

// CreateUserMessage injects a synthetic user turn, used to prime the greeting.
func (s *RealtimeSession) CreateUserMessage(text string) error {
	return s.send(map[string]interface{}{
		"type": "conversation.item.create",
		"item": map[string]interface{}{
			"type": "message",
			"role": "user",
			"content": []map[string]interface{}{
				{"type": "input_text", "text": text},
			},
		},
	})
}

// SubmitToolOutput returns a tool invocation result keyed by the call id the
// model issued.
func (s *RealtimeSession) SubmitToolOutput(callID, output string) error {
	return s.send(map[string]interface{}{
		"type": "conversation.item.create",
		"item": map[string]interface{}{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	})
}

// CreateResponse asks the model to speak now instead of waiting for caller
// speech.
func (s *RealtimeSession) CreateResponse() error {
	return s.send(map[string]interface{}{"type": "response.create"})
}

func (s *RealtimeSession) send(message map[string]interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(message); err != nil {
		return fmt.Errorf("failed to write realtime message: %w", err)
	}
	return nil
}

// Close tears the connection down. Safe to call from any goroutine and more
// than once.
func (s *RealtimeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func isClosed(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
