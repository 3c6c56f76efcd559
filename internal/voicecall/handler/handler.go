// Package handler terminates the telephony provider's HTTP surface: the
// inbound-call webhook and the media-stream WebSocket endpoint.
package handler

import (
	"net/http"

	"frontdesk-server/internal/observability"
	"frontdesk-server/internal/voicecall/processor"

	"github.com/gorilla/websocket"
)

type Handler struct {
	voiceProcessor *processor.VoiceCallProcessor
	publicHost     string
	logger         *observability.Logger
}

func New(voiceProcessor *processor.VoiceCallProcessor, publicHost string, logger *observability.Logger) Handler {
	return Handler{
		voiceProcessor: voiceProcessor,
		publicHost:     publicHost,
		logger:         logger,
	}
}

// upgrader is a shared WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Add proper origin validation for production
		return true
	},
}
