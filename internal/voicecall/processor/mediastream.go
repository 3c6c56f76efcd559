package processor

import (
	"context"

	"frontdesk-server/internal/voicecall/bridge"
	"frontdesk-server/internal/voicecall/twilio"

	"github.com/gorilla/websocket"
)

// RunMediaStream owns one upgraded media-stream connection: it wires a call
// session around it, runs the call to completion, and kicks off the post-call
// summary. It returns once both call legs have torn down.
func (v *VoiceCallProcessor) RunMediaStream(ctx context.Context, conn *websocket.Conn) {
	caller := twilio.NewConn(conn, v.logger)
	session := bridge.NewSession(bridge.Config{
		Caller:             caller,
		Dialer:             realtimeDialer{client: v.realtime},
		Resolver:           v.configurator,
		Dispatcher:         v.dispatcher,
		Store:              v.store,
		Publisher:          v.publisher,
		Codec:              v.codec,
		TranscriptionModel: transcriptionModel,
		Logger:             v.logger,
	})

	session.Run(ctx)

	conversation, ok := session.Conversation()
	if !ok || session.TurnCount() == 0 {
		return
	}
	// The request context dies with the WebSocket; the summary runs on its own.
	go v.summarizeCall(context.WithoutCancel(ctx), conversation.ID)
}
