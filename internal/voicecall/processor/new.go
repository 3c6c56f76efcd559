// Package processor assembles one call session per media-stream connection
// and generates the post-call summary once the session ends.
package processor

import (
	"context"

	"frontdesk-server/internal/agents"
	openaiclient "frontdesk-server/internal/clients/openai"
	"frontdesk-server/internal/events"
	"frontdesk-server/internal/observability"
	"frontdesk-server/internal/scheduling"
	"frontdesk-server/internal/store"
	"frontdesk-server/internal/voice/audio"
	"frontdesk-server/internal/voicecall/bridge"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	openaiOption "github.com/openai/openai-go/option"
)

// transcriptionModel transcribes caller speech inside the realtime session.
const transcriptionModel = "whisper-1"

// CallStore bundles the persistence used during a session and by the
// post-call summarizer.
type CallStore interface {
	bridge.ConversationStore
	GetAllMessagesByConversationID(ctx context.Context, conversationID uuid.UUID) ([]store.Message, error)
	UpdateConversationSummary(ctx context.Context, conversationID uuid.UUID, title, summary string) error
}

type VoiceCallProcessor struct {
	configurator  *agents.Configurator
	dispatcher    *scheduling.Dispatcher
	store         CallStore
	publisher     *events.Publisher
	realtime      *openaiclient.RealtimeClient
	codec         *audio.Codec
	summaryClient openai.Client
	logger        *observability.Logger
}

func NewVoiceCallProcessor(
	configurator *agents.Configurator,
	dispatcher *scheduling.Dispatcher,
	callStore CallStore,
	publisher *events.Publisher,
	realtime *openaiclient.RealtimeClient,
	codec *audio.Codec,
	openAIAPIKey string,
	logger *observability.Logger,
) *VoiceCallProcessor {
	return &VoiceCallProcessor{
		configurator:  configurator,
		dispatcher:    dispatcher,
		store:         callStore,
		publisher:     publisher,
		realtime:      realtime,
		codec:         codec,
		summaryClient: openai.NewClient(openaiOption.WithAPIKey(openAIAPIKey)),
		logger:        logger,
	}
}

// realtimeDialer adapts the realtime client to the session's dialer seam.
type realtimeDialer struct {
	client *openaiclient.RealtimeClient
}

func (d realtimeDialer) Dial(ctx context.Context) (bridge.RealtimeLeg, error) {
	session, err := d.client.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return session, nil
}
