// Package bridge runs the per-call state machine that joins a telephony
// media stream to an AI realtime session: it relays audio both ways, persists
// transcript turns, executes tool calls, and tears both legs down together.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"frontdesk-server/internal/agents"
	"frontdesk-server/internal/clients/openai"
	"frontdesk-server/internal/observability"
	"frontdesk-server/internal/store"
	"frontdesk-server/internal/voice/audio"
	"frontdesk-server/internal/voicecall/twilio"

	"github.com/google/uuid"
)

// State is the bridge lifecycle position. Transitions only move forward.
type State string

const (
	StateIdle         State = "idle"
	StateResolving    State = "resolving"
	StateConnectingAI State = "connecting_ai"
	StateActive       State = "active"
	StateClosing      State = "closing"
	StateClosed       State = "closed"
)

// maxDecodeFailures is the budget of consecutive undecodable caller frames
// tolerated before the call is ended.
const maxDecodeFailures = 5

// Call end reasons, recorded on the completion event.
const (
	ReasonCallerHangup   = "caller_hangup"
	ReasonCallerError    = "caller_connection_error"
	ReasonAgentNotFound  = "agent_not_found"
	ReasonSetupFailed    = "setup_failed"
	ReasonAssistantEnded = "assistant_connection_closed"
	ReasonDecodeFailures = "decode_failure_budget_exhausted"
)

// Config wires one Session. Publisher may be nil; everything else is required.
type Config struct {
	Caller             CallerLeg
	Dialer             RealtimeDialer
	Resolver           AgentResolver
	Dispatcher         ToolDispatcher
	Store              ConversationStore
	Publisher          EventPublisher
	Codec              *audio.Codec
	TranscriptionModel string
	Logger             *observability.Logger
}

// Session bridges one phone call. The caller leg is read by Run's goroutine;
// AI events are pumped by a second goroutine; state transitions are guarded
// by mu and happen once.
type Session struct {
	caller     CallerLeg
	dialer     RealtimeDialer
	resolver   AgentResolver
	dispatcher ToolDispatcher
	store      ConversationStore
	publisher  EventPublisher
	codec      *audio.Codec
	logger     *observability.Logger

	transcriptionModel string

	mu              sync.Mutex
	state           State
	ai              RealtimeLeg
	conversation    store.Conversation
	hasConversation bool
	turnCount       int
	pumpDone        chan struct{}

	// Written once during start handling, before the AI pump exists.
	profile      agents.Profile
	streamSid    string
	callSid      string
	callerNumber string
	calledNumber string
	startedAt    time.Time

	// Touched only by the caller-leg goroutine.
	decodeFailures int
}

func NewSession(cfg Config) *Session {
	return &Session{
		caller:             cfg.Caller,
		dialer:             cfg.Dialer,
		resolver:           cfg.Resolver,
		dispatcher:         cfg.Dispatcher,
		store:              cfg.Store,
		publisher:          cfg.Publisher,
		codec:              cfg.Codec,
		logger:             cfg.Logger,
		transcriptionModel: cfg.TranscriptionModel,
		state:              StateIdle,
	}
}

// State returns the current lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Conversation returns the persisted conversation record, if one was opened.
func (s *Session) Conversation() (store.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation, s.hasConversation
}

// TurnCount returns how many transcript turns the call produced.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

// Run drives the call until it ends. It owns the caller leg: the loop exits
// on stop, transport error, or teardown initiated by the AI pump, and both
// legs are closed before Run returns.
func (s *Session) Run(ctx context.Context) {
	reason := s.runCallerLoop(ctx)
	s.teardown(ctx, reason)

	s.mu.Lock()
	pumpDone := s.pumpDone
	s.mu.Unlock()
	if pumpDone != nil {
		<-pumpDone
	}
}

func (s *Session) runCallerLoop(ctx context.Context) string {
	for {
		event, err := s.caller.ReadEvent()
		if err != nil {
			if errors.Is(err, twilio.ErrMalformedFrame) {
				s.logger.InfoWithError(ctx, "Skipping malformed caller frame", err)
				continue
			}
			if twilio.IsNormalClose(err) || s.isShuttingDown() {
				s.logger.Info(ctx, "Caller connection closed")
				return ReasonCallerHangup
			}
			s.logger.Error(ctx, "Caller connection failed", err)
			return ReasonCallerError
		}

		if s.isShuttingDown() {
			continue
		}

		switch event.Event {
		case twilio.EventConnected:
			// Handshake preamble before start; nothing to do.

		case twilio.EventStart:
			if event.Start == nil {
				s.logger.Warn(ctx, "Start event missing payload")
				continue
			}
			if reason, fatal := s.handleStart(ctx, event.Start); fatal {
				return reason
			}

		case twilio.EventMedia:
			if reason, fatal := s.handleCallerMedia(ctx, event.Media); fatal {
				return reason
			}

		case twilio.EventStop:
			s.logger.Info(ctx, "Caller ended the call")
			return ReasonCallerHangup

		default:
			s.logger.Debug(ctx, fmt.Sprintf("Ignoring caller event: %s", event.Event))
		}
	}
}

// handleStart walks IDLE -> RESOLVING -> CONNECTING_AI -> ACTIVE. A false
// return means the call goes on; fatal returns end it with the given reason.
func (s *Session) handleStart(ctx context.Context, start *twilio.StartPayload) (string, bool) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		s.logger.Warn(ctx, "Duplicate start event ignored")
		return "", false
	}
	s.state = StateResolving
	s.mu.Unlock()

	s.streamSid = start.StreamSid
	s.callSid = start.CallSid
	s.callerNumber = start.CustomParameters["from"]
	s.calledNumber = start.CustomParameters["to"]
	s.startedAt = time.Now()

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "call_sid", Value: s.callSid},
		observability.Field{Key: "stream_sid", Value: s.streamSid},
	)
	s.logger.Info(ctx, "Call stream started")

	profile, err := s.resolver.ProfileForNumber(ctx, s.calledNumber)
	if err != nil {
		if errors.Is(err, agents.ErrAgentNotFound) {
			s.logger.Warn(ctx, "No active agent for called number, ending call")
			return ReasonAgentNotFound, true
		}
		s.logger.Error(ctx, "Failed to resolve agent", err)
		return ReasonSetupFailed, true
	}
	s.profile = profile

	conversation, err := s.store.CreateConversation(ctx, store.CreateConversationParams{
		AgentID:      profile.AgentID,
		CallSid:      s.callSid,
		StreamSid:    s.streamSid,
		CallerNumber: s.callerNumber,
		CalledNumber: s.calledNumber,
	})
	if err != nil {
		// The call proceeds without a transcript record.
		s.logger.Error(ctx, "Failed to open conversation record", err)
	} else {
		s.mu.Lock()
		s.conversation = conversation
		s.hasConversation = true
		s.mu.Unlock()
		if s.publisher != nil {
			go s.publisher.PublishCallStarted(context.WithoutCancel(ctx), conversation)
		}
	}

	s.setState(StateConnectingAI)
	ai, err := s.dialer.Dial(ctx)
	if err != nil {
		s.logger.Error(ctx, "Failed to open assistant connection", err)
		return ReasonSetupFailed, true
	}

	s.mu.Lock()
	if s.state != StateConnectingAI {
		// Teardown won the race while we were dialing.
		s.mu.Unlock()
		ai.Close()
		return "", false
	}
	s.ai = ai
	s.state = StateActive
	s.pumpDone = make(chan struct{})
	s.mu.Unlock()

	// The pump starts before configuration so a failure below still ends in
	// an orderly drain of the AI leg.
	go s.pumpRealtime(ctx, ai)

	if err := ai.UpdateSession(openai.SessionConfig{
		Voice:              profile.Voice,
		Instructions:       profile.Instructions,
		Tools:              profile.Tools,
		InputAudioFormat:   s.codec.Format(),
		OutputAudioFormat:  s.codec.Format(),
		TranscriptionModel: s.transcriptionModel,
	}); err != nil {
		s.logger.Error(ctx, "Failed to configure assistant session", err)
		return ReasonSetupFailed, true
	}

	if profile.Greeting != "" {
		prime := fmt.Sprintf("Greet the caller by saying exactly: %q", profile.Greeting)
		if err := ai.CreateUserMessage(prime); err != nil {
			s.logger.Error(ctx, "Failed to prime greeting", err)
			return ReasonSetupFailed, true
		}
		if err := ai.CreateResponse(); err != nil {
			s.logger.Error(ctx, "Failed to trigger greeting", err)
			return ReasonSetupFailed, true
		}
	}

	return "", false
}

// handleCallerMedia forwards one caller audio frame to the AI leg. Lone
// decode failures are dropped; blowing the consecutive-failure budget ends
// the call.
func (s *Session) handleCallerMedia(ctx context.Context, media *twilio.MediaPayload) (string, bool) {
	s.mu.Lock()
	ai := s.ai
	active := s.state == StateActive
	s.mu.Unlock()
	if !active || ai == nil {
		return "", false
	}

	if media == nil {
		return s.recordDecodeFailure(ctx, fmt.Errorf("media event missing payload"))
	}
	chunk, err := s.codec.Decode(media.Payload)
	if err != nil {
		return s.recordDecodeFailure(ctx, err)
	}
	s.decodeFailures = 0

	if err := ai.AppendAudio(chunk); err != nil {
		s.logger.Error(ctx, "Failed to forward caller audio", err)
		return ReasonAssistantEnded, true
	}
	return "", false
}

func (s *Session) recordDecodeFailure(ctx context.Context, err error) (string, bool) {
	s.decodeFailures++
	s.logger.InfoWithError(ctx, "Dropping undecodable caller frame", err)
	if s.decodeFailures >= maxDecodeFailures {
		s.logger.Error(ctx, "Consecutive decode failures exhausted budget", err)
		return ReasonDecodeFailures, true
	}
	return "", false
}

// pumpRealtime consumes AI events until the AI leg closes. It runs beside
// the caller loop so transcript writes and tool calls never stall audio
// flowing in the other direction.
func (s *Session) pumpRealtime(ctx context.Context, ai RealtimeLeg) {
	defer func() {
		s.mu.Lock()
		pumpDone := s.pumpDone
		s.mu.Unlock()
		close(pumpDone)
	}()

	for event := range ai.Events() {
		if s.isShuttingDown() {
			continue
		}

		switch e := event.(type) {
		case openai.AudioDeltaEvent:
			s.relayAssistantAudio(ctx, e)

		case openai.TranscriptCompletedEvent:
			if e.Transcript != "" {
				s.appendTurn(ctx, store.MessageRoleUser, e.Transcript)
			}

		case openai.ResponseDoneEvent:
			if e.Transcript != "" {
				s.appendTurn(ctx, store.MessageRoleAssistant, e.Transcript)
			}

		case openai.FunctionCallEvent:
			s.handleToolCall(ctx, ai, e)

		case openai.ErrorEvent:
			// Logged only: the connection closing is what ends the call.
			s.logger.Error(ctx, "Assistant session reported an error",
				fmt.Errorf("realtime error %s: %s", e.Code, e.Message))
		}
	}

	s.teardown(ctx, ReasonAssistantEnded)
}

func (s *Session) relayAssistantAudio(ctx context.Context, delta openai.AudioDeltaEvent) {
	payload := s.codec.Encode(delta.Audio)
	if err := s.caller.WriteMedia(s.streamSid, payload); err != nil {
		// Caller leg is gone; drop the frame and fold the call.
		s.logger.InfoWithError(ctx, "Caller leg rejected assistant audio", err)
		s.teardown(ctx, ReasonCallerHangup)
	}
}

func (s *Session) appendTurn(ctx context.Context, role, content string) {
	s.mu.Lock()
	s.turnCount++
	conversation := s.conversation
	hasConversation := s.hasConversation
	s.mu.Unlock()

	if !hasConversation {
		return
	}
	if _, err := s.store.CreateMessage(ctx, conversation.ID, role, content); err != nil {
		s.logger.Error(ctx, "Failed to persist transcript turn", err)
	}
}

// handleToolCall runs one tool invocation and resumes the conversation. The
// dispatcher never fails: unknown names and engine errors come back as
// error-status payloads the model can relay in speech.
func (s *Session) handleToolCall(ctx context.Context, ai RealtimeLeg, call openai.FunctionCallEvent) {
	s.logger.Info(ctx, fmt.Sprintf("Dispatching tool call: %s", call.Name))

	s.mu.Lock()
	var conversationID uuid.UUID
	if s.hasConversation {
		conversationID = s.conversation.ID
	}
	s.mu.Unlock()

	output := s.dispatcher.Dispatch(ctx, s.profile.AgentID, conversationID, call.Name, call.Arguments)

	if err := ai.SubmitToolOutput(call.CallID, output); err != nil {
		s.logger.Error(ctx, "Failed to submit tool output", err)
		s.teardown(ctx, ReasonAssistantEnded)
		return
	}
	if err := ai.CreateResponse(); err != nil {
		s.logger.Error(ctx, "Failed to resume conversation after tool call", err)
		s.teardown(ctx, ReasonAssistantEnded)
	}
}

// teardown closes both legs, completes the conversation record, and publishes
// the completion event. First caller wins; later calls are no-ops.
func (s *Session) teardown(ctx context.Context, reason string) {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	ai := s.ai
	conversation := s.conversation
	hasConversation := s.hasConversation
	turnCount := s.turnCount
	startedAt := s.startedAt
	s.mu.Unlock()

	s.logger.Info(ctx, fmt.Sprintf("Closing call session: %s", reason))

	if ai != nil {
		if err := ai.Close(); err != nil {
			s.logger.InfoWithError(ctx, "Error closing assistant leg", err)
		}
	}
	if err := s.caller.Close(); err != nil {
		s.logger.InfoWithError(ctx, "Error closing caller leg", err)
	}

	if hasConversation {
		// Survives the request context so a hangup cannot cancel the write.
		persistCtx := context.WithoutCancel(ctx)
		if err := s.store.CompleteConversation(persistCtx, conversation.ID, time.Now()); err != nil {
			s.logger.Error(ctx, "Failed to complete conversation record", err)
		}
		if s.publisher != nil {
			duration := time.Since(startedAt)
			go s.publisher.PublishCallCompleted(persistCtx, conversation, duration, turnCount, reason)
		}
	}

	s.setState(StateClosed)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateClosing || s.state == StateClosed
}
