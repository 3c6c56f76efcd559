package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"frontdesk-server/internal/agents"
	"frontdesk-server/internal/clients/openai"
	"frontdesk-server/internal/observability"
	"frontdesk-server/internal/store"
	"frontdesk-server/internal/voice/audio"
	"frontdesk-server/internal/voicecall/twilio"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeCaller scripts the caller leg. ReadEvent drains pushed events and
// reports a normal close once Close is called.
type fakeCaller struct {
	mu        sync.Mutex
	events    chan twilio.StreamEvent
	done      chan struct{}
	closeOnce sync.Once
	written   []string
	writeErr  error
	closed    bool
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		events: make(chan twilio.StreamEvent, 32),
		done:   make(chan struct{}),
	}
}

func (f *fakeCaller) push(event twilio.StreamEvent) {
	f.events <- event
}

func (f *fakeCaller) ReadEvent() (twilio.StreamEvent, error) {
	select {
	case event := <-f.events:
		return event, nil
	case <-f.done:
		return twilio.StreamEvent{}, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (f *fakeCaller) WriteMedia(streamSid, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, payload)
	return nil
}

func (f *fakeCaller) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.done)
	})
	return nil
}

func (f *fakeCaller) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeCaller) mediaFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

// fakeRealtime records everything the bridge sends and lets tests emit
// server events.
type fakeRealtime struct {
	mu           sync.Mutex
	events       chan openai.ServerEvent
	closeOnce    sync.Once
	configs      []openai.SessionConfig
	audio        [][]byte
	userMessages []string
	toolOutputs  map[string]string
	responses    int
	closed       bool
	updateErr    error
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{
		events:      make(chan openai.ServerEvent, 32),
		toolOutputs: make(map[string]string),
	}
}

func (f *fakeRealtime) emit(event openai.ServerEvent) {
	f.events <- event
}

func (f *fakeRealtime) UpdateSession(cfg openai.SessionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.configs = append(f.configs, cfg)
	return nil
}

func (f *fakeRealtime) AppendAudio(audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, audio)
	return nil
}

func (f *fakeRealtime) CreateUserMessage(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userMessages = append(f.userMessages, text)
	return nil
}

func (f *fakeRealtime) SubmitToolOutput(callID, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolOutputs[callID] = output
	return nil
}

func (f *fakeRealtime) CreateResponse() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses++
	return nil
}

func (f *fakeRealtime) Events() <-chan openai.ServerEvent {
	return f.events
}

func (f *fakeRealtime) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.events)
	})
	return nil
}

func (f *fakeRealtime) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeRealtime) sentConfigs() []openai.SessionConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]openai.SessionConfig(nil), f.configs...)
}

func (f *fakeRealtime) audioChunks() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.audio...)
}

func (f *fakeRealtime) primedMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.userMessages...)
}

func (f *fakeRealtime) toolOutput(callID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	output, ok := f.toolOutputs[callID]
	return output, ok
}

func (f *fakeRealtime) responseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responses
}

type fakeDialer struct {
	mu      sync.Mutex
	session RealtimeLeg
	err     error
	dials   int
}

func (d *fakeDialer) Dial(ctx context.Context) (RealtimeLeg, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// MockResolver is a mock implementation of AgentResolver
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) ProfileForNumber(ctx context.Context, calledNumber string) (agents.Profile, error) {
	args := m.Called(ctx, calledNumber)
	return args.Get(0).(agents.Profile), args.Error(1)
}

// MockDispatcher is a mock implementation of ToolDispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, agentID, conversationID uuid.UUID, name, arguments string) string {
	args := m.Called(ctx, agentID, conversationID, name, arguments)
	return args.String(0)
}

// fakeConversationStore records writes from both session goroutines.
type fakeConversationStore struct {
	mu            sync.Mutex
	conversation  store.Conversation
	createErr     error
	createdParams []store.CreateConversationParams
	messages      []store.Message
	completedIDs  []uuid.UUID
}

func (f *fakeConversationStore) CreateConversation(ctx context.Context, params store.CreateConversationParams) (store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return store.Conversation{}, f.createErr
	}
	f.createdParams = append(f.createdParams, params)
	return f.conversation, nil
}

func (f *fakeConversationStore) CreateMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	message := store.Message{ID: uuid.New(), ConversationID: conversationID, Role: role, Content: content}
	f.messages = append(f.messages, message)
	return message, nil
}

func (f *fakeConversationStore) CompleteConversation(ctx context.Context, conversationID uuid.UUID, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedIDs = append(f.completedIDs, conversationID)
	return nil
}

func (f *fakeConversationStore) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createdParams)
}

func (f *fakeConversationStore) allMessages() []store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Message(nil), f.messages...)
}

func (f *fakeConversationStore) completedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completedIDs)
}

type fakePublisher struct {
	mu         sync.Mutex
	started    int
	completed  int
	lastReason string
}

func (f *fakePublisher) PublishCallStarted(ctx context.Context, conversation store.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakePublisher) PublishCallCompleted(ctx context.Context, conversation store.Conversation, duration time.Duration, turnCount int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed++
	f.lastReason = reason
}

func (f *fakePublisher) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.completed
}

func (f *fakePublisher) reason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReason
}

type sessionFixture struct {
	caller     *fakeCaller
	ai         *fakeRealtime
	dialer     *fakeDialer
	resolver   *MockResolver
	dispatcher *MockDispatcher
	store      *fakeConversationStore
	publisher  *fakePublisher
	profile    agents.Profile
	session    *Session
}

func newSessionFixture(t *testing.T, greeting string) *sessionFixture {
	t.Helper()

	caller := newFakeCaller()
	ai := newFakeRealtime()
	dialer := &fakeDialer{session: ai}
	resolver := new(MockResolver)
	dispatcher := new(MockDispatcher)
	conversationStore := &fakeConversationStore{
		conversation: store.Conversation{ID: uuid.New(), Status: store.ConversationStatusInProgress},
	}
	publisher := &fakePublisher{}

	codec, err := audio.New(audio.FormatG711Ulaw)
	require.NoError(t, err)

	profile := agents.Profile{
		AgentID:      uuid.New(),
		AgencyName:   "Lakeside Dental",
		Voice:        "alloy",
		Greeting:     greeting,
		Instructions: "You answer the phone for Lakeside Dental.",
		Tools: []openai.ToolDefinition{
			{Type: "function", Name: "check_availability"},
		},
	}

	session := NewSession(Config{
		Caller:             caller,
		Dialer:             dialer,
		Resolver:           resolver,
		Dispatcher:         dispatcher,
		Store:              conversationStore,
		Publisher:          publisher,
		Codec:              codec,
		TranscriptionModel: "whisper-1",
		Logger:             observability.NewLogger(),
	})

	return &sessionFixture{
		caller:     caller,
		ai:         ai,
		dialer:     dialer,
		resolver:   resolver,
		dispatcher: dispatcher,
		store:      conversationStore,
		publisher:  publisher,
		profile:    profile,
		session:    session,
	}
}

func (f *sessionFixture) expectResolve() {
	f.resolver.On("ProfileForNumber", mock.Anything, "+15550002222").Return(f.profile, nil)
}

func (f *sessionFixture) runInBackground(ctx context.Context) chan struct{} {
	done := make(chan struct{})
	go func() {
		f.session.Run(ctx)
		close(done)
	}()
	return done
}

func waitForRun(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish in time")
	}
}

func startEvent() twilio.StreamEvent {
	return twilio.StreamEvent{
		Event:     twilio.EventStart,
		StreamSid: "MZ1234",
		Start: &twilio.StartPayload{
			StreamSid:  "MZ1234",
			CallSid:    "CA5678",
			AccountSid: "AC0001",
			CustomParameters: map[string]string{
				"from": "+15550001111",
				"to":   "+15550002222",
			},
		},
	}
}

func stopEvent() twilio.StreamEvent {
	return twilio.StreamEvent{
		Event:     twilio.EventStop,
		StreamSid: "MZ1234",
		Stop:      &twilio.StopPayload{CallSid: "CA5678"},
	}
}

func mediaEvent(payload string) twilio.StreamEvent {
	return twilio.StreamEvent{
		Event:     twilio.EventMedia,
		StreamSid: "MZ1234",
		Media:     &twilio.MediaPayload{Payload: payload},
	}
}

func TestRun_GreetingCallLifecycle(t *testing.T) {
	fixture := newSessionFixture(t, "Thank you for calling Lakeside Dental!")
	fixture.expectResolve()

	fixture.caller.push(startEvent())
	fixture.caller.push(stopEvent())

	fixture.session.Run(context.Background())

	assert.Equal(t, StateClosed, fixture.session.State())
	assert.True(t, fixture.ai.isClosed())
	assert.True(t, fixture.caller.isClosed())

	configs := fixture.ai.sentConfigs()
	require.Len(t, configs, 1)
	assert.Equal(t, "alloy", configs[0].Voice)
	assert.Equal(t, fixture.profile.Instructions, configs[0].Instructions)
	assert.Len(t, configs[0].Tools, 1)
	assert.Equal(t, audio.FormatG711Ulaw, configs[0].InputAudioFormat)
	assert.Equal(t, configs[0].InputAudioFormat, configs[0].OutputAudioFormat)
	assert.Equal(t, "whisper-1", configs[0].TranscriptionModel)

	primed := fixture.ai.primedMessages()
	require.Len(t, primed, 1)
	assert.Contains(t, primed[0], "Thank you for calling Lakeside Dental!")
	assert.Equal(t, 1, fixture.ai.responseCount())

	require.Equal(t, 1, fixture.store.createdCount())
	assert.Equal(t, 1, fixture.store.completedCount())

	assert.Eventually(t, func() bool {
		started, completed := fixture.publisher.counts()
		return started == 1 && completed == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, ReasonCallerHangup, fixture.publisher.reason())
}

func TestRun_NoGreetingWaitsForCallerSpeech(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()

	fixture.caller.push(startEvent())
	fixture.caller.push(stopEvent())

	fixture.session.Run(context.Background())

	assert.Empty(t, fixture.ai.primedMessages())
	assert.Zero(t, fixture.ai.responseCount())
	assert.Equal(t, StateClosed, fixture.session.State())
}

func TestRun_StartCarriesRoutingParameters(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()

	fixture.caller.push(startEvent())
	fixture.caller.push(stopEvent())

	fixture.session.Run(context.Background())

	require.Equal(t, 1, fixture.store.createdCount())
	params := fixture.store.createdParams[0]
	assert.Equal(t, fixture.profile.AgentID, params.AgentID)
	assert.Equal(t, "CA5678", params.CallSid)
	assert.Equal(t, "MZ1234", params.StreamSid)
	assert.Equal(t, "+15550001111", params.CallerNumber)
	assert.Equal(t, "+15550002222", params.CalledNumber)
}

func TestRun_AgentNotFoundClosesWithoutDialing(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.resolver.On("ProfileForNumber", mock.Anything, "+15550002222").
		Return(agents.Profile{}, agents.ErrAgentNotFound)

	fixture.caller.push(startEvent())

	fixture.session.Run(context.Background())

	assert.Equal(t, StateClosed, fixture.session.State())
	assert.True(t, fixture.caller.isClosed())
	assert.Zero(t, fixture.dialer.dialCount())
	assert.Zero(t, fixture.store.createdCount())
}

func TestRun_DialFailureStillReachesClosed(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()
	fixture.dialer.err = errors.New("dial tcp: connection refused")

	fixture.caller.push(startEvent())

	fixture.session.Run(context.Background())

	assert.Equal(t, StateClosed, fixture.session.State())
	assert.True(t, fixture.caller.isClosed())
	// The conversation record opened before dialing is still completed.
	assert.Equal(t, 1, fixture.store.completedCount())
}

func TestRun_StopBeforeStart(t *testing.T) {
	fixture := newSessionFixture(t, "")

	fixture.caller.push(stopEvent())

	fixture.session.Run(context.Background())

	assert.Equal(t, StateClosed, fixture.session.State())
	assert.True(t, fixture.caller.isClosed())
	assert.Zero(t, fixture.dialer.dialCount())
}

func TestRun_SessionConfigureFailureEndsCall(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()
	fixture.ai.updateErr = errors.New("write: broken pipe")

	fixture.caller.push(startEvent())

	fixture.session.Run(context.Background())

	assert.Equal(t, StateClosed, fixture.session.State())
	assert.True(t, fixture.ai.isClosed())
	assert.Eventually(t, func() bool {
		return fixture.publisher.reason() == ReasonSetupFailed
	}, time.Second, 10*time.Millisecond)
}

func TestRun_DuplicateStartIgnored(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()

	fixture.caller.push(startEvent())
	fixture.caller.push(startEvent())
	fixture.caller.push(stopEvent())

	fixture.session.Run(context.Background())

	assert.Equal(t, 1, fixture.dialer.dialCount())
	assert.Equal(t, 1, fixture.store.createdCount())
}

func TestRun_ForwardsCallerAudio(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()

	raw := []byte{0x00, 0x7f, 0xff, 0x80}
	fixture.caller.push(startEvent())
	fixture.caller.push(mediaEvent(base64.StdEncoding.EncodeToString(raw)))
	fixture.caller.push(stopEvent())

	fixture.session.Run(context.Background())

	chunks := fixture.ai.audioChunks()
	require.Len(t, chunks, 1)
	assert.Equal(t, raw, chunks[0])
}

func TestRun_DecodeFailureBudgetEndsCall(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()

	fixture.caller.push(startEvent())
	for i := 0; i < maxDecodeFailures; i++ {
		fixture.caller.push(mediaEvent("not base64!!"))
	}

	fixture.session.Run(context.Background())

	assert.Equal(t, StateClosed, fixture.session.State())
	assert.True(t, fixture.ai.isClosed())
	assert.Empty(t, fixture.ai.audioChunks())
	assert.Eventually(t, func() bool {
		return fixture.publisher.reason() == ReasonDecodeFailures
	}, time.Second, 10*time.Millisecond)
}

func TestRun_IsolatedDecodeFailuresAreTolerated(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()

	raw := []byte{0x01, 0x02}
	fixture.caller.push(startEvent())
	for i := 0; i < maxDecodeFailures-1; i++ {
		fixture.caller.push(mediaEvent("not base64!!"))
	}
	// A good frame resets the consecutive-failure budget.
	fixture.caller.push(mediaEvent(base64.StdEncoding.EncodeToString(raw)))
	fixture.caller.push(mediaEvent("not base64!!"))
	fixture.caller.push(stopEvent())

	fixture.session.Run(context.Background())

	require.Len(t, fixture.ai.audioChunks(), 1)
	assert.Eventually(t, func() bool {
		return fixture.publisher.reason() == ReasonCallerHangup
	}, time.Second, 10*time.Millisecond)
}

func TestRun_AssistantAudioRelayedToCaller(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()
	ctx := context.Background()

	done := fixture.runInBackground(ctx)
	fixture.caller.push(startEvent())

	require.Eventually(t, func() bool {
		return len(fixture.ai.sentConfigs()) == 1
	}, time.Second, 5*time.Millisecond)

	speech := []byte{0x11, 0x22, 0x33}
	fixture.ai.emit(openai.AudioDeltaEvent{ItemID: "item_1", Audio: speech})

	require.Eventually(t, func() bool {
		return len(fixture.caller.mediaFrames()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, base64.StdEncoding.EncodeToString(speech), fixture.caller.mediaFrames()[0])

	fixture.caller.push(stopEvent())
	waitForRun(t, done)
	assert.Equal(t, StateClosed, fixture.session.State())
}

func TestRun_CallerGoneDuringAudioDelta(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()
	fixture.caller.writeErr = errors.New("write: broken pipe")
	ctx := context.Background()

	done := fixture.runInBackground(ctx)
	fixture.caller.push(startEvent())

	require.Eventually(t, func() bool {
		return len(fixture.ai.sentConfigs()) == 1
	}, time.Second, 5*time.Millisecond)

	fixture.ai.emit(openai.AudioDeltaEvent{ItemID: "item_1", Audio: []byte{0x01}})

	waitForRun(t, done)
	assert.Equal(t, StateClosed, fixture.session.State())
	assert.True(t, fixture.ai.isClosed())
	assert.Empty(t, fixture.caller.mediaFrames())
}

func TestRun_MediaAfterTeardownIsDiscarded(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()
	fixture.caller.writeErr = errors.New("write: broken pipe")
	ctx := context.Background()

	done := fixture.runInBackground(ctx)
	fixture.caller.push(startEvent())

	require.Eventually(t, func() bool {
		return len(fixture.ai.sentConfigs()) == 1
	}, time.Second, 5*time.Millisecond)

	// The rejected delta tears the session down; frames still queued on the
	// caller leg must be dropped, not forwarded.
	fixture.ai.emit(openai.AudioDeltaEvent{ItemID: "item_1", Audio: []byte{0x01}})
	require.Eventually(t, func() bool {
		return fixture.session.State() == StateClosed
	}, time.Second, 5*time.Millisecond)

	fixture.caller.push(mediaEvent(base64.StdEncoding.EncodeToString([]byte{0x02})))
	fixture.caller.push(mediaEvent(base64.StdEncoding.EncodeToString([]byte{0x03})))

	waitForRun(t, done)
	assert.Empty(t, fixture.ai.audioChunks())
	assert.Equal(t, StateClosed, fixture.session.State())
}

func TestRun_ToolCallRoundTrip(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()
	result := `{"status":"success","slots":[]}`
	fixture.dispatcher.On("Dispatch", mock.Anything, fixture.profile.AgentID, fixture.store.conversation.ID,
		"check_availability", `{"date":"tomorrow"}`).Return(result)
	ctx := context.Background()

	done := fixture.runInBackground(ctx)
	fixture.caller.push(startEvent())

	require.Eventually(t, func() bool {
		return len(fixture.ai.sentConfigs()) == 1
	}, time.Second, 5*time.Millisecond)

	fixture.ai.emit(openai.FunctionCallEvent{
		Name:      "check_availability",
		CallID:    "call_1",
		Arguments: `{"date":"tomorrow"}`,
	})

	require.Eventually(t, func() bool {
		output, ok := fixture.ai.toolOutput("call_1")
		return ok && output == result && fixture.ai.responseCount() == 1
	}, time.Second, 5*time.Millisecond)

	fixture.caller.push(stopEvent())
	waitForRun(t, done)
	fixture.dispatcher.AssertExpectations(t)
}

func TestRun_UnknownFunctionStillResumesConversation(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()
	errorResult := `{"status":"error","message":"unknown function: cancel_appointment"}`
	fixture.dispatcher.On("Dispatch", mock.Anything, mock.Anything, mock.Anything,
		"cancel_appointment", "{}").Return(errorResult)
	ctx := context.Background()

	done := fixture.runInBackground(ctx)
	fixture.caller.push(startEvent())

	require.Eventually(t, func() bool {
		return len(fixture.ai.sentConfigs()) == 1
	}, time.Second, 5*time.Millisecond)

	fixture.ai.emit(openai.FunctionCallEvent{Name: "cancel_appointment", CallID: "call_2", Arguments: "{}"})

	// The error result still goes back and the conversation is re-triggered.
	require.Eventually(t, func() bool {
		output, ok := fixture.ai.toolOutput("call_2")
		return ok && output == errorResult && fixture.ai.responseCount() == 1
	}, time.Second, 5*time.Millisecond)

	fixture.caller.push(stopEvent())
	waitForRun(t, done)
}

func TestRun_TranscriptTurnsPersisted(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()
	ctx := context.Background()

	done := fixture.runInBackground(ctx)
	fixture.caller.push(startEvent())

	require.Eventually(t, func() bool {
		return len(fixture.ai.sentConfigs()) == 1
	}, time.Second, 5*time.Millisecond)

	fixture.ai.emit(openai.TranscriptCompletedEvent{ItemID: "item_1", Transcript: "I need a cleaning next week."})
	fixture.ai.emit(openai.ResponseDoneEvent{Transcript: "Of course, let me check our openings."})

	require.Eventually(t, func() bool {
		return len(fixture.store.allMessages()) == 2
	}, time.Second, 5*time.Millisecond)

	fixture.caller.push(stopEvent())
	waitForRun(t, done)

	messages := fixture.store.allMessages()
	require.Len(t, messages, 2)
	assert.Equal(t, store.MessageRoleUser, messages[0].Role)
	assert.Equal(t, "I need a cleaning next week.", messages[0].Content)
	assert.Equal(t, store.MessageRoleAssistant, messages[1].Role)
	assert.Equal(t, 2, fixture.session.TurnCount())
}

func TestRun_EmptyTranscriptsAreSkipped(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()
	ctx := context.Background()

	done := fixture.runInBackground(ctx)
	fixture.caller.push(startEvent())

	require.Eventually(t, func() bool {
		return len(fixture.ai.sentConfigs()) == 1
	}, time.Second, 5*time.Millisecond)

	fixture.ai.emit(openai.TranscriptCompletedEvent{ItemID: "item_1"})
	fixture.ai.emit(openai.ResponseDoneEvent{})
	fixture.ai.emit(openai.ResponseDoneEvent{Transcript: "Hello there."})

	require.Eventually(t, func() bool {
		return len(fixture.store.allMessages()) == 1
	}, time.Second, 5*time.Millisecond)

	fixture.caller.push(stopEvent())
	waitForRun(t, done)
	assert.Len(t, fixture.store.allMessages(), 1)
}

func TestRun_ConversationRecordFailureDoesNotBlockCall(t *testing.T) {
	fixture := newSessionFixture(t, "")
	fixture.expectResolve()
	fixture.store.createErr = errors.New("connection refused")

	fixture.caller.push(startEvent())
	fixture.caller.push(stopEvent())

	fixture.session.Run(context.Background())

	assert.Equal(t, StateClosed, fixture.session.State())
	// The AI leg was still configured and the call ran.
	assert.Len(t, fixture.ai.sentConfigs(), 1)
	assert.Zero(t, fixture.store.completedCount())
	_, hasConversation := fixture.session.Conversation()
	assert.False(t, hasConversation)
}
