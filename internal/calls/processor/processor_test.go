package processor

import (
	"context"
	"errors"
	"frontdesk-server/internal/observability"
	"frontdesk-server/internal/store"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCallStore struct {
	mock.Mock
}

func (m *MockCallStore) ListRecentConversations(ctx context.Context, limit int) ([]store.Conversation, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Conversation), args.Error(1)
}

func (m *MockCallStore) GetConversation(ctx context.Context, id uuid.UUID) (store.Conversation, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(store.Conversation), args.Error(1)
}

func (m *MockCallStore) GetAllMessagesByConversationID(ctx context.Context, conversationID uuid.UUID) ([]store.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Message), args.Error(1)
}

func (m *MockCallStore) ListUpcomingAppointmentsByAgentID(ctx context.Context, agentID uuid.UUID, after time.Time, limit int) ([]store.Appointment, error) {
	args := m.Called(ctx, agentID, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Appointment), args.Error(1)
}

func newTestProcessor(t *testing.T) (*CallsProcessor, *MockCallStore) {
	t.Helper()
	mockStore := new(MockCallStore)
	p := New(mockStore, observability.NewLogger())
	return &p, mockStore
}

func TestListRecentCalls(t *testing.T) {
	conversationID := uuid.New()

	t.Run("returns recent calls with default limit", func(t *testing.T) {
		p, mockStore := newTestProcessor(t)
		expected := []store.Conversation{{ID: conversationID, CallerNumber: "+15550001111"}}
		mockStore.On("ListRecentConversations", mock.Anything, defaultListLimit).Return(expected, nil)

		calls, err := p.ListRecentCalls(context.Background(), 0)

		require.NoError(t, err)
		assert.Equal(t, expected, calls)
		mockStore.AssertExpectations(t)
	})

	t.Run("clamps oversized limit", func(t *testing.T) {
		p, mockStore := newTestProcessor(t)
		mockStore.On("ListRecentConversations", mock.Anything, maxListLimit).Return([]store.Conversation{}, nil)

		_, err := p.ListRecentCalls(context.Background(), 10000)

		require.NoError(t, err)
		mockStore.AssertExpectations(t)
	})

	t.Run("returns empty slice when there are no calls", func(t *testing.T) {
		p, mockStore := newTestProcessor(t)
		mockStore.On("ListRecentConversations", mock.Anything, 10).Return(nil, nil)

		calls, err := p.ListRecentCalls(context.Background(), 10)

		require.NoError(t, err)
		assert.NotNil(t, calls)
		assert.Empty(t, calls)
	})

	t.Run("propagates store errors", func(t *testing.T) {
		p, mockStore := newTestProcessor(t)
		mockStore.On("ListRecentConversations", mock.Anything, defaultListLimit).
			Return(nil, errors.New("connection refused"))

		_, err := p.ListRecentCalls(context.Background(), 0)

		assert.Error(t, err)
	})
}

func TestGetCallWithTranscript(t *testing.T) {
	callID := uuid.New()

	t.Run("returns call and transcript", func(t *testing.T) {
		p, mockStore := newTestProcessor(t)
		conversation := store.Conversation{ID: callID, CallerNumber: "+15550001111"}
		messages := []store.Message{
			{ConversationID: callID, Role: store.MessageRoleUser, Content: "I need an appointment"},
			{ConversationID: callID, Role: store.MessageRoleAssistant, Content: "Of course, when works for you?"},
		}
		mockStore.On("GetConversation", mock.Anything, callID).Return(conversation, nil)
		mockStore.On("GetAllMessagesByConversationID", mock.Anything, callID).Return(messages, nil)

		detail, err := p.GetCallWithTranscript(context.Background(), callID)

		require.NoError(t, err)
		assert.Equal(t, conversation, detail.Call)
		assert.Equal(t, messages, detail.Transcript)
		mockStore.AssertExpectations(t)
	})

	t.Run("returns empty transcript for a silent call", func(t *testing.T) {
		p, mockStore := newTestProcessor(t)
		mockStore.On("GetConversation", mock.Anything, callID).Return(store.Conversation{ID: callID}, nil)
		mockStore.On("GetAllMessagesByConversationID", mock.Anything, callID).Return(nil, nil)

		detail, err := p.GetCallWithTranscript(context.Background(), callID)

		require.NoError(t, err)
		assert.NotNil(t, detail.Transcript)
		assert.Empty(t, detail.Transcript)
	})

	t.Run("returns ErrCallNotFound for unknown call", func(t *testing.T) {
		p, mockStore := newTestProcessor(t)
		mockStore.On("GetConversation", mock.Anything, callID).Return(store.Conversation{}, store.ErrNotFound)

		_, err := p.GetCallWithTranscript(context.Background(), callID)

		assert.ErrorIs(t, err, ErrCallNotFound)
		mockStore.AssertNotCalled(t, "GetAllMessagesByConversationID", mock.Anything, mock.Anything)
	})

	t.Run("propagates transcript lookup errors", func(t *testing.T) {
		p, mockStore := newTestProcessor(t)
		mockStore.On("GetConversation", mock.Anything, callID).Return(store.Conversation{ID: callID}, nil)
		mockStore.On("GetAllMessagesByConversationID", mock.Anything, callID).
			Return(nil, errors.New("connection refused"))

		_, err := p.GetCallWithTranscript(context.Background(), callID)

		assert.Error(t, err)
	})
}

func TestListUpcomingAppointments(t *testing.T) {
	agentID := uuid.New()

	t.Run("queries from the current time", func(t *testing.T) {
		p, mockStore := newTestProcessor(t)
		expected := []store.Appointment{{ID: uuid.New(), AgentID: agentID, Title: "Phone appointment"}}
		before := time.Now().UTC()
		mockStore.On("ListUpcomingAppointmentsByAgentID", mock.Anything, agentID,
			mock.MatchedBy(func(after time.Time) bool {
				return !after.Before(before) && time.Since(after) < time.Minute
			}), defaultListLimit).Return(expected, nil)

		appointments, err := p.ListUpcomingAppointments(context.Background(), agentID, 0)

		require.NoError(t, err)
		assert.Equal(t, expected, appointments)
		mockStore.AssertExpectations(t)
	})

	t.Run("returns empty slice when nothing is booked", func(t *testing.T) {
		p, mockStore := newTestProcessor(t)
		mockStore.On("ListUpcomingAppointmentsByAgentID", mock.Anything, agentID, mock.Anything, 5).
			Return(nil, nil)

		appointments, err := p.ListUpcomingAppointments(context.Background(), agentID, 5)

		require.NoError(t, err)
		assert.NotNil(t, appointments)
		assert.Empty(t, appointments)
	})

	t.Run("propagates store errors", func(t *testing.T) {
		p, mockStore := newTestProcessor(t)
		mockStore.On("ListUpcomingAppointmentsByAgentID", mock.Anything, agentID, mock.Anything, defaultListLimit).
			Return(nil, errors.New("connection refused"))

		_, err := p.ListUpcomingAppointments(context.Background(), agentID, 0)

		assert.Error(t, err)
	})
}
