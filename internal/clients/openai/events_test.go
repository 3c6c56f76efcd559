package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServerEvent_AudioDelta(t *testing.T) {
	// "aGVsbG8=" is base64 for "hello".
	payload := `{"type":"response.audio.delta","item_id":"item_1","delta":"aGVsbG8="}`

	event, err := parseServerEvent([]byte(payload))

	require.NoError(t, err)
	delta, ok := event.(AudioDeltaEvent)
	require.True(t, ok)
	assert.Equal(t, "item_1", delta.ItemID)
	assert.Equal(t, []byte("hello"), delta.Audio)
}

func TestParseServerEvent_OutputAudioDeltaAlias(t *testing.T) {
	payload := `{"type":"response.output_audio.delta","item_id":"item_2","delta":"aGVsbG8="}`

	event, err := parseServerEvent([]byte(payload))

	require.NoError(t, err)
	_, ok := event.(AudioDeltaEvent)
	assert.True(t, ok)
}

func TestParseServerEvent_AudioDeltaBadBase64(t *testing.T) {
	payload := `{"type":"response.audio.delta","delta":"not base64!!"}`

	event, err := parseServerEvent([]byte(payload))

	assert.Error(t, err)
	assert.Nil(t, event)
}

func TestParseServerEvent_TranscriptCompleted(t *testing.T) {
	payload := `{"type":"conversation.item.input_audio_transcription.completed","item_id":"item_3","transcript":"I need an appointment"}`

	event, err := parseServerEvent([]byte(payload))

	require.NoError(t, err)
	transcript, ok := event.(TranscriptCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, "I need an appointment", transcript.Transcript)
}

func TestParseServerEvent_ResponseDoneExtractsFirstTranscript(t *testing.T) {
	payload := `{
		"type": "response.done",
		"response": {
			"output": [
				{"type": "message", "content": [
					{"type": "text"},
					{"type": "audio", "transcript": "We have openings tomorrow at nine."}
				]}
			]
		}
	}`

	event, err := parseServerEvent([]byte(payload))

	require.NoError(t, err)
	done, ok := event.(ResponseDoneEvent)
	require.True(t, ok)
	assert.Equal(t, "We have openings tomorrow at nine.", done.Transcript)
}

func TestParseServerEvent_ResponseDoneWithoutSpeech(t *testing.T) {
	payload := `{"type":"response.done","response":{"output":[]}}`

	event, err := parseServerEvent([]byte(payload))

	require.NoError(t, err)
	done, ok := event.(ResponseDoneEvent)
	require.True(t, ok)
	assert.Empty(t, done.Transcript)
}

func TestParseServerEvent_FunctionCall(t *testing.T) {
	payload := `{"type":"response.function_call_arguments.done","name":"check_availability","call_id":"call_9","arguments":"{\"date\":\"tomorrow\"}"}`

	event, err := parseServerEvent([]byte(payload))

	require.NoError(t, err)
	call, ok := event.(FunctionCallEvent)
	require.True(t, ok)
	assert.Equal(t, "check_availability", call.Name)
	assert.Equal(t, "call_9", call.CallID)
	assert.JSONEq(t, `{"date":"tomorrow"}`, call.Arguments)
}

func TestParseServerEvent_Error(t *testing.T) {
	payload := `{"type":"error","error":{"type":"invalid_request_error","code":"bad_session","message":"session expired"}}`

	event, err := parseServerEvent([]byte(payload))

	require.NoError(t, err)
	errEvent, ok := event.(ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "bad_session", errEvent.Code)
	assert.Equal(t, "session expired", errEvent.Message)
}

func TestParseServerEvent_IgnoredTypes(t *testing.T) {
	for _, payload := range []string{
		`{"type":"session.created","session":{}}`,
		`{"type":"response.audio_transcript.delta","delta":"We"}`,
		`{"type":"rate_limits.updated"}`,
	} {
		event, err := parseServerEvent([]byte(payload))
		assert.NoError(t, err)
		assert.Nil(t, event)
	}
}

func TestParseServerEvent_Malformed(t *testing.T) {
	_, err := parseServerEvent([]byte(`{"type": `))
	assert.Error(t, err)

	_, err = parseServerEvent([]byte(`{"delta":"aGVsbG8="}`))
	assert.Error(t, err)
}
