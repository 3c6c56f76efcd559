package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ServerEvent is the tagged union of realtime service events the session
// surfaces to its consumer. Event types outside this set are dropped at parse
// time.
type ServerEvent interface {
	isServerEvent()
}

// AudioDeltaEvent carries one chunk of synthesized speech, already
// base64-decoded into the session's negotiated output format.
type AudioDeltaEvent struct {
	ItemID string
	Audio  []byte
}

// TranscriptCompletedEvent carries the finished transcription of one span of
// caller speech.
type TranscriptCompletedEvent struct {
	ItemID     string
	Transcript string
}

// ResponseDoneEvent marks the end of an assistant turn. Transcript is the
// spoken text of the first content item that carried one, empty when the
// response produced no speech.
type ResponseDoneEvent struct {
	Transcript string
}

// FunctionCallEvent is emitted when the model finishes streaming the
// arguments of a tool invocation.
type FunctionCallEvent struct {
	Name      string
	CallID    string
	Arguments string
}

// ErrorEvent carries a server-reported error.
type ErrorEvent struct {
	Code    string
	Message string
}

func (AudioDeltaEvent) isServerEvent()          {}
func (TranscriptCompletedEvent) isServerEvent() {}
func (ResponseDoneEvent) isServerEvent()        {}
func (FunctionCallEvent) isServerEvent()        {}
func (ErrorEvent) isServerEvent()               {}

type wireContent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

type wireOutputItem struct {
	Type    string        `json:"type"`
	Content []wireContent `json:"content"`
}

type wireResponse struct {
	Output []wireOutputItem `json:"output"`
}

type wireError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wireServerEvent struct {
	Type       string        `json:"type"`
	ItemID     string        `json:"item_id"`
	Delta      string        `json:"delta"`
	Transcript string        `json:"transcript"`
	Name       string        `json:"name"`
	CallID     string        `json:"call_id"`
	Arguments  string        `json:"arguments"`
	Response   *wireResponse `json:"response"`
	Error      *wireError    `json:"error"`
}

// parseServerEvent decodes one realtime frame. It returns (nil, nil) for
// event types the bridge does not consume.
func parseServerEvent(payload []byte) (ServerEvent, error) {
	var event wireServerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse realtime event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("realtime event missing type")
	}

	switch event.Type {
	case "response.audio.delta", "response.output_audio.delta":
		audio, err := base64.StdEncoding.DecodeString(event.Delta)
		if err != nil {
			return nil, fmt.Errorf("failed to decode audio delta: %w", err)
		}
		return AudioDeltaEvent{ItemID: event.ItemID, Audio: audio}, nil

	case "conversation.item.input_audio_transcription.completed":
		return TranscriptCompletedEvent{ItemID: event.ItemID, Transcript: event.Transcript}, nil

	case "response.done":
		return ResponseDoneEvent{Transcript: responseTranscript(event.Response)}, nil

	case "response.function_call_arguments.done":
		return FunctionCallEvent{Name: event.Name, CallID: event.CallID, Arguments: event.Arguments}, nil

	case "error":
		if event.Error == nil {
			return ErrorEvent{Message: "unspecified realtime error"}, nil
		}
		return ErrorEvent{Code: event.Error.Code, Message: event.Error.Message}, nil
	}

	return nil, nil
}

func responseTranscript(response *wireResponse) string {
	if response == nil {
		return ""
	}
	for _, item := range response.Output {
		for _, content := range item.Content {
			if content.Transcript != "" {
				return content.Transcript
			}
		}
	}
	return ""
}
