package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"frontdesk-server/internal/observability"
	"frontdesk-server/internal/store"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
)

const (
	summaryModel   = openai.ChatModelGPT4oMini
	summaryTimeout = 30 * time.Second
	maxTitleLength = 80
)

const summaryPrompt = `You summarize phone calls answered by an AI receptionist.
Given a call transcript, respond with a JSON object holding two fields:
"title": a short label for the call, at most six words, and
"summary": two or three sentences covering what the caller wanted and the outcome.
Respond with only the JSON object.`

type summaryPayload struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// summarizeCall generates and stores the post-call title and summary.
// Failures are logged and dropped; the transcript itself is already persisted.
func (v *VoiceCallProcessor) summarizeCall(ctx context.Context, conversationID uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()
	ctx = observability.WithFields(ctx, observability.Field{Key: "conversation_id", Value: conversationID.String()})

	messages, err := v.store.GetAllMessagesByConversationID(ctx, conversationID)
	if err != nil {
		v.logger.Error(ctx, "Failed to load transcript for summary", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	completion, err := v.summaryClient.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: summaryModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summaryPrompt),
			openai.UserMessage(renderTranscript(messages)),
		},
	})
	if err != nil {
		v.logger.Error(ctx, "Failed to generate call summary", err)
		return
	}
	if len(completion.Choices) == 0 {
		v.logger.Warn(ctx, "Call summary completion returned no choices")
		return
	}

	title, summary := parseSummaryPayload(completion.Choices[0].Message.Content)
	if summary == "" {
		v.logger.Warn(ctx, "Call summary completion was empty")
		return
	}

	if err := v.store.UpdateConversationSummary(ctx, conversationID, title, summary); err != nil {
		v.logger.Error(ctx, "Failed to store call summary", err)
		return
	}
	v.logger.Info(ctx, "Stored post-call summary")
}

// renderTranscript flattens transcript turns into the prompt body.
func renderTranscript(messages []store.Message) string {
	var b strings.Builder
	for _, message := range messages {
		speaker := "Caller"
		if message.Role == store.MessageRoleAssistant {
			speaker = "Receptionist"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, message.Content)
	}
	return b.String()
}

// parseSummaryPayload extracts title and summary from the model reply. The
// reply should be a JSON object, but models wander: code fences are stripped
// and a non-JSON reply becomes the summary under a generic title.
func parseSummaryPayload(content string) (string, string) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload summaryPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return "Phone call", cleaned
	}

	title := strings.TrimSpace(payload.Title)
	if title == "" {
		title = "Phone call"
	}
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	return title, strings.TrimSpace(payload.Summary)
}
