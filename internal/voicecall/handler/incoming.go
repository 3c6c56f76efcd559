package handler

import (
	"fmt"
	"net/http"

	"frontdesk-server/internal/apierrors"
	"frontdesk-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/twiml"
)

// HandleIncomingCall handles POST /api/phone/incoming. It answers the
// telephony webhook with TwiML connecting the call's media stream to this
// server, carrying the caller and called numbers as stream parameters.
func (h *Handler) HandleIncomingCall(c *gin.Context) {
	ctx := c.Request.Context()

	from := c.PostForm("From")
	to := c.PostForm("To")
	callSid := c.PostForm("CallSid")

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "call_sid", Value: callSid},
		observability.Field{Key: "called_number", Value: to},
	)
	h.logger.Info(ctx, "Incoming call webhook")

	stream := twiml.VoiceStream{
		Url: fmt.Sprintf("wss://%s/api/phone/media-stream", h.publicHost),
		InnerElements: []twiml.Element{
			twiml.VoiceParameter{Name: "from", Value: from},
			twiml.VoiceParameter{Name: "to", Value: to},
		},
	}
	connect := twiml.VoiceConnect{
		InnerElements: []twiml.Element{stream},
	}

	payload, err := twiml.Voice([]twiml.Element{connect})
	if err != nil {
		h.logger.Error(ctx, "Failed to render TwiML response", err)
		apierrors.RespondWithError(c, err)
		return
	}

	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, payload)
}
