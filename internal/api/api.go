package api

import (
	"net/http"

	"frontdesk-server/internal/auth"
	callsHandler "frontdesk-server/internal/calls/handler"
	"frontdesk-server/internal/ratelimit"
	voiceCallHandler "frontdesk-server/internal/voicecall/handler"

	"github.com/gin-gonic/gin"
)

type API struct {
	router           *gin.RouterGroup
	voiceCallHandler voiceCallHandler.Handler
	callsHandler     callsHandler.Handler
	authVerifier     *auth.Verifier
	rateLimiter      *ratelimit.Service
}

func New(
	router *gin.RouterGroup,
	voiceCallHandler voiceCallHandler.Handler,
	callsHandler callsHandler.Handler,
	authVerifier *auth.Verifier,
	rateLimiter *ratelimit.Service,
) API {
	return API{
		router:           router,
		voiceCallHandler: voiceCallHandler,
		callsHandler:     callsHandler,
		authVerifier:     authVerifier,
		rateLimiter:      rateLimiter,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	apiGroup := a.router.Group("/api")
	{
		phoneGroup := apiGroup.Group("/phone")
		phoneGroup.POST("/incoming", a.rateLimiter.Middleware(), a.voiceCallHandler.HandleIncomingCall)
		phoneGroup.GET("/media-stream", a.voiceCallHandler.HandleMediaStream)
	}
	protectedGroup := apiGroup.Group("/protected", a.authVerifier.Middleware())
	{
		protectedGroup.GET("/calls", a.callsHandler.HandleListCalls)
		protectedGroup.GET("/calls/:call_id", a.callsHandler.HandleGetCall)
		protectedGroup.GET("/appointments", a.callsHandler.HandleListAppointments)
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
