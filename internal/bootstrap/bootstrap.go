// Package bootstrap wires configuration, clients, processors, and handlers
// into the dependency set the server runs with.
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"frontdesk-server/internal/agents"
	"frontdesk-server/internal/auth"
	"frontdesk-server/internal/config"
	"frontdesk-server/internal/events"
	"frontdesk-server/internal/notify"
	"frontdesk-server/internal/observability"
	"frontdesk-server/internal/ratelimit"
	"frontdesk-server/internal/scheduling"
	"frontdesk-server/internal/store"
	"frontdesk-server/internal/voice/audio"

	callsHandler "frontdesk-server/internal/calls/handler"
	callsProcessor "frontdesk-server/internal/calls/processor"
	kafkaClient "frontdesk-server/internal/clients/kafka"
	"frontdesk-server/internal/clients/mail"
	openaiClient "frontdesk-server/internal/clients/openai"
	redisClient "frontdesk-server/internal/clients/redis"
	voiceCallHandler "frontdesk-server/internal/voicecall/handler"
	voiceCallProcessor "frontdesk-server/internal/voicecall/processor"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store  store.Store
	Logger *observability.Logger

	// Handlers
	VoiceCallHandler voiceCallHandler.Handler
	CallsHandler     callsHandler.Handler

	// Middleware
	AuthVerifier *auth.Verifier
	RateLimiter  *ratelimit.Service

	// Clients (for cleanup)
	KafkaProducer *kafkaClient.Producer
	RedisClient   *redisClient.Client
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Initialize database store
	var err error
	deps.Store, err = store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Business timezone the scheduling window is evaluated in
	location, err := time.LoadLocation(cfg.Scheduling.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load business timezone: %w", err)
	}

	// Initialize Kafka producer for call-lifecycle events (optional)
	if cfg.Kafka.Brokers != "" {
		deps.KafkaProducer = kafkaClient.NewProducer(kafkaClient.ProducerConfig{
			Brokers: strings.Split(cfg.Kafka.Brokers, ","),
			Topic:   cfg.Kafka.Topic,
		}, logger)
	} else {
		logger.Info(ctx, "Kafka brokers not configured, event publishing disabled")
	}
	publisher := events.NewPublisher(deps.KafkaProducer, logger)

	// Initialize Redis client and webhook rate limiter (optional)
	deps.RedisClient, err = redisClient.NewClient(cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	deps.RateLimiter = ratelimit.NewService(deps.RedisClient, logger)

	// Initialize booking notifications (optional)
	var mailer notify.Mailer
	if cfg.Services.ResendAPIKey != "" {
		mailClient, err := mail.NewResendClient(cfg.Services.ResendAPIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create resend client: %w", err)
		}
		mailer = mailClient
	} else {
		logger.Info(ctx, "Resend API key not configured, booking notifications disabled")
	}
	notifier := notify.New(&deps.Store, mailer, cfg.Services.DefaultEmailSender, location, logger)

	// Initialize scheduling engine and the tool dispatcher
	engine := scheduling.NewEngine(&deps.Store, location, logger)
	dispatcher := scheduling.NewDispatcher(engine, publisher, notifier, logger)

	// Initialize agent configurator
	configurator := agents.NewConfigurator(&deps.Store, logger)

	// Initialize realtime client and the media codec
	realtime, err := openaiClient.NewRealtimeClient(cfg.OpenAI.APIKey, cfg.OpenAI.RealtimeURL, cfg.OpenAI.RealtimeModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create realtime client: %w", err)
	}
	codec, err := audio.New(cfg.OpenAI.AudioFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to build audio codec: %w", err)
	}

	// Initialize voice call processor and handler
	voiceCallProc := voiceCallProcessor.NewVoiceCallProcessor(
		configurator,
		dispatcher,
		&deps.Store,
		publisher,
		realtime,
		codec,
		cfg.OpenAI.APIKey,
		logger,
	)
	deps.VoiceCallHandler = voiceCallHandler.New(voiceCallProc, cfg.Server.PublicHost, logger)

	// Initialize read API processor and handler
	callsProc := callsProcessor.New(&deps.Store, logger)
	deps.CallsHandler = callsHandler.New(callsProc, logger)

	// Initialize JWT verifier for the dashboard API
	deps.AuthVerifier = auth.NewVerifier(cfg.Auth.JWTSecret, logger)

	return deps, nil
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	if d.KafkaProducer != nil {
		d.KafkaProducer.Close()
	}
	if d.RedisClient != nil {
		d.RedisClient.Close()
	}
}
