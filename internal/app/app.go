// Package app wires configuration into the chat service graph shared by the
// CLI and Lambda entrypoints.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"weather-chat/internal/config"
	"weather-chat/internal/integrations/openai"
	"weather-chat/internal/integrations/paramstore"
	"weather-chat/internal/observability"
	"weather-chat/internal/tools"
	"weather-chat/internal/usecase"
	"weather-chat/internal/weather"
)

// Components is the wired service graph.
type Components struct {
	Config     *config.Config
	Logger     *slog.Logger
	Gateway    *weather.Gateway
	Dispatcher *tools.Dispatcher
	Chat       *usecase.ChatService

	shutdownTracing func(context.Context) error
}

// Build wires the service graph from a validated cfg and installs its logger
// as the slog default.
func Build(ctx context.Context, cfg *config.Config) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}

	logger := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat).
		With("app", cfg.AppName, "environment", cfg.Environment)
	slog.SetDefault(logger)

	shutdown, err := observability.SetupTracing(ctx, cfg.AppName, cfg.OTelEndpoint)
	if err != nil {
		return nil, err
	}

	gateway := weather.NewGateway(
		weather.WithGeocodeURL(cfg.GeocodeAPIURL),
		weather.WithForecastURL(cfg.ForecastAPIURL),
		weather.WithTimeout(cfg.HTTPTimeout()),
		weather.WithForecastDays(cfg.ForecastDays),
		weather.WithMaxLocations(cfg.MaxLocationsPerRequest),
		weather.WithLogger(logger),
	)
	dispatcher, err := tools.NewDispatcher(gateway, logger)
	if err != nil {
		return nil, err
	}

	model, err := newModelClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	chat, err := usecase.NewChatService(model, dispatcher, tools.Definitions(), logger)
	if err != nil {
		return nil, err
	}

	return &Components{
		Config:          cfg,
		Logger:          logger,
		Gateway:         gateway,
		Dispatcher:      dispatcher,
		Chat:            chat,
		shutdownTracing: shutdown,
	}, nil
}

// newModelClient prefers a literal API key; otherwise the key is read lazily
// from SSM when a parameter name is configured. With neither, every chat turn
// reports a missing credential.
func newModelClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*openai.Client, error) {
	opts := []openai.Option{
		openai.WithLogger(logger),
		openai.WithHTTPClient(openai.NewStreamingHTTPClient(cfg.HTTPTimeout())),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}

	switch {
	case cfg.OpenAIAPIKey != "":
		opts = append(opts, openai.WithAPIKey(cfg.OpenAIAPIKey))
	case cfg.OpenAIAPIKeyParam != "":
		ssm, err := paramstore.NewDefault(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: parameter store: %w", err)
		}
		opts = append(opts, openai.WithParamStore(ssm, cfg.OpenAIAPIKeyParam))
	default:
		logger.Warn("no OpenAI credential configured; chat requests will fail until OPENAI_API_KEY is set")
	}
	return openai.NewClient(cfg.OpenAIModel, opts...)
}

// Close flushes telemetry.
func (c *Components) Close(ctx context.Context) error {
	if c.shutdownTracing == nil {
		return nil
	}
	return c.shutdownTracing(ctx)
}
