package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"weather-chat/handler"
	"weather-chat/internal/app"
	"weather-chat/internal/config"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// ---- Services ----
	c, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to build services", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewLambdaHandler(c.Chat, c.Logger)
	if err != nil {
		c.Logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.StartWithOptions(h.Handle, lambda.WithEnableSIGTERM(func() {
		if err := c.Close(context.Background()); err != nil {
			c.Logger.Warn("tracing shutdown failed", "err", err)
		}
	}))
}
