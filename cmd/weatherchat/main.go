package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"weather-chat/handler"
	"weather-chat/internal/app"
	"weather-chat/internal/config"
	"weather-chat/internal/domain"
	"weather-chat/internal/tools"
)

var version = "dev"

var askUnits string

func main() {
	rootCmd := &cobra.Command{
		Use:           "weatherchat",
		Short:         "Weather chat relay",
		Long:          "Streams model chat completions with live weather lookups as server-sent events.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Run one chat turn and print its events",
		Args:  cobra.ExactArgs(1),
		RunE:  runAsk,
	}
	askCmd.Flags().StringVar(&askUnits, "units", string(domain.UnitsMetric), "Units for the answer (metric or imperial)")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfig,
	}

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the get_weather tool over MCP stdio",
		Args:  cobra.NoArgs,
		RunE:  runMCP,
	}

	rootCmd.AddCommand(serveCmd, askCmd, configCmd, mcpCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// build loads configuration and wires the service graph. The returned
// context is cancelled on SIGINT or SIGTERM.
func build(cmd *cobra.Command) (context.Context, *app.Components, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	c, err := app.Build(ctx, cfg)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	cleanup := func() {
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Close(shutdownCtx); err != nil {
			c.Logger.Warn("tracing shutdown failed", "err", err)
		}
	}
	return ctx, c, cleanup, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, c, cleanup, err := build(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := handler.NewServer(c.Chat, handler.ServerConfig{
		Address:      c.Config.Address,
		AllowOrigins: c.Config.AllowOrigins,
	}, c.Logger)
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}

func runAsk(cmd *cobra.Command, args []string) error {
	units := domain.Units(askUnits)
	if !units.Valid() {
		return fmt.Errorf("--units must be metric or imperial, got %q", askUnits)
	}

	ctx, c, cleanup, err := build(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	emit := func(ev domain.StreamEvent) error {
		buf, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "data: %s\n\n", buf)
		return err
	}

	messages := []domain.ChatMessage{{Role: domain.RoleUser, Content: args[0]}}
	return c.Chat.StreamChat(ctx, messages, domain.ChatSettings{Units: units}, emit)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, c, cleanup, err := build(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	c.Logger.Info("serving MCP over stdio", "tool", tools.WeatherToolName)
	return tools.ServeStdio(ctx, tools.NewMCPServer(c.Dispatcher, version))
}
