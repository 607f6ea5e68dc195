package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"weather-chat/internal/domain"
	"weather-chat/internal/weather"
)

// NewMCPServer exposes get_weather to MCP clients. Weather failures are
// reported as tool errors carrying the user-facing message.
func NewMCPServer(d *Dispatcher, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "weather-chat", Version: version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        WeatherToolName,
		Description: weatherToolDescription,
	}, d.handleMCP)
	return server
}

// ServeStdio runs server over stdin/stdout until ctx is done or the client
// disconnects.
func ServeStdio(ctx context.Context, server *mcp.Server) error {
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("tools: mcp server: %w", err)
	}
	return nil
}

func (d *Dispatcher) handleMCP(ctx context.Context, _ *mcp.CallToolRequest, req WeatherRequest) (*mcp.CallToolResult, any, error) {
	result, err := d.GetWeather(ctx, req, domain.ChatSettings{})
	if err != nil {
		var werr *weather.Error
		if errors.As(err, &werr) {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: werr.Message}},
			}, nil, nil
		}
		d.logger.ErrorContext(ctx, "mcp weather tool failed", "err", err)
		return nil, nil, err
	}

	buf, err := json.Marshal(result)
	if err != nil {
		return nil, nil, fmt.Errorf("tools: encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(buf)}},
	}, nil, nil
}
