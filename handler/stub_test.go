package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"weather-chat/internal/domain"
	"weather-chat/internal/observability"
	"weather-chat/internal/usecase"
)

// stubChat emits a fixed script of events, then done.
type stubChat struct {
	events   []domain.StreamEvent
	err      error
	panicMsg string

	messages      []domain.ChatMessage
	settings      domain.ChatSettings
	correlationID string
	calls         int
}

func (s *stubChat) StreamChat(ctx context.Context, messages []domain.ChatMessage, settings domain.ChatSettings, emit usecase.Emitter) error {
	s.calls++
	s.messages = messages
	s.settings = settings
	s.correlationID = observability.CorrelationID(ctx)
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	for _, ev := range s.events {
		if err := emit(ev); err != nil {
			return err
		}
	}
	if err := emit(domain.DoneEvent()); err != nil {
		return err
	}
	return s.err
}

// parseSSE splits a body into decoded "data:" frames.
func parseSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		require.True(t, strings.HasPrefix(line, "data: "), "unexpected line %q", line)
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		out = append(out, ev)
	}
	require.NoError(t, sc.Err())
	return out
}

func eventTypes(events []map[string]any) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev["type"].(string))
	}
	return out
}
