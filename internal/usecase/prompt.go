package usecase

import (
	"strings"

	"weather-chat/internal/domain"
	"weather-chat/internal/llm"
)

func unitHint(units domain.Units) string {
	if units == domain.UnitsImperial {
		return "Fahrenheit, mph, inches"
	}
	return "Celsius, km/h, mm"
}

func buildSystemPrompt(settings domain.ChatSettings) string {
	var b strings.Builder
	b.WriteString("You are a conversational weather assistant. ")
	b.WriteString("Keep answers friendly, concise, and actionable. ")
	b.WriteString("Use the get_weather tool whenever the user asks about conditions, forecasts, or comparisons. ")
	b.WriteString("Use these preferred units: " + unitHint(settings.Units) + ". ")
	b.WriteString("Always reply in Markdown. ")
	b.WriteString("When you respond, include a quick summary, then short bullet insights, then a suggested next question.")
	return b.String()
}

// buildTranscript prepends the system prompt to the client messages.
func buildTranscript(messages []domain.ChatMessage, settings domain.ChatSettings) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, llm.Message{Role: domain.RoleSystem, Content: buildSystemPrompt(settings)})
	for _, m := range messages {
		out = append(out, llm.Message{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}
