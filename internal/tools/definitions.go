package tools

import "weather-chat/internal/llm"

const weatherToolDescription = "Get current conditions and 3-day forecast for one or more cities."

// Definitions returns the tool schemas advertised to the model.
func Definitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{{
		Name:        WeatherToolName,
		Description: weatherToolDescription,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "City or place name, e.g. 'Seattle' or 'Paris, France'.",
				},
				"locations": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "List of city or place names for comparisons.",
				},
				"units": map[string]any{
					"type":        "string",
					"enum":        []string{"metric", "imperial"},
					"description": "Units for temperature and wind speed.",
				},
			},
			"required": []string{},
		},
	}}
}
