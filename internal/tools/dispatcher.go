// Package tools exposes the weather lookup as a model-callable tool.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"weather-chat/internal/domain"
	"weather-chat/internal/weather"
)

const WeatherToolName = "get_weather"

// WeatherFetcher is the subset of weather.Gateway the dispatcher needs.
type WeatherFetcher interface {
	FetchWeather(ctx context.Context, location string, units domain.Units) (*weather.Report, error)
	FetchWeatherBatch(ctx context.Context, locations []string, units domain.Units) ([]*weather.Report, error)
}

// WeatherRequest is the argument object of get_weather.
type WeatherRequest struct {
	Location  string       `json:"location,omitempty" jsonschema:"City or place name, e.g. 'Seattle' or 'Paris, France'."`
	Locations []string     `json:"locations,omitempty" jsonschema:"List of city or place names for comparisons."`
	Units     domain.Units `json:"units,omitempty" jsonschema:"Units for temperature and wind speed: metric or imperial."`
}

// BatchResult wraps reports for a multi-location request.
type BatchResult struct {
	Results []*weather.Report `json:"results"`
}

type Dispatcher struct {
	fetcher WeatherFetcher
	logger  *slog.Logger
}

func NewDispatcher(fetcher WeatherFetcher, logger *slog.Logger) (*Dispatcher, error) {
	if fetcher == nil {
		return nil, errors.New("tools: weather fetcher must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{fetcher: fetcher, logger: logger}, nil
}

// Dispatch runs the named tool with its raw JSON arguments. An empty argument
// string is treated as an empty object. The result is a *weather.Report for a
// single location or a BatchResult for several.
func (d *Dispatcher) Dispatch(ctx context.Context, name, arguments string, settings domain.ChatSettings) (any, error) {
	var req WeatherRequest
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &req); err != nil {
			return nil, fmt.Errorf("tools: decode %s arguments: %w", name, err)
		}
	}
	if name != WeatherToolName {
		return nil, weather.NewError(weather.ErrorUnknownTool, fmt.Sprintf("Unknown tool '%s'.", name), nil)
	}
	return d.GetWeather(ctx, req, settings)
}

// GetWeather resolves req against the gateway. An explicit req.Units
// overrides the conversation settings.
func (d *Dispatcher) GetWeather(ctx context.Context, req WeatherRequest, settings domain.ChatSettings) (any, error) {
	units := settings.Normalized().Units
	if req.Units.Valid() {
		units = req.Units
	}

	locations := mergeLocations(req.Location, req.Locations)
	d.logger.DebugContext(ctx, "dispatching weather tool", "locations", locations, "units", units)

	switch len(locations) {
	case 0:
		return nil, weather.NewError(weather.ErrorMissingLocation, "Please provide a location to look up weather.", nil)
	case 1:
		report, err := d.fetcher.FetchWeather(ctx, locations[0], units)
		if err != nil {
			return nil, err
		}
		return report, nil
	}

	reports, err := d.fetcher.FetchWeatherBatch(ctx, locations, units)
	if err != nil {
		return nil, err
	}
	return BatchResult{Results: reports}, nil
}

// mergeLocations puts location first, trims names, drops blanks and keeps
// the first occurrence of each name.
func mergeLocations(location string, locations []string) []string {
	all := make([]string, 0, len(locations)+1)
	if location != "" {
		all = append(all, location)
	}
	all = append(all, locations...)

	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, loc := range all {
		loc = strings.TrimSpace(loc)
		if loc == "" {
			continue
		}
		if _, dup := seen[loc]; dup {
			continue
		}
		seen[loc] = struct{}{}
		out = append(out, loc)
	}
	return out
}
