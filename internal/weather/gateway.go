package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"weather-chat/internal/domain"
)

const (
	DefaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"

	defaultTimeout      = 10 * time.Second
	defaultForecastDays = 3
	defaultMaxLocations = 10
	maxBodyBytes        = 1 << 20
)

var (
	currentFields = []string{
		"temperature_2m",
		"relative_humidity_2m",
		"apparent_temperature",
		"precipitation",
		"weather_code",
		"wind_speed_10m",
		"wind_direction_10m",
	}
	hourlyFields = []string{
		"temperature_2m",
		"precipitation_probability",
		"weather_code",
		"wind_speed_10m",
	}
	dailyFields = []string{
		"weather_code",
		"temperature_2m_max",
		"temperature_2m_min",
		"precipitation_sum",
		"wind_speed_10m_max",
		"sunrise",
		"sunset",
	}
)

// statusError captures a non-2xx upstream response.
type statusError struct {
	StatusCode int
	URL        string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("weather: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Gateway resolves place names and fetches forecasts from Open-Meteo
// compatible endpoints.
type Gateway struct {
	geocodeURL   string
	forecastURL  string
	timeout      time.Duration
	forecastDays int
	maxLocations int
	logger       *slog.Logger
	tracer       trace.Tracer
}

type Option func(*Gateway)

func WithGeocodeURL(u string) Option {
	return func(g *Gateway) {
		if u = strings.TrimSpace(u); u != "" {
			g.geocodeURL = u
		}
	}
}

func WithForecastURL(u string) Option {
	return func(g *Gateway) {
		if u = strings.TrimSpace(u); u != "" {
			g.forecastURL = u
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithForecastDays(days int) Option {
	return func(g *Gateway) {
		if days > 0 {
			g.forecastDays = days
		}
	}
}

func WithMaxLocations(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxLocations = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGateway(opts ...Option) *Gateway {
	g := &Gateway{
		geocodeURL:   DefaultGeocodeURL,
		forecastURL:  DefaultForecastURL,
		timeout:      defaultTimeout,
		forecastDays: defaultForecastDays,
		maxLocations: defaultMaxLocations,
		logger:       slog.Default(),
		tracer:       otel.Tracer("weather-chat/internal/weather"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxLocations is the largest batch FetchWeatherBatch accepts.
func (g *Gateway) MaxLocations() int {
	return g.maxLocations
}

// newClient returns an HTTP client scoped to one gateway operation. The
// returned release func must be called when the operation ends.
func (g *Gateway) newClient() (*http.Client, func()) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	client := &http.Client{
		Timeout:   g.timeout,
		Transport: otelhttp.NewTransport(transport),
	}
	return client, transport.CloseIdleConnections
}

// FetchWeather geocodes location and returns its current conditions and
// forecast.
func (g *Gateway) FetchWeather(ctx context.Context, location string, units domain.Units) (*Report, error) {
	ctx, span := g.tracer.Start(ctx, "weather.FetchWeather",
		trace.WithAttributes(attribute.String("weather.location", location)))
	defer span.End()

	client, release := g.newClient()
	defer release()

	report, err := g.fetchWithClient(ctx, client, location, units)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch weather failed")
		return nil, err
	}
	return report, nil
}

// FetchWeatherBatch fetches all locations concurrently over one shared
// client. The first failure cancels the remaining fetches and is returned.
func (g *Gateway) FetchWeatherBatch(ctx context.Context, locations []string, units domain.Units) ([]*Report, error) {
	if len(locations) == 0 {
		return nil, NewError(ErrorInvalidInput, "No locations provided.", nil)
	}
	if len(locations) > g.maxLocations {
		return nil, NewError(ErrorTooManyLocations,
			fmt.Sprintf("Too many locations. Maximum %d locations allowed per request.", g.maxLocations), nil)
	}

	ctx, span := g.tracer.Start(ctx, "weather.FetchWeatherBatch",
		trace.WithAttributes(attribute.Int("weather.locations", len(locations))))
	defer span.End()

	client, release := g.newClient()
	defer release()

	reports := make([]*Report, len(locations))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, location := range locations {
		group.Go(func() error {
			report, err := g.fetchWithClient(groupCtx, client, location, units)
			if err != nil {
				g.logger.ErrorContext(ctx, "weather fetch failed", "location", location, "err", err)
				return err
			}
			reports[i] = report
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch fetch failed")
		return nil, err
	}
	return reports, nil
}

func (g *Gateway) fetchWithClient(ctx context.Context, client *http.Client, location string, units domain.Units) (*Report, error) {
	place, err := g.geocode(ctx, client, location)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"latitude":      {strconv.FormatFloat(place.Latitude, 'f', -1, 64)},
		"longitude":     {strconv.FormatFloat(place.Longitude, 'f', -1, 64)},
		"current":       {strings.Join(currentFields, ",")},
		"hourly":        {strings.Join(hourlyFields, ",")},
		"daily":         {strings.Join(dailyFields, ",")},
		"forecast_days": {strconv.Itoa(g.forecastDays)},
		"timezone":      {"auto"},
	}
	for k, v := range UnitsParams(units) {
		params.Set(k, v)
	}

	body, err := g.get(ctx, client, g.forecastURL, params)
	if err != nil {
		g.logger.ErrorContext(ctx, "forecast request failed", "location", location, "err", err)
		return nil, forecastError(err)
	}
	return buildReport(place, body)
}

// geocode tries each candidate in order and returns the first usable match.
// Timeouts, 4xx responses and unusable payloads move on to the next
// candidate; 5xx responses and connection failures abort the search.
func (g *Gateway) geocode(ctx context.Context, client *http.Client, location string) (*GeocodeResult, error) {
	if strings.TrimSpace(location) == "" {
		return nil, NewError(ErrorInvalidInput, "Location cannot be empty.", nil)
	}

	ctx, span := g.tracer.Start(ctx, "weather.geocode")
	defer span.End()

	for _, c := range CandidateLocations(location) {
		params := url.Values{
			"name":     {c.Name},
			"count":    {"3"},
			"language": {"en"},
			"format":   {"json"},
		}
		if c.Country != "" {
			params.Set("country", c.Country)
		}

		body, err := g.get(ctx, client, g.geocodeURL, params)
		if err != nil {
			var status *statusError
			switch {
			case isTimeout(err):
				g.logger.WarnContext(ctx, "geocode timeout", "name", c.Name)
				continue
			case errors.As(err, &status):
				g.logger.WarnContext(ctx, "geocode http error", "name", c.Name, "status", status.StatusCode)
				if status.StatusCode >= 500 {
					return nil, errServiceUnavailable(status.StatusCode)
				}
				continue
			default:
				g.logger.ErrorContext(ctx, "geocode request error", "name", c.Name, "err", err)
				return nil, NewError(ErrorConnectionFailure,
					"Unable to connect to geocoding service. Please check your internet connection.", err)
			}
		}

		place, ok := parseGeocode(body)
		if !ok {
			g.logger.WarnContext(ctx, "geocode returned no usable result", "name", c.Name)
			continue
		}
		return place, nil
	}
	return nil, errLocationNotFound(location)
}

func (g *Gateway) get(ctx context.Context, client *http.Client, endpoint string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("weather: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return nil, &statusError{StatusCode: res.StatusCode, URL: endpoint}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("weather: read response body: %w", err)
	}
	return buf, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func forecastError(err error) *Error {
	var status *statusError
	switch {
	case isTimeout(err):
		return NewError(ErrorRequestTimeout,
			"Request timeout. The weather service is taking too long to respond.", err)
	case errors.As(err, &status):
		if status.StatusCode >= 500 {
			return errServiceUnavailable(status.StatusCode)
		}
		return &Error{
			Kind:       ErrorUpstream,
			Message:    fmt.Sprintf("Failed to fetch weather data. Status: %d", status.StatusCode),
			StatusCode: status.StatusCode,
			Err:        err,
		}
	default:
		return NewError(ErrorConnectionFailure,
			"Unable to connect to weather service. Please check your internet connection.", err)
	}
}

func parseGeocode(body []byte) (*GeocodeResult, bool) {
	var payload geocodeResponse
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Results) == 0 {
		return nil, false
	}
	first := payload.Results[0]
	lat, latOK := first["latitude"].(float64)
	lon, lonOK := first["longitude"].(float64)
	if !latOK || !lonOK {
		return nil, false
	}
	name, _ := first["name"].(string)
	country, _ := first["country"].(string)
	admin1, _ := first["admin1"].(string)
	return &GeocodeResult{
		Name:      name,
		Country:   country,
		Admin1:    admin1,
		Latitude:  lat,
		Longitude: lon,
	}, true
}

func buildReport(place *GeocodeResult, body []byte) (*Report, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, NewError(ErrorMalformedResponse, "Invalid response format from weather service.", err)
	}
	if _, failed := raw["error"]; failed {
		var upstream struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(body, &upstream)
		if upstream.Reason == "" {
			upstream.Reason = "Unknown error from weather service."
		}
		return nil, NewError(ErrorUpstream, "Weather service error: "+upstream.Reason, nil)
	}

	var data forecastResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, NewError(ErrorMalformedResponse, "Invalid response format from weather service.", err)
	}

	return &Report{
		Location: Location{
			Name:      place.Name,
			Country:   place.Country,
			Admin1:    place.Admin1,
			Latitude:  place.Latitude,
			Longitude: place.Longitude,
			Timezone:  data.Timezone,
		},
		Current: nonNil(data.Current),
		Hourly:  nonNil(data.Hourly),
		Daily:   nonNil(data.Daily),
		Units: UnitLabels{
			Temperature:   labelOr(data.CurrentUnits, "temperature_2m", defaultTemperatureLabel),
			WindSpeed:     labelOr(data.CurrentUnits, "wind_speed_10m", defaultWindSpeedLabel),
			Precipitation: labelOr(data.CurrentUnits, "precipitation", defaultPrecipitationLabel),
		},
	}, nil
}
