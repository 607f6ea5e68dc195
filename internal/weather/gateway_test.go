package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"weather-chat/internal/domain"
)

// ---------------------------------------------------------------------------
// stub upstream
// ---------------------------------------------------------------------------

type place struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Admin1    string  `json:"admin1,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type upstream struct {
	t *testing.T

	mu           sync.Mutex
	places       map[string]place
	geocodeNames []string
	forecastQs   []string

	geocodeCalls  atomic.Int32
	forecastCalls atomic.Int32

	geocodeStatus  int
	forecastStatus int
	forecastBody   string
}

func newUpstream(t *testing.T) (*upstream, *httptest.Server) {
	t.Helper()
	u := &upstream{
		t: t,
		places: map[string]place{
			"Paris": {Name: "Paris", Country: "France", Admin1: "Île-de-France", Latitude: 48.85, Longitude: 2.35},
			"Rome":  {Name: "Rome", Country: "Italy", Latitude: 41.89, Longitude: 12.48},
			"Oslo":  {Name: "Oslo", Country: "Norway", Latitude: 59.91, Longitude: 10.75},
		},
		forecastBody: `{
			"timezone": "Europe/Paris",
			"current": {"temperature_2m": 18.5, "weather_code": 2},
			"current_units": {"temperature_2m": "°F", "wind_speed_10m": "mph", "precipitation": "inch"},
			"hourly": {"temperature_2m": [18.1, 18.9]},
			"daily": {"temperature_2m_max": [21.0, 22.5, 19.0]}
		}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/geocode", func(w http.ResponseWriter, r *http.Request) {
		u.geocodeCalls.Add(1)
		name := r.URL.Query().Get("name")
		u.mu.Lock()
		u.geocodeNames = append(u.geocodeNames, name)
		u.mu.Unlock()

		if u.geocodeStatus != 0 {
			w.WriteHeader(u.geocodeStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		p, ok := u.places[name]
		if !ok {
			_, _ = w.Write([]byte(`{"generationtime_ms": 0.5}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []place{p}})
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		u.forecastCalls.Add(1)
		u.mu.Lock()
		u.forecastQs = append(u.forecastQs, r.URL.RawQuery)
		u.mu.Unlock()

		if u.forecastStatus != 0 {
			w.WriteHeader(u.forecastStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(u.forecastBody))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return u, srv
}

func newTestGateway(srv *httptest.Server, opts ...Option) *Gateway {
	base := []Option{
		WithGeocodeURL(srv.URL + "/geocode"),
		WithForecastURL(srv.URL + "/forecast"),
		WithTimeout(2 * time.Second),
	}
	return NewGateway(append(base, opts...)...)
}

// ---------------------------------------------------------------------------
// FetchWeather
// ---------------------------------------------------------------------------

func TestFetchWeather_HappyPath(t *testing.T) {
	u, srv := newUpstream(t)
	g := newTestGateway(srv)

	report, err := g.FetchWeather(context.Background(), "Paris", domain.UnitsImperial)
	require.NoError(t, err)
	require.Equal(t, "Paris", report.Location.Name)
	require.Equal(t, "France", report.Location.Country)
	require.Equal(t, "Île-de-France", report.Location.Admin1)
	require.Equal(t, "Europe/Paris", report.Location.Timezone)
	require.InDelta(t, 48.85, report.Location.Latitude, 1e-9)
	require.Equal(t, 18.5, report.Current["temperature_2m"])
	require.Len(t, report.Daily["temperature_2m_max"], 3)
	require.Equal(t, UnitLabels{Temperature: "°F", WindSpeed: "mph", Precipitation: "inch"}, report.Units)

	require.Len(t, u.forecastQs, 1)
	q := u.forecastQs[0]
	require.Contains(t, q, "temperature_unit=fahrenheit")
	require.Contains(t, q, "forecast_days=3")
	require.Contains(t, q, "timezone=auto")
}

func TestFetchWeather_DefaultUnitLabels(t *testing.T) {
	u, srv := newUpstream(t)
	u.forecastBody = `{"timezone": "Europe/Rome", "current": {"temperature_2m": 20}}`
	g := newTestGateway(srv)

	report, err := g.FetchWeather(context.Background(), "Rome", domain.UnitsMetric)
	require.NoError(t, err)
	require.Equal(t, UnitLabels{Temperature: "°C", WindSpeed: "km/h", Precipitation: "mm"}, report.Units)
	require.NotNil(t, report.Hourly)
	require.NotNil(t, report.Daily)

	buf, err := json.Marshal(report)
	require.NoError(t, err)
	require.Contains(t, string(buf), `"hourly":{}`)
	require.Contains(t, string(buf), `"admin1":""`, "location keys are always present")
}

func TestFetchWeather_CandidateFallback(t *testing.T) {
	u, srv := newUpstream(t)
	g := newTestGateway(srv)

	report, err := g.FetchWeather(context.Background(), "Paris, TX", domain.UnitsMetric)
	require.NoError(t, err)
	require.Equal(t, "Paris", report.Location.Name)
	require.Equal(t, []string{"Paris, TX", "Paris"}, u.geocodeNames)
}

// geocodeByName serves /geocode from a per-name handler and a fixed forecast.
func geocodeByName(t *testing.T, handlers map[string]http.HandlerFunc) (*[]string, *httptest.Server) {
	t.Helper()
	var (
		mu    sync.Mutex
		names []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/geocode", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		mu.Lock()
		names = append(names, name)
		mu.Unlock()
		if h, ok := handlers[name]; ok {
			h(w, r)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"timezone":"Europe/Paris","current":{"temperature_2m":18.5}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &names, srv
}

func writeParis(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte(`{"results":[{"name":"Paris","country":"France","latitude":48.85,"longitude":2.35}]}`))
}

func TestFetchWeather_GeocodeTimeoutTriesNextCandidate(t *testing.T) {
	names, srv := geocodeByName(t, map[string]http.HandlerFunc{
		"Paris, TX": func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		},
		"Paris": writeParis,
	})
	g := newTestGateway(srv, WithTimeout(100*time.Millisecond))

	report, err := g.FetchWeather(context.Background(), "Paris, TX", domain.UnitsMetric)
	require.NoError(t, err)
	require.Equal(t, "Paris", report.Location.Name)
	require.Equal(t, []string{"Paris, TX", "Paris"}, *names)
}

func TestFetchWeather_GeocodeMissingCoordinateTriesNextCandidate(t *testing.T) {
	names, srv := geocodeByName(t, map[string]http.HandlerFunc{
		"Paris, TX": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"results":[{"name":"Paris","country":"United States","latitude":33.66}]}`))
		},
		"Paris": writeParis,
	})
	g := newTestGateway(srv)

	report, err := g.FetchWeather(context.Background(), "Paris, TX", domain.UnitsMetric)
	require.NoError(t, err)
	require.Equal(t, "France", report.Location.Country)
	require.Equal(t, []string{"Paris, TX", "Paris"}, *names)
}

func TestFetchWeather_GeocodeServerErrorAbortsSearch(t *testing.T) {
	u, srv := newUpstream(t)
	u.geocodeStatus = http.StatusServiceUnavailable
	g := newTestGateway(srv)

	_, err := g.FetchWeather(context.Background(), "Paris, TX", domain.UnitsMetric)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrorServiceUnavailable))
	require.Equal(t, int32(1), u.geocodeCalls.Load(), "remaining candidates must not be tried")
	require.Equal(t, int32(0), u.forecastCalls.Load())
}

func TestFetchWeather_GeocodeClientErrorTriesNextCandidate(t *testing.T) {
	u, srv := newUpstream(t)
	u.geocodeStatus = http.StatusBadRequest
	g := newTestGateway(srv)

	_, err := g.FetchWeather(context.Background(), "Paris, TX", domain.UnitsMetric)
	require.True(t, IsKind(err, ErrorLocationNotFound))
	require.Equal(t, int32(3), u.geocodeCalls.Load())
}

func TestFetchWeather_EmptyLocation(t *testing.T) {
	u, srv := newUpstream(t)
	g := newTestGateway(srv)

	_, err := g.FetchWeather(context.Background(), "   ", domain.UnitsMetric)
	require.True(t, IsKind(err, ErrorInvalidInput))
	require.Equal(t, int32(0), u.geocodeCalls.Load())
}

func TestFetchWeather_ConnectionFailure(t *testing.T) {
	_, srv := newUpstream(t)
	g := newTestGateway(srv)
	srv.Close()

	_, err := g.FetchWeather(context.Background(), "Paris", domain.UnitsMetric)
	require.True(t, IsKind(err, ErrorConnectionFailure))
}

func TestFetchWeather_ForecastFailures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		kind    ErrorKind
		message string
	}{
		{
			name:   "server error",
			status: http.StatusBadGateway,
			kind:   ErrorServiceUnavailable,
		},
		{
			name:    "client error",
			status:  http.StatusBadRequest,
			kind:    ErrorUpstream,
			message: "Failed to fetch weather data. Status: 400",
		},
		{
			name:    "error field",
			body:    `{"error": true, "reason": "Latitude must be in range"}`,
			kind:    ErrorUpstream,
			message: "Weather service error: Latitude must be in range",
		},
		{
			name:    "error field without reason",
			body:    `{"error": true}`,
			kind:    ErrorUpstream,
			message: "Weather service error: Unknown error from weather service.",
		},
		{
			name:    "not an object",
			body:    `[1, 2, 3]`,
			kind:    ErrorMalformedResponse,
			message: "Invalid response format from weather service.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, srv := newUpstream(t)
			u.forecastStatus = tc.status
			if tc.body != "" {
				u.forecastBody = tc.body
			}
			g := newTestGateway(srv)

			_, err := g.FetchWeather(context.Background(), "Oslo", domain.UnitsMetric)
			require.Error(t, err)
			var werr *Error
			require.ErrorAs(t, err, &werr)
			require.Equal(t, tc.kind, werr.Kind)
			if tc.message != "" {
				require.Equal(t, tc.message, werr.Message)
			}
		})
	}
}

func TestFetchWeather_ForecastTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/geocode", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"name":"Oslo","latitude":59.9,"longitude":10.7}]}`))
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	g := newTestGateway(srv, WithTimeout(100*time.Millisecond))
	_, err := g.FetchWeather(context.Background(), "Oslo", domain.UnitsMetric)
	require.True(t, IsKind(err, ErrorRequestTimeout), "got %v", err)
}

// ---------------------------------------------------------------------------
// FetchWeatherBatch
// ---------------------------------------------------------------------------

func TestFetchWeatherBatch_PreservesInputOrder(t *testing.T) {
	_, srv := newUpstream(t)
	g := newTestGateway(srv)

	reports, err := g.FetchWeatherBatch(context.Background(), []string{"Rome", "Oslo", "Paris"}, domain.UnitsMetric)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	require.Equal(t, "Rome", reports[0].Location.Name)
	require.Equal(t, "Oslo", reports[1].Location.Name)
	require.Equal(t, "Paris", reports[2].Location.Name)
}

func TestFetchWeatherBatch_OneFailureFailsAll(t *testing.T) {
	_, srv := newUpstream(t)
	g := newTestGateway(srv)

	reports, err := g.FetchWeatherBatch(context.Background(), []string{"Nowhere123", "Paris"}, domain.UnitsMetric)
	require.Nil(t, reports)
	require.True(t, IsKind(err, ErrorLocationNotFound), "got %v", err)

	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Contains(t, werr.Message, "Nowhere123")
}

func TestFetchWeatherBatch_TooManyLocations(t *testing.T) {
	u, srv := newUpstream(t)
	g := newTestGateway(srv)

	locations := make([]string, 11)
	for i := range locations {
		locations[i] = "Paris"
	}
	_, err := g.FetchWeatherBatch(context.Background(), locations, domain.UnitsMetric)
	require.True(t, IsKind(err, ErrorTooManyLocations))
	require.Equal(t, int32(0), u.geocodeCalls.Load())
	require.Equal(t, int32(0), u.forecastCalls.Load())
}

func TestFetchWeatherBatch_ConfiguredMaximum(t *testing.T) {
	_, srv := newUpstream(t)
	g := newTestGateway(srv, WithMaxLocations(2))

	_, err := g.FetchWeatherBatch(context.Background(), []string{"Rome", "Oslo", "Paris"}, domain.UnitsMetric)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, "Too many locations. Maximum 2 locations allowed per request.", werr.Message)
}

func TestFetchWeatherBatch_Empty(t *testing.T) {
	_, srv := newUpstream(t)
	g := newTestGateway(srv)

	_, err := g.FetchWeatherBatch(context.Background(), nil, domain.UnitsMetric)
	require.True(t, IsKind(err, ErrorInvalidInput))
}

// ---------------------------------------------------------------------------
// options
// ---------------------------------------------------------------------------

func TestNewGateway_Defaults(t *testing.T) {
	g := NewGateway(WithTimeout(0), WithForecastDays(-1), WithGeocodeURL("  "), WithLogger(nil))
	require.Equal(t, DefaultGeocodeURL, g.geocodeURL)
	require.Equal(t, DefaultForecastURL, g.forecastURL)
	require.Equal(t, 10*time.Second, g.timeout)
	require.Equal(t, 3, g.forecastDays)
	require.Equal(t, 10, g.MaxLocations())
	require.NotNil(t, g.logger)
}
