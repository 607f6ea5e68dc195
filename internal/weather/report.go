package weather

// GeocodeResult is the resolved place used to build a forecast request.
type GeocodeResult struct {
	Name      string
	Country   string
	Admin1    string
	Latitude  float64
	Longitude float64
}

// Report is the reshaped forecast returned to the model and the client.
type Report struct {
	Location Location       `json:"location"`
	Current  map[string]any `json:"current"`
	Hourly   map[string]any `json:"hourly"`
	Daily    map[string]any `json:"daily"`
	Units    UnitLabels     `json:"units"`
}

type Location struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Admin1    string  `json:"admin1"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

type UnitLabels struct {
	Temperature   string `json:"temperature"`
	WindSpeed     string `json:"wind_speed"`
	Precipitation string `json:"precipitation"`
}

const (
	defaultTemperatureLabel   = "°C"
	defaultWindSpeedLabel     = "km/h"
	defaultPrecipitationLabel = "mm"
)

// geocodeResponse is the minimal response shape of the geocoding endpoint.
// Results stay raw so a malformed first element can be told apart from a
// missing one.
type geocodeResponse struct {
	Results []map[string]any `json:"results"`
}

// forecastResponse is the minimal response shape of the forecast endpoint.
type forecastResponse struct {
	Timezone     string            `json:"timezone"`
	Current      map[string]any    `json:"current"`
	CurrentUnits map[string]string `json:"current_units"`
	Hourly       map[string]any    `json:"hourly"`
	Daily        map[string]any    `json:"daily"`
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func labelOr(units map[string]string, key, fallback string) string {
	if v, ok := units[key]; ok && v != "" {
		return v
	}
	return fallback
}
