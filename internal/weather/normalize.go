package weather

import (
	"regexp"
	"strings"

	"weather-chat/internal/domain"
)

// usStatePattern matches "<place>, <two letters>", e.g. "Paris, TX".
var usStatePattern = regexp.MustCompile(`^(.*?),\s*([A-Za-z]{2})$`)

// Candidate is one geocoding attempt. An empty Country means no hint.
type Candidate struct {
	Name    string
	Country string
}

// CandidateLocations expands free text into the ordered geocoding attempts:
// the trimmed input, the part before the first comma, and for a trailing
// two-letter code the prefix restricted to the US.
func CandidateLocations(raw string) []Candidate {
	trimmed := strings.TrimSpace(raw)
	candidates := []Candidate{{Name: trimmed}}
	if head, _, found := strings.Cut(trimmed, ","); found {
		candidates = append(candidates, Candidate{Name: strings.TrimSpace(head)})
	}
	if m := usStatePattern.FindStringSubmatch(trimmed); m != nil {
		candidates = append(candidates, Candidate{Name: strings.TrimSpace(m[1]), Country: "US"})
	}
	return candidates
}

// UnitsParams maps a unit system to forecast query parameters.
func UnitsParams(units domain.Units) map[string]string {
	if units == domain.UnitsImperial {
		return map[string]string{
			"temperature_unit":   "fahrenheit",
			"wind_speed_unit":    "mph",
			"precipitation_unit": "inch",
		}
	}
	return map[string]string{
		"temperature_unit":   "celsius",
		"wind_speed_unit":    "kmh",
		"precipitation_unit": "mm",
	}
}
