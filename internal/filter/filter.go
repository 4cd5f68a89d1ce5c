// Package filter implements the airport and altitude predicates used to
// decide which replay entities are shown.
package filter

import (
	"fmt"
	"strings"

	"github.com/saviobatista/vatsim-replay/internal/types"
)

// Mode selects which flight plan airport an airport filter is tested against
type Mode int

const (
	Either Mode = iota
	Departure
	Destination
)

func (m Mode) String() string {
	switch m {
	case Departure:
		return "departure"
	case Destination:
		return "destination"
	default:
		return "either"
	}
}

// ParseMode parses departure, destination or either (empty means either)
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "either", "both":
		return Either, nil
	case "departure", "dep":
		return Departure, nil
	case "destination", "dest", "arrival":
		return Destination, nil
	default:
		return Either, fmt.Errorf("unknown filter mode %q", s)
	}
}

// ParseAirportFilter splits a comma separated list into upper-cased patterns.
// Blank entries are dropped.
func ParseAirportFilter(filter string) []string {
	var patterns []string
	for _, p := range strings.Split(filter, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// MatchesAirportPattern reports whether code matches pattern. A trailing *
// makes the rest of the pattern a prefix.
func MatchesAirportPattern(code, pattern string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	pattern = strings.ToUpper(strings.TrimSpace(pattern))
	if code == "" || pattern == "" {
		return false
	}

	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(code, prefix)
	}
	return code == pattern
}

// MatchesAnyAirportPattern reports whether code matches one of patterns.
// No patterns means no restriction.
func MatchesAnyAirportPattern(code string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if MatchesAirportPattern(code, p) {
			return true
		}
	}
	return false
}

// MatchesFlightPlan applies patterns to the airports of fp selected by mode.
// A nil flight plan only passes an empty filter.
func MatchesFlightPlan(fp *types.FlightPlan, patterns []string, mode Mode) bool {
	if len(patterns) == 0 {
		return true
	}
	if fp == nil {
		return false
	}

	switch mode {
	case Departure:
		return MatchesAnyAirportPattern(fp.Departure, patterns)
	case Destination:
		return MatchesAnyAirportPattern(fp.Destination, patterns)
	default:
		return MatchesAnyAirportPattern(fp.Departure, patterns) ||
			MatchesAnyAirportPattern(fp.Destination, patterns)
	}
}

// WithinAltitudeRange reports whether alt lies in [min, max]. Unknown
// altitudes always pass.
func WithinAltitudeRange(alt *int, min, max int) bool {
	if alt == nil {
		return true
	}
	return *alt >= min && *alt <= max
}
