package types

import (
	"sort"
	"time"
)

// LatLng is a geographic coordinate in decimal degrees
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimedPosition is a single recorded observation of an aircraft.
// Time is milliseconds since the start of the recording.
type TimedPosition struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Time     int64   `json:"time"`
	Altitude *int    `json:"altitude,omitempty"`
	Heading  *int    `json:"heading,omitempty"`
}

// LatLng returns the coordinate part of the position
func (p TimedPosition) LatLng() LatLng {
	return LatLng{Lat: p.Lat, Lng: p.Lng}
}

// FlightPlan holds the filed route endpoints for a callsign
type FlightPlan struct {
	Callsign     string `json:"callsign"`
	Departure    string `json:"departure"`
	Destination  string `json:"destination"`
	AircraftType string `json:"aircraft_type"`
}

// TimeRange is the normalised span of a recording in milliseconds
type TimeRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Duration returns the length of the range in milliseconds
func (r TimeRange) Duration() int64 {
	return r.End - r.Start
}

// ParseStats counts what the parser saw in a single file
type ParseStats struct {
	Lines           int `json:"lines"`
	PositionRecords int `json:"position_records"`
	FlightPlans     int `json:"flight_plans"`
	Skipped         int `json:"skipped"`
}

// ParsedReplay is the result of parsing one replay log
type ParsedReplay struct {
	Positions   map[string][]TimedPosition `json:"positions"`
	FlightPlans map[string]FlightPlan      `json:"flight_plans"`
	TimeRange   TimeRange                  `json:"time_range"`
	// Origin is the raw time of day (ms) of the earliest position, i.e. what time 0 maps to.
	Origin int64      `json:"origin"`
	Stats  ParseStats `json:"stats"`
}

// NewParsedReplay returns an empty replay with initialised maps
func NewParsedReplay() *ParsedReplay {
	return &ParsedReplay{
		Positions:   make(map[string][]TimedPosition),
		FlightPlans: make(map[string]FlightPlan),
	}
}

// Callsigns returns every callsign with at least one position, sorted
func (r *ParsedReplay) Callsigns() []string {
	callsigns := make([]string, 0, len(r.Positions))
	for cs := range r.Positions {
		callsigns = append(callsigns, cs)
	}
	sort.Strings(callsigns)
	return callsigns
}

// FlightPlan returns the flight plan filed for callsign, if any
func (r *ParsedReplay) FlightPlan(callsign string) (FlightPlan, bool) {
	fp, ok := r.FlightPlans[callsign]
	return fp, ok
}

// Empty reports whether the replay has no positions at all
func (r *ParsedReplay) Empty() bool {
	return len(r.Positions) == 0
}

// RenderEvent kinds
const (
	RenderMarkerAdded    = "marker_added"
	RenderMarkerMoved    = "marker_moved"
	RenderMarkerTooltip  = "marker_tooltip"
	RenderMarkerVisible  = "marker_visible"
	RenderMarkerRemoved  = "marker_removed"
	RenderPolylineAdded  = "polyline_added"
	RenderPolylineUpdate = "polyline_updated"
	RenderPolylineRemove = "polyline_removed"
)

// RenderEvent describes one mutation of a render surface, for export to external renderers
type RenderEvent struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Layer     string    `json:"layer,omitempty"`
	Callsign  string    `json:"callsign"`
	Position  *LatLng   `json:"position,omitempty"`
	Points    []LatLng  `json:"points,omitempty"`
	Tooltip   string    `json:"tooltip,omitempty"`
	Visible   *bool     `json:"visible,omitempty"`
	Color     string    `json:"color,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}
