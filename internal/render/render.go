// Package render defines the drawing surface the playback engine paints
// on, plus an in-memory recorder and an event-emitting surface.
package render

import (
	"fmt"
	"strings"

	"github.com/saviobatista/vatsim-replay/internal/types"
)

// Polyline kinds
const (
	KindTrail = "trail"
	KindTrack = "track"
)

// MarkerOptions describes how an entity marker is drawn
type MarkerOptions struct {
	Callsign    string
	Position    types.LatLng
	Color       string
	Radius      float64
	FillOpacity float64
	Weight      float64
	Tooltip     string
	Visible     bool
}

// PolylineOptions describes a trail or track line
type PolylineOptions struct {
	Callsign string
	Kind     string
	Color    string
	Weight   float64
	Opacity  float64
}

// Marker is a drawn entity marker. Remove may be called more than once.
type Marker interface {
	SetLatLng(p types.LatLng)
	SetTooltip(text string)
	SetVisible(visible bool)
	Remove()
}

// Polyline is a drawn line. Remove may be called more than once.
type Polyline interface {
	SetPoints(points []types.LatLng)
	Remove()
}

// Surface creates markers and polylines
type Surface interface {
	AddMarker(opts MarkerOptions) Marker
	AddPolyline(points []types.LatLng, opts PolylineOptions) Polyline
}

// Tooltip formats the marker tooltip. A zero altitude is treated as unknown.
func Tooltip(callsign string, altitude, heading *int) string {
	var b strings.Builder
	b.WriteString(callsign)
	if altitude != nil && *altitude != 0 {
		fmt.Fprintf(&b, "<br>Alt: %d ft", *altitude)
	}
	if heading != nil {
		fmt.Fprintf(&b, "<br>Hdg: %d°", *heading)
	}
	return b.String()
}
