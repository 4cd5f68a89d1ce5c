package playback

import (
	"github.com/saviobatista/vatsim-replay/internal/geo"
	"github.com/saviobatista/vatsim-replay/internal/types"
)

// TrackEpsilon is the simplification tolerance for drawn tracks, in degrees
const TrackEpsilon = 0.0005

// TrackSegment is one leg of a simplified track with its altitude colour
type TrackSegment struct {
	From  types.LatLng
	To    types.LatLng
	Color string
}

// trackGeometry caches both drawable forms of a simplified track
type trackGeometry struct {
	segments []TrackSegment
	path     []types.LatLng
}

func buildTrack(positions []types.TimedPosition) *trackGeometry {
	points := make([]geo.Point, len(positions))
	for i, p := range positions {
		points[i] = geo.Point{Lat: p.Lat, Lng: p.Lng}
		if p.Altitude != nil {
			points[i].Alt = float64(*p.Altitude)
		}
	}

	simplified := geo.DouglasPeucker(points, TrackEpsilon)

	g := &trackGeometry{path: make([]types.LatLng, len(simplified))}
	for i, p := range simplified {
		g.path[i] = types.LatLng{Lat: p.Lat, Lng: p.Lng}
	}
	for i := 1; i < len(simplified); i++ {
		a, b := simplified[i-1], simplified[i]
		g.segments = append(g.segments, TrackSegment{
			From:  g.path[i-1],
			To:    g.path[i],
			Color: geo.ColorByAltitude((a.Alt + b.Alt) / 2).String(),
		})
	}
	return g
}
