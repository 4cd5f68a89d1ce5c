package playback

import (
	"math"

	"github.com/saviobatista/vatsim-replay/internal/geo"
	"github.com/saviobatista/vatsim-replay/internal/types"
)

const (
	// trailSpacing is the minimum distance in meters between trail points
	trailSpacing = 50.0

	trailMaxPoints = 12
	trailMinPoints = 5

	// trailScale over the step distance gives the trail length, so a
	// 50 m step keeps trailMaxPoints and 120 m or more keeps trailMinPoints
	trailScale = 600.0
)

// trail is the short history of positions drawn behind a moving dot
type trail struct {
	points []types.LatLng
}

// trailLength returns how many points to keep for a given step distance.
// Faster movement per step means a shorter trail.
func trailLength(step float64) int {
	if step <= 0 {
		return trailMaxPoints
	}
	return geo.Clamp(int(math.Round(trailScale/step)), trailMinPoints, trailMaxPoints)
}

// add appends p when it is far enough from the last point and reports
// whether the trail changed
func (t *trail) add(p types.LatLng) bool {
	if len(t.points) == 0 {
		t.points = append(t.points, p)
		return true
	}

	step := geo.Distance(t.points[len(t.points)-1], p)
	if step < trailSpacing {
		return false
	}

	t.points = append(t.points, p)
	if limit := trailLength(step); len(t.points) > limit {
		t.points = append(t.points[:0], t.points[len(t.points)-limit:]...)
	}
	return true
}

func (t *trail) clear() {
	t.points = t.points[:0]
}

func (t *trail) snapshot() []types.LatLng {
	out := make([]types.LatLng, len(t.points))
	copy(out, t.points)
	return out
}
