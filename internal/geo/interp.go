package geo

import (
	"math"

	"golang.org/x/exp/constraints"

	"github.com/saviobatista/vatsim-replay/internal/types"
)

// EarthRadiusMeters is the mean earth radius used for distances
const EarthRadiusMeters = 6371000.0

// Lerp interpolates linearly between from and to
func Lerp[T constraints.Float](from, to, f T) T {
	return from + (to-from)*f
}

// Clamp bounds v to [lo, hi]
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RoundHalfUp rounds to the nearest integer with halves going towards
// positive infinity, matching the rounding the replay producer uses.
func RoundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// LerpHeading interpolates between two headings in degrees along the
// shortest arc and returns a whole heading in [0, 360).
func LerpHeading(from, to int, f float64) int {
	h1, h2 := float64(from), float64(to)
	if math.Abs(h2-h1) > 180 {
		if h1 < h2 {
			h1 += 360
		} else {
			h2 += 360
		}
	}
	h := RoundHalfUp(Lerp(h1, h2, f)) % 360
	if h < 0 {
		h += 360
	}
	return h
}

// Distance returns the great circle distance between a and b in meters
func Distance(a, b types.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
