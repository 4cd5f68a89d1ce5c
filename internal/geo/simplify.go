// Package geo holds the geometry helpers used to draw replay tracks:
// polyline simplification, interpolation, distances and the altitude
// colour ramp.
package geo

import "math"

// Point is a track vertex in degrees with its altitude in feet
type Point struct {
	Lat float64
	Lng float64
	Alt float64
}

// PerpendicularDistance returns the planar distance from p to the line
// through start and end, measured in degrees. When start and end coincide
// the distance to start is returned.
func PerpendicularDistance(p, start, end Point) float64 {
	dx := end.Lng - start.Lng
	dy := end.Lat - start.Lat
	mag := dx*dx + dy*dy
	if mag == 0 {
		return math.Hypot(p.Lng-start.Lng, p.Lat-start.Lat)
	}

	u := ((p.Lng-start.Lng)*dx + (p.Lat-start.Lat)*dy) / mag
	x := start.Lng + u*dx
	y := start.Lat + u*dy
	return math.Hypot(p.Lng-x, p.Lat-y)
}

// DouglasPeucker simplifies a polyline. The first and last points are always
// kept and every retained point is one of the inputs, altitude included.
// Inputs with fewer than three points are returned unchanged.
func DouglasPeucker(points []Point, epsilon float64) []Point {
	if len(points) < 3 {
		return points
	}

	first, last := points[0], points[len(points)-1]
	index := 0
	maxDist := 0.0
	for i := 1; i < len(points)-1; i++ {
		if d := PerpendicularDistance(points[i], first, last); d > maxDist {
			index = i
			maxDist = d
		}
	}

	// index stays 0 when every interior point lies on the chord, which a
	// negative or NaN epsilon would otherwise split on forever
	if index == 0 || maxDist <= epsilon {
		return []Point{first, last}
	}

	left := DouglasPeucker(points[:index+1], epsilon)
	right := DouglasPeucker(points[index:], epsilon)

	// left ends with the split point that right starts with
	out := make([]Point, 0, len(left)+len(right)-1)
	out = append(out, left[:len(left)-1]...)
	return append(out, right...)
}
