package render

import (
	"slices"
	"sync"

	"github.com/saviobatista/vatsim-replay/internal/types"
)

// Recorder is a Surface that keeps everything drawn on it in memory
type Recorder struct {
	mu        sync.Mutex
	markers   []*RecordedMarker
	polylines []*RecordedPolyline
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordedMarker is a marker drawn on a Recorder
type RecordedMarker struct {
	rec      *Recorder
	options  MarkerOptions
	position types.LatLng
	tooltip  string
	visible  bool
	removed  bool
	moves    int
}

// RecordedPolyline is a polyline drawn on a Recorder
type RecordedPolyline struct {
	rec     *Recorder
	options PolylineOptions
	points  []types.LatLng
	removed bool
}

func (r *Recorder) AddMarker(opts MarkerOptions) Marker {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := &RecordedMarker{
		rec:      r,
		options:  opts,
		position: opts.Position,
		tooltip:  opts.Tooltip,
		visible:  opts.Visible,
	}
	r.markers = append(r.markers, m)
	return m
}

func (r *Recorder) AddPolyline(points []types.LatLng, opts PolylineOptions) Polyline {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &RecordedPolyline{rec: r, options: opts, points: slices.Clone(points)}
	r.polylines = append(r.polylines, p)
	return p
}

// Marker returns the live marker for callsign, or nil
func (r *Recorder) Marker(callsign string) *RecordedMarker {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.markers) - 1; i >= 0; i-- {
		if m := r.markers[i]; !m.removed && m.options.Callsign == callsign {
			return m
		}
	}
	return nil
}

// LiveMarkers returns the number of markers not yet removed
func (r *Recorder) LiveMarkers() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, m := range r.markers {
		if !m.removed {
			n++
		}
	}
	return n
}

// Polylines returns the live polylines of the given kind for callsign
func (r *Recorder) Polylines(callsign, kind string) []*RecordedPolyline {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*RecordedPolyline
	for _, p := range r.polylines {
		if !p.removed && p.options.Callsign == callsign && p.options.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// LivePolylines returns the number of polylines not yet removed
func (r *Recorder) LivePolylines() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, p := range r.polylines {
		if !p.removed {
			n++
		}
	}
	return n
}

func (m *RecordedMarker) SetLatLng(p types.LatLng) {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	m.position = p
	m.moves++
}

func (m *RecordedMarker) SetTooltip(text string) {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	m.tooltip = text
}

func (m *RecordedMarker) SetVisible(visible bool) {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	m.visible = visible
}

func (m *RecordedMarker) Remove() {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	m.removed = true
}

func (m *RecordedMarker) Options() MarkerOptions {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	return m.options
}

func (m *RecordedMarker) Position() types.LatLng {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	return m.position
}

func (m *RecordedMarker) Tooltip() string {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	return m.tooltip
}

func (m *RecordedMarker) Visible() bool {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	return m.visible
}

func (m *RecordedMarker) Removed() bool {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	return m.removed
}

// Moves counts SetLatLng calls
func (m *RecordedMarker) Moves() int {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	return m.moves
}

func (p *RecordedPolyline) SetPoints(points []types.LatLng) {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	p.points = slices.Clone(points)
}

func (p *RecordedPolyline) Remove() {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	p.removed = true
}

func (p *RecordedPolyline) Options() PolylineOptions {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	return p.options
}

func (p *RecordedPolyline) Points() []types.LatLng {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	return slices.Clone(p.points)
}

func (p *RecordedPolyline) Removed() bool {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	return p.removed
}
