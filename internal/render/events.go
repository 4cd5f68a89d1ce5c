package render

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saviobatista/vatsim-replay/internal/types"
)

// Sink receives render events. It is called synchronously from the
// engine's frame goroutine and should not block for long.
type Sink func(types.RenderEvent)

// EventSurface is a Surface that turns every mutation into a RenderEvent
type EventSurface struct {
	sink Sink
	now  func() time.Time
}

// NewEventSurface creates a Surface that reports to sink
func NewEventSurface(sink Sink) *EventSurface {
	return &EventSurface{sink: sink, now: time.Now}
}

type eventMarker struct {
	s        *EventSurface
	id       string
	callsign string

	mu      sync.Mutex
	removed bool
}

type eventPolyline struct {
	s        *EventSurface
	id       string
	callsign string
	kind     string

	mu      sync.Mutex
	removed bool
}

func (s *EventSurface) emit(ev types.RenderEvent) {
	ev.Timestamp = s.now()
	s.sink(ev)
}

func (s *EventSurface) AddMarker(opts MarkerOptions) Marker {
	m := &eventMarker{s: s, id: uuid.NewString(), callsign: opts.Callsign}
	pos := opts.Position
	visible := opts.Visible
	s.emit(types.RenderEvent{
		Kind:     types.RenderMarkerAdded,
		ID:       m.id,
		Callsign: opts.Callsign,
		Position: &pos,
		Tooltip:  opts.Tooltip,
		Visible:  &visible,
		Color:    opts.Color,
	})
	return m
}

func (s *EventSurface) AddPolyline(points []types.LatLng, opts PolylineOptions) Polyline {
	p := &eventPolyline{s: s, id: uuid.NewString(), callsign: opts.Callsign, kind: opts.Kind}
	s.emit(types.RenderEvent{
		Kind:     types.RenderPolylineAdded,
		ID:       p.id,
		Callsign: opts.Callsign,
		Points:   slices.Clone(points),
		Color:    opts.Color,
		Layer:    opts.Kind,
	})
	return p
}

// live reports whether the marker may still emit; removal flips it once
func (m *eventMarker) live(remove bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		return false
	}
	if remove {
		m.removed = true
	}
	return true
}

func (m *eventMarker) SetLatLng(p types.LatLng) {
	if m.live(false) {
		m.s.emit(types.RenderEvent{Kind: types.RenderMarkerMoved, ID: m.id, Callsign: m.callsign, Position: &p})
	}
}

func (m *eventMarker) SetTooltip(text string) {
	if m.live(false) {
		m.s.emit(types.RenderEvent{Kind: types.RenderMarkerTooltip, ID: m.id, Callsign: m.callsign, Tooltip: text})
	}
}

func (m *eventMarker) SetVisible(visible bool) {
	if m.live(false) {
		m.s.emit(types.RenderEvent{Kind: types.RenderMarkerVisible, ID: m.id, Callsign: m.callsign, Visible: &visible})
	}
}

func (m *eventMarker) Remove() {
	if m.live(true) {
		m.s.emit(types.RenderEvent{Kind: types.RenderMarkerRemoved, ID: m.id, Callsign: m.callsign})
	}
}

func (p *eventPolyline) live(remove bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removed {
		return false
	}
	if remove {
		p.removed = true
	}
	return true
}

func (p *eventPolyline) SetPoints(points []types.LatLng) {
	if p.live(false) {
		p.s.emit(types.RenderEvent{
			Kind:     types.RenderPolylineUpdate,
			ID:       p.id,
			Callsign: p.callsign,
			Points:   slices.Clone(points),
			Layer:    p.kind,
		})
	}
}

func (p *eventPolyline) Remove() {
	if p.live(true) {
		p.s.emit(types.RenderEvent{Kind: types.RenderPolylineRemove, ID: p.id, Callsign: p.callsign, Layer: p.kind})
	}
}
