package render

import (
	"testing"

	"github.com/saviobatista/vatsim-replay/internal/types"
)

func TestTooltip(t *testing.T) {
	tests := []struct {
		name     string
		alt, hdg *int
		want     string
	}{
		{"callsign only", nil, nil, "BAW123"},
		{"all", types.IntPtr(35000), types.IntPtr(270), "BAW123<br>Alt: 35000 ft<br>Hdg: 270°"},
		{"zero altitude hidden", types.IntPtr(0), types.IntPtr(0), "BAW123<br>Hdg: 0°"},
		{"altitude only", types.IntPtr(1500), nil, "BAW123<br>Alt: 1500 ft"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Tooltip("BAW123", tt.alt, tt.hdg); got != tt.want {
				t.Errorf("Tooltip() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecorder_Markers(t *testing.T) {
	r := NewRecorder()
	m := r.AddMarker(MarkerOptions{Callsign: "A", Position: types.LatLng{Lat: 1, Lng: 2}, Visible: true})
	r.AddMarker(MarkerOptions{Callsign: "B"})

	m.SetLatLng(types.LatLng{Lat: 3, Lng: 4})
	m.SetTooltip("A<br>Hdg: 90°")
	m.SetVisible(false)

	got := r.Marker("A")
	if got == nil {
		t.Fatal("Marker(A) = nil")
	}
	if got.Position() != (types.LatLng{Lat: 3, Lng: 4}) || got.Moves() != 1 {
		t.Errorf("Position() = %v, Moves() = %d", got.Position(), got.Moves())
	}
	if got.Visible() || got.Tooltip() != "A<br>Hdg: 90°" {
		t.Errorf("Visible() = %v, Tooltip() = %q", got.Visible(), got.Tooltip())
	}

	m.Remove()
	m.Remove()
	if r.Marker("A") != nil {
		t.Error("Marker(A) found after Remove()")
	}
	if r.LiveMarkers() != 1 {
		t.Errorf("LiveMarkers() = %d, want 1", r.LiveMarkers())
	}
}

func TestRecorder_Polylines(t *testing.T) {
	r := NewRecorder()
	pts := []types.LatLng{{Lat: 1}, {Lat: 2}}
	p := r.AddPolyline(pts, PolylineOptions{Callsign: "A", Kind: KindTrail})
	r.AddPolyline(nil, PolylineOptions{Callsign: "A", Kind: KindTrack})

	pts[0].Lat = 99
	lines := r.Polylines("A", KindTrail)
	if len(lines) != 1 {
		t.Fatalf("Polylines(A, trail) = %d lines, want 1", len(lines))
	}
	if lines[0].Points()[0].Lat != 1 {
		t.Error("Recorder kept a reference to the caller's slice")
	}

	p.SetPoints([]types.LatLng{{Lat: 5}})
	if got := lines[0].Points(); len(got) != 1 || got[0].Lat != 5 {
		t.Errorf("Points() = %v after SetPoints", got)
	}

	p.Remove()
	if len(r.Polylines("A", KindTrail)) != 0 || r.LivePolylines() != 1 {
		t.Errorf("after Remove() trail lines = %d, live = %d", len(r.Polylines("A", KindTrail)), r.LivePolylines())
	}
}

func TestEventSurface(t *testing.T) {
	var events []types.RenderEvent
	s := NewEventSurface(func(ev types.RenderEvent) { events = append(events, ev) })

	m := s.AddMarker(MarkerOptions{Callsign: "BAW1", Visible: true})
	m.SetLatLng(types.LatLng{Lat: 1, Lng: 2})
	m.SetVisible(false)
	m.Remove()
	m.Remove()
	m.SetLatLng(types.LatLng{})

	p := s.AddPolyline([]types.LatLng{{Lat: 1}}, PolylineOptions{Callsign: "BAW1", Kind: KindTrack})
	p.SetPoints(nil)
	p.Remove()

	wantKinds := []string{
		types.RenderMarkerAdded,
		types.RenderMarkerMoved,
		types.RenderMarkerVisible,
		types.RenderMarkerRemoved,
		types.RenderPolylineAdded,
		types.RenderPolylineUpdate,
		types.RenderPolylineRemove,
	}
	if len(events) != len(wantKinds) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(wantKinds), events)
	}
	for i, k := range wantKinds {
		if events[i].Kind != k {
			t.Errorf("event %d kind = %s, want %s", i, events[i].Kind, k)
		}
		if events[i].Callsign != "BAW1" {
			t.Errorf("event %d callsign = %s, want BAW1", i, events[i].Callsign)
		}
		if events[i].Timestamp.IsZero() {
			t.Errorf("event %d has no timestamp", i)
		}
	}
	if events[0].ID == events[4].ID || events[0].ID != events[3].ID {
		t.Error("marker and polyline ids not distinct or not stable")
	}
}
