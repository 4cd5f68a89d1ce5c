// Package playback animates recorded aircraft positions over time. A Dot
// owns one callsign's timeline; a Player drives every Dot of a replay.
package playback

import (
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/saviobatista/vatsim-replay/internal/filter"
	"github.com/saviobatista/vatsim-replay/internal/frame"
	"github.com/saviobatista/vatsim-replay/internal/geo"
	"github.com/saviobatista/vatsim-replay/internal/logging"
	"github.com/saviobatista/vatsim-replay/internal/render"
	"github.com/saviobatista/vatsim-replay/internal/stats"
	"github.com/saviobatista/vatsim-replay/internal/types"
)

// State is the animation state of a Dot
type State int

const (
	Uninitialized State = iota
	Stopped
	Playing
	Completed
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Completed:
		return "completed"
	default:
		return "uninitialized"
	}
}

// Marker defaults
const (
	DefaultColor       = "#3388ff"
	DefaultRadius      = 5.0
	DefaultFillOpacity = 0.8
	DefaultWeight      = 1.0
)

// Options controls how a Dot is drawn
type Options struct {
	Color       string
	Radius      float64
	FillOpacity float64
	Weight      float64
}

// DefaultOptions returns the standard marker style
func DefaultOptions() Options {
	return Options{
		Color:       DefaultColor,
		Radius:      DefaultRadius,
		FillOpacity: DefaultFillOpacity,
		Weight:      DefaultWeight,
	}
}

// DotOption configures a Dot
type DotOption func(*Dot)

// WithOptions sets the marker style
func WithOptions(o Options) DotOption {
	return func(d *Dot) { d.opts = o }
}

// WithDotLogger sets the logger
func WithDotLogger(lg *logging.Logger) DotOption {
	return func(d *Dot) { d.lg = lg }
}

// WithDotStats counts frames and completions in s
func WithDotStats(s *stats.Stats) DotOption {
	return func(d *Dot) { d.stats = s }
}

// Dot animates a single callsign along its recorded positions.
//
// A Dot is Uninitialized until it has positions, Stopped at some elapsed
// time t, Playing while frames are requested, and Completed once t reaches
// the last position. All methods are safe for concurrent use.
type Dot struct {
	mu       sync.Mutex
	callsign string
	sched    frame.Scheduler
	lg       *logging.Logger
	stats    *stats.Stats
	opts     Options

	positions  []types.TimedPosition
	flightPlan *types.FlightPlan

	state      State
	elapsed    float64 // ms into the timeline
	speed      float64
	start      time.Time // wall time of elapsed 0 at the current speed
	handle     frame.Handle
	gen        uint64
	onComplete func()

	pos      types.LatLng
	altitude *int
	heading  *int
	active   bool // inside [first, last) of the timeline

	surface render.Surface
	marker  render.Marker
	visible bool // host visibility toggle
	shown   bool // what the marker was last told

	trail     trail
	showTrail bool
	trailLine render.Polyline

	track           *trackGeometry
	showTrack       bool
	trackByAltitude bool
	trackLines      []render.Polyline
}

// NewDot creates an Uninitialized Dot driven by sched
func NewDot(callsign string, sched frame.Scheduler, opts ...DotOption) *Dot {
	d := &Dot{
		callsign: callsign,
		sched:    sched,
		opts:     DefaultOptions(),
		speed:    1,
		visible:  true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Callsign returns the entity's callsign
func (d *Dot) Callsign() string {
	return d.callsign
}

// SetPositions replaces the timeline. Any animation is stopped, the dot goes
// back to the first position and the track is rebuilt.
func (d *Dot) SetPositions(positions []types.TimedPosition) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelFrameLocked()
	ps := slices.Clone(positions)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Time < ps[j].Time })
	d.positions = ps
	d.elapsed = 0
	d.onComplete = nil
	d.track = nil
	d.clearTrailLocked()

	if len(ps) == 0 {
		d.state = Uninitialized
		d.altitude, d.heading = nil, nil
		d.setActiveLocked(false)
	} else {
		d.state = Stopped
		d.moveToStartLocked()
	}
	d.redrawTrackLocked()
}

// Positions returns a copy of the timeline
func (d *Dot) Positions() []types.TimedPosition {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.positions)
}

// SetFlightPlan attaches the flight plan used by airport filtering
func (d *Dot) SetFlightPlan(fp types.FlightPlan) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flightPlan = &fp
}

// FlightPlan returns the attached flight plan
func (d *Dot) FlightPlan() (types.FlightPlan, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flightPlan == nil {
		return types.FlightPlan{}, false
	}
	return *d.flightPlan, true
}

// Animate starts playback at the given speed multiplier. With resume set
// playback continues from the current time, otherwise from 0. onComplete is
// called once when the end of the timeline is reached. Fewer than two
// positions make this a no-op.
func (d *Dot) Animate(speed float64, onComplete func(), resume bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.positions) < 2 {
		return
	}

	d.cancelFrameLocked()
	if speed > 0 && !math.IsInf(speed, 0) {
		d.speed = speed
	}
	if !resume || d.elapsed <= 0 {
		d.elapsed = 0
		d.clearTrailLocked()
	}
	d.start = d.startFor(d.sched.Now())
	d.onComplete = onComplete
	d.state = Playing
	d.scheduleLocked()
}

// Stop pauses playback, keeping the current time
func (d *Dot) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelFrameLocked()
	d.onComplete = nil
	if d.state == Playing {
		d.state = Stopped
	}
}

// Reset stops playback and returns to time 0 and the first position
func (d *Dot) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelFrameLocked()
	d.onComplete = nil
	d.elapsed = 0
	d.clearTrailLocked()
	if len(d.positions) == 0 {
		d.state = Uninitialized
		return
	}
	d.state = Stopped
	d.moveToStartLocked()
}

// SeekToTime jumps to ms on the timeline and applies it immediately. A
// playing dot keeps playing from there.
func (d *Dot) SeekToTime(ms int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.positions) == 0 {
		return
	}

	e := math.Max(float64(ms), 0)
	d.elapsed = e
	d.clearTrailLocked()
	ended := d.applyLocked(e)

	switch d.state {
	case Playing:
		d.start = d.startFor(d.sched.Now())
	case Completed:
		if !ended {
			d.state = Stopped
		}
	}
}

// CurrentPosition returns the displayed position; false until positions are set
func (d *Dot) CurrentPosition() (types.LatLng, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.positions) == 0 {
		return types.LatLng{}, false
	}
	return d.pos, true
}

// CurrentAltitude returns the displayed altitude, nil when unknown
func (d *Dot) CurrentAltitude() *int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyInt(d.altitude)
}

// CurrentHeading returns the displayed heading, nil when unknown
func (d *Dot) CurrentHeading() *int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyInt(d.heading)
}

// CurrentTime returns the elapsed time in ms as of the last applied frame
func (d *Dot) CurrentTime() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.elapsed)
}

// TotalDuration returns the time of the last position in ms
func (d *Dot) TotalDuration() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.positions) == 0 {
		return 0
	}
	return d.positions[len(d.positions)-1].Time
}

// State returns the animation state
func (d *Dot) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Speed returns the current speed multiplier
func (d *Dot) Speed() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speed
}

// Visible reports whether the dot is currently shown: inside its timeline
// and not hidden by the host
func (d *Dot) Visible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visible && d.active
}

// Trail returns a copy of the current trail points
func (d *Dot) Trail() []types.LatLng {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trail.snapshot()
}

// Track returns the simplified track as altitude coloured segments and as a
// single path
func (d *Dot) Track() ([]TrackSegment, []types.LatLng) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g := d.trackGeometryLocked()
	if g == nil {
		return nil, nil
	}
	return slices.Clone(g.segments), slices.Clone(g.path)
}

// MatchesAirportFilter applies a comma separated airport pattern list to the
// flight plan. An empty filter matches everything.
func (d *Dot) MatchesAirportFilter(filterText string, mode filter.Mode) bool {
	patterns := filter.ParseAirportFilter(filterText)

	d.mu.Lock()
	defer d.mu.Unlock()
	return filter.MatchesFlightPlan(d.flightPlan, patterns, mode)
}

// IsWithinAltitudeRange checks the displayed altitude against [min, max].
// An unknown altitude passes.
func (d *Dot) IsWithinAltitudeRange(min, max int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return filter.WithinAltitudeRange(d.altitude, min, max)
}

// Draw puts the dot on s, replacing anything drawn on a previous surface
func (d *Dot) Draw(s render.Surface) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.releaseLocked()
	d.surface = s
	d.shown = d.visible && d.active
	d.marker = s.AddMarker(render.MarkerOptions{
		Callsign:    d.callsign,
		Position:    d.pos,
		Color:       d.opts.Color,
		Radius:      d.opts.Radius,
		FillOpacity: d.opts.FillOpacity,
		Weight:      d.opts.Weight,
		Tooltip:     render.Tooltip(d.callsign, d.altitude, d.heading),
		Visible:     d.shown,
	})
	d.updateTrailLineLocked()
	d.redrawTrackLocked()
}

// Remove stops playback and takes everything off the surface
func (d *Dot) Remove() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelFrameLocked()
	d.onComplete = nil
	if d.state == Playing {
		d.state = Stopped
	}
	d.releaseLocked()
	d.surface = nil
}

// SetVisible shows or hides the dot with its trail and track
func (d *Dot) SetVisible(visible bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.visible == visible {
		return
	}
	d.visible = visible
	d.updateMarkerVisibilityLocked()
	d.updateTrailLineLocked()
	d.redrawTrackLocked()
}

// SetShowTrail turns the trail on or off
func (d *Dot) SetShowTrail(show bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.showTrail == show {
		return
	}
	d.showTrail = show
	d.updateTrailLineLocked()
}

// SetShowTrack turns the simplified track on or off
func (d *Dot) SetShowTrack(show bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.showTrack == show {
		return
	}
	d.showTrack = show
	d.redrawTrackLocked()
}

// SetTrackColoredByAltitude switches between altitude coloured segments and
// a single line. The simplified track is not recomputed.
func (d *Dot) SetTrackColoredByAltitude(byAltitude bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.trackByAltitude == byAltitude {
		return
	}
	d.trackByAltitude = byAltitude
	d.redrawTrackLocked()
}

func (d *Dot) startFor(now time.Time) time.Time {
	return now.Add(-time.Duration(d.elapsed / d.speed * float64(time.Millisecond)))
}

func (d *Dot) scheduleLocked() {
	gen := d.gen
	d.handle = d.sched.Request(func(now time.Time) { d.tick(gen, now) })
}

// cancelFrameLocked drops the pending frame; a frame already running for an
// older generation returns without doing anything
func (d *Dot) cancelFrameLocked() {
	if d.handle != 0 {
		d.sched.Cancel(d.handle)
		d.handle = 0
	}
	d.gen++
}

func (d *Dot) tick(gen uint64, now time.Time) {
	d.mu.Lock()
	if gen != d.gen || d.state != Playing {
		d.mu.Unlock()
		return
	}
	d.handle = 0

	e := float64(now.Sub(d.start)) / float64(time.Millisecond) * d.speed
	d.elapsed = e
	if !d.applyLocked(e) {
		d.scheduleLocked()
		d.mu.Unlock()
		if d.stats != nil {
			d.stats.IncrementFrames()
		}
		return
	}

	d.elapsed = float64(d.positions[len(d.positions)-1].Time)
	d.state = Completed
	cb := d.onComplete
	d.onComplete = nil
	d.mu.Unlock()

	d.lg.Debug("entity completed", "callsign", d.callsign)
	if d.stats != nil {
		d.stats.IncrementCompleted()
	}
	if cb != nil {
		cb()
	}
}

// applyLocked shows the dot at elapsed time e and reports whether e is at
// or past the end of the timeline
func (d *Dot) applyLocked(e float64) bool {
	ps := d.positions
	first, last := ps[0], ps[len(ps)-1]

	switch {
	case e < float64(first.Time):
		d.moveLocked(first.LatLng(), first.Altitude, first.Heading)
		d.setActiveLocked(false)
		return false

	case e >= float64(last.Time):
		d.moveLocked(last.LatLng(), last.Altitude, last.Heading)
		d.setActiveLocked(false)
		d.clearTrailLocked()
		return true
	}

	j := sort.Search(len(ps), func(i int) bool { return float64(ps[i].Time) > e })
	j = max(j, 1)
	prev, next := ps[j-1], ps[j]

	f := 1.0
	if dur := next.Time - prev.Time; dur > 0 {
		f = (e - float64(prev.Time)) / float64(dur)
	}

	alt := d.altitude
	if prev.Altitude != nil && next.Altitude != nil {
		alt = types.IntPtr(geo.RoundHalfUp(geo.Lerp(float64(*prev.Altitude), float64(*next.Altitude), f)))
	}
	hdg := d.heading
	if prev.Heading != nil && next.Heading != nil {
		hdg = types.IntPtr(geo.LerpHeading(*prev.Heading, *next.Heading, f))
	}

	p := types.LatLng{
		Lat: geo.Lerp(prev.Lat, next.Lat, f),
		Lng: geo.Lerp(prev.Lng, next.Lng, f),
	}
	d.moveLocked(p, alt, hdg)
	d.setActiveLocked(true)
	if d.trail.add(p) {
		d.updateTrailLineLocked()
	}
	return false
}

func (d *Dot) moveToStartLocked() {
	first := d.positions[0]
	d.moveLocked(first.LatLng(), first.Altitude, first.Heading)
	d.setActiveLocked(first.Time <= 0)
}

func (d *Dot) moveLocked(p types.LatLng, alt, hdg *int) {
	d.pos = p
	d.altitude = copyInt(alt)
	d.heading = copyInt(hdg)
	if d.marker != nil {
		d.marker.SetLatLng(p)
		d.marker.SetTooltip(render.Tooltip(d.callsign, d.altitude, d.heading))
	}
}

func (d *Dot) setActiveLocked(active bool) {
	d.active = active
	d.updateMarkerVisibilityLocked()
}

func (d *Dot) updateMarkerVisibilityLocked() {
	shown := d.visible && d.active
	if d.marker != nil && shown != d.shown {
		d.marker.SetVisible(shown)
	}
	d.shown = shown
}

func (d *Dot) clearTrailLocked() {
	d.trail.clear()
	d.updateTrailLineLocked()
}

func (d *Dot) updateTrailLineLocked() {
	if d.surface == nil {
		return
	}
	if !d.showTrail || !d.visible || len(d.trail.points) < 2 {
		if d.trailLine != nil {
			d.trailLine.Remove()
			d.trailLine = nil
		}
		return
	}

	if d.trailLine == nil {
		d.trailLine = d.surface.AddPolyline(d.trail.snapshot(), render.PolylineOptions{
			Callsign: d.callsign,
			Kind:     render.KindTrail,
			Color:    d.opts.Color,
			Weight:   2,
			Opacity:  0.6,
		})
		return
	}
	d.trailLine.SetPoints(d.trail.snapshot())
}

func (d *Dot) trackGeometryLocked() *trackGeometry {
	if d.track == nil && len(d.positions) >= 2 {
		d.track = buildTrack(d.positions)
	}
	return d.track
}

func (d *Dot) redrawTrackLocked() {
	for _, l := range d.trackLines {
		l.Remove()
	}
	d.trackLines = nil

	if d.surface == nil || !d.showTrack || !d.visible {
		return
	}
	g := d.trackGeometryLocked()
	if g == nil {
		return
	}

	if d.trackByAltitude {
		for _, seg := range g.segments {
			d.trackLines = append(d.trackLines, d.surface.AddPolyline(
				[]types.LatLng{seg.From, seg.To},
				render.PolylineOptions{Callsign: d.callsign, Kind: render.KindTrack, Color: seg.Color, Weight: 2, Opacity: 0.7},
			))
		}
		return
	}
	d.trackLines = append(d.trackLines, d.surface.AddPolyline(
		slices.Clone(g.path),
		render.PolylineOptions{Callsign: d.callsign, Kind: render.KindTrack, Color: d.opts.Color, Weight: 2, Opacity: 0.7},
	))
}

func (d *Dot) releaseLocked() {
	if d.marker != nil {
		d.marker.Remove()
		d.marker = nil
	}
	if d.trailLine != nil {
		d.trailLine.Remove()
		d.trailLine = nil
	}
	for _, l := range d.trackLines {
		l.Remove()
	}
	d.trackLines = nil
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
