package playback

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/saviobatista/vatsim-replay/internal/filter"
	"github.com/saviobatista/vatsim-replay/internal/frame"
	"github.com/saviobatista/vatsim-replay/internal/logging"
	"github.com/saviobatista/vatsim-replay/internal/render"
	"github.com/saviobatista/vatsim-replay/internal/stats"
	"github.com/saviobatista/vatsim-replay/internal/types"
)

// Speed limits for DoubleSpeed and HalveSpeed
const (
	MinSpeed = 0.125
	MaxSpeed = 64.0
)

// Default altitude filter bounds
const (
	DefaultMinAltitude = 0
	DefaultMaxAltitude = 60000
)

// ErrInvalidSpeed is returned by SetSpeed for non-positive or non-finite speeds
var ErrInvalidSpeed = errors.New("speed must be a positive finite number")

// EntityState is a point-in-time view of one entity
type EntityState struct {
	Callsign string       `json:"callsign"`
	Position types.LatLng `json:"position"`
	Altitude *int         `json:"altitude,omitempty"`
	Heading  *int         `json:"heading,omitempty"`
	Time     int64        `json:"time"`
	State    string       `json:"state"`
	Visible  bool         `json:"visible"`
}

// PlayerOption configures a Player
type PlayerOption func(*Player)

// WithLogger sets the player logger, shared with its dots
func WithLogger(lg *logging.Logger) PlayerOption {
	return func(p *Player) { p.lg = lg }
}

// WithStats counts frames and completions in s
func WithStats(s *stats.Stats) PlayerOption {
	return func(p *Player) { p.stats = s }
}

// WithSurface draws every dot on s
func WithSurface(s render.Surface) PlayerOption {
	return func(p *Player) { p.surface = s }
}

// WithDotOptions sets the marker style of every dot
func WithDotOptions(o Options) PlayerOption {
	return func(p *Player) { p.dotOpts = o }
}

// Player drives one Dot per callsign of a replay and mirrors transport
// controls onto all of them.
type Player struct {
	mu      sync.Mutex
	name    string
	sched   frame.Scheduler
	surface render.Surface
	lg      *logging.Logger
	stats   *stats.Stats
	dotOpts Options

	replay   *types.ParsedReplay
	dots     map[string]*Dot
	order    []string
	duration int64

	speed   float64
	playing bool
	pos     int64     // timeline ms when last paused or started
	start   time.Time // wall time pos was taken at while playing

	gen        uint64
	remaining  int
	onFinished func()

	airportFilter string
	filterMode    filter.Mode
	minAltitude   int
	maxAltitude   int
	fileVisible   bool

	showTrails       bool
	showTracks       bool
	tracksByAltitude bool
}

// NewPlayer creates an empty player named after its replay file
func NewPlayer(name string, sched frame.Scheduler, opts ...PlayerOption) *Player {
	p := &Player{
		name:        name,
		sched:       sched,
		dotOpts:     DefaultOptions(),
		dots:        make(map[string]*Dot),
		speed:       1,
		filterMode:  filter.Either,
		minAltitude: DefaultMinAltitude,
		maxAltitude: DefaultMaxAltitude,
		fileVisible: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the replay name
func (p *Player) Name() string {
	return p.name
}

// Load replaces the current replay, creating one dot per callsign
func (p *Player) Load(replay *types.ParsedReplay) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closeLocked()
	if replay == nil {
		replay = types.NewParsedReplay()
	}
	p.replay = replay
	p.duration = replay.TimeRange.Duration()
	p.order = replay.Callsigns()

	for _, cs := range p.order {
		d := NewDot(cs, p.sched,
			WithOptions(p.dotOpts),
			WithDotLogger(p.lg),
			WithDotStats(p.stats),
		)
		d.SetPositions(replay.Positions[cs])
		if fp, ok := replay.FlightPlan(cs); ok {
			d.SetFlightPlan(fp)
		}
		d.SetShowTrail(p.showTrails)
		d.SetShowTrack(p.showTracks)
		d.SetTrackColoredByAltitude(p.tracksByAltitude)
		if p.surface != nil {
			d.Draw(p.surface)
		}
		p.dots[cs] = d
	}
	p.applyFiltersLocked()

	p.lg.Info("replay loaded", "name", p.name, "callsigns", len(p.order), "duration_ms", p.duration)
}

// Replay returns the loaded replay
func (p *Player) Replay() *types.ParsedReplay {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.replay
}

// Callsigns returns the loaded callsigns in sorted order
func (p *Player) Callsigns() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

// Dot returns the dot for callsign
func (p *Player) Dot(callsign string) (*Dot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.dots[callsign]
	return d, ok
}

// OnFinished sets a callback run once every entity has completed
func (p *Player) OnFinished(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFinished = fn
}

// Play starts or resumes playback. A speed of 0 keeps the current speed.
// Playing from the end starts over.
func (p *Player) Play(speed float64) {
	p.mu.Lock()
	valid := speed > 0 && !math.IsInf(speed, 0)
	if p.playing {
		if valid && speed != p.speed {
			p.setSpeedLocked(speed)
		}
		p.mu.Unlock()
		return
	}
	if valid {
		p.speed = speed
	}
	if len(p.dots) == 0 {
		p.mu.Unlock()
		return
	}
	if p.pos >= p.duration {
		p.resetLocked()
	}

	p.gen++
	p.playing = true
	p.start = p.sched.Now()
	p.remaining = 0
	p.animateLocked()

	done := p.finishIfIdleLocked()
	p.mu.Unlock()

	if done != nil {
		done()
	}
}

// Pause stops playback at the current time
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseLocked()
}

// Playing reports whether playback is running
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Speed returns the speed multiplier
func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// SetSpeed changes the speed multiplier, applying it to running dots
func (p *Player) SetSpeed(speed float64) error {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.setSpeedLocked(speed)
	return nil
}

// setSpeedLocked rebases the player clock at the old speed and hands the new
// speed to every running dot
func (p *Player) setSpeedLocked(speed float64) {
	if !p.playing {
		p.speed = speed
		return
	}
	p.pos = p.currentTimeLocked()
	p.start = p.sched.Now()
	p.speed = speed
	gen := p.gen
	for _, cs := range p.order {
		d := p.dots[cs]
		if d.State() == Playing {
			d.Animate(speed, p.completion(gen), true)
		}
	}
}

// DoubleSpeed doubles the speed up to MaxSpeed
func (p *Player) DoubleSpeed() float64 {
	s := math.Min(p.Speed()*2, MaxSpeed)
	_ = p.SetSpeed(s)
	return s
}

// HalveSpeed halves the speed down to MinSpeed
func (p *Player) HalveSpeed() float64 {
	s := math.Max(p.Speed()/2, MinSpeed)
	_ = p.SetSpeed(s)
	return s
}

// Seek jumps every entity to ms, continuing playback if it was running
func (p *Player) Seek(ms int64) {
	p.mu.Lock()
	wasPlaying := p.playing
	p.pauseLocked()

	ms = max(0, min(ms, p.duration))
	for _, cs := range p.order {
		p.dots[cs].SeekToTime(ms)
	}
	p.pos = ms
	p.applyFiltersLocked()
	p.mu.Unlock()

	if wasPlaying && ms < p.Duration() {
		p.Play(0)
	}
}

// Reset stops playback and returns every entity to time 0
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	p.applyFiltersLocked()
}

// CurrentTime returns the playback time in ms
func (p *Player) CurrentTime() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTimeLocked()
}

// Duration returns the replay length in ms
func (p *Player) Duration() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// Clock returns the time of day shown at the current playback time
func (p *Player) Clock() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var origin int64
	if p.replay != nil {
		origin = p.replay.Origin
	}
	return FormatClock(origin + p.currentTimeLocked())
}

// Timeline returns elapsed and total playback time as "HH:MM:SS / HH:MM:SS"
func (p *Player) Timeline() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return FormatClock(p.currentTimeLocked()) + " / " + FormatClock(p.duration)
}

// FormatClock formats ms as HH:MM:SS, wrapping at 24 hours
func FormatClock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	s := (ms / 1000) % 86400
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}

// SetAirportFilter sets the comma separated airport pattern list and the
// flight plan field it is matched against
func (p *Player) SetAirportFilter(patterns string, mode filter.Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.airportFilter = patterns
	p.filterMode = mode
	p.applyFiltersLocked()
}

// SetAltitudeRange sets the inclusive altitude filter
func (p *Player) SetAltitudeRange(minAlt, maxAlt int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minAltitude = minAlt
	p.maxAltitude = maxAlt
	p.applyFiltersLocked()
}

// SetFileVisible shows or hides every entity of this replay
func (p *Player) SetFileVisible(visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fileVisible = visible
	p.applyFiltersLocked()
}

// SetShowTrails toggles trails on every entity
func (p *Player) SetShowTrails(show bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.showTrails = show
	for _, d := range p.dots {
		d.SetShowTrail(show)
	}
}

// SetShowTracks toggles simplified tracks on every entity
func (p *Player) SetShowTracks(show bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.showTracks = show
	for _, d := range p.dots {
		d.SetShowTrack(show)
	}
}

// SetTracksColoredByAltitude switches track colouring on every entity
func (p *Player) SetTracksColoredByAltitude(byAltitude bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracksByAltitude = byAltitude
	for _, d := range p.dots {
		d.SetTrackColoredByAltitude(byAltitude)
	}
}

// Refresh re-evaluates filters that depend on the current altitude. Hosts
// call it periodically while playing.
func (p *Player) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyFiltersLocked()
}

// Visible returns the callsigns currently shown, in sorted order
func (p *Player) Visible() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []string
	for _, cs := range p.order {
		if p.dots[cs].Visible() {
			out = append(out, cs)
		}
	}
	return out
}

// Snapshot returns the state of every entity in callsign order
func (p *Player) Snapshot() []EntityState {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]EntityState, 0, len(p.order))
	for _, cs := range p.order {
		d := p.dots[cs]
		pos, _ := d.CurrentPosition()
		out = append(out, EntityState{
			Callsign: cs,
			Position: pos,
			Altitude: d.CurrentAltitude(),
			Heading:  d.CurrentHeading(),
			Time:     d.CurrentTime(),
			State:    d.State().String(),
			Visible:  d.Visible(),
		})
	}
	return out
}

// Close stops playback and removes every entity from the surface
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Player) closeLocked() {
	p.gen++
	p.playing = false
	for _, d := range p.dots {
		d.Remove()
	}
	p.dots = make(map[string]*Dot)
	p.order = nil
	p.replay = nil
	p.duration = 0
	p.pos = 0
	p.remaining = 0
}

func (p *Player) pauseLocked() {
	if !p.playing {
		return
	}
	p.pos = p.currentTimeLocked()
	p.playing = false
	p.gen++
	for _, d := range p.dots {
		d.Stop()
	}
}

func (p *Player) resetLocked() {
	p.gen++
	p.playing = false
	p.pos = 0
	for _, d := range p.dots {
		d.Reset()
	}
}

func (p *Player) animateLocked() {
	gen := p.gen
	for _, cs := range p.order {
		d := p.dots[cs]
		if d.State() == Completed {
			continue
		}
		d.Animate(p.speed, p.completion(gen), true)
		if d.State() == Playing {
			p.remaining++
		}
	}
}

func (p *Player) currentTimeLocked() int64 {
	if !p.playing {
		return p.pos
	}
	e := p.pos + int64(float64(p.sched.Now().Sub(p.start))/float64(time.Millisecond)*p.speed)
	return min(e, p.duration)
}

// completion returns the per-entity completion callback for generation gen
func (p *Player) completion(gen uint64) func() {
	return func() {
		p.mu.Lock()
		if gen != p.gen || !p.playing {
			p.mu.Unlock()
			return
		}
		p.remaining--
		done := p.finishIfIdleLocked()
		p.mu.Unlock()

		if done != nil {
			done()
		}
	}
}

// finishIfIdleLocked ends playback once nothing is left running and returns
// the finished callback to run after unlocking
func (p *Player) finishIfIdleLocked() func() {
	if !p.playing || p.remaining > 0 {
		return nil
	}
	p.playing = false
	p.pos = p.duration
	p.gen++
	p.lg.Info("replay finished", "name", p.name)
	return p.onFinished
}

func (p *Player) applyFiltersLocked() {
	for _, cs := range p.order {
		d := p.dots[cs]
		show := p.fileVisible &&
			d.MatchesAirportFilter(p.airportFilter, p.filterMode) &&
			d.IsWithinAltitudeRange(p.minAltitude, p.maxAltitude)
		d.SetVisible(show)
	}
}
