package stats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saviobatista/vatsim-replay/internal/types"
)

// Persister stores a statistics snapshot, e.g. the archive database
type Persister interface {
	StoreRunStats(stats map[string]interface{}) error
}

// Stats tracks parsing and playback statistics
type Stats struct {
	// Parsing
	ReplaysLoaded   uint64
	TotalLines      uint64
	PositionRecords uint64
	FlightPlans     uint64
	SkippedLines    uint64
	Callsigns       uint64

	// Playback
	FramesRendered    uint64
	CompletedEntities uint64

	// Parse cache
	CacheHits   uint64
	CacheMisses uint64

	// Timing
	StartTime     time.Time
	LastParseTime time.Time
	ParseTime     time.Duration

	db Persister

	mu sync.RWMutex
}

// New creates a new Stats instance
func New() *Stats {
	return &Stats{
		StartTime: time.Now(),
	}
}

// SetPersister sets where Persist writes snapshots
func (s *Stats) SetPersister(p Persister) {
	s.mu.Lock()
	s.db = p
	s.mu.Unlock()
}

// Persist stores the current statistics
func (s *Stats) Persist() error {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return fmt.Errorf("statistics persister not set")
	}

	return db.StoreRunStats(s.GetStats())
}

// AddParse records the outcome of parsing one replay file
func (s *Stats) AddParse(ps types.ParseStats, callsigns int, took time.Duration) {
	atomic.AddUint64(&s.ReplaysLoaded, 1)
	atomic.AddUint64(&s.TotalLines, uint64(ps.Lines))
	atomic.AddUint64(&s.PositionRecords, uint64(ps.PositionRecords))
	atomic.AddUint64(&s.FlightPlans, uint64(ps.FlightPlans))
	atomic.AddUint64(&s.SkippedLines, uint64(ps.Skipped))
	atomic.AddUint64(&s.Callsigns, uint64(callsigns))

	s.mu.Lock()
	s.LastParseTime = time.Now()
	s.ParseTime += took
	s.mu.Unlock()
}

// IncrementFrames increments the rendered frames counter
func (s *Stats) IncrementFrames() {
	atomic.AddUint64(&s.FramesRendered, 1)
}

// IncrementCompleted increments the completed entities counter
func (s *Stats) IncrementCompleted() {
	atomic.AddUint64(&s.CompletedEntities, 1)
}

// IncrementCacheHits increments the parse cache hit counter
func (s *Stats) IncrementCacheHits() {
	atomic.AddUint64(&s.CacheHits, 1)
}

// IncrementCacheMisses increments the parse cache miss counter
func (s *Stats) IncrementCacheMisses() {
	atomic.AddUint64(&s.CacheMisses, 1)
}

// GetStats returns a copy of the current statistics
func (s *Stats) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"replays_loaded":     atomic.LoadUint64(&s.ReplaysLoaded),
		"total_lines":        atomic.LoadUint64(&s.TotalLines),
		"position_records":   atomic.LoadUint64(&s.PositionRecords),
		"flight_plans":       atomic.LoadUint64(&s.FlightPlans),
		"skipped_lines":      atomic.LoadUint64(&s.SkippedLines),
		"callsigns":          atomic.LoadUint64(&s.Callsigns),
		"frames_rendered":    atomic.LoadUint64(&s.FramesRendered),
		"completed_entities": atomic.LoadUint64(&s.CompletedEntities),
		"cache_hits":         atomic.LoadUint64(&s.CacheHits),
		"cache_misses":       atomic.LoadUint64(&s.CacheMisses),
		"last_parse_time":    s.LastParseTime,
		"parse_time":         s.ParseTime,
		"uptime":             time.Since(s.StartTime),
	}
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	stats := s.GetStats()
	return fmt.Sprintf(
		"Replays Loaded: %d\n"+
			"Total Lines: %d\n"+
			"Position Records: %d\n"+
			"Flight Plans: %d\n"+
			"Skipped Lines: %d\n"+
			"Callsigns: %d\n"+
			"Frames Rendered: %d\n"+
			"Completed Entities: %d\n"+
			"Cache Hits: %d\n"+
			"Cache Misses: %d\n"+
			"Parse Time: %s\n"+
			"Uptime: %s",
		stats["replays_loaded"],
		stats["total_lines"],
		stats["position_records"],
		stats["flight_plans"],
		stats["skipped_lines"],
		stats["callsigns"],
		stats["frames_rendered"],
		stats["completed_entities"],
		stats["cache_hits"],
		stats["cache_misses"],
		stats["parse_time"],
		stats["uptime"],
	)
}

// StartPersistence periodically persists statistics until ctx is done, with
// a final snapshot on the way out
func (s *Stats) StartPersistence(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.Persist(); err != nil {
				fmt.Printf("Failed to persist final statistics: %v\n", err)
			}
			return
		case <-ticker.C:
			if err := s.Persist(); err != nil {
				fmt.Printf("Failed to persist statistics: %v\n", err)
			}
		}
	}
}
