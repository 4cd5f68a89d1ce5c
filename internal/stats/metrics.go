package stats

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vatsim_replay"

func (s *Stats) counter(name, help string, v *uint64) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(atomic.LoadUint64(v)) })
}

// Collectors exposes the statistics as Prometheus collectors
func (s *Stats) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		s.counter("replays_loaded_total", "Replay files parsed.", &s.ReplaysLoaded),
		s.counter("lines_total", "Replay log lines read.", &s.TotalLines),
		s.counter("position_records_total", "Position records accepted.", &s.PositionRecords),
		s.counter("flight_plans_total", "Flight plan records accepted.", &s.FlightPlans),
		s.counter("skipped_lines_total", "Malformed lines skipped.", &s.SkippedLines),
		s.counter("frames_total", "Entity frames rendered.", &s.FramesRendered),
		s.counter("completed_entities_total", "Entities that reached the end of their timeline.", &s.CompletedEntities),
		s.counter("cache_hits_total", "Parse cache hits.", &s.CacheHits),
		s.counter("cache_misses_total", "Parse cache misses.", &s.CacheMisses),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "callsigns",
			Help:      "Callsigns loaded across all replays.",
		}, func() float64 { return float64(atomic.LoadUint64(&s.Callsigns)) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "parse_seconds",
			Help:      "Total time spent parsing replay files.",
		}, func() float64 {
			s.mu.RLock()
			defer s.mu.RUnlock()
			return s.ParseTime.Seconds()
		}),
	}
}

// Register registers every collector with reg
func (s *Stats) Register(reg prometheus.Registerer) error {
	for _, c := range s.Collectors() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}

// WriteTextfile writes the statistics in the Prometheus text format, for
// pickup by a node exporter textfile collector
func (s *Stats) WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()
	if err := s.Register(reg); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
