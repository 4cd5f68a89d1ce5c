package stats

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/saviobatista/vatsim-replay/internal/types"
)

type fakePersister struct {
	mu    sync.Mutex
	calls int
	last  map[string]interface{}
	err   error
}

func (f *fakePersister) StoreRunStats(stats map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = stats
	return f.err
}

func (f *fakePersister) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestNew(t *testing.T) {
	stats := New()

	if stats == nil {
		t.Fatal("New() returned nil")
	}
	if stats.TotalLines != 0 || stats.FramesRendered != 0 {
		t.Errorf("New() counters not zero: %+v", stats.GetStats())
	}
	if time.Since(stats.StartTime) > 5*time.Second {
		t.Error("StartTime should be recent")
	}
}

func TestAddParse(t *testing.T) {
	stats := New()
	stats.AddParse(types.ParseStats{Lines: 10, PositionRecords: 4, FlightPlans: 2, Skipped: 1}, 3, 20*time.Millisecond)
	stats.AddParse(types.ParseStats{Lines: 5, PositionRecords: 1}, 1, 10*time.Millisecond)

	got := stats.GetStats()
	want := map[string]uint64{
		"replays_loaded":   2,
		"total_lines":      15,
		"position_records": 5,
		"flight_plans":     2,
		"skipped_lines":    1,
		"callsigns":        4,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("GetStats()[%q] = %v, want %v", k, got[k], v)
		}
	}
	if got["parse_time"] != 30*time.Millisecond {
		t.Errorf("parse_time = %v, want 30ms", got["parse_time"])
	}
	if stats.LastParseTime.IsZero() {
		t.Error("LastParseTime not set")
	}
}

func TestIncrementers(t *testing.T) {
	stats := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats.IncrementFrames()
			stats.IncrementCompleted()
			stats.IncrementCacheHits()
			stats.IncrementCacheMisses()
		}()
	}
	wg.Wait()

	got := stats.GetStats()
	for _, k := range []string{"frames_rendered", "completed_entities", "cache_hits", "cache_misses"} {
		if got[k] != uint64(10) {
			t.Errorf("GetStats()[%q] = %v, want 10", k, got[k])
		}
	}
}

func TestString(t *testing.T) {
	stats := New()
	stats.IncrementFrames()

	s := stats.String()
	for _, want := range []string{"Replays Loaded: 0", "Frames Rendered: 1", "Uptime:"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() missing %q:\n%s", want, s)
		}
	}
}

func TestPersist(t *testing.T) {
	stats := New()
	if err := stats.Persist(); err == nil {
		t.Error("Persist() without persister should fail")
	}

	p := &fakePersister{}
	stats.SetPersister(p)
	stats.IncrementCompleted()
	if err := stats.Persist(); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if p.last["completed_entities"] != uint64(1) {
		t.Errorf("persisted completed_entities = %v, want 1", p.last["completed_entities"])
	}

	p.err = errors.New("db down")
	if err := stats.Persist(); err == nil {
		t.Error("Persist() should surface persister errors")
	}
}

func TestStartPersistence(t *testing.T) {
	stats := New()
	p := &fakePersister{}
	stats.SetPersister(p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		stats.StartPersistence(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()
	<-done

	// at least one tick plus the final snapshot
	if p.Calls() < 2 {
		t.Errorf("persister called %d times, want >= 2", p.Calls())
	}
}

func TestRegister(t *testing.T) {
	stats := New()
	stats.AddParse(types.ParseStats{Lines: 7}, 2, time.Second)

	reg := prometheus.NewRegistry()
	if err := stats.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := stats.Register(reg); err == nil {
		t.Error("second Register() on the same registry should fail")
	}

	expected := `
# HELP vatsim_replay_lines_total Replay log lines read.
# TYPE vatsim_replay_lines_total counter
vatsim_replay_lines_total 7
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "vatsim_replay_lines_total"); err != nil {
		t.Errorf("GatherAndCompare() = %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	stats := New()
	stats.IncrementFrames()

	path := filepath.Join(t.TempDir(), "replay.prom")
	if err := stats.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read metrics file: %v", err)
	}
	if !strings.Contains(string(data), "vatsim_replay_frames_total 1") {
		t.Errorf("metrics file missing frames counter:\n%s", data)
	}
}
