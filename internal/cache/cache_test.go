package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/saviobatista/vatsim-replay/internal/logging"
	"github.com/saviobatista/vatsim-replay/internal/stats"
	"github.com/saviobatista/vatsim-replay/internal/types"
)

type fakeRemote struct {
	mu      sync.Mutex
	entries map[string]*types.ParsedReplay
	err     error
	gets    int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{entries: make(map[string]*types.ParsedReplay)}
}

func (f *fakeRemote) StoreReplay(ctx context.Context, key string, r *types.ParsedReplay) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries[key] = r
	return nil
}

func (f *fakeRemote) GetReplay(ctx context.Context, key string) (*types.ParsedReplay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[key], nil
}

func sampleReplay() *types.ParsedReplay {
	r := types.NewParsedReplay()
	r.Positions["BAW1"] = []types.TimedPosition{
		{Lat: 51.47, Lng: -0.45, Time: 0, Altitude: types.IntPtr(1000), Heading: types.IntPtr(270)},
		{Lat: 51.50, Lng: -0.60, Time: 10000},
	}
	r.FlightPlans["BAW1"] = types.FlightPlan{Callsign: "BAW1", Departure: "EGLL", Destination: "KJFK", AircraftType: "B77W"}
	r.TimeRange = types.TimeRange{Start: 0, End: 10000}
	r.Origin = 50400000
	r.Stats = types.ParseStats{Lines: 5, PositionRecords: 2, FlightPlans: 1, Skipped: 2}
	return r
}

func TestCache_MemoryTier(t *testing.T) {
	st := stats.New()
	c := New(2, WithStats(st), WithLogger(logging.Noop()))
	ctx := context.Background()

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("Get() hit on an empty cache")
	}
	if err := c.Put(ctx, "a", sampleReplay()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Error("Get() missed a stored key")
	}

	c.Put(ctx, "b", sampleReplay())
	c.Put(ctx, "c", sampleReplay())
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("Get() returned an evicted key")
	}

	got := st.GetStats()
	if got["cache_hits"] != uint64(1) || got["cache_misses"] != uint64(2) {
		t.Errorf("hits/misses = %v/%v, want 1/2", got["cache_hits"], got["cache_misses"])
	}
}

func TestCache_DiskTier(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	want := sampleReplay()

	if err := New(4, WithDir(dir)).Put(ctx, "key", want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "key"+fileExt)); err != nil {
		t.Fatalf("cache file missing: %v", err)
	}

	// a fresh cache only has the disk copy
	c := New(4, WithDir(dir))
	got, ok := c.Get(ctx, "key")
	if !ok {
		t.Fatal("Get() missed the disk entry")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if c.Len() != 1 {
		t.Errorf("disk hit not promoted to memory, Len() = %d", c.Len())
	}

	if err := c.Remove("key"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := New(4, WithDir(dir)).Get(ctx, "key"); ok {
		t.Error("Get() hit after Remove()")
	}
}

func TestCache_CorruptDiskEntry(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad"+fileExt), []byte("not flate"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New(4, WithDir(dir), WithLogger(logging.Noop()))
	if _, ok := c.Get(context.Background(), "bad"); ok {
		t.Error("Get() hit on a corrupt entry")
	}
}

func TestCache_RemoteTier(t *testing.T) {
	remote := newFakeRemote()
	remote.entries["shared"] = sampleReplay()
	dir := t.TempDir()
	ctx := context.Background()

	c := New(4, WithDir(dir), WithRemote(remote))
	if _, ok := c.Get(ctx, "shared"); !ok {
		t.Fatal("Get() missed the remote entry")
	}
	if _, err := os.Stat(filepath.Join(dir, "shared"+fileExt)); err != nil {
		t.Errorf("remote hit not written to disk: %v", err)
	}

	c.Get(ctx, "shared")
	if remote.gets != 1 {
		t.Errorf("remote queried %d times, want 1", remote.gets)
	}

	c.Put(ctx, "new", sampleReplay())
	if _, ok := remote.entries["new"]; !ok {
		t.Error("Put() did not reach the remote tier")
	}
}

func TestCache_RemoteFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.err = errors.New("connection refused")
	c := New(4, WithRemote(remote), WithLogger(logging.Noop()))
	ctx := context.Background()

	if _, ok := c.Get(ctx, "x"); ok {
		t.Error("Get() hit with a failing remote")
	}
	err := c.Put(ctx, "x", sampleReplay())
	if err == nil || !errors.Is(err, remote.err) {
		t.Errorf("Put() error = %v, want wrapped remote error", err)
	}
	if _, ok := c.Get(ctx, "x"); !ok {
		t.Error("memory tier lost the entry after a remote failure")
	}
}

func TestCache_Load(t *testing.T) {
	c := New(4, WithDir(t.TempDir()))
	ctx := context.Background()

	calls := 0
	parse := func() *types.ParsedReplay {
		calls++
		return sampleReplay()
	}

	first := c.Load(ctx, "k", parse)
	second := c.Load(ctx, "k", parse)
	if calls != 1 {
		t.Errorf("parse called %d times, want 1", calls)
	}
	if first != second {
		t.Error("Load() did not return the cached replay")
	}
}

func TestCache_Cull(t *testing.T) {
	dir := t.TempDir()
	c := New(4, WithDir(dir))
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	for i, key := range []string{"old", "mid", "new"} {
		if err := c.Put(ctx, key, sampleReplay()); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
		ts := old.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(filepath.Join(dir, key+fileExt), ts, ts); err != nil {
			t.Fatal(err)
		}
	}
	info, err := os.Stat(filepath.Join(dir, "new"+fileExt))
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Cull(info.Size()); err != nil {
		t.Fatalf("Cull() error = %v", err)
	}
	for key, want := range map[string]bool{"old": false, "mid": false, "new": true} {
		_, err := os.Stat(filepath.Join(dir, key+fileExt))
		if exists := err == nil; exists != want {
			t.Errorf("%s exists = %v, want %v", key, exists, want)
		}
	}

	if err := New(1).Cull(0); err != nil {
		t.Errorf("Cull() without a disk tier error = %v", err)
	}
}
