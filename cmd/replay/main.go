package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/saviobatista/vatsim-replay/internal/cache"
	"github.com/saviobatista/vatsim-replay/internal/config"
	"github.com/saviobatista/vatsim-replay/internal/db"
	"github.com/saviobatista/vatsim-replay/internal/frame"
	"github.com/saviobatista/vatsim-replay/internal/logging"
	"github.com/saviobatista/vatsim-replay/internal/nats"
	"github.com/saviobatista/vatsim-replay/internal/parser"
	"github.com/saviobatista/vatsim-replay/internal/playback"
	"github.com/saviobatista/vatsim-replay/internal/redis"
	"github.com/saviobatista/vatsim-replay/internal/render"
	"github.com/saviobatista/vatsim-replay/internal/stats"
	"github.com/saviobatista/vatsim-replay/internal/storage"
	"github.com/saviobatista/vatsim-replay/internal/tracing"
	"github.com/saviobatista/vatsim-replay/internal/types"
)

const (
	reportInterval   = time.Second
	persistInterval  = time.Minute
	maxCacheDiskSize = 512 << 20
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runReplay(ctx, cfg, os.Stdout); err != nil {
		log.Printf("Replay failed: %v", err)
		os.Exit(1)
	}
}

// backends holds the optional external services
type backends struct {
	redis *redis.Client
	db    *db.Client
	nats  *nats.Client
}

// connectBackends connects to every configured service
func connectBackends(cfg *config.Config, lg *logging.Logger) (*backends, error) {
	b := &backends{}
	var err error
	if cfg.RedisAddr != "" {
		if b.redis, err = redis.New(cfg.RedisAddr); err != nil {
			return nil, fmt.Errorf("failed to create Redis client: %w", err)
		}
	}
	if cfg.DBConnStr != "" {
		if b.db, err = db.New(cfg.DBConnStr); err != nil {
			b.Close(lg)
			return nil, fmt.Errorf("failed to create database client: %w", err)
		}
	}
	if cfg.NATSURL != "" {
		if b.nats, err = nats.New(cfg.NATSURL, lg); err != nil {
			b.Close(lg)
			return nil, fmt.Errorf("failed to create NATS client: %w", err)
		}
	}
	return b, nil
}

// Close closes every connected service
func (b *backends) Close(lg *logging.Logger) {
	if b.nats != nil {
		b.nats.Close()
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			lg.Warn("error closing database client", "error", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			lg.Warn("error closing Redis client", "error", err)
		}
	}
}

// newCache builds the parse cache, with the Redis tier when connected
func newCache(cfg *config.Config, b *backends, st *stats.Stats, lg *logging.Logger) *cache.Cache {
	opts := []cache.Option{cache.WithStats(st), cache.WithLogger(lg)}
	if cfg.CacheDir != "" {
		opts = append(opts, cache.WithDir(cfg.CacheDir))
	}
	if b.redis != nil {
		opts = append(opts, cache.WithRemote(b.redis))
	}
	return cache.New(cfg.CacheSize, opts...)
}

// parseFiles parses every file through the cache with the named timestamp
// resolver
func parseFiles(ctx context.Context, files []*storage.File, c *cache.Cache, resolver string,
	st *stats.Stats, lg *logging.Logger,
) ([]*types.ParsedReplay, error) {
	resolve, err := parser.ResolverByName(resolver)
	if err != nil {
		return nil, err
	}
	replays := make([]*types.ParsedReplay, len(files))
	for i, f := range files {
		fctx, span := tracing.Start(ctx, "replay.parse",
			attribute.String("file", f.Name), attribute.String("format", f.Format.String()))
		replays[i] = c.Load(fctx, parser.CacheKey(f.Hash, resolver), func() *types.ParsedReplay {
			start := time.Now()
			r := parser.ParseReplay(f.Content,
				parser.WithLogger(lg.With("file", f.Name)), parser.WithResolver(resolve))
			st.AddParse(r.Stats, len(r.Positions), time.Since(start))
			return r
		})
		span.SetAttributes(attribute.Int("callsigns", len(replays[i].Positions)))
		tracing.End(span, nil)
	}
	return replays, nil
}

// newPlayers creates one configured Player per replay
func newPlayers(cfg *config.Config, files []*storage.File, replays []*types.ParsedReplay,
	sched frame.Scheduler, surface render.Surface, st *stats.Stats, lg *logging.Logger,
) []*playback.Player {
	players := make([]*playback.Player, 0, len(replays))
	for i, r := range replays {
		opts := []playback.PlayerOption{playback.WithLogger(lg), playback.WithStats(st)}
		if surface != nil {
			opts = append(opts, playback.WithSurface(surface))
		}
		p := playback.NewPlayer(files[i].Name, sched, opts...)
		p.SetShowTrails(cfg.ShowTrails)
		p.SetShowTracks(cfg.ShowTracks)
		p.SetTracksColoredByAltitude(cfg.TracksByAltitude)
		p.SetAirportFilter(cfg.AirportFilter, cfg.FilterMode)
		p.SetAltitudeRange(cfg.MinAltitude, cfg.MaxAltitude)
		p.Load(r)
		players = append(players, p)
	}
	return players
}

// startPlayers plays every non-empty player at speed and returns a channel
// that is closed once all of them have finished
func startPlayers(players []*playback.Player, speed float64) <-chan struct{} {
	done := make(chan struct{})

	var active []*playback.Player
	for _, p := range players {
		if len(p.Callsigns()) > 0 {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		close(done)
		return done
	}

	var wg sync.WaitGroup
	wg.Add(len(active))
	for _, p := range active {
		var once sync.Once
		p.OnFinished(func() { once.Do(wg.Done) })
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	for _, p := range active {
		p.Play(speed)
	}
	return done
}

// printTimelines re-evaluates altitude filters and prints one line per player
func printTimelines(out io.Writer, players []*playback.Player) {
	for _, p := range players {
		p.Refresh()
		fmt.Fprintf(out, "%s  %s  %d/%d visible\n",
			p.Name(), p.Timeline(), len(p.Visible()), len(p.Callsigns()))
	}
}

// report prints the timelines every interval until done or ctx ends
func report(ctx context.Context, out io.Writer, players []*playback.Player, done <-chan struct{}, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			printTimelines(out, players)
			return ctx.Err()
		case <-done:
			printTimelines(out, players)
			return nil
		case <-ticker.C:
			printTimelines(out, players)
		}
	}
}

// runReplay loads the configured files and plays them to the end
func runReplay(ctx context.Context, cfg *config.Config, out io.Writer) error {
	lg := logging.New(cfg.Log)

	shutdown, err := tracing.Init(ctx, cfg.Tracing, lg)
	if err != nil {
		return err
	}
	defer tracing.Shutdown(context.Background(), shutdown, lg)

	st := stats.New()
	b, err := connectBackends(cfg, lg)
	if err != nil {
		return err
	}
	defer b.Close(lg)

	if b.db != nil {
		st.SetPersister(b.db)
		pctx, cancel := context.WithCancel(ctx)
		persisted := make(chan struct{})
		go func() {
			defer close(persisted)
			st.StartPersistence(pctx, persistInterval)
		}()
		defer func() {
			cancel()
			<-persisted
		}()
	}

	lctx, span := tracing.Start(ctx, "replay.load", attribute.Int("files", len(cfg.ReplayFiles)))
	files, err := storage.ReadAll(lctx, cfg.ReplayFiles, cfg.Concurrency)
	if err != nil {
		tracing.End(span, err)
		return fmt.Errorf("failed to read replay files: %w", err)
	}
	c := newCache(cfg, b, st, lg)
	replays, err := parseFiles(lctx, files, c, cfg.Resolver, st, lg)
	tracing.End(span, err)
	if err != nil {
		return err
	}

	if err := c.Cull(maxCacheDiskSize); err != nil {
		lg.Warn("failed to cull parse cache", "error", err)
	}

	loop := frame.NewLoop(cfg.FPS)
	var surface render.Surface
	if b.nats != nil {
		ns := nats.NewSurface(b.nats, lg)
		defer func() {
			if n := ns.Failed(); n > 0 {
				lg.Warn("render events dropped", "count", n)
			}
		}()
		surface = ns
	}
	players := newPlayers(cfg, files, replays, loop, surface, st, lg)
	defer func() {
		for _, p := range players {
			p.Close()
		}
	}()

	loop.Start(ctx)
	defer loop.Stop()

	done := startPlayers(players, cfg.Speed)
	err = report(ctx, out, players, done, reportInterval)

	lg.Info("replay stopped", "frames", loop.Frames())
	fmt.Fprint(out, st.String())
	if cfg.MetricsFile != "" {
		if werr := st.WriteTextfile(cfg.MetricsFile); werr != nil {
			lg.Error("failed to write metrics", "error", werr)
		}
	}

	if err == context.Canceled {
		// interrupted by a signal
		return nil
	}
	return err
}
