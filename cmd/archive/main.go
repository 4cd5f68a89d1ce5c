package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/saviobatista/vatsim-replay/internal/config"
	"github.com/saviobatista/vatsim-replay/internal/db"
	"github.com/saviobatista/vatsim-replay/internal/logging"
	"github.com/saviobatista/vatsim-replay/internal/parser"
	"github.com/saviobatista/vatsim-replay/internal/playback"
	"github.com/saviobatista/vatsim-replay/internal/redis"
	"github.com/saviobatista/vatsim-replay/internal/stats"
	"github.com/saviobatista/vatsim-replay/internal/storage"
	"github.com/saviobatista/vatsim-replay/internal/tracing"
	"github.com/saviobatista/vatsim-replay/internal/types"
)

// Archive interface for testability
type Archive interface {
	FindByHash(ctx context.Context, hash string) (*db.ReplayRecord, error)
	StoreReplay(ctx context.Context, name, hash string, replay *types.ParsedReplay) (uuid.UUID, error)
	ListReplays(ctx context.Context) ([]*db.ReplayRecord, error)
	LoadReplay(ctx context.Context, id uuid.UUID) (*types.ParsedReplay, error)
}

// Warmer interface for testability
type Warmer interface {
	StoreReplay(ctx context.Context, key string, replay *types.ParsedReplay) error
	StoreFlightPlans(ctx context.Context, replay *types.ParsedReplay) error
}

// Archiver stores parsed replay files
type Archiver struct {
	archive Archive
	warm    Warmer
	stats   *stats.Stats
	lg      *logging.Logger

	compress storage.Format

	archived atomic.Int64
	skipped  atomic.Int64
}

// NewArchiver creates an Archiver; warm may be nil
func NewArchiver(archive Archive, warm Warmer, st *stats.Stats, lg *logging.Logger) *Archiver {
	return &Archiver{archive: archive, warm: warm, stats: st, lg: lg}
}

// SetCompression makes the archiver compress plain source files once their
// content is in the archive
func (a *Archiver) SetCompression(format storage.Format) {
	a.compress = format
}

// ArchiveFile parses and stores one file unless its content is already archived
func (a *Archiver) ArchiveFile(ctx context.Context, f *storage.File) error {
	existing, err := a.archive.FindByHash(ctx, f.Hash)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", f.Name, err)
	}
	if existing != nil {
		a.skipped.Add(1)
		a.lg.Info("already archived", "file", f.Name, "id", existing.ID)
		a.compressSource(f)
		return nil
	}

	start := time.Now()
	replay := parser.ParseReplay(f.Content, parser.WithLogger(a.lg.With("file", f.Name)))
	a.stats.AddParse(replay.Stats, len(replay.Positions), time.Since(start))

	id, err := a.archive.StoreReplay(ctx, f.Name, f.Hash, replay)
	if errors.Is(err, db.ErrAlreadyArchived) {
		a.skipped.Add(1)
		a.lg.Info("already archived", "file", f.Name)
		a.compressSource(f)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", f.Name, err)
	}
	a.archived.Add(1)
	a.lg.Info("archived replay", "file", f.Name, "id", id, "callsigns", len(replay.Positions))

	if a.warm != nil {
		// archived replays are parsed with the default resolver
		if err := a.warm.StoreReplay(ctx, parser.CacheKey(f.Hash, parser.ResolverPrevious), replay); err != nil {
			a.lg.Warn("failed to warm replay cache", "file", f.Name, "error", err)
		}
		if err := a.warm.StoreFlightPlans(ctx, replay); err != nil {
			a.lg.Warn("failed to cache flight plans", "file", f.Name, "error", err)
		}
	}
	a.compressSource(f)
	return nil
}

func (a *Archiver) compressSource(f *storage.File) {
	if a.compress == storage.Plain || f.Format != storage.Plain || f.Path == "" {
		return
	}
	target, err := storage.CompressFile(f.Path, a.compress)
	if err != nil {
		a.lg.Warn("failed to compress archived file", "file", f.Name, "error", err)
		return
	}
	a.lg.Info("compressed archived file", "file", f.Name, "path", target)
}

// parseFormat maps the -compress flag to a storage format
func parseFormat(s string) (storage.Format, error) {
	switch s {
	case "", "none", "plain":
		return storage.Plain, nil
	case "gzip", "gz":
		return storage.Gzip, nil
	case "zstd", "zst":
		return storage.Zstd, nil
	default:
		return storage.Plain, fmt.Errorf("unknown compression %q", s)
	}
}

// ArchiveAll archives files concurrently, at most limit at a time. Files
// whose content repeats an earlier file are skipped.
func (a *Archiver) ArchiveAll(ctx context.Context, files []*storage.File, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f.Hash] {
			a.skipped.Add(1)
			a.lg.Info("duplicate content", "file", f.Name)
			continue
		}
		seen[f.Hash] = true
		g.Go(func() error {
			return a.ArchiveFile(ctx, f)
		})
	}
	return g.Wait()
}

// Counts returns how many files were archived and skipped
func (a *Archiver) Counts() (archived, skipped int64) {
	return a.archived.Load(), a.skipped.Load()
}

// listReplays prints every archived replay
func listReplays(ctx context.Context, archive Archive, out io.Writer) error {
	records, err := archive.ListReplays(ctx)
	if err != nil {
		return fmt.Errorf("failed to list replays: %w", err)
	}
	for _, r := range records {
		fmt.Fprintf(out, "%s  %-24s  %s  %3d callsigns  %s\n",
			r.ID, r.Name, playback.FormatClock(r.Duration), len(r.Callsigns), r.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

// showReplay prints a summary of one archived replay
func showReplay(ctx context.Context, archive Archive, id string, out io.Writer) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid replay id %q: %w", id, err)
	}
	replay, err := archive.LoadReplay(ctx, uid)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "starts %s, lasts %s\n",
		playback.FormatClock(replay.Origin), playback.FormatClock(replay.TimeRange.Duration()))
	for _, cs := range replay.Callsigns() {
		route := "no flight plan"
		if fp, ok := replay.FlightPlan(cs); ok {
			route = fmt.Sprintf("%s -> %s (%s)", fp.Departure, fp.Destination, fp.AircraftType)
		}
		fmt.Fprintf(out, "%-10s %5d positions  %s\n", cs, len(replay.Positions[cs]), route)
	}
	return nil
}

func runArchive(ctx context.Context, cfg *config.Config, compress storage.Format, out io.Writer) error {
	if cfg.DBConnStr == "" {
		return fmt.Errorf("DB_CONN_STR environment variable is required")
	}
	lg := logging.New(cfg.Log)

	shutdown, err := tracing.Init(ctx, cfg.Tracing, lg)
	if err != nil {
		return err
	}
	defer tracing.Shutdown(context.Background(), shutdown, lg)

	dbClient, err := db.New(cfg.DBConnStr)
	if err != nil {
		return fmt.Errorf("failed to create database client: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			lg.Warn("error closing database client", "error", err)
		}
	}()

	var warm Warmer
	if cfg.RedisAddr != "" {
		redisClient, err := redis.New(cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to create Redis client: %w", err)
		}
		defer redisClient.Close()
		warm = redisClient
	}

	files, err := storage.ReadAll(ctx, cfg.ReplayFiles, cfg.Concurrency)
	if err != nil {
		return fmt.Errorf("failed to read replay files: %w", err)
	}

	st := stats.New()
	a := NewArchiver(dbClient, warm, st, lg)
	a.SetCompression(compress)
	if err := a.ArchiveAll(ctx, files, cfg.Concurrency); err != nil {
		return err
	}
	archived, skipped := a.Counts()
	fmt.Fprintf(out, "archived %d, skipped %d already archived\n", archived, skipped)

	st.SetPersister(dbClient)
	if err := st.Persist(); err != nil {
		lg.Warn("failed to persist statistics", "error", err)
	}
	return nil
}

func main() {
	_ = godotenv.Load()

	list := flag.Bool("list", false, "List archived replays and exit")
	show := flag.String("show", "", "Print the archived replay with this id and exit")
	compressFlag := flag.String("compress", "", "Compress plain replay files after archiving (gzip or zstd)")
	flag.Parse()

	compress, err := parseFormat(*compressFlag)
	if err != nil {
		log.Printf("Invalid -compress: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *list || *show != "" {
		if err := runQuery(ctx, *list, *show, os.Stdout); err != nil {
			log.Printf("Query failed: %v", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	if err := runArchive(ctx, cfg, compress, os.Stdout); err != nil {
		log.Printf("Archive failed: %v", err)
		os.Exit(1)
	}
}

// runQuery answers -list and -show, which need only the database
func runQuery(ctx context.Context, list bool, show string, out io.Writer) error {
	connStr := os.Getenv("DB_CONN_STR")
	if connStr == "" {
		return fmt.Errorf("DB_CONN_STR environment variable is required")
	}
	dbClient, err := db.New(connStr)
	if err != nil {
		return fmt.Errorf("failed to create database client: %w", err)
	}
	defer dbClient.Close()

	if list {
		return listReplays(ctx, dbClient, out)
	}
	return showReplay(ctx, dbClient, show, out)
}
