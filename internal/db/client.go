// Package db archives parsed replays and run statistics in PostgreSQL.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/saviobatista/vatsim-replay/internal/tracing"
	"github.com/saviobatista/vatsim-replay/internal/types"
)

// ErrAlreadyArchived is returned by StoreReplay when a replay with the same
// content hash is already stored
var ErrAlreadyArchived = errors.New("replay already archived")

// ReplayRecord describes one archived replay file
type ReplayRecord struct {
	ID              uuid.UUID
	Name            string
	ContentHash     string
	Origin          int64
	Duration        int64
	Callsigns       []string
	Lines           int
	PositionRecords int
	FlightPlans     int
	SkippedLines    int
	CreatedAt       time.Time
}

type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// NewWithDB wraps an open connection
func NewWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// DB returns the underlying connection, e.g. for migrations
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return types.IntPtr(int(v.Int64))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// StoreReplay archives a parsed replay in one transaction and returns its id
func (c *Client) StoreReplay(ctx context.Context, name, hash string, replay *types.ParsedReplay) (id uuid.UUID, err error) {
	ctx, span := tracing.Start(ctx, "db.store_replay",
		attribute.String("name", name), attribute.Int("callsigns", len(replay.Positions)))
	defer func() { tracing.End(span, err) }()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	id = uuid.New()
	callsigns := replay.Callsigns()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO replays (
			id, name, content_hash, origin_ms, duration_ms, callsigns,
			lines, position_records, flight_plans, skipped_lines
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (content_hash) DO NOTHING
	`,
		id, name, hash, replay.Origin, replay.TimeRange.Duration(), pq.Array(callsigns),
		replay.Stats.Lines, replay.Stats.PositionRecords, replay.Stats.FlightPlans, replay.Stats.Skipped,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert replay: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert replay: %w", err)
	}
	if inserted == 0 {
		err = ErrAlreadyArchived
		return uuid.Nil, err
	}

	if err = copyPositions(ctx, tx, id, callsigns, replay); err != nil {
		return uuid.Nil, err
	}

	for _, cs := range callsigns {
		fp, ok := replay.FlightPlan(cs)
		if !ok {
			continue
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO replay_flight_plans (replay_id, callsign, departure, destination, aircraft_type)
			VALUES ($1, $2, $3, $4, $5)
		`, id, cs, nullString(fp.Departure), nullString(fp.Destination), nullString(fp.AircraftType))
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to insert flight plan %s: %w", cs, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// copyPositions bulk loads every position with COPY
func copyPositions(ctx context.Context, tx *sql.Tx, id uuid.UUID, callsigns []string, replay *types.ParsedReplay) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("replay_positions",
		"replay_id", "callsign", "seq", "time_ms", "latitude", "longitude", "altitude", "heading"))
	if err != nil {
		return fmt.Errorf("failed to prepare positions copy: %w", err)
	}
	defer stmt.Close()

	for _, cs := range callsigns {
		for seq, p := range replay.Positions[cs] {
			if _, err := stmt.ExecContext(ctx, id.String(), cs, seq, p.Time, p.Lat, p.Lng,
				nullInt(p.Altitude), nullInt(p.Heading)); err != nil {
				return fmt.Errorf("failed to copy position %s/%d: %w", cs, seq, err)
			}
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to flush positions copy: %w", err)
	}
	return nil
}

const replayColumns = `
	id, name, content_hash, origin_ms, duration_ms, callsigns,
	lines, position_records, flight_plans, skipped_lines, created_at
`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*ReplayRecord, error) {
	var r ReplayRecord
	if err := row.Scan(
		&r.ID, &r.Name, &r.ContentHash, &r.Origin, &r.Duration, pq.Array(&r.Callsigns),
		&r.Lines, &r.PositionRecords, &r.FlightPlans, &r.SkippedLines, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// FindByHash returns the archived replay with the given content hash, or nil
func (c *Client) FindByHash(ctx context.Context, hash string) (*ReplayRecord, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+replayColumns+` FROM replays WHERE content_hash = $1`, hash)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListReplays returns every archived replay, newest first
func (c *Client) ListReplays(ctx context.Context) ([]*ReplayRecord, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+replayColumns+` FROM replays ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ReplayRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LoadReplay rebuilds an archived replay
func (c *Client) LoadReplay(ctx context.Context, id uuid.UUID) (_ *types.ParsedReplay, err error) {
	ctx, span := tracing.Start(ctx, "db.load_replay", attribute.String("id", id.String()))
	defer func() { tracing.End(span, err) }()

	rec, err := scanRecord(c.db.QueryRowContext(ctx, `SELECT `+replayColumns+` FROM replays WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to load replay %s: %w", id, err)
	}

	replay := types.NewParsedReplay()
	replay.Origin = rec.Origin
	replay.TimeRange = types.TimeRange{Start: 0, End: rec.Duration}
	replay.Stats = types.ParseStats{
		Lines:           rec.Lines,
		PositionRecords: rec.PositionRecords,
		FlightPlans:     rec.FlightPlans,
		Skipped:         rec.SkippedLines,
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT callsign, time_ms, latitude, longitude, altitude, heading
		FROM replay_positions
		WHERE replay_id = $1
		ORDER BY callsign, seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cs                string
			p                 types.TimedPosition
			altitude, heading sql.NullInt64
		)
		if err := rows.Scan(&cs, &p.Time, &p.Lat, &p.Lng, &altitude, &heading); err != nil {
			return nil, err
		}
		p.Altitude = intPtr(altitude)
		p.Heading = intPtr(heading)
		replay.Positions[cs] = append(replay.Positions[cs], p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fpRows, err := c.db.QueryContext(ctx, `
		SELECT callsign, departure, destination, aircraft_type
		FROM replay_flight_plans
		WHERE replay_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer fpRows.Close()
	for fpRows.Next() {
		var dep, dest, typ sql.NullString
		var fp types.FlightPlan
		if err := fpRows.Scan(&fp.Callsign, &dep, &dest, &typ); err != nil {
			return nil, err
		}
		fp.Departure, fp.Destination, fp.AircraftType = dep.String, dest.String, typ.String
		replay.FlightPlans[fp.Callsign] = fp
	}
	return replay, fpRows.Err()
}

// DeleteReplay removes an archived replay with its positions and flight plans
func (c *Client) DeleteReplay(ctx context.Context, id uuid.UUID) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM replays WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("replay %s not found", id)
	}
	return nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case uint64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

// StoreRunStats stores a statistics snapshot
func (c *Client) StoreRunStats(stats map[string]interface{}) error {
	query := `
		INSERT INTO replay_run_stats (
			time, replays_loaded, total_lines, position_records, flight_plans,
			skipped_lines, callsigns, frames_rendered, completed_entities,
			cache_counts, parse_time_ms, uptime_seconds
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	cacheCounts := []int64{toInt64(stats["cache_hits"]), toInt64(stats["cache_misses"])}

	var parseTime, uptime time.Duration
	if d, ok := stats["parse_time"].(time.Duration); ok {
		parseTime = d
	}
	if d, ok := stats["uptime"].(time.Duration); ok {
		uptime = d
	}

	_, err := c.db.Exec(query,
		time.Now(),
		toInt64(stats["replays_loaded"]),
		toInt64(stats["total_lines"]),
		toInt64(stats["position_records"]),
		toInt64(stats["flight_plans"]),
		toInt64(stats["skipped_lines"]),
		toInt64(stats["callsigns"]),
		toInt64(stats["frames_rendered"]),
		toInt64(stats["completed_entities"]),
		pq.Array(cacheCounts),
		parseTime.Milliseconds(),
		int64(uptime.Seconds()),
	)
	return err
}

// GetRunStats retrieves statistics snapshots for a time range, newest first
func (c *Client) GetRunStats(start, end time.Time) ([]map[string]interface{}, error) {
	query := `
		SELECT
			time, replays_loaded, total_lines, position_records, flight_plans,
			skipped_lines, callsigns, frames_rendered, completed_entities,
			cache_counts, parse_time_ms, uptime_seconds
		FROM replay_run_stats
		WHERE time BETWEEN $1 AND $2
		ORDER BY time DESC
	`

	rows, err := c.db.Query(query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []map[string]interface{}
	for rows.Next() {
		var (
			timestamp         time.Time
			replaysLoaded     int64
			totalLines        int64
			positionRecords   int64
			flightPlans       int64
			skippedLines      int64
			callsigns         int64
			framesRendered    int64
			completedEntities int64
			cacheCounts       []int64
			parseTimeMs       int64
			uptimeSeconds     int64
		)

		if err := rows.Scan(
			&timestamp,
			&replaysLoaded,
			&totalLines,
			&positionRecords,
			&flightPlans,
			&skippedLines,
			&callsigns,
			&framesRendered,
			&completedEntities,
			pq.Array(&cacheCounts),
			&parseTimeMs,
			&uptimeSeconds,
		); err != nil {
			return nil, err
		}

		var hits, misses int64
		if len(cacheCounts) > 0 {
			hits = cacheCounts[0]
		}
		if len(cacheCounts) > 1 {
			misses = cacheCounts[1]
		}

		stats = append(stats, map[string]interface{}{
			"time":               timestamp,
			"replays_loaded":     replaysLoaded,
			"total_lines":        totalLines,
			"position_records":   positionRecords,
			"flight_plans":       flightPlans,
			"skipped_lines":      skippedLines,
			"callsigns":          callsigns,
			"frames_rendered":    framesRendered,
			"completed_entities": completedEntities,
			"cache_hits":         hits,
			"cache_misses":       misses,
			"parse_time":         time.Duration(parseTimeMs) * time.Millisecond,
			"uptime":             time.Duration(uptimeSeconds) * time.Second,
		})
	}
	return stats, rows.Err()
}
