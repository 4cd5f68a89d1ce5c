package migrations

// RunStats keeps periodic parse and playback counters
var RunStats = &Migration{
	Name: "002_run_stats",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS replay_run_stats (
			time TIMESTAMPTZ NOT NULL,
			replays_loaded BIGINT NOT NULL,
			total_lines BIGINT NOT NULL,
			position_records BIGINT NOT NULL,
			flight_plans BIGINT NOT NULL,
			skipped_lines BIGINT NOT NULL,
			callsigns BIGINT NOT NULL,
			frames_rendered BIGINT NOT NULL,
			completed_entities BIGINT NOT NULL,
			cache_counts BIGINT[] NOT NULL,
			parse_time_ms BIGINT NOT NULL,
			uptime_seconds BIGINT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_replay_run_stats_time ON replay_run_stats (time DESC);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS replay_run_stats;
	`,
}
