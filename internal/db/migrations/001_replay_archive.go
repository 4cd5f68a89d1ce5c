package migrations

// ReplayArchive stores parsed replays: one row per file, its positions and
// its flight plans
var ReplayArchive = &Migration{
	Name: "001_replay_archive",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS replays (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			origin_ms BIGINT NOT NULL,
			duration_ms BIGINT NOT NULL,
			callsigns TEXT[] NOT NULL,
			lines INTEGER NOT NULL,
			position_records INTEGER NOT NULL,
			flight_plans INTEGER NOT NULL,
			skipped_lines INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS replay_positions (
			replay_id UUID NOT NULL REFERENCES replays (id) ON DELETE CASCADE,
			callsign TEXT NOT NULL,
			seq INTEGER NOT NULL,
			time_ms BIGINT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			altitude INTEGER,
			heading INTEGER,
			PRIMARY KEY (replay_id, callsign, seq)
		);

		CREATE TABLE IF NOT EXISTS replay_flight_plans (
			replay_id UUID NOT NULL REFERENCES replays (id) ON DELETE CASCADE,
			callsign TEXT NOT NULL,
			departure TEXT,
			destination TEXT,
			aircraft_type TEXT,
			PRIMARY KEY (replay_id, callsign)
		);

		CREATE INDEX IF NOT EXISTS idx_replays_created_at ON replays (created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_replay_flight_plans_departure ON replay_flight_plans (departure);
		CREATE INDEX IF NOT EXISTS idx_replay_flight_plans_destination ON replay_flight_plans (destination);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS replay_flight_plans;
		DROP TABLE IF EXISTS replay_positions;
		DROP TABLE IF EXISTS replays;
	`,
}
