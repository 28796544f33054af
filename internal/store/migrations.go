package store

import (
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS site_headers (
    site INTEGER PRIMARY KEY,
    from_limit TEXT,
    to_limit TEXT,
    in_direction TEXT,
    out_direction TEXT,
    sidewalk_direction TEXT,
    traffic_direction TEXT,
    count_direction TEXT,
    municipality TEXT,
    counter_type TEXT,
    source TEXT,
    divided TEXT,
    hpms TEXT,
    aadv INTEGER,
    aadv_computed_on DATE
);

-- count_time is '' for whole-day rows; an empty string rather than NULL so
-- the unique index holds for them too.
CREATE TABLE IF NOT EXISTS counts_volume (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site INTEGER NOT NULL,
    count_date DATE NOT NULL,
    count_time TEXT NOT NULL DEFAULT '',
    direction TEXT NOT NULL,
    lane INTEGER NOT NULL,
    total INTEGER,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(site, count_date, count_time, direction, lane)
);

CREATE TABLE IF NOT EXISTS counts_class (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site INTEGER NOT NULL,
    count_date DATE NOT NULL,
    count_time TEXT NOT NULL DEFAULT '',
    direction TEXT NOT NULL,
    lane INTEGER NOT NULL,
    total INTEGER,
    c1 INTEGER DEFAULT 0, c2 INTEGER DEFAULT 0, c3 INTEGER DEFAULT 0,
    c4 INTEGER DEFAULT 0, c5 INTEGER DEFAULT 0, c6 INTEGER DEFAULT 0,
    c7 INTEGER DEFAULT 0, c8 INTEGER DEFAULT 0, c9 INTEGER DEFAULT 0,
    c10 INTEGER DEFAULT 0, c11 INTEGER DEFAULT 0, c12 INTEGER DEFAULT 0,
    c13 INTEGER DEFAULT 0, c15 INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(site, count_date, count_time, direction, lane)
);

CREATE TABLE IF NOT EXISTS counts_speed (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site INTEGER NOT NULL,
    count_date DATE NOT NULL,
    count_time TEXT NOT NULL DEFAULT '',
    direction TEXT NOT NULL,
    lane INTEGER NOT NULL,
    total INTEGER,
    s1 INTEGER DEFAULT 0, s2 INTEGER DEFAULT 0, s3 INTEGER DEFAULT 0,
    s4 INTEGER DEFAULT 0, s5 INTEGER DEFAULT 0, s6 INTEGER DEFAULT 0,
    s7 INTEGER DEFAULT 0, s8 INTEGER DEFAULT 0, s9 INTEGER DEFAULT 0,
    s10 INTEGER DEFAULT 0, s11 INTEGER DEFAULT 0, s12 INTEGER DEFAULT 0,
    s13 INTEGER DEFAULT 0, s14 INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(site, count_date, count_time, direction, lane)
);

CREATE TABLE IF NOT EXISTS factors (
    municipality TEXT NOT NULL,
    class INTEGER NOT NULL DEFAULT 0,
    volume_factor REAL,
    axle_factor REAL,
    override_id TEXT,
    PRIMARY KEY (municipality, class)
);

CREATE TABLE IF NOT EXISTS factor_overrides (
    id TEXT PRIMARY KEY,
    volume_factor REAL,
    axle_factor REAL
);

CREATE TABLE IF NOT EXISTS counter_types (
    name TEXT PRIMARY KEY,
    equipment_factor REAL,
    axle_sensing BOOLEAN NOT NULL DEFAULT FALSE
);

-- client is '' for unscoped exclusions.
CREATE TABLE IF NOT EXISTS excluded_days (
    day DATE NOT NULL,
    client TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL,
    PRIMARY KEY (day, client)
);

CREATE TABLE IF NOT EXISTS aadv_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site INTEGER NOT NULL,
    direction TEXT NOT NULL DEFAULT '',
    value INTEGER NOT NULL,
    computed_on DATE NOT NULL
);

CREATE TABLE IF NOT EXISTS import_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site INTEGER NOT NULL,
    logged_at DATETIME NOT NULL,
    message TEXT NOT NULL,
    level TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_counts_volume_site_date ON counts_volume(site, count_date);
CREATE INDEX IF NOT EXISTS idx_counts_class_site_date ON counts_class(site, count_date);
CREATE INDEX IF NOT EXISTS idx_counts_speed_site_date ON counts_speed(site, count_date);
CREATE INDEX IF NOT EXISTS idx_aadv_results_site ON aadv_results(site, computed_on);
CREATE INDEX IF NOT EXISTS idx_import_log_site ON import_log(site);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		s.logger.Info("applying migration", "version", m.Version, "description", m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
