package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate applies the schema. Statements are idempotent so the server can run
// them unconditionally at startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS students (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			roll_number    TEXT NOT NULL,
			class_name     TEXT NOT NULL DEFAULT '',
			parent_contact TEXT NOT NULL DEFAULT '',
			rfid_tag       TEXT NOT NULL DEFAULT '',
			photo_url      TEXT NOT NULL DEFAULT '',
			deleted_at     TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS students_roll_number_active
			ON students (roll_number) WHERE deleted_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS students_rfid_tag
			ON students (rfid_tag) WHERE rfid_tag <> ''`,
		`CREATE TABLE IF NOT EXISTS attendance_records (
			student_id   TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			date         DATE NOT NULL,
			status       TEXT NOT NULL,
			method       TEXT NOT NULL,
			scan_time    TIMESTAMPTZ,
			pulang_time  TIMESTAMPTZ,
			minutes_late INT NOT NULL DEFAULT 0,
			synced       BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (student_id, date)
		)`,
		`CREATE INDEX IF NOT EXISTS attendance_records_date ON attendance_records (date)`,
		`CREATE INDEX IF NOT EXISTS attendance_records_unsynced
			ON attendance_records (synced) WHERE NOT synced`,
		`CREATE TABLE IF NOT EXISTS school_settings (
			id                           INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			school_name                  TEXT NOT NULL DEFAULT '',
			short_name                   TEXT NOT NULL DEFAULT '',
			tagline                      TEXT NOT NULL DEFAULT '',
			start_attendance             TEXT NOT NULL DEFAULT '06:30',
			on_time_end                  TEXT NOT NULL DEFAULT '07:15',
			late_end_limit               TEXT NOT NULL DEFAULT '09:00',
			return_early_start           TEXT NOT NULL DEFAULT '09:00',
			return_limit                 TEXT NOT NULL DEFAULT '17:00',
			on_time_pulang_start         TEXT NOT NULL DEFAULT '12:10',
			on_time_pulang_start_class12 TEXT NOT NULL DEFAULT '10:45',
			updated_at                   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`INSERT INTO school_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
