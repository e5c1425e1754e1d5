package attendance

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists the attendance ledger in Postgres. The (student_id,
// date) primary key enforces the one-record-per-day invariant; Upsert makes
// the read-modify-write from the classifier atomic for concurrent scanners.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordCols = `student_id, to_char(date, 'YYYY-MM-DD'), status, method, scan_time, pulang_time, minutes_late, synced`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	err := row.Scan(&rec.StudentID, &rec.Date, &rec.Status, &rec.Method,
		&rec.ScanTime, &rec.PulangTime, &rec.MinutesLate, &rec.Synced)
	return rec, err
}

// GetForDate returns the student's row for a date, or nil.
func (r *Repository) GetForDate(ctx context.Context, studentID, date string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordCols+`
		FROM attendance_records
		WHERE student_id = $1 AND date = $2
	`, studentID, date)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Upsert writes a record, replacing any existing row for the same
// (student, date) wholesale.
func (r *Repository) Upsert(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records
			(student_id, date, status, method, scan_time, pulang_time, minutes_late, synced)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (student_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			method = EXCLUDED.method,
			scan_time = EXCLUDED.scan_time,
			pulang_time = EXCLUDED.pulang_time,
			minutes_late = EXCLUDED.minutes_late,
			synced = EXCLUDED.synced
	`, rec.StudentID, rec.Date, rec.Status, rec.Method, rec.ScanTime, rec.PulangTime, rec.MinutesLate, rec.Synced)
	return err
}

// ListByDate returns every row for one date.
func (r *Repository) ListByDate(ctx context.Context, date string) ([]Record, error) {
	return r.query(ctx, `SELECT `+recordCols+` FROM attendance_records WHERE date = $1 ORDER BY student_id`, date)
}

// All returns the whole ledger, oldest date first.
func (r *Repository) All(ctx context.Context) ([]Record, error) {
	return r.query(ctx, `SELECT `+recordCols+` FROM attendance_records ORDER BY date, student_id`)
}

// Unsynced returns rows not yet confirmed by the mirror.
func (r *Repository) Unsynced(ctx context.Context) ([]Record, error) {
	return r.query(ctx, `SELECT `+recordCols+` FROM attendance_records WHERE NOT synced ORDER BY date, student_id`)
}

// UnsyncedCount reports how many rows still await mirror delivery.
func (r *Repository) UnsyncedCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_records WHERE NOT synced`).Scan(&n)
	return n, err
}

// MarkSynced flips the synced flag after a confirmed mirror push.
func (r *Repository) MarkSynced(ctx context.Context, studentID, date string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records SET synced = TRUE WHERE student_id = $1 AND date = $2
	`, studentID, date)
	return err
}

// ClearAll wipes the ledger (the "clear all history" admin action).
func (r *Repository) ClearAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records`)
	return err
}

// ReplaceAll swaps the whole ledger in one transaction; used by backup
// import and hub pull. Rows referencing unknown students are skipped so a
// partial backup cannot violate the roster foreign key.
func (r *Repository) ReplaceAll(ctx context.Context, recs []Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_records`); err != nil {
		return err
	}
	for _, rec := range recs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_records
				(student_id, date, status, method, scan_time, pulang_time, minutes_late, synced)
			SELECT $1,$2,$3,$4,$5,$6,$7,$8
			WHERE EXISTS (SELECT 1 FROM students WHERE id = $1)
			ON CONFLICT (student_id, date) DO NOTHING
		`, rec.StudentID, rec.Date, rec.Status, rec.Method, rec.ScanTime, rec.PulangTime, rec.MinutesLate, rec.Synced)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
