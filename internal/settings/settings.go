package settings

import (
	"context"
	"database/sql"

	"hadirku/internal/attendance"
)

// School is the single system-wide settings row: branding plus the time
// boundaries the classifier runs on. Boundary changes apply only to scans
// after the update; stored records are never reclassified.
type School struct {
	SchoolName string                `json:"school_name"`
	ShortName  string                `json:"short_name"`
	Tagline    string                `json:"tagline"`
	Times      attendance.Boundaries `json:"time_settings"`
}

// Repository reads and writes the settings row.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the settings row.
func (r *Repository) Get(ctx context.Context) (School, error) {
	var s School
	err := r.db.QueryRowContext(ctx, `
		SELECT school_name, short_name, tagline,
		       start_attendance, on_time_end, late_end_limit,
		       return_early_start, return_limit,
		       on_time_pulang_start, on_time_pulang_start_class12
		FROM school_settings WHERE id = 1
	`).Scan(&s.SchoolName, &s.ShortName, &s.Tagline,
		&s.Times.StartAttendance, &s.Times.OnTimeEnd, &s.Times.LateEndLimit,
		&s.Times.ReturnEarlyStart, &s.Times.ReturnLimit,
		&s.Times.OnTimePulangStart, &s.Times.OnTimePulangStartClass12)
	return s, err
}

// Update replaces the settings row.
func (r *Repository) Update(ctx context.Context, s School) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE school_settings SET
			school_name = $1, short_name = $2, tagline = $3,
			start_attendance = $4, on_time_end = $5, late_end_limit = $6,
			return_early_start = $7, return_limit = $8,
			on_time_pulang_start = $9, on_time_pulang_start_class12 = $10,
			updated_at = NOW()
		WHERE id = 1
	`, s.SchoolName, s.ShortName, s.Tagline,
		s.Times.StartAttendance, s.Times.OnTimeEnd, s.Times.LateEndLimit,
		s.Times.ReturnEarlyStart, s.Times.ReturnLimit,
		s.Times.OnTimePulangStart, s.Times.OnTimePulangStartClass12)
	return err
}

// Boundaries satisfies the classifier's window source.
func (r *Repository) Boundaries(ctx context.Context) (attendance.Boundaries, error) {
	s, err := r.Get(ctx)
	if err != nil {
		return attendance.Boundaries{}, err
	}
	return s.Times, nil
}
