package roster

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRollNumberTaken is returned when a create or update would duplicate an
// active student's roll number.
var ErrRollNumberTaken = errors.New("roll number already in use")

// Repository persists students in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const studentCols = `id, name, roll_number, class_name, parent_contact, rfid_tag, photo_url, deleted_at, created_at`

func scanStudent(row interface{ Scan(...any) error }) (Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.Name, &s.RollNumber, &s.ClassName, &s.ParentContact,
		&s.RFIDTag, &s.PhotoURL, &s.DeletedAt, &s.CreatedAt)
	return s, err
}

// Create inserts a new active student.
func (r *Repository) Create(ctx context.Context, s Student) (Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (id, name, roll_number, class_name, parent_contact, rfid_tag, photo_url)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+studentCols,
		s.ID, s.Name, s.RollNumber, s.ClassName, s.ParentContact, s.RFIDTag, s.PhotoURL)
	created, err := scanStudent(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Student{}, ErrRollNumberTaken
		}
		return Student{}, err
	}
	return created, nil
}

// Update replaces the mutable fields of a student.
func (r *Repository) Update(ctx context.Context, s Student) (Student, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE students
		SET name = $2, roll_number = $3, class_name = $4, parent_contact = $5,
		    rfid_tag = $6, photo_url = $7, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+studentCols,
		s.ID, s.Name, s.RollNumber, s.ClassName, s.ParentContact, s.RFIDTag, s.PhotoURL)
	updated, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, sql.ErrNoRows
		}
		if isUniqueViolation(err) {
			return Student{}, ErrRollNumberTaken
		}
		return Student{}, err
	}
	return updated, nil
}

// SetPhotoURL stores the uploaded profile photo location.
func (r *Repository) SetPhotoURL(ctx context.Context, id, url string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE students SET photo_url = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, url)
	return err
}

// Get returns a student by id, active or trashed.
func (r *Repository) Get(ctx context.Context, id string) (*Student, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE id = $1`, id)
	s, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// FindByCode resolves a scanned code against the active roster. Identity
// spaces are tried in precedence order: system id, RFID tag, roll number.
func (r *Repository) FindByCode(ctx context.Context, code string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+studentCols+`
		FROM students
		WHERE deleted_at IS NULL
		  AND (id = $1 OR (rfid_tag <> '' AND rfid_tag = $1) OR roll_number = $1)
		ORDER BY CASE
			WHEN id = $1 THEN 0
			WHEN rfid_tag = $1 THEN 1
			ELSE 2
		END
		LIMIT 1
	`, code)
	s, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListActive returns the active roster ordered by class then roll number.
func (r *Repository) ListActive(ctx context.Context) ([]Student, error) {
	return r.list(ctx, `deleted_at IS NULL`)
}

// ListTrash returns soft-deleted students.
func (r *Repository) ListTrash(ctx context.Context) ([]Student, error) {
	return r.list(ctx, `deleted_at IS NOT NULL`)
}

func (r *Repository) list(ctx context.Context, where string) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE `+where+` ORDER BY class_name, roll_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SoftDelete moves students to the trash. Ledger rows are kept so a restored
// student keeps their history.
func (r *Repository) SoftDelete(ctx context.Context, ids []string) (int64, error) {
	return r.exec(ctx, `
		UPDATE students SET deleted_at = $2, updated_at = NOW()
		WHERE id = ANY($1) AND deleted_at IS NULL
	`, ids, time.Now().UTC())
}

// Restore moves trashed students back to the active roster.
func (r *Repository) Restore(ctx context.Context, ids []string) (int64, error) {
	return r.exec(ctx, `
		UPDATE students SET deleted_at = NULL, updated_at = NOW()
		WHERE id = ANY($1) AND deleted_at IS NOT NULL
	`, ids)
}

// Purge permanently deletes trashed students. The attendance_records foreign
// key cascades, removing the students' ledger rows with them.
func (r *Repository) Purge(ctx context.Context, ids []string) (int64, error) {
	return r.exec(ctx, `DELETE FROM students WHERE id = ANY($1) AND deleted_at IS NOT NULL`, ids)
}

func (r *Repository) exec(ctx context.Context, query string, ids []string, extra ...any) (int64, error) {
	args := append([]any{ids}, extra...)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReplaceAll swaps the whole roster in one transaction; used by restore paths
// (backup import, hub pull).
func (r *Repository) ReplaceAll(ctx context.Context, active, trashed []Student) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM students`); err != nil {
		return err
	}
	insert := func(s Student, deletedAt *time.Time) error {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO students (id, name, roll_number, class_name, parent_contact, rfid_tag, photo_url, deleted_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO NOTHING
		`, s.ID, s.Name, s.RollNumber, s.ClassName, s.ParentContact, s.RFIDTag, s.PhotoURL, deletedAt)
		return err
	}
	for _, s := range active {
		if err := insert(s, nil); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	for _, s := range trashed {
		deletedAt := s.DeletedAt
		if deletedAt == nil {
			deletedAt = &now
		}
		if err := insert(s, deletedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	// pgx wraps server errors; SQLSTATE 23505 is unique_violation.
	type sqlState interface{ SQLState() string }
	var st sqlState
	return errors.As(err, &st) && st.SQLState() == "23505"
}
