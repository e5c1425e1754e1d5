package attendance

import (
	"context"
	"errors"
	"log"
	"time"

	"hadirku/internal/metrics"
	"hadirku/internal/queue"
	"hadirku/internal/roster"
)

// RosterDir is the slice of the roster repository the service needs.
type RosterDir interface {
	FindByCode(ctx context.Context, code string) (*roster.Student, error)
	Get(ctx context.Context, id string) (*roster.Student, error)
	ListActive(ctx context.Context) ([]roster.Student, error)
}

// Ledger is the slice of the attendance repository the service needs.
type Ledger interface {
	GetForDate(ctx context.Context, studentID, date string) (*Record, error)
	Upsert(ctx context.Context, rec Record) error
	ListByDate(ctx context.Context, date string) ([]Record, error)
	ClearAll(ctx context.Context) error
}

// WindowSource supplies the configured HH:MM boundaries.
type WindowSource interface {
	Boundaries(ctx context.Context) (Boundaries, error)
}

// Mirror pushes individual records to the remote mirror. Optional.
type Mirror interface {
	PushRecord(ctx context.Context, rec Record) error
}

// Debouncer drops duplicate reads of the same physical tap. Optional.
type Debouncer interface {
	Reserve(ctx context.Context, code string) (bool, error)
}

// EventKind tags notification-trigger events.
type EventKind string

const (
	EventCheckIn  EventKind = "check_in"
	EventCheckOut EventKind = "check_out"
	EventManual   EventKind = "manual"
)

// Event is handed to the notification worker after every accepted mutation.
// Delivery is fire-and-forget: the scan's correctness never depends on it.
type Event struct {
	Kind        EventKind      `json:"kind"`
	Student     roster.Student `json:"student"`
	Status      Status         `json:"status"`
	Method      Method         `json:"method"`
	At          time.Time      `json:"at"`
	MinutesLate int            `json:"minutes_late"`
	IsEarly     bool           `json:"is_early"`
}

// ScanKind is the API-facing result category of one scan.
type ScanKind string

const (
	ScanUnknown    ScanKind = "unknown"
	ScanDebounced  ScanKind = "debounced"
	ScanRejected   ScanKind = "rejected"
	ScanCheckedIn  ScanKind = "checked_in"
	ScanCheckedOut ScanKind = "checked_out"
)

// ScanResult is what the scan endpoint renders.
type ScanResult struct {
	Kind        ScanKind        `json:"kind"`
	Reason      RejectReason    `json:"reason,omitempty"`
	Student     *roster.Student `json:"student,omitempty"`
	Record      *Record         `json:"record,omitempty"`
	MinutesLate int             `json:"minutes_late"`
	IsEarly     bool            `json:"is_early"`
}

// Errors for the manual-status path, which unlike scanning does treat bad
// input as an error.
var (
	ErrInvalidManualStatus = errors.New("manual status must be Sick, Permit or Absent")
	ErrStudentNotFound     = errors.New("student not found")
)

// Service coordinates scans, manual overrides and roll-ups.
type Service struct {
	roster   RosterDir
	ledger   Ledger
	windows  WindowSource
	jobs     queue.Queue
	mirror   Mirror
	debounce Debouncer
	now      func() time.Time
}

// NewService wires the service. mirror and debounce may be nil.
func NewService(dir RosterDir, ledger Ledger, windows WindowSource, jobs queue.Queue, mirror Mirror, debounce Debouncer) *Service {
	return &Service{
		roster:   dir,
		ledger:   ledger,
		windows:  windows,
		jobs:     jobs,
		mirror:   mirror,
		debounce: debounce,
		now:      time.Now,
	}
}

// Scan classifies one decoded code and applies the resulting transition.
// Domain outcomes (unknown code, policy rejections) are values in the
// ScanResult, never errors; the error return is for storage failures only.
func (s *Service) Scan(ctx context.Context, code string, method Method) (ScanResult, error) {
	if s.debounce != nil {
		ok, err := s.debounce.Reserve(ctx, code)
		if err != nil {
			log.Printf("scan debounce unavailable: %v", err)
		} else if !ok {
			metrics.ScansTotal.WithLabelValues(string(ScanDebounced)).Inc()
			return ScanResult{Kind: ScanDebounced}, nil
		}
	}

	student, err := s.roster.FindByCode(ctx, code)
	if err != nil {
		return ScanResult{}, err
	}
	if student == nil {
		metrics.ScansTotal.WithLabelValues(string(ScanUnknown)).Inc()
		return ScanResult{Kind: ScanUnknown}, nil
	}

	now := s.now()
	date := now.Format(DateLayout)

	existing, err := s.ledger.GetForDate(ctx, student.ID, date)
	if err != nil {
		return ScanResult{}, err
	}

	w := s.resolveWindows(ctx)
	d := Classify(now, date, existing, w, student.GradeBand(), student.ID, method)

	if d.Outcome == OutcomeRejected {
		metrics.ScansTotal.WithLabelValues(string(ScanRejected)).Inc()
		return ScanResult{Kind: ScanRejected, Reason: d.Reason, Student: student}, nil
	}

	rec := d.Record
	s.pushToMirror(ctx, &rec)
	if err := s.ledger.Upsert(ctx, rec); err != nil {
		return ScanResult{}, err
	}

	kind, eventKind := ScanCheckedIn, EventCheckIn
	if d.Outcome == OutcomeCheckedOut {
		kind, eventKind = ScanCheckedOut, EventCheckOut
	}
	metrics.ScansTotal.WithLabelValues(string(kind)).Inc()

	s.emit(ctx, Event{
		Kind:        eventKind,
		Student:     *student,
		Status:      rec.Status,
		Method:      method,
		At:          now,
		MinutesLate: rec.MinutesLate,
		IsEarly:     d.IsEarly,
	})

	return ScanResult{
		Kind:        kind,
		Student:     student,
		Record:      &rec,
		MinutesLate: d.MinutesLate,
		IsEarly:     d.IsEarly,
	}, nil
}

// SetManualStatus forces a (student, date) row to Sick, Permit or Absent,
// bypassing every time-window check. The row is replaced wholesale: a prior
// check-in's timestamps and lateness do not survive.
func (s *Service) SetManualStatus(ctx context.Context, studentID, date string, status Status) (Record, error) {
	if status != StatusSick && status != StatusPermit && status != StatusAbsent {
		return Record{}, ErrInvalidManualStatus
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return Record{}, err
	}

	student, err := s.roster.Get(ctx, studentID)
	if err != nil {
		return Record{}, err
	}
	if student == nil {
		return Record{}, ErrStudentNotFound
	}

	now := s.now()
	rec := Record{
		StudentID: studentID,
		Date:      date,
		Status:    status,
		Method:    MethodManual,
		ScanTime:  &now,
	}
	s.pushToMirror(ctx, &rec)
	if err := s.ledger.Upsert(ctx, rec); err != nil {
		return Record{}, err
	}

	s.emit(ctx, Event{
		Kind:    EventManual,
		Student: *student,
		Status:  status,
		Method:  MethodManual,
		At:      now,
	})
	return rec, nil
}

// RollupRow is one roster line for a date. Method is empty when the Absent
// status is derived from a missing row rather than stored.
type RollupRow struct {
	Student     roster.Student `json:"student"`
	Status      Status         `json:"status"`
	Method      Method         `json:"method,omitempty"`
	ScanTime    *time.Time     `json:"scan_time,omitempty"`
	PulangTime  *time.Time     `json:"pulang_time,omitempty"`
	MinutesLate int            `json:"minutes_late"`
}

// Rollup joins the active roster against the ledger for one date. Students
// with no row default to Absent. Read-only.
func (s *Service) Rollup(ctx context.Context, date string) ([]RollupRow, error) {
	students, err := s.roster.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.ledger.ListByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	byStudent := make(map[string]Record, len(recs))
	for _, rec := range recs {
		byStudent[rec.StudentID] = rec
	}

	rows := make([]RollupRow, 0, len(students))
	for _, st := range students {
		row := RollupRow{Student: st, Status: StatusAbsent}
		if rec, ok := byStudent[st.ID]; ok {
			row.Status = rec.Status
			row.Method = rec.Method
			row.ScanTime = rec.ScanTime
			row.PulangTime = rec.PulangTime
			row.MinutesLate = rec.MinutesLate
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ClearAll wipes the whole ledger.
func (s *Service) ClearAll(ctx context.Context) error {
	return s.ledger.ClearAll(ctx)
}

// resolveWindows loads boundaries, falling back to defaults when settings
// are unreachable; a scan should classify even if the settings row is gone.
func (s *Service) resolveWindows(ctx context.Context) Windows {
	b, err := s.windows.Boundaries(ctx)
	if err != nil {
		log.Printf("time settings unavailable, using defaults: %v", err)
		return Boundaries{}.Resolve()
	}
	return b.Resolve()
}

// pushToMirror attempts a best-effort delivery and records the result in the
// synced flag. Failures are left for the reconciliation pass.
func (s *Service) pushToMirror(ctx context.Context, rec *Record) {
	rec.Synced = false
	if s.mirror == nil {
		return
	}
	if err := s.mirror.PushRecord(ctx, *rec); err != nil {
		metrics.SyncPushTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.SyncPushTotal.WithLabelValues("ok").Inc()
	rec.Synced = true
}

func (s *Service) emit(ctx context.Context, evt Event) {
	msg, err := queue.NewMessage(queue.JobNotify, evt)
	if err != nil {
		log.Printf("encode notify event: %v", err)
		return
	}
	if err := s.jobs.Publish(ctx, msg); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}
