package attendance

import "time"

// Status of a student's day.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
	StatusSick    Status = "Sick"
	StatusPermit  Status = "Permit"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusSick, StatusPermit:
		return true
	}
	return false
}

// Method records how a status came to be.
type Method string

const (
	MethodQR     Method = "QR"
	MethodRFID   Method = "RFID"
	MethodManual Method = "Manual"
)

// DateLayout is the calendar-date key format for ledger rows.
const DateLayout = "2006-01-02"

// Record is one ledger entry: at most one per (student, date). Absent days
// normally have no row at all; an explicit Absent row only appears via a
// manual override. MinutesLate is computed once at check-in and never
// recomputed. Synced tracks delivery to the remote mirror.
type Record struct {
	StudentID   string     `json:"studentId"`
	Date        string     `json:"date"`
	Status      Status     `json:"status"`
	Method      Method     `json:"method"`
	ScanTime    *time.Time `json:"scanTime,omitempty"`
	PulangTime  *time.Time `json:"pulangTime,omitempty"`
	MinutesLate int        `json:"minutesLate,omitempty"`
	Synced      bool       `json:"synced"`
}
