package attendance

import (
	"time"

	"hadirku/internal/roster"
)

// Outcome of classifying one scan for an already-resolved student.
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeCheckedIn
	OutcomeCheckedOut
)

// RejectReason enumerates every way a resolved scan can be refused.
type RejectReason string

const (
	ReasonNotYetOpen      RejectReason = "attendance not yet open"
	ReasonCheckinClosed   RejectReason = "check-in window closed"
	ReasonSpecialStatus   RejectReason = "has special status"
	ReasonCheckoutNotOpen RejectReason = "checkout not yet open"
	ReasonCheckoutClosed  RejectReason = "checkout window closed"
	ReasonCompleted       RejectReason = "already completed both"
)

// Decision is the classifier's verdict. Record is only meaningful for the
// accepted outcomes; it is the row to upsert.
type Decision struct {
	Outcome     Outcome
	Reason      RejectReason
	Record      Record
	MinutesLate int
	IsEarly     bool
}

// Classify decides the attendance transition for one scan. It is a pure
// function of its arguments: no clock reads, no storage access, no side
// effects. existing is the student's ledger row for date, or nil.
//
// Decision order:
//  1. An existing non-Present row (Sick/Permit/Absent) blocks all scanning.
//  2. An existing Present row without a checkout time is a checkout attempt,
//     gated by the return window; earliness compares against the band's
//     on-time boundary.
//  3. An existing row with both timestamps is done for the day.
//  4. No row at all is a check-in attempt, gated by the arrival window;
//     lateness is minutes past the on-time end, floored at zero and frozen.
//
// Note a scan arriving after the check-in window with no row on file lands in
// branch 4 and is rejected as a closed check-in, not recognized as a missed
// checkout. That mirrors the observed behavior of the system this replaces.
func Classify(now time.Time, date string, existing *Record, w Windows, band roster.Band, studentID string, method Method) Decision {
	nowMin := minuteOfDay(now)

	if existing != nil {
		if existing.Status != StatusPresent {
			return Decision{Outcome: OutcomeRejected, Reason: ReasonSpecialStatus}
		}
		if existing.PulangTime == nil {
			if nowMin < w.ReturnEarlyStart {
				return Decision{Outcome: OutcomeRejected, Reason: ReasonCheckoutNotOpen}
			}
			if nowMin > w.ReturnLimit {
				return Decision{Outcome: OutcomeRejected, Reason: ReasonCheckoutClosed}
			}
			updated := *existing
			t := now
			updated.PulangTime = &t
			updated.Synced = false
			return Decision{
				Outcome: OutcomeCheckedOut,
				Record:  updated,
				IsEarly: nowMin < w.PulangStart(band),
			}
		}
		return Decision{Outcome: OutcomeRejected, Reason: ReasonCompleted}
	}

	if nowMin < w.StartAttendance {
		return Decision{Outcome: OutcomeRejected, Reason: ReasonNotYetOpen}
	}
	if nowMin > w.LateEndLimit {
		return Decision{Outcome: OutcomeRejected, Reason: ReasonCheckinClosed}
	}

	minutesLate := 0
	if nowMin > w.OnTimeEnd {
		minutesLate = nowMin - w.OnTimeEnd
	}
	t := now
	return Decision{
		Outcome: OutcomeCheckedIn,
		Record: Record{
			StudentID:   studentID,
			Date:        date,
			Status:      StatusPresent,
			Method:      method,
			ScanTime:    &t,
			MinutesLate: minutesLate,
		},
		MinutesLate: minutesLate,
	}
}
