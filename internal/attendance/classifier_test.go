package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hadirku/internal/roster"
)

const testDate = "2025-03-10"

func at(h, m int) time.Time {
	return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC)
}

func presentRecord(scanAt time.Time, minutesLate int) *Record {
	t := scanAt
	return &Record{
		StudentID:   "s1",
		Date:        testDate,
		Status:      StatusPresent,
		Method:      MethodQR,
		ScanTime:    &t,
		MinutesLate: minutesLate,
	}
}

func TestClassifyCheckInOnTime(t *testing.T) {
	w := Boundaries{}.Resolve()

	d := Classify(at(7, 0), testDate, nil, w, roster.BandUpper, "s1", MethodQR)

	require.Equal(t, OutcomeCheckedIn, d.Outcome)
	assert.Equal(t, 0, d.MinutesLate)
	assert.Equal(t, StatusPresent, d.Record.Status)
	assert.Equal(t, "s1", d.Record.StudentID)
	assert.Equal(t, testDate, d.Record.Date)
	require.NotNil(t, d.Record.ScanTime)
	assert.Equal(t, at(7, 0), *d.Record.ScanTime)
	assert.Nil(t, d.Record.PulangTime)
}

func TestClassifyCheckInLate(t *testing.T) {
	w := Boundaries{}.Resolve()

	d := Classify(at(7, 40), testDate, nil, w, roster.BandUpper, "s1", MethodQR)

	require.Equal(t, OutcomeCheckedIn, d.Outcome)
	assert.Equal(t, 25, d.MinutesLate)
	assert.Equal(t, 25, d.Record.MinutesLate)
}

func TestClassifyCheckInWindowEdges(t *testing.T) {
	w := Boundaries{}.Resolve()

	cases := []struct {
		name    string
		now     time.Time
		outcome Outcome
		reason  RejectReason
		late    int
	}{
		{"before open", at(6, 0), OutcomeRejected, ReasonNotYetOpen, 0},
		{"exactly at open", at(6, 30), OutcomeCheckedIn, "", 0},
		{"exactly on-time end", at(7, 15), OutcomeCheckedIn, "", 0},
		{"one past on-time end", at(7, 16), OutcomeCheckedIn, "", 1},
		{"exactly late limit", at(9, 0), OutcomeCheckedIn, "", 105},
		{"past late limit", at(9, 15), OutcomeRejected, ReasonCheckinClosed, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Classify(tc.now, testDate, nil, w, roster.BandUpper, "s1", MethodQR)
			assert.Equal(t, tc.outcome, d.Outcome)
			assert.Equal(t, tc.reason, d.Reason)
			assert.Equal(t, tc.late, d.MinutesLate)
		})
	}
}

func TestClassifyCheckInNeverInsideClosedWindows(t *testing.T) {
	w := Boundaries{}.Resolve()

	for min := 0; min < w.StartAttendance; min++ {
		d := Classify(at(min/60, min%60), testDate, nil, w, roster.BandUpper, "s1", MethodQR)
		require.Equal(t, OutcomeRejected, d.Outcome, "minute %d", min)
		require.Equal(t, ReasonNotYetOpen, d.Reason)
	}
	for min := w.LateEndLimit + 1; min < 24*60; min++ {
		d := Classify(at(min/60, min%60), testDate, nil, w, roster.BandUpper, "s1", MethodQR)
		require.Equal(t, OutcomeRejected, d.Outcome, "minute %d", min)
	}
}

func TestClassifyCheckoutGating(t *testing.T) {
	w := Boundaries{}.Resolve()
	existing := presentRecord(at(7, 0), 0)

	d := Classify(at(8, 0), testDate, existing, w, roster.BandUpper, "s1", MethodQR)
	require.Equal(t, OutcomeRejected, d.Outcome)
	assert.Equal(t, ReasonCheckoutNotOpen, d.Reason)

	d = Classify(at(17, 30), testDate, existing, w, roster.BandUpper, "s1", MethodQR)
	require.Equal(t, OutcomeRejected, d.Outcome)
	assert.Equal(t, ReasonCheckoutClosed, d.Reason)

	d = Classify(at(12, 30), testDate, existing, w, roster.BandUpper, "s1", MethodQR)
	require.Equal(t, OutcomeCheckedOut, d.Outcome)
	require.NotNil(t, d.Record.PulangTime)
	assert.Equal(t, at(12, 30), *d.Record.PulangTime)
	assert.False(t, d.IsEarly)
	assert.False(t, d.Record.Synced)
}

func TestClassifyCheckoutEarlinessByBand(t *testing.T) {
	w := Boundaries{}.Resolve()

	// 11:00 sits between the lower-band boundary (10:45) and the upper-band
	// boundary (12:10): only the upper-band student counts as early.
	lower := Classify(at(11, 0), testDate, presentRecord(at(7, 0), 0), w, roster.BandLower, "s1", MethodQR)
	upper := Classify(at(11, 0), testDate, presentRecord(at(7, 0), 0), w, roster.BandUpper, "s2", MethodQR)

	require.Equal(t, OutcomeCheckedOut, lower.Outcome)
	require.Equal(t, OutcomeCheckedOut, upper.Outcome)
	assert.False(t, lower.IsEarly)
	assert.True(t, upper.IsEarly)

	// Before both boundaries, both bands are early.
	lower = Classify(at(10, 30), testDate, presentRecord(at(7, 0), 0), w, roster.BandLower, "s1", MethodQR)
	upper = Classify(at(10, 30), testDate, presentRecord(at(7, 0), 0), w, roster.BandUpper, "s2", MethodQR)
	assert.True(t, lower.IsEarly)
	assert.True(t, upper.IsEarly)
}

func TestClassifyLatenessFrozenAcrossCheckout(t *testing.T) {
	w := Boundaries{}.Resolve()
	existing := presentRecord(at(7, 40), 25)

	d := Classify(at(13, 0), testDate, existing, w, roster.BandUpper, "s1", MethodQR)

	require.Equal(t, OutcomeCheckedOut, d.Outcome)
	assert.Equal(t, 25, d.Record.MinutesLate)
}

func TestClassifySpecialStatusBlocksScans(t *testing.T) {
	w := Boundaries{}.Resolve()
	for _, status := range []Status{StatusSick, StatusPermit, StatusAbsent} {
		existing := &Record{StudentID: "s1", Date: testDate, Status: status, Method: MethodManual}
		d := Classify(at(7, 0), testDate, existing, w, roster.BandUpper, "s1", MethodQR)
		require.Equal(t, OutcomeRejected, d.Outcome, "status %s", status)
		assert.Equal(t, ReasonSpecialStatus, d.Reason)
	}
}

func TestClassifyCompletedDayRejected(t *testing.T) {
	w := Boundaries{}.Resolve()
	existing := presentRecord(at(7, 0), 0)
	out := at(12, 30)
	existing.PulangTime = &out

	d := Classify(at(13, 0), testDate, existing, w, roster.BandUpper, "s1", MethodQR)

	require.Equal(t, OutcomeRejected, d.Outcome)
	assert.Equal(t, ReasonCompleted, d.Reason)
}

func TestClassifyDoesNotMutateExisting(t *testing.T) {
	w := Boundaries{}.Resolve()
	existing := presentRecord(at(7, 0), 0)

	d := Classify(at(12, 30), testDate, existing, w, roster.BandUpper, "s1", MethodQR)

	require.Equal(t, OutcomeCheckedOut, d.Outcome)
	assert.Nil(t, existing.PulangTime, "classifier must copy, not mutate")
}

// A scan with no row on file after the check-in window always evaluates as a
// check-in attempt, even at checkout hours.
func TestClassifyNoRecordAtCheckoutHourIsCheckinAttempt(t *testing.T) {
	w := Boundaries{}.Resolve()

	d := Classify(at(13, 0), testDate, nil, w, roster.BandUpper, "s1", MethodQR)

	require.Equal(t, OutcomeRejected, d.Outcome)
	assert.Equal(t, ReasonCheckinClosed, d.Reason)
}
