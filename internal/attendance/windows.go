package attendance

import (
	"strconv"
	"strings"
	"time"

	"hadirku/internal/roster"
)

// Fallback boundaries, in minutes since midnight. Any unset or malformed
// HH:MM string resolves to these rather than failing the scan.
const (
	defaultStartAttendance          = 6*60 + 30  // 06:30
	defaultOnTimeEnd                = 7*60 + 15  // 07:15
	defaultLateEndLimit             = 9 * 60     // 09:00
	defaultReturnEarlyStart         = 9 * 60     // 09:00
	defaultReturnLimit              = 17 * 60    // 17:00
	defaultOnTimePulangStart        = 12*60 + 10 // 12:10
	defaultOnTimePulangStartClass12 = 10*60 + 45 // 10:45
)

// Boundaries holds the configured HH:MM strings as stored in settings.
type Boundaries struct {
	StartAttendance          string `json:"start_attendance"`
	OnTimeEnd                string `json:"on_time_end"`
	LateEndLimit             string `json:"late_end_limit"`
	ReturnEarlyStart         string `json:"return_early_start"`
	ReturnLimit              string `json:"return_limit"`
	OnTimePulangStart        string `json:"on_time_pulang_start"`
	OnTimePulangStartClass12 string `json:"on_time_pulang_start_class12"`
}

// Windows is the resolved form of Boundaries: minutes since midnight.
type Windows struct {
	StartAttendance          int
	OnTimeEnd                int
	LateEndLimit             int
	ReturnEarlyStart         int
	ReturnLimit              int
	OnTimePulangStart        int
	OnTimePulangStartClass12 int
}

// Resolve parses each boundary, substituting the fallback for anything that
// is empty or not a valid HH:MM clock.
func (b Boundaries) Resolve() Windows {
	return Windows{
		StartAttendance:          parseClock(b.StartAttendance, defaultStartAttendance),
		OnTimeEnd:                parseClock(b.OnTimeEnd, defaultOnTimeEnd),
		LateEndLimit:             parseClock(b.LateEndLimit, defaultLateEndLimit),
		ReturnEarlyStart:         parseClock(b.ReturnEarlyStart, defaultReturnEarlyStart),
		ReturnLimit:              parseClock(b.ReturnLimit, defaultReturnLimit),
		OnTimePulangStart:        parseClock(b.OnTimePulangStart, defaultOnTimePulangStart),
		OnTimePulangStartClass12: parseClock(b.OnTimePulangStartClass12, defaultOnTimePulangStartClass12),
	}
}

// PulangStart returns the checkout on-time boundary for a grade band. Lower
// grades (1-2) leave earlier, so they get their own boundary.
func (w Windows) PulangStart(band roster.Band) int {
	if band == roster.BandLower {
		return w.OnTimePulangStartClass12
	}
	return w.OnTimePulangStart
}

// parseClock converts an "HH:MM" string to minutes since midnight.
func parseClock(s string, fallback int) int {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return fallback
	}
	hour, err1 := strconv.Atoi(strings.TrimSpace(h))
	min, err2 := strconv.Atoi(strings.TrimSpace(m))
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || min < 0 || min > 59 {
		return fallback
	}
	return hour*60 + min
}

// minuteOfDay projects a wall-clock time onto the comparison axis used by
// every window check.
func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
