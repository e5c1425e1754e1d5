package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hadirku/internal/roster"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in       string
		fallback int
		want     int
	}{
		{"06:30", 0, 6*60 + 30},
		{"00:00", 99, 0},
		{"23:59", 0, 23*60 + 59},
		{" 7:15 ", 0, 7*60 + 15}, // stray whitespace is tolerated
		{"", 42, 42},
		{"9", 42, 42},
		{"9:5:1", 42, 42},
		{"24:00", 42, 42},
		{"12:60", 42, 42},
		{"ab:cd", 42, 42},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseClock(tc.in, tc.fallback), "input %q", tc.in)
	}
}

func TestResolveDefaults(t *testing.T) {
	w := Boundaries{}.Resolve()

	assert.Equal(t, 6*60+30, w.StartAttendance)
	assert.Equal(t, 7*60+15, w.OnTimeEnd)
	assert.Equal(t, 9*60, w.LateEndLimit)
	assert.Equal(t, 9*60, w.ReturnEarlyStart)
	assert.Equal(t, 17*60, w.ReturnLimit)
	assert.Equal(t, 12*60+10, w.OnTimePulangStart)
	assert.Equal(t, 10*60+45, w.OnTimePulangStartClass12)
}

func TestResolveMalformedFallsBackPerBoundary(t *testing.T) {
	w := Boundaries{
		StartAttendance: "07:00",
		OnTimeEnd:       "not-a-clock",
		LateEndLimit:    "08:30",
	}.Resolve()

	assert.Equal(t, 7*60, w.StartAttendance)
	assert.Equal(t, 7*60+15, w.OnTimeEnd, "malformed boundary uses its own default")
	assert.Equal(t, 8*60+30, w.LateEndLimit)
}

func TestPulangStartByBand(t *testing.T) {
	w := Boundaries{}.Resolve()

	assert.Equal(t, 10*60+45, w.PulangStart(roster.BandLower))
	assert.Equal(t, 12*60+10, w.PulangStart(roster.BandUpper))
}
