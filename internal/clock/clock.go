// Package clock provides the in-game calendar used by all simulation math.
// Decay windows, patrol timers and audit deadlines are expressed in game
// hours and days, never in wall-clock time, so the simulation stays
// deterministic under variable tick rates.
package clock

// MinutesPerDay is the length of one in-game day.
const MinutesPerDay = 24 * 60

// GameClock is a monotonic in-game minute counter.
// It is advanced by the Ticker in production and manually in tests.
type GameClock struct {
	minutes int64
}

// New creates a clock at day 1, 06:00 (the canonical game start).
func New() *GameClock {
	return NewAt(1, 6)
}

// NewAt creates a clock positioned at the given day (1-based) and hour.
func NewAt(day, hour int) *GameClock {
	if day < 1 {
		day = 1
	}
	if hour < 0 || hour > 23 {
		hour = 0
	}
	return &GameClock{minutes: int64(day-1)*MinutesPerDay + int64(hour)*60}
}

// Advance moves the clock forward. Negative amounts are ignored.
func (c *GameClock) Advance(minutes int) {
	if minutes <= 0 {
		return
	}
	c.minutes += int64(minutes)
}

// NowMinutes returns the total in-game minutes since the game epoch.
func (c *GameClock) NowMinutes() int64 {
	return c.minutes
}

// NowHours returns the in-game time as fractional hours since the epoch.
func (c *GameClock) NowHours() float64 {
	return float64(c.minutes) / 60.0
}

// Day returns the current in-game day, 1-based.
func (c *GameClock) Day() int {
	return int(c.minutes/MinutesPerDay) + 1
}

// Hour returns the current in-game hour, 0-23.
func (c *GameClock) Hour() int {
	return int(c.minutes%MinutesPerDay) / 60
}

// IsNightTime reports whether the clock is inside the 22:00-06:00 window.
func (c *GameClock) IsNightTime() bool {
	h := c.Hour()
	return h >= 22 || h < 6
}
