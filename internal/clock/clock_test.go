package clock

import "testing"

func TestNewStartsDayOneMorning(t *testing.T) {
	c := New()
	if c.Day() != 1 {
		t.Errorf("Day = %d, want 1", c.Day())
	}
	if c.Hour() != 6 {
		t.Errorf("Hour = %d, want 6", c.Hour())
	}
	if c.IsNightTime() {
		t.Error("06:00 is not night time")
	}
}

func TestAdvanceRollsDays(t *testing.T) {
	c := New()
	c.Advance(20 * 60) // 06:00 + 20h = 02:00 next day

	if c.Day() != 2 {
		t.Errorf("Day = %d, want 2", c.Day())
	}
	if c.Hour() != 2 {
		t.Errorf("Hour = %d, want 2", c.Hour())
	}
	if !c.IsNightTime() {
		t.Error("02:00 is night time")
	}
}

func TestNowHours(t *testing.T) {
	c := NewAt(3, 12)
	// Two full days plus twelve hours.
	if got := c.NowHours(); got != 60 {
		t.Errorf("NowHours = %v, want 60", got)
	}

	c.Advance(30)
	if got := c.NowHours(); got != 60.5 {
		t.Errorf("NowHours = %v, want 60.5", got)
	}
}

func TestNegativeAdvanceIgnored(t *testing.T) {
	c := New()
	before := c.NowMinutes()
	c.Advance(-100)
	if c.NowMinutes() != before {
		t.Error("Time must never run backwards")
	}
}
