package model

import (
	"testing"
	"time"
)

func TestSessionTimerStopFoldsDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	timer := SessionTimer{StartTime: start}

	if !timer.IsRunning() {
		t.Fatal("open segment reported not running")
	}

	timer.Stop(start.Add(90 * time.Second))

	if timer.IsRunning() {
		t.Error("segment still running after stop")
	}
	if timer.DurationSeconds != 90 {
		t.Errorf("duration = %d, want 90", timer.DurationSeconds)
	}
}

func TestSessionTimerStopTwice(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	timer := SessionTimer{StartTime: start}

	timer.Stop(start.Add(30 * time.Second))
	timer.Stop(start.Add(300 * time.Second))

	if timer.DurationSeconds != 30 {
		t.Errorf("second stop changed duration to %d, want 30", timer.DurationSeconds)
	}
}

func TestSessionTimerStopClampsNegative(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	timer := SessionTimer{StartTime: start}

	// Clock skew can put the stop instant before the start.
	timer.Stop(start.Add(-5 * time.Second))

	if timer.DurationSeconds != 0 {
		t.Errorf("duration = %d, want 0", timer.DurationSeconds)
	}
}

func TestSessionTeachingSeconds(t *testing.T) {
	session := Session{
		Timers: []SessionTimer{
			{TeacherID: 1, DurationSeconds: 60},
			{TeacherID: 1, DurationSeconds: 30},
			{TeacherID: 2, DurationSeconds: 999},
		},
	}

	if got := session.TeachingSeconds(1); got != 90 {
		t.Errorf("TeachingSeconds(1) = %d, want 90", got)
	}
	if got := session.TeachingSeconds(3); got != 0 {
		t.Errorf("TeachingSeconds(3) = %d, want 0", got)
	}
}
