package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeTimerAPI acknowledges or refuses start/stop requests.
type fakeTimerAPI struct {
	startErr   error
	stopErr    error
	startCalls int
	stopCalls  int
}

func (f *fakeTimerAPI) StartTimer(ctx context.Context) error {
	f.startCalls++
	return f.startErr
}

func (f *fakeTimerAPI) StopTimer(ctx context.Context) (int64, error) {
	f.stopCalls++
	return 0, f.stopErr
}

// fakeClock lets tests move time deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTimer(api TimerAPI, accumulated int64) (*Timer, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	timer := NewTimer(api, accumulated, nil)
	timer.now = clock.now
	return timer, clock
}

func TestTimerStartStopFoldsElapsed(t *testing.T) {
	api := &fakeTimerAPI{}
	timer, clock := newTestTimer(api, 0)

	if err := timer.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !timer.Running() {
		t.Fatal("timer not running after acknowledged start")
	}
	clock.advance(95 * time.Second)
	if err := timer.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if timer.Running() {
		t.Error("timer still running after stop")
	}
	if got := timer.Accumulated(); got != 95 {
		t.Errorf("accumulated = %d, want 95", got)
	}
}

func TestTimerTotalDerivedWhileRunning(t *testing.T) {
	api := &fakeTimerAPI{}
	timer, clock := newTestTimer(api, 100)

	if err := timer.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.advance(30 * time.Second)

	// The total is base plus live delta, re-derived on every read.
	if got := timer.Total(); got != 130 {
		t.Errorf("total = %d, want 130", got)
	}
	clock.advance(30 * time.Second)
	if got := timer.Total(); got != 160 {
		t.Errorf("total = %d, want 160", got)
	}
	if got := timer.Accumulated(); got != 100 {
		t.Errorf("accumulated moved to %d while running, want 100", got)
	}
}

func TestTimerStartRefusedStaysStopped(t *testing.T) {
	api := &fakeTimerAPI{startErr: errors.New("session has ended")}
	timer, _ := newTestTimer(api, 0)

	if err := timer.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded against a refusing API")
	}
	if timer.Running() {
		t.Error("timer running despite refused start")
	}
}

func TestTimerStopFailedKeepsRunning(t *testing.T) {
	api := &fakeTimerAPI{}
	timer, clock := newTestTimer(api, 0)

	if err := timer.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	api.stopErr = errors.New("network down")
	clock.advance(10 * time.Second)
	if err := timer.Stop(context.Background()); err == nil {
		t.Fatal("Stop succeeded against a failing API")
	}
	if !timer.Running() {
		t.Error("timer stopped despite failed stop request")
	}
}

func TestTimerStartWhileRunningIsNoOp(t *testing.T) {
	api := &fakeTimerAPI{}
	timer, _ := newTestTimer(api, 0)

	if err := timer.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := timer.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if api.startCalls != 1 {
		t.Errorf("API called %d times, want 1", api.startCalls)
	}
}

func TestTimerRemoteStartIdempotent(t *testing.T) {
	api := &fakeTimerAPI{}
	timer, clock := newTestTimer(api, 0)

	timer.ApplyRemoteStart()
	first := timer.Running()
	clock.advance(20 * time.Second)
	// The relay echoes the local start back; re-applying must not
	// reset the running baseline.
	timer.ApplyRemoteStart()

	if !first || !timer.Running() {
		t.Fatal("timer not running after remote start")
	}
	if got := timer.Total(); got != 20 {
		t.Errorf("total = %d after duplicate remote start, want 20", got)
	}
}

func TestTimerRemoteStopIdempotent(t *testing.T) {
	api := &fakeTimerAPI{}
	timer, clock := newTestTimer(api, 0)

	timer.ApplyRemoteStart()
	clock.advance(40 * time.Second)
	timer.ApplyRemoteStop()
	timer.ApplyRemoteStop()

	if got := timer.Accumulated(); got != 40 {
		t.Errorf("accumulated = %d, want 40", got)
	}
}

func TestTimerResume(t *testing.T) {
	api := &fakeTimerAPI{}
	timer, clock := newTestTimer(api, 600)

	timer.Resume(clock.t.Add(-25 * time.Second))

	if !timer.Running() {
		t.Fatal("timer not running after resume")
	}
	if got := timer.Total(); got != 625 {
		t.Errorf("total = %d, want 625", got)
	}
}

func TestTimerNegativeSeedClamped(t *testing.T) {
	api := &fakeTimerAPI{}
	timer := NewTimer(api, -5, nil)
	if got := timer.Accumulated(); got != 0 {
		t.Errorf("accumulated = %d, want 0", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "00:00"},
		{1, "00:01"},
		{59, "00:59"},
		{60, "01:00"},
		{61, "01:01"},
		{599, "09:59"},
		{3599, "59:59"},
		{3600, "01:00:00"},
		{3661, "01:01:01"},
		{7325, "02:02:05"},
		{-10, "00:00"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
