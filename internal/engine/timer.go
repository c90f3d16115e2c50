package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TimerAPI is the authoritative start/stop collaborator (the session
// HTTP API). Local transitions only happen after it acknowledges.
type TimerAPI interface {
	StartTimer(ctx context.Context) error
	StopTimer(ctx context.Context) (int64, error)
}

// Timer tracks elapsed teaching time. The state is binary: stopped
// with a non-negative accumulated total, or running since an instant.
// The displayed total is always re-derived from the base plus the live
// delta; it is never accumulated tick by tick, so timer jitter cannot
// drift it.
type Timer struct {
	mu           sync.Mutex
	api          TimerAPI
	accumulated  int64     // seconds
	runningSince time.Time // zero when stopped
	now          func() time.Time
	onDisplay    func(formatted string)
	stopTick     chan struct{}
}

// NewTimer seeds the state machine with the persisted total. onDisplay
// receives the formatted total on every change and display tick; it
// may be nil.
func NewTimer(api TimerAPI, accumulatedSeconds int64, onDisplay func(string)) *Timer {
	if accumulatedSeconds < 0 {
		accumulatedSeconds = 0
	}
	return &Timer{
		api:         api,
		accumulated: accumulatedSeconds,
		now:         time.Now,
		onDisplay:   onDisplay,
	}
}

// Resume marks the timer running since a known authoritative instant,
// used when joining a session whose timer is already active.
func (t *Timer) Resume(startedAt time.Time) {
	t.mu.Lock()
	t.runningSince = startedAt
	t.startTickLocked()
	t.mu.Unlock()
	t.updateDisplay()
}

// Start requests a start from the authoritative collaborator and, on
// success, transitions to running and begins the 1 Hz display cycle.
func (t *Timer) Start(ctx context.Context) error {
	t.mu.Lock()
	if !t.runningSince.IsZero() {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.api.StartTimer(ctx); err != nil {
		return fmt.Errorf("start timer: %w", err)
	}

	t.mu.Lock()
	t.runningSince = t.now()
	t.startTickLocked()
	t.mu.Unlock()
	t.updateDisplay()
	return nil
}

// Stop requests a stop and, on success, folds the running segment into
// the accumulated total.
func (t *Timer) Stop(ctx context.Context) error {
	t.mu.Lock()
	if t.runningSince.IsZero() {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if _, err := t.api.StopTimer(ctx); err != nil {
		return fmt.Errorf("stop timer: %w", err)
	}
	t.fold()
	return nil
}

// ApplyRemoteStart handles a relayed start event. Already running is a
// no-op; otherwise local receipt time approximates the authoritative
// start instant, which is acceptable because the display is the only
// consumer -- the persisted value is server-side.
func (t *Timer) ApplyRemoteStart() {
	t.mu.Lock()
	if !t.runningSince.IsZero() {
		t.mu.Unlock()
		return
	}
	t.runningSince = t.now()
	t.startTickLocked()
	t.mu.Unlock()
	t.updateDisplay()
}

// ApplyRemoteStop handles a relayed stop event; already stopped is a
// no-op.
func (t *Timer) ApplyRemoteStop() {
	t.fold()
}

// fold moves the running segment into accumulated and stops the cycle.
func (t *Timer) fold() {
	t.mu.Lock()
	if t.runningSince.IsZero() {
		t.mu.Unlock()
		return
	}
	elapsed := int64(t.now().Sub(t.runningSince) / time.Second)
	if elapsed > 0 {
		t.accumulated += elapsed
	}
	t.runningSince = time.Time{}
	if t.stopTick != nil {
		close(t.stopTick)
		t.stopTick = nil
	}
	t.mu.Unlock()
	t.updateDisplay()
}

// Running reports whether a segment is in progress.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.runningSince.IsZero()
}

// Total derives the current total: accumulated seconds plus the live
// delta when running.
func (t *Timer) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalLocked()
}

func (t *Timer) totalLocked() int64 {
	total := t.accumulated
	if !t.runningSince.IsZero() {
		total += int64(t.now().Sub(t.runningSince) / time.Second)
	}
	return total
}

// Accumulated returns the folded base without any live delta.
func (t *Timer) Accumulated() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accumulated
}

func (t *Timer) updateDisplay() {
	if t.onDisplay == nil {
		return
	}
	t.onDisplay(FormatDuration(t.Total()))
}

// startTickLocked launches the 1 Hz display cycle. Caller holds t.mu.
func (t *Timer) startTickLocked() {
	if t.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	t.stopTick = stop
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.updateDisplay()
			}
		}
	}()
}

// FormatDuration renders a second count as a zero-padded clock string.
// The hour field is omitted while it is zero; negative inputs clamp to
// "00:00".
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h == 0 {
		return fmt.Sprintf("%02d:%02d", m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
