package engine

import (
	"context"
	"errors"
	"testing"
)

// fakeSaver records flushes and can fail a set number of times.
type fakeSaver struct {
	saved    []SessionState
	failNext int
}

func (f *fakeSaver) SaveState(ctx context.Context, state SessionState) error {
	if f.failNext > 0 {
		f.failNext--
		return errors.New("save failed")
	}
	f.saved = append(f.saved, state)
	return nil
}

func testSnapshot() SessionState {
	return SessionState{Whiteboard: "{}", IdeCode: "x = 1", IdeLanguage: "python"}
}

func TestPersistTickSkipsWhenClean(t *testing.T) {
	var dirty DirtyFlag
	saver := &fakeSaver{}
	p := NewPersistScheduler(&dirty, saver, testSnapshot, DefaultFlushInterval)

	p.Tick(context.Background())

	if len(saver.saved) != 0 {
		t.Errorf("clean tick flushed %d times, want 0", len(saver.saved))
	}
}

func TestPersistTickFlushesWhenDirty(t *testing.T) {
	var dirty DirtyFlag
	saver := &fakeSaver{}
	p := NewPersistScheduler(&dirty, saver, testSnapshot, DefaultFlushInterval)

	dirty.Mark()
	p.Tick(context.Background())

	if len(saver.saved) != 1 {
		t.Fatalf("flushed %d times, want 1", len(saver.saved))
	}
	if saver.saved[0].IdeCode != "x = 1" {
		t.Errorf("saved state = %+v", saver.saved[0])
	}
	if dirty.IsDirty() {
		t.Error("dirty flag not cleared after successful flush")
	}
}

func TestPersistFailedFlushRetriesNextTick(t *testing.T) {
	var dirty DirtyFlag
	saver := &fakeSaver{failNext: 1}
	p := NewPersistScheduler(&dirty, saver, testSnapshot, DefaultFlushInterval)

	dirty.Mark()
	p.Tick(context.Background())

	// The failed flush must leave the flag set so the next tick
	// retries with the then-current snapshot.
	if !dirty.IsDirty() {
		t.Fatal("dirty flag cleared by a failed flush")
	}

	p.Tick(context.Background())
	if len(saver.saved) != 1 {
		t.Fatalf("flushed %d times after retry, want 1", len(saver.saved))
	}
	if dirty.IsDirty() {
		t.Error("dirty flag still set after successful retry")
	}
}

func TestPersistEditsDuringFailureNotLost(t *testing.T) {
	var dirty DirtyFlag
	state := testSnapshot()
	snapshot := func() SessionState { return state }
	saver := &fakeSaver{failNext: 1}
	p := NewPersistScheduler(&dirty, saver, snapshot, DefaultFlushInterval)

	dirty.Mark()
	p.Tick(context.Background())

	// More edits land while the flush is failing.
	state.IdeCode = "x = 2"
	dirty.Mark()
	p.Tick(context.Background())

	if len(saver.saved) != 1 {
		t.Fatalf("flushed %d times, want 1", len(saver.saved))
	}
	if saver.saved[0].IdeCode != "x = 2" {
		t.Errorf("retry saved stale snapshot %q", saver.saved[0].IdeCode)
	}
}

func TestPersistFlushNow(t *testing.T) {
	var dirty DirtyFlag
	saver := &fakeSaver{}
	p := NewPersistScheduler(&dirty, saver, testSnapshot, DefaultFlushInterval)

	dirty.Mark()
	if err := p.FlushNow(context.Background()); err != nil {
		t.Fatalf("FlushNow: %v", err)
	}
	if dirty.IsDirty() {
		t.Error("dirty flag not cleared")
	}
}

func TestPersistDefaultInterval(t *testing.T) {
	var dirty DirtyFlag
	p := NewPersistScheduler(&dirty, &fakeSaver{}, testSnapshot, 0)
	if p.interval != DefaultFlushInterval {
		t.Errorf("interval = %v, want %v", p.interval, DefaultFlushInterval)
	}
}
