package engine

import (
	"context"
	"log"
	"time"
)

// SessionState is one snapshot of the persisted session surfaces.
type SessionState struct {
	Whiteboard  string `json:"whiteboard"`
	IdeCode     string `json:"ide_code"`
	IdeLanguage string `json:"ide_language"`
}

// StateSaver is the storage collaborator the scheduler flushes to.
type StateSaver interface {
	SaveState(ctx context.Context, state SessionState) error
}

// DefaultFlushInterval is the save cadence.
const DefaultFlushInterval = 10 * time.Second

// PersistScheduler batches dirty-state snapshots and flushes them on a
// fixed cadence. A failed flush leaves the dirty flag set; the next
// tick retries, and the interval itself throttles the retries.
type PersistScheduler struct {
	dirty    *DirtyFlag
	saver    StateSaver
	snapshot func() SessionState
	interval time.Duration
}

// NewPersistScheduler wires the scheduler. snapshot is called at flush
// time so the saved state is always current.
func NewPersistScheduler(dirty *DirtyFlag, saver StateSaver, snapshot func() SessionState, interval time.Duration) *PersistScheduler {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &PersistScheduler{
		dirty:    dirty,
		saver:    saver,
		snapshot: snapshot,
		interval: interval,
	}
}

// Run ticks until the context is canceled, flushing whenever the dirty
// flag is set.
func (p *PersistScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick performs one scheduled pass: flush if dirty, otherwise nothing.
func (p *PersistScheduler) Tick(ctx context.Context) {
	if !p.dirty.IsDirty() {
		return
	}
	if err := p.FlushNow(ctx); err != nil {
		log.Printf("[Persist] Flush failed, will retry next tick: %v", err)
	}
}

// FlushNow saves the current snapshot immediately. The dirty flag is
// cleared only on acknowledged success.
func (p *PersistScheduler) FlushNow(ctx context.Context) error {
	if err := p.saver.SaveState(ctx, p.snapshot()); err != nil {
		return err
	}
	p.dirty.Clear()
	return nil
}
