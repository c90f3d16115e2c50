package engine

import "sync/atomic"

// remoteGuard suppresses local-mutation emission while a remote
// operation is being applied, breaking the local-mutation -> emit ->
// remote-apply -> local-mutation feedback cycle. The depth is atomic
// so it is observable before the component's mutex: an editor surface
// whose SetValue fires its own change callback re-enters the local
// path while the apply still holds the lock. Enter returns the release
// so callers can defer it and the guard drops even if the apply
// panics.
type remoteGuard struct {
	depth atomic.Int32
}

func (g *remoteGuard) enter() func() {
	g.depth.Add(1)
	return func() { g.depth.Add(-1) }
}

func (g *remoteGuard) suppressed() bool {
	return g.depth.Load() > 0
}

// DirtyFlag marks that in-memory session state has diverged from the
// last persisted snapshot. Set by the whiteboard reconciler and the
// document synchronizer, cleared by a successful flush.
type DirtyFlag struct {
	dirty atomic.Bool
}

// Mark sets the flag.
func (f *DirtyFlag) Mark() { f.dirty.Store(true) }

// Clear resets the flag after a successful flush.
func (f *DirtyFlag) Clear() { f.dirty.Store(false) }

// IsDirty reports whether a flush is pending.
func (f *DirtyFlag) IsDirty() bool { return f.dirty.Load() }
