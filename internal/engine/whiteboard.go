package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Whiteboard reconciles the shared drawing-object mapping. Objects are
// opaque serialized blobs identified by their "id" field; conflicts on
// the same object resolve last-modify-wins by whole-object replacement.
type Whiteboard struct {
	mu      sync.Mutex
	objects map[string]json.RawMessage
	guard   remoteGuard
	send    func(v any)
	dirty   *DirtyFlag
}

// NewWhiteboard returns an empty reconciler. send carries outbound
// envelopes; dirty is the session's persistence flag.
func NewWhiteboard(send func(v any), dirty *DirtyFlag) *Whiteboard {
	return &Whiteboard{
		objects: make(map[string]json.RawMessage),
		send:    send,
		dirty:   dirty,
	}
}

// LocalAdd inserts a locally drawn object, assigning a fresh id when
// the blob has none, and broadcasts the add. Returns the object id.
func (w *Whiteboard) LocalAdd(object map[string]any) string {
	// Checked before the mutex so a canvas surface reacting to a
	// remote apply cannot re-enter the lock.
	if w.guard.suppressed() {
		return ""
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	id := stringID(object["id"])
	if id == "" {
		id = uuid.New().String()
		object["id"] = id
	}
	raw, err := json.Marshal(object)
	if err != nil {
		log.Printf("[Whiteboard] Failed to serialize object %s: %v", id, err)
		return id
	}
	w.objects[id] = raw
	w.dirty.Mark()
	w.send(WhiteboardMsg{Type: TypeWhiteboard, Data: WhiteboardOp{Type: WhiteboardAdd, Object: raw}})
	return id
}

// LocalModify replaces a locally edited object and broadcasts the
// modification.
func (w *Whiteboard) LocalModify(object map[string]any) {
	if w.guard.suppressed() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	id := stringID(object["id"])
	if id == "" {
		log.Printf("[Whiteboard] Ignoring modify without object id")
		return
	}
	raw, err := json.Marshal(object)
	if err != nil {
		log.Printf("[Whiteboard] Failed to serialize object %s: %v", id, err)
		return
	}
	w.objects[id] = raw
	w.dirty.Mark()
	w.send(WhiteboardMsg{Type: TypeWhiteboard, Data: WhiteboardOp{Type: WhiteboardModify, Object: raw}})
}

// LocalClear wipes every object and broadcasts the clear. Destructive
// and irreversible; user confirmation is the caller's responsibility.
func (w *Whiteboard) LocalClear() {
	if w.guard.suppressed() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.objects = make(map[string]json.RawMessage)
	w.dirty.Mark()
	w.send(WhiteboardMsg{Type: TypeWhiteboard, Data: WhiteboardOp{Type: WhiteboardClear}})
}

// ApplyRemote merges one remote operation under the re-entrancy guard:
// duplicate adds are ignored (idempotent against re-delivery and
// self-echo), modifies on unknown ids are ignored (the object may have
// been deleted locally), clear empties unconditionally.
func (w *Whiteboard) ApplyRemote(op WhiteboardOp) {
	defer w.guard.enter()()
	w.mu.Lock()
	defer w.mu.Unlock()

	switch op.Type {
	case WhiteboardClear:
		w.objects = make(map[string]json.RawMessage)
	case WhiteboardAdd:
		id := rawObjectID(op.Object)
		if id == "" {
			log.Printf("[Whiteboard] Ignoring remote add without object id")
			return
		}
		if _, exists := w.objects[id]; exists {
			return
		}
		w.objects[id] = append(json.RawMessage(nil), op.Object...)
	case WhiteboardModify:
		id := rawObjectID(op.Object)
		if _, exists := w.objects[id]; !exists {
			return
		}
		w.objects[id] = append(json.RawMessage(nil), op.Object...)
	default:
		log.Printf("[Whiteboard] Ignoring unknown operation %q", op.Type)
	}
}

// Object returns the current blob for an id.
func (w *Whiteboard) Object(id string) (json.RawMessage, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	raw, ok := w.objects[id]
	return raw, ok
}

// Len reports the number of objects currently held.
func (w *Whiteboard) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.objects)
}

// Snapshot serializes the mapping for the persistence scheduler.
func (w *Whiteboard) Snapshot() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]json.RawMessage, len(w.objects))
	for id, raw := range w.objects {
		out[id] = raw
	}
	data, err := json.Marshal(out)
	if err != nil {
		log.Printf("[Whiteboard] Failed to serialize snapshot: %v", err)
		return "{}"
	}
	return string(data)
}

// Restore loads a previously persisted snapshot, replacing the current
// mapping. Used when joining a session with saved state.
func (w *Whiteboard) Restore(snapshot string) error {
	objects := make(map[string]json.RawMessage)
	if snapshot != "" {
		if err := json.Unmarshal([]byte(snapshot), &objects); err != nil {
			return fmt.Errorf("invalid whiteboard snapshot: %w", err)
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.objects = objects
	return nil
}

// rawObjectID pulls the id out of an opaque object blob.
func rawObjectID(raw json.RawMessage) string {
	var probe struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return stringID(probe.ID)
}

// stringID normalizes an id value: client-generated ids are strings,
// but blobs from other tooling may carry numbers.
func stringID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	default:
		return fmt.Sprintf("%v", id)
	}
}
