package engine

import (
	"sync"
)

// EditorSurface is the local code editor the synchronizer mirrors the
// shared document into. Cursor positions are byte offsets into the
// current value.
type EditorSurface interface {
	Value() string
	SetValue(string)
	Cursor() int
	SetCursor(int)
	SetLanguage(string)
}

// Document mirrors the session's single shared code document. Every
// local edit broadcasts the full value; concurrent typing resolves
// last-broadcast-wins by design.
type Document struct {
	mu       sync.Mutex
	editor   EditorSurface
	language string
	guard    remoteGuard
	send     func(v any)
	dirty    *DirtyFlag
}

// NewDocument wires the synchronizer to an editor surface.
func NewDocument(editor EditorSurface, language string, send func(v any), dirty *DirtyFlag) *Document {
	return &Document{
		editor:   editor,
		language: language,
		send:     send,
		dirty:    dirty,
	}
}

// LocalChange is called on every local edit (content or language).
// Suppressed while a remote value is being applied, so mirroring a
// remote update never re-broadcasts it.
func (d *Document) LocalChange(text, language string) {
	// Checked before the mutex: a reactive editor fires this from
	// inside ApplyRemote's SetValue while d.mu is still held.
	if d.guard.suppressed() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.language = language
	d.dirty.Mark()
	d.send(CodeChangeMsg{Type: TypeCodeChange, Code: text, Language: language})
}

// ApplyRemote replaces the editor's value with the broadcast one,
// preserving the local cursor across the replace. Equal values skip
// the replace entirely so an idle participant's cursor never moves.
// A language change switches the editor mode independent of content.
func (d *Document) ApplyRemote(code, language string) {
	// Raised before the mutex so the suppress flag is already visible
	// when SetValue triggers the editor's own change callback.
	defer d.guard.enter()()
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.editor.Value() != code {
		cursor := d.editor.Cursor()
		if cursor > len(code) {
			cursor = len(code)
		}
		d.editor.SetValue(code)
		d.editor.SetCursor(cursor)
	}
	if language != "" && language != d.language {
		d.language = language
		d.editor.SetLanguage(language)
	}
}

// Language returns the current language tag.
func (d *Document) Language() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.language
}

// Snapshot returns the document text and language for persistence.
func (d *Document) Snapshot() (string, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.editor.Value(), d.language
}

// MemoryEditor is an EditorSurface with no rendering behind it. It
// backs the headless agent and tests.
type MemoryEditor struct {
	mu       sync.Mutex
	value    string
	cursor   int
	language string
}

// NewMemoryEditor seeds an in-memory editor.
func NewMemoryEditor(value, language string) *MemoryEditor {
	return &MemoryEditor{value: value, language: language}
}

func (e *MemoryEditor) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

func (e *MemoryEditor) SetValue(v string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = v
}

func (e *MemoryEditor) Cursor() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

func (e *MemoryEditor) SetCursor(pos int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cursor = pos
}

func (e *MemoryEditor) SetLanguage(lang string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.language = lang
}

// Language reports the editor's current mode.
func (e *MemoryEditor) Language() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.language
}
