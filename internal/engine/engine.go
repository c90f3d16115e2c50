package engine

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// SessionAPI bundles the HTTP collaborators one session engine needs.
// *APIClient is the production implementation.
type SessionAPI interface {
	TimerAPI
	StateSaver
	EndSession(ctx context.Context) (string, error)
	ChatBacklog(ctx context.Context) ([]ChatBacklogMessage, error)
}

// Config describes one participant's view of a session. Zero-value
// callbacks are allowed; nil Editor gets an in-memory surface.
type Config struct {
	SessionID       int64
	UserID          int64
	UserName        string
	InitialCode     string
	InitialLanguage string
	TeachingSeconds int64
	FlushInterval   time.Duration

	Editor      EditorSurface
	PeerFactory PeerFactory
	Media       Media

	OnChat         func(ChatIn)
	OnSessionEnded func(redirectURL string)
	OnTimerDisplay func(formatted string)
	OnRemoteTrack  func(*webrtc.TrackRemote)
	OnAlert        func(message string)
}

// Engine is the per-session synchronization context: it owns the
// channel, the router and the four stateful components, with no
// ambient globals. All remote applies run on the dispatch loop; local
// operations may come from any goroutine.
type Engine struct {
	cfg    Config
	api    SessionAPI
	router *Router
	dirty  DirtyFlag

	chmu    sync.RWMutex
	channel Channel

	Whiteboard *Whiteboard
	Document   *Document
	Timer      *Timer
	Signaling  *Signaling
	persist    *PersistScheduler
}

// New assembles an engine against an open channel and the session API.
func New(cfg Config, ch Channel, api SessionAPI) *Engine {
	if cfg.Editor == nil {
		cfg.Editor = NewMemoryEditor(cfg.InitialCode, cfg.InitialLanguage)
	}
	e := &Engine{
		cfg:     cfg,
		api:     api,
		router:  NewRouter(),
		channel: ch,
	}

	e.Whiteboard = NewWhiteboard(e.send, &e.dirty)
	e.Document = NewDocument(cfg.Editor, cfg.InitialLanguage, e.send, &e.dirty)
	e.Timer = NewTimer(api, cfg.TeachingSeconds, cfg.OnTimerDisplay)
	e.Signaling = NewSignaling(cfg.PeerFactory, cfg.Media, e.send, cfg.OnRemoteTrack, cfg.OnAlert)
	e.persist = NewPersistScheduler(&e.dirty, api, e.snapshot, cfg.FlushInterval)

	e.registerHandlers()
	return e
}

// Run drives the dispatch loop and the persistence cadence until the
// context is canceled or the channel closes.
func (e *Engine) Run(ctx context.Context) {
	go e.persist.Run(ctx)
	e.router.Run(ctx, e.currentChannel())
}

// Rebind points the engine at a freshly opened channel; the registered
// handlers carry over unchanged.
func (e *Engine) Rebind(ch Channel) {
	e.chmu.Lock()
	e.channel = ch
	e.chmu.Unlock()
}

// SendChat broadcasts a chat line. Blank content is dropped.
func (e *Engine) SendChat(content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	e.send(ChatOut{Type: TypeChat, Content: content})
}

// StartTimerAction starts the teaching timer through the collaborator
// and, once acknowledged, broadcasts the start so the peer's display
// follows. The self-echo is absorbed by the timer's idempotent apply.
func (e *Engine) StartTimerAction(ctx context.Context) error {
	if err := e.Timer.Start(ctx); err != nil {
		return err
	}
	e.send(TimerMsg{Type: TypeTimer, Action: TimerStart, UserID: e.cfg.UserID, UserName: e.cfg.UserName})
	return nil
}

// StopTimerAction stops the teaching timer and broadcasts the stop.
func (e *Engine) StopTimerAction(ctx context.Context) error {
	if err := e.Timer.Stop(ctx); err != nil {
		return err
	}
	e.send(TimerMsg{Type: TypeTimer, Action: TimerStop, UserID: e.cfg.UserID, UserName: e.cfg.UserName})
	return nil
}

// StartCall runs the initiator side of the video handshake.
func (e *Engine) StartCall() error { return e.Signaling.StartCall() }

// LoadChatBacklog fetches the initial chat history.
func (e *Engine) LoadChatBacklog(ctx context.Context) ([]ChatBacklogMessage, error) {
	return e.api.ChatBacklog(ctx)
}

// EndSession flushes pending state and asks the server to end the
// session, returning the redirect URL.
func (e *Engine) EndSession(ctx context.Context) (string, error) {
	if e.dirty.IsDirty() {
		if err := e.persist.FlushNow(ctx); err != nil {
			log.Printf("[Engine] Final flush failed: %v", err)
		}
	}
	return e.api.EndSession(ctx)
}

// FlushState forces an immediate snapshot save.
func (e *Engine) FlushState(ctx context.Context) error {
	return e.persist.FlushNow(ctx)
}

// Dirty reports whether unsaved state exists.
func (e *Engine) Dirty() bool { return e.dirty.IsDirty() }

func (e *Engine) snapshot() SessionState {
	code, language := e.Document.Snapshot()
	return SessionState{
		Whiteboard:  e.Whiteboard.Snapshot(),
		IdeCode:     code,
		IdeLanguage: language,
	}
}

func (e *Engine) send(v any) {
	e.currentChannel().Send(v)
}

func (e *Engine) currentChannel() Channel {
	e.chmu.RLock()
	defer e.chmu.RUnlock()
	return e.channel
}

func (e *Engine) registerHandlers() {
	chat := func(env Envelope) {
		var msg ChatIn
		if err := env.Payload(&msg); err != nil {
			log.Printf("[Engine] Dropping malformed chat payload: %v", err)
			return
		}
		if e.cfg.OnChat != nil {
			e.cfg.OnChat(msg)
		}
	}
	e.router.Register(TypeChat, chat)
	e.router.Register(TypeChatMessage, chat)

	e.router.Register(TypeWhiteboard, func(env Envelope) {
		var msg WhiteboardMsg
		if err := env.Payload(&msg); err != nil {
			log.Printf("[Engine] Dropping malformed whiteboard payload: %v", err)
			return
		}
		e.Whiteboard.ApplyRemote(msg.Data)
	})

	e.router.Register(TypeCodeChange, func(env Envelope) {
		var msg CodeChangeMsg
		if err := env.Payload(&msg); err != nil {
			log.Printf("[Engine] Dropping malformed code payload: %v", err)
			return
		}
		e.Document.ApplyRemote(msg.Code, msg.Language)
	})

	e.router.Register(TypeTimer, func(env Envelope) {
		var msg TimerMsg
		if err := env.Payload(&msg); err != nil {
			log.Printf("[Engine] Dropping malformed timer payload: %v", err)
			return
		}
		switch msg.Action {
		case TimerStart:
			e.Timer.ApplyRemoteStart()
		case TimerStop:
			e.Timer.ApplyRemoteStop()
		default:
			log.Printf("[Engine] Ignoring unknown timer action %q", msg.Action)
		}
	})

	signal := func(env Envelope) {
		var msg VideoSignalMsg
		if err := env.Payload(&msg); err != nil {
			log.Printf("[Engine] Dropping malformed video signal: %v", err)
			return
		}
		e.Signaling.HandleSignal(msg.Data)
	}
	e.router.Register(TypeVideoSignal, signal)
	e.router.Register(TypeVideoSignalMessage, signal)

	e.router.Register(TypeSessionEnded, func(env Envelope) {
		var msg SessionEndedMsg
		if err := env.Payload(&msg); err != nil {
			log.Printf("[Engine] Dropping malformed session_ended payload: %v", err)
			return
		}
		if e.cfg.OnSessionEnded != nil {
			e.cfg.OnSessionEnded(msg.RedirectURL)
		}
	})
}
