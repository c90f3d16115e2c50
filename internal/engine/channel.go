package engine

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Channel is the single bidirectional message transport of a session.
// Send enqueues an envelope value for transmission and is a no-op when
// the channel is not open; inbound envelopes surface on Inbound and are
// drained by the engine's dispatch loop.
type Channel interface {
	Send(v any)
	Inbound() <-chan Envelope
	Close() error
}

// WSChannel is a Channel over a gorilla websocket connection.
type WSChannel struct {
	conn    *websocket.Conn
	inbound chan Envelope
	// sendMu orders enqueues against Close: a send that loses the race
	// is dropped instead of hitting the closed outbound queue.
	sendMu   sync.Mutex
	outbound chan []byte
	closed   atomic.Bool
	dropped  atomic.Int64
	once     sync.Once
}

// DialChannel connects to the session relay endpoint and starts the
// read/write pumps.
func DialChannel(url string) (*WSChannel, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	ch := &WSChannel{
		conn:     conn,
		inbound:  make(chan Envelope, 64),
		outbound: make(chan []byte, 64),
	}
	go ch.readPump()
	go ch.writePump()
	return ch, nil
}

// Send marshals v and enqueues it. Frames are dropped (and counted)
// when the channel is closed or the queue is full; there is no retry
// queue.
func (ch *WSChannel) Send(v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Printf("[Channel] Failed to marshal outbound message: %v", err)
		return
	}
	ch.sendMu.Lock()
	defer ch.sendMu.Unlock()
	if ch.closed.Load() {
		ch.dropped.Add(1)
		return
	}
	select {
	case ch.outbound <- frame:
	default:
		ch.dropped.Add(1)
		log.Printf("[Channel] Outbound queue full, dropping frame")
	}
}

// Inbound returns the stream of decoded envelopes. The channel is
// closed when the connection ends.
func (ch *WSChannel) Inbound() <-chan Envelope {
	return ch.inbound
}

// Dropped reports how many outbound frames were silently dropped.
func (ch *WSChannel) Dropped() int64 {
	return ch.dropped.Load()
}

// Close tears the connection down. Pending sends are discarded.
func (ch *WSChannel) Close() error {
	ch.sendMu.Lock()
	ch.closed.Store(true)
	ch.once.Do(func() { close(ch.outbound) })
	ch.sendMu.Unlock()
	return ch.conn.Close()
}

func (ch *WSChannel) readPump() {
	defer func() {
		ch.closed.Store(true)
		close(ch.inbound)
	}()
	for {
		_, frame, err := ch.conn.ReadMessage()
		if err != nil {
			if !ch.closed.Load() {
				log.Printf("[Channel] Connection closed: %v", err)
			}
			return
		}
		env, err := DecodeEnvelope(frame)
		if err != nil {
			// Malformed frames are skipped; the next one must still flow.
			log.Printf("[Channel] Dropping malformed frame: %v", err)
			continue
		}
		ch.inbound <- env
	}
}

func (ch *WSChannel) writePump() {
	for frame := range ch.outbound {
		if err := ch.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Printf("[Channel] Write failed: %v", err)
			ch.closed.Store(true)
			return
		}
	}
}

// LoopbackChannel echoes every sent envelope straight back to its own
// inbound queue. Used by tests to exercise the engine's feedback-loop
// protection without a relay.
type LoopbackChannel struct {
	// sendMu orders enqueues against Close, same as WSChannel.
	sendMu  sync.Mutex
	inbound chan Envelope
	closed  atomic.Bool
	dropped atomic.Int64
}

// NewLoopbackChannel returns an open loopback channel.
func NewLoopbackChannel() *LoopbackChannel {
	return &LoopbackChannel{inbound: make(chan Envelope, 256)}
}

// Send marshals v and feeds it back as an inbound envelope.
func (ch *LoopbackChannel) Send(v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Printf("[Channel] Failed to marshal loopback message: %v", err)
		return
	}
	env, err := DecodeEnvelope(frame)
	if err != nil {
		log.Printf("[Channel] Dropping malformed loopback frame: %v", err)
		return
	}
	ch.sendMu.Lock()
	defer ch.sendMu.Unlock()
	if ch.closed.Load() {
		ch.dropped.Add(1)
		return
	}
	select {
	case ch.inbound <- env:
	default:
		ch.dropped.Add(1)
	}
}

// Inbound returns the loopback queue.
func (ch *LoopbackChannel) Inbound() <-chan Envelope {
	return ch.inbound
}

// Dropped reports frames dropped after Close.
func (ch *LoopbackChannel) Dropped() int64 {
	return ch.dropped.Load()
}

// Close marks the channel closed; later sends are dropped.
func (ch *LoopbackChannel) Close() error {
	ch.sendMu.Lock()
	defer ch.sendMu.Unlock()
	if ch.closed.CompareAndSwap(false, true) {
		close(ch.inbound)
	}
	return nil
}
