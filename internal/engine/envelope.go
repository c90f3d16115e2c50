package engine

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Message types exchanged over the session channel. The enumeration is
// closed: envelopes with any other type are ignored, never fatal.
const (
	TypeChat               = "chat"
	TypeChatMessage        = "chat_message"
	TypeWhiteboard         = "whiteboard"
	TypeCodeChange         = "code_change"
	TypeTimer              = "timer"
	TypeVideoSignal        = "video_signal"
	TypeVideoSignalMessage = "video_signal_message"
	TypeSessionEnded       = "session_ended"
)

// Envelope is one decoded frame from the session channel. Type is the
// dispatch discriminator; the rest of the frame stays raw until the
// owning component decodes its own payload shape.
type Envelope struct {
	Type string
	raw  json.RawMessage
}

// DecodeEnvelope parses a wire frame into an Envelope. Payload fields
// are not validated here; only the type discriminator is required.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		return Envelope{}, fmt.Errorf("invalid frame: %w", err)
	}
	if probe.Type == "" {
		return Envelope{}, fmt.Errorf("frame has no type")
	}
	return Envelope{Type: probe.Type, raw: append(json.RawMessage(nil), frame...)}, nil
}

// Payload unmarshals the envelope's frame into a per-type payload struct.
func (e Envelope) Payload(v any) error {
	return json.Unmarshal(e.raw, v)
}

// ChatOut is the outbound chat payload.
type ChatOut struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ChatIn is an inbound chat message (relay echoes chat to everyone,
// sender included, with authorship attached).
type ChatIn struct {
	Sender   string `json:"sender"`
	SenderID int64  `json:"sender_id"`
	Content  string `json:"content"`
}

// WhiteboardMsg wraps one whiteboard operation for the wire.
type WhiteboardMsg struct {
	Type string       `json:"type"`
	Data WhiteboardOp `json:"data"`
}

// Whiteboard operation kinds.
const (
	WhiteboardAdd    = "add"
	WhiteboardModify = "modify"
	WhiteboardClear  = "clear"
)

// WhiteboardOp is a single add/modify/clear operation. Object is the
// serialized shape state, opaque to the reconciler apart from its id.
type WhiteboardOp struct {
	Type   string          `json:"type"`
	Object json.RawMessage `json:"object,omitempty"`
}

// CodeChangeMsg is the full-value document broadcast.
type CodeChangeMsg struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// Timer actions within a timer payload.
const (
	TimerStart = "start"
	TimerStop  = "stop"
)

// TimerMsg is a timer event; the relay echoes it to every participant,
// the sender included.
type TimerMsg struct {
	Type     string `json:"type"`
	Action   string `json:"action"` // "start" | "stop"
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
}

// VideoSignalMsg wraps one signaling payload for the wire.
type VideoSignalMsg struct {
	Type string     `json:"type"`
	Data SignalData `json:"data"`
}

// Signal kinds within a video_signal payload.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// SignalData carries one step of the offer/answer/candidate exchange.
type SignalData struct {
	Type      string                     `json:"type"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// SessionEndedMsg tells clients the session is over.
type SessionEndedMsg struct {
	RedirectURL string `json:"redirect_url"`
}
