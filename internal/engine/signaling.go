package engine

import (
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"
)

// SignalState is the negotiation phase of the peer call.
type SignalState int

const (
	StateIdle SignalState = iota
	StateConnecting
	StateNegotiating
	StateConnected
	StateFailed
)

// String returns the state name.
func (s SignalState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PeerConnection is the negotiation primitive behind the relay. The
// production implementation wraps pion's *webrtc.PeerConnection; tests
// substitute a fake.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) error
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnTrack(func(*webrtc.TrackRemote))
	Close() error
}

// PeerFactory builds a fresh PeerConnection for one negotiation.
type PeerFactory func() (PeerConnection, error)

// Media acquires and controls the local audio/video tracks. Acquire
// may prompt the user for device permission and fail.
type Media interface {
	Acquire() ([]webrtc.TrackLocal, error)
	SetAudioEnabled(bool)
	SetVideoEnabled(bool)
	Close()
}

// Signaling drives the three-message offer/answer/candidate handshake
// for one bidirectional audio/video stream. All signals travel through
// the session channel; there is no graceful teardown message -- peer
// disconnection shows up as the remote stream ending.
type Signaling struct {
	mu        sync.Mutex
	state     SignalState
	newPeer   PeerFactory
	peer      PeerConnection
	media     Media
	tracks    []webrtc.TrackLocal
	haveMedia bool
	audioOn   bool
	videoOn   bool
	send      func(v any)
	onTrack   func(*webrtc.TrackRemote)
	onAlert   func(string)
}

// NewSignaling wires the relay to its collaborators. onTrack and
// onAlert may be nil.
func NewSignaling(newPeer PeerFactory, media Media, send func(v any), onTrack func(*webrtc.TrackRemote), onAlert func(string)) *Signaling {
	return &Signaling{
		state:   StateIdle,
		newPeer: newPeer,
		media:   media,
		send:    send,
		onTrack: onTrack,
		onAlert: onAlert,
	}
}

// State returns the current negotiation phase.
func (s *Signaling) State() SignalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartCall runs the initiator path: acquire media, build the peer,
// create and emit the offer. Media denial aborts back to Idle with a
// user-facing alert.
func (s *Signaling) StartCall() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("call already in state %s", s.state)
	}
	s.state = StateConnecting

	if err := s.acquireMediaLocked(); err != nil {
		s.state = StateIdle
		s.alert("Camera access error")
		return fmt.Errorf("acquire media: %w", err)
	}
	if err := s.ensurePeerLocked(); err != nil {
		s.state = StateFailed
		return err
	}
	if err := s.attachTracksLocked(); err != nil {
		s.state = StateFailed
		return err
	}

	offer, err := s.peer.CreateOffer()
	if err != nil {
		s.state = StateFailed
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.peer.SetLocalDescription(offer); err != nil {
		s.state = StateFailed
		return fmt.Errorf("set local description: %w", err)
	}
	s.send(VideoSignalMsg{Type: TypeVideoSignal, Data: SignalData{Type: SignalOffer, Offer: &offer}})
	s.state = StateNegotiating
	return nil
}

// HandleSignal applies one inbound offer/answer/candidate. Failures
// are logged and leave the call in its current state; retry is a UI
// concern.
func (s *Signaling) HandleSignal(data SignalData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch data.Type {
	case SignalOffer:
		s.handleOfferLocked(data.Offer)
	case SignalAnswer:
		s.handleAnswerLocked(data.Answer)
	case SignalCandidate:
		// Candidate exchange is independent of the offer/answer phase;
		// the peer buffers candidates that arrive before a remote
		// description is set.
		if data.Candidate == nil || s.peer == nil {
			return
		}
		if err := s.peer.AddICECandidate(*data.Candidate); err != nil {
			log.Printf("[Signaling] Failed to apply candidate: %v", err)
		}
	default:
		log.Printf("[Signaling] Ignoring unknown signal %q", data.Type)
	}
}

// handleOfferLocked runs the responder path.
func (s *Signaling) handleOfferLocked(offer *webrtc.SessionDescription) {
	if offer == nil {
		return
	}
	if err := s.ensurePeerLocked(); err != nil {
		s.state = StateFailed
		log.Printf("[Signaling] Failed to create peer connection: %v", err)
		return
	}
	if err := s.peer.SetRemoteDescription(*offer); err != nil {
		log.Printf("[Signaling] Failed to set remote offer: %v", err)
		return
	}
	if !s.haveMedia {
		if err := s.acquireMediaLocked(); err != nil {
			s.alert("Camera access error")
			log.Printf("[Signaling] Media acquisition failed: %v", err)
			return
		}
		if err := s.attachTracksLocked(); err != nil {
			log.Printf("[Signaling] Failed to attach tracks: %v", err)
			return
		}
	}
	answer, err := s.peer.CreateAnswer()
	if err != nil {
		log.Printf("[Signaling] Failed to create answer: %v", err)
		return
	}
	if err := s.peer.SetLocalDescription(answer); err != nil {
		log.Printf("[Signaling] Failed to set local answer: %v", err)
		return
	}
	s.send(VideoSignalMsg{Type: TypeVideoSignal, Data: SignalData{Type: SignalAnswer, Answer: &answer}})
	s.state = StateNegotiating
}

func (s *Signaling) handleAnswerLocked(answer *webrtc.SessionDescription) {
	if answer == nil || s.peer == nil {
		return
	}
	if err := s.peer.SetRemoteDescription(*answer); err != nil {
		log.Printf("[Signaling] Failed to set remote answer: %v", err)
		return
	}
	// Logically connected; media flows once ICE completes.
	s.state = StateConnected
}

// ensurePeerLocked lazily builds the peer primitive and registers the
// candidate and remote-track callbacks.
func (s *Signaling) ensurePeerLocked() error {
	if s.peer != nil {
		return nil
	}
	peer, err := s.newPeer()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	peer.OnICECandidate(func(candidate webrtc.ICECandidateInit) {
		s.send(VideoSignalMsg{Type: TypeVideoSignal, Data: SignalData{Type: SignalCandidate, Candidate: &candidate}})
	})
	peer.OnTrack(func(track *webrtc.TrackRemote) {
		if s.onTrack != nil {
			s.onTrack(track)
		}
	})
	s.peer = peer
	return nil
}

func (s *Signaling) acquireMediaLocked() error {
	if s.media == nil {
		return fmt.Errorf("no media source configured")
	}
	tracks, err := s.media.Acquire()
	if err != nil {
		return err
	}
	s.tracks = tracks
	s.haveMedia = true
	s.audioOn = true
	s.videoOn = true
	return nil
}

func (s *Signaling) attachTracksLocked() error {
	for _, track := range s.tracks {
		if err := s.peer.AddTrack(track); err != nil {
			return fmt.Errorf("add track: %w", err)
		}
	}
	return nil
}

// ToggleMute flips the local audio track; the change is not signaled,
// the stream simply goes silent. Returns the new enabled state.
func (s *Signaling) ToggleMute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveMedia {
		return false
	}
	s.audioOn = !s.audioOn
	s.media.SetAudioEnabled(s.audioOn)
	return s.audioOn
}

// ToggleCamera flips the local video track without renegotiating.
// Returns the new enabled state.
func (s *Signaling) ToggleCamera() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveMedia {
		return false
	}
	s.videoOn = !s.videoOn
	s.media.SetVideoEnabled(s.videoOn)
	return s.videoOn
}

// Teardown closes the peer and releases media, returning to Idle.
func (s *Signaling) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer != nil {
		if err := s.peer.Close(); err != nil {
			log.Printf("[Signaling] Peer close failed: %v", err)
		}
		s.peer = nil
	}
	if s.haveMedia {
		s.media.Close()
		s.haveMedia = false
		s.tracks = nil
	}
	s.state = StateIdle
}

func (s *Signaling) alert(msg string) {
	if s.onAlert != nil {
		s.onAlert(msg)
	}
}
