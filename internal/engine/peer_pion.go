package engine

import (
	"github.com/pion/webrtc/v4"
)

// DefaultSTUNServer matches the original deployment's ICE config.
const DefaultSTUNServer = "stun:stun.l.google.com:19302"

// pionPeer adapts pion's *webrtc.PeerConnection to the PeerConnection
// interface the relay negotiates against.
type pionPeer struct {
	pc *webrtc.PeerConnection
}

// NewPionPeerFactory returns a PeerFactory backed by pion/webrtc using
// the given STUN/TURN URLs (DefaultSTUNServer when empty).
func NewPionPeerFactory(iceServers ...string) PeerFactory {
	if len(iceServers) == 0 {
		iceServers = []string{DefaultSTUNServer}
	}
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
	return func() (PeerConnection, error) {
		pc, err := webrtc.NewPeerConnection(config)
		if err != nil {
			return nil, err
		}
		return &pionPeer{pc: pc}, nil
	}
}

func (p *pionPeer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *pionPeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *pionPeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *pionPeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *pionPeer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *pionPeer) AddTrack(track webrtc.TrackLocal) error {
	_, err := p.pc.AddTrack(track)
	return err
}

func (p *pionPeer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// pion signals gathering completion with a nil candidate.
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

func (p *pionPeer) OnTrack(fn func(*webrtc.TrackRemote)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}
