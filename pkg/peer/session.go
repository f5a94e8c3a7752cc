package peer

import (
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/atrium/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// State is the per-session negotiation phase.
type State int32

const (
	StateIdle State = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerSent
	StateAnswerReceived
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerSent:
		return "answer-sent"
	case StateAnswerReceived:
		return "answer-received"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Candidates arriving before the remote description is set are queued here,
// bounded so a misbehaving peer cannot grow it without limit.
const maxPendingCandidates = 64

// Signaler carries a negotiation message to one named target through the
// server relay.
type Signaler interface {
	SendSignal(signalType, targetID string, payload any) error
}

// Session is one peer media session, keyed by the remote connection id.
type Session struct {
	remoteID string
	pc       *webrtc.PeerConnection
	signaler Signaler

	mu        sync.Mutex
	state     State
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	createdAt time.Time

	onClosed func(remoteID string)
}

func newSession(cfg webrtc.Configuration, localTrack webrtc.TrackLocal, remoteID string, sig Signaler, onClosed func(string)) (*Session, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	s := &Session{
		remoteID:  remoteID,
		pc:        pc,
		signaler:  sig,
		state:     StateIdle,
		createdAt: time.Now(),
		onClosed:  onClosed,
	}

	if localTrack != nil {
		if _, err := pc.AddTrack(localTrack); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add local track: %w", err)
		}
	} else {
		// Still negotiate an audio section so the remote can send to us.
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add transceiver: %w", err)
		}
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if err := sig.SendSignal(protocol.TypeSignalCandidate, remoteID, cand.ToJSON()); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("remote", remoteID).Msg("send candidate")
		}
	})

	pc.OnConnectionStateChange(func(cs webrtc.PeerConnectionState) {
		log.Info().Str("module", "peer").Str("remote", remoteID).Str("peer_state", cs.String()).Msg("peer state")
		switch cs {
		case webrtc.PeerConnectionStateConnected:
			s.mu.Lock()
			if s.state != StateClosed {
				s.state = StateConnected
			}
			s.mu.Unlock()
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			s.Close()
		}
	})

	return s, nil
}

func (s *Session) RemoteID() string { return s.remoteID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Age() time.Duration { return time.Since(s.createdAt) }

// StartOffer begins negotiation from the initiator side.
func (s *Session) StartOffer() error {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	if err := s.signaler.SendSignal(protocol.TypeSignalOffer, s.remoteID, offer); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	s.mu.Lock()
	s.state = StateOfferSent
	s.mu.Unlock()
	return nil
}

// HandleOffer answers an incoming offer on the non-initiator side.
func (s *Session) HandleOffer(offer webrtc.SessionDescription) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateOfferSent {
		// Glare should be impossible under initiator election; keep our
		// offer and ignore theirs rather than corrupting the handshake.
		s.mu.Unlock()
		log.Warn().Str("module", "peer").Str("remote", s.remoteID).Msg("offer received while offering, ignored")
		return nil
	}
	s.state = StateOfferReceived
	s.mu.Unlock()

	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	s.flushPending()

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	if err := s.signaler.SendSignal(protocol.TypeSignalAnswer, s.remoteID, answer); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}

	s.mu.Lock()
	if s.state != StateClosed && s.state != StateConnected {
		s.state = StateAnswerSent
	}
	s.mu.Unlock()
	return nil
}

// HandleAnswer completes the initiator's half of the handshake.
func (s *Session) HandleAnswer(answer webrtc.SessionDescription) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	if s.state != StateOfferSent {
		s.mu.Unlock()
		log.Warn().Str("module", "peer").Str("remote", s.remoteID).Msg("unexpected answer, ignored")
		return nil
	}
	s.mu.Unlock()

	if err := s.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	s.flushPending()

	s.mu.Lock()
	if s.state != StateClosed && s.state != StateConnected {
		s.state = StateAnswerReceived
	}
	s.mu.Unlock()
	return nil
}

// HandleCandidate applies a remote network candidate, queueing it when the
// remote description is not set yet. Queued candidates flush in arrival
// order, preserving sender order end to end.
func (s *Session) HandleCandidate(cand webrtc.ICECandidateInit) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	if !s.remoteSet {
		if len(s.pending) >= maxPendingCandidates {
			s.pending = s.pending[1:]
			log.Warn().Str("module", "peer").Str("remote", s.remoteID).Msg("pending candidates overflow, oldest dropped")
		}
		s.pending = append(s.pending, cand)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.pc.AddICECandidate(cand)
}

func (s *Session) flushPending() {
	s.mu.Lock()
	s.remoteSet = true
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, cand := range queued {
		if err := s.pc.AddICECandidate(cand); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("remote", s.remoteID).Msg("apply queued candidate")
		}
	}
}

// Close tears the session down. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	if err := s.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", s.remoteID).Msg("close peer connection")
	}
	if s.onClosed != nil {
		s.onClosed(s.remoteID)
	}
	log.Info().Str("module", "peer").Str("remote", s.remoteID).Msg("session closed")
}
