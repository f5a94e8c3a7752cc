package peer

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/atrium/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// ICEServers are STUN/TURN URLs handed to every peer connection.
	ICEServers []string
	// NegotiationTimeout bounds how long a session may sit short of
	// Connected before the reaper tears it down. Zero disables reaping.
	NegotiationTimeout time.Duration
}

// Manager keeps exactly one Session per remote connection id and applies
// initiator election to decide which side offers.
type Manager struct {
	localID    string
	signaler   Signaler
	cfg        Config
	localTrack webrtc.TrackLocal

	mu       sync.Mutex
	sessions map[string]*Session

	done      chan struct{}
	closeOnce sync.Once
}

func NewManager(localID string, sig Signaler, cfg Config, localTrack webrtc.TrackLocal) *Manager {
	m := &Manager{
		localID:    localID,
		signaler:   sig,
		cfg:        cfg,
		localTrack: localTrack,
		sessions:   make(map[string]*Session),
		done:       make(chan struct{}),
	}
	if cfg.NegotiationTimeout > 0 {
		go m.reap()
	}
	return m
}

func (m *Manager) webrtcConfig() webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(m.cfg.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: m.cfg.ICEServers}}
	}
	return cfg
}

// EnsureSession opens the session for remoteID if none exists, offering when
// the local side wins election. Idempotent per remote.
func (m *Manager) EnsureSession(remoteID string) (*Session, error) {
	if remoteID == m.localID {
		return nil, nil
	}
	m.mu.Lock()
	if s, ok := m.sessions[remoteID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	s, err := newSession(m.webrtcConfig(), m.localTrack, remoteID, m.signaler, m.dropSession)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.sessions[remoteID] = s
	m.mu.Unlock()

	if Initiator(m.localID, remoteID) {
		if err := s.StartOffer(); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// HandleSignal dispatches a relayed negotiation message from senderID. An
// offer from an unknown remote creates the session lazily; join deltas and
// first offers may arrive in either order.
func (m *Manager) HandleSignal(senderID, signalType string, payload json.RawMessage) {
	switch signalType {
	case protocol.TypeSignalOffer:
		var offer webrtc.SessionDescription
		if err := json.Unmarshal(payload, &offer); err != nil {
			log.Error().Err(err).Str("module", "peer").Msg("bad offer payload")
			return
		}
		s, err := m.EnsureSession(senderID)
		if err != nil || s == nil {
			log.Error().Err(err).Str("module", "peer").Str("remote", senderID).Msg("session for offer")
			return
		}
		if err := s.HandleOffer(offer); err != nil {
			log.Error().Err(err).Str("module", "peer").Str("remote", senderID).Msg("handle offer")
		}
	case protocol.TypeSignalAnswer:
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(payload, &answer); err != nil {
			log.Error().Err(err).Str("module", "peer").Msg("bad answer payload")
			return
		}
		if s, ok := m.session(senderID); ok {
			if err := s.HandleAnswer(answer); err != nil {
				log.Error().Err(err).Str("module", "peer").Str("remote", senderID).Msg("handle answer")
			}
		}
	case protocol.TypeSignalCandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(payload, &cand); err != nil {
			log.Error().Err(err).Str("module", "peer").Msg("bad candidate payload")
			return
		}
		if s, ok := m.session(senderID); ok {
			if err := s.HandleCandidate(cand); err != nil {
				log.Warn().Err(err).Str("module", "peer").Str("remote", senderID).Msg("handle candidate")
			}
		}
	}
}

func (m *Manager) session(remoteID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[remoteID]
	return s, ok
}

func (m *Manager) dropSession(remoteID string) {
	m.mu.Lock()
	delete(m.sessions, remoteID)
	m.mu.Unlock()
}

// ClosePeer tears down the session for a departed remote.
func (m *Manager) ClosePeer(remoteID string) {
	if s, ok := m.session(remoteID); ok {
		s.Close()
	}
}

// CloseAll tears down every session, e.g. on local leave.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// reap closes sessions stuck short of Connected past the deadline, so a peer
// that never answers cannot leak connections.
func (m *Manager) reap() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			var stale []*Session
			m.mu.Lock()
			for _, s := range m.sessions {
				if s.State() != StateConnected && s.Age() > m.cfg.NegotiationTimeout {
					stale = append(stale, s)
				}
			}
			m.mu.Unlock()
			for _, s := range stale {
				log.Warn().Str("module", "peer").Str("remote", s.RemoteID()).
					Str("state", s.State().String()).Msg("negotiation deadline exceeded, closing")
				s.Close()
			}
		}
	}
}
