package core

import (
	"sync"

	"github.com/dkeye/atrium/internal/domain"
)

// occupantSession implements OccupantSession by pairing meta + transport.
// The display name is the only mutable field; it changes on join.
type occupantSession struct {
	id   ConnID
	conn SignalConn

	mu   sync.RWMutex
	name string
}

func NewOccupantSession(id ConnID, displayName string, conn SignalConn) OccupantSession {
	return &occupantSession{id: id, name: displayName, conn: conn}
}

func (s *occupantSession) ID() ConnID { return s.id }

func (s *occupantSession) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *occupantSession) SetDisplayName(name string) error {
	if err := domain.ValidateDisplayName(name); err != nil {
		return err
	}
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	return nil
}

func (s *occupantSession) Signal() SignalConn { return s.conn }
