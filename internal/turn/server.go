// Package turn hosts an optional embedded TURN server so peers stuck behind
// symmetric NAT can still reach each other once negotiation completes. It is
// off by default; the media path stays peer-to-peer either way.
package turn

import (
	"fmt"
	"net"

	"github.com/dkeye/atrium/internal/config"
	"github.com/pion/turn/v4"
	"github.com/rs/zerolog/log"
)

type Server struct {
	cfg    config.TurnConfig
	server *turn.Server
}

func NewServer(cfg config.TurnConfig) (*Server, error) {
	udpListener, err := net.ListenPacket("udp4", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("turn listener: %w", err)
	}

	srv, err := turn.NewServer(turn.ServerConfig{
		Realm: cfg.Realm,
		AuthHandler: func(username, realm string, srcAddr net.Addr) ([]byte, bool) {
			if username == cfg.Username {
				return turn.GenerateAuthKey(cfg.Username, cfg.Realm, cfg.Password), true
			}
			return nil, false
		},
		PacketConnConfigs: []turn.PacketConnConfig{
			{
				PacketConn: udpListener,
				RelayAddressGenerator: &turn.RelayAddressGeneratorStatic{
					RelayAddress: net.ParseIP(cfg.PublicIP),
					Address:      "0.0.0.0",
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("turn server: %w", err)
	}

	log.Info().Str("module", "turn").Str("addr", cfg.Address).Str("realm", cfg.Realm).Msg("TURN server running")
	return &Server{cfg: cfg, server: srv}, nil
}

func (s *Server) Close() {
	if s.server != nil {
		if err := s.server.Close(); err != nil {
			log.Error().Err(err).Str("module", "turn").Msg("close")
			return
		}
	}
	log.Info().Str("module", "turn").Msg("TURN server stopped")
}
