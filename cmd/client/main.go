package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/atrium/internal/protocol"
	"github.com/dkeye/atrium/pkg/peer"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080/api/ws/signal", "signal server websocket URL")
	venue := flag.String("venue", "lounge", "venue id to join")
	name := flag.String("name", "guest", "display name")
	broadcast := flag.Bool("broadcast", false, "ask for the broadcaster slot")
	stun := flag.String("stun", "stun:stun.l.google.com:19302", "STUN server URL")
	timeout := flag.Duration("negotiation-timeout", 30*time.Second, "peer negotiation deadline")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := peer.Config{
		ICEServers:         []string{*stun},
		NegotiationTimeout: *timeout,
	}

	client, err := peer.Dial(ctx, *addr, cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("dial")
	}

	client.OnSnapshot = func(snap protocol.Snapshot) {
		log.Info().Str("venue", snap.VenueID).Str("role", snap.Role).
			Int("participants", len(snap.Participants)).
			Bool("broadcaster_present", snap.Broadcaster != nil).Msg("joined")
	}
	client.OnMemberJoined = func(mj protocol.MemberJoined) {
		log.Info().Str("sid", mj.ConnectionID).Str("name", mj.DisplayName).Str("role", mj.Role).Msg("member joined")
	}
	client.OnMemberLeft = func(ml protocol.MemberLeft) {
		log.Info().Str("sid", ml.ConnectionID).Str("name", ml.DisplayName).Msg("member left")
	}
	client.OnChat = func(msg protocol.ChatMessage) {
		log.Info().Str("from", msg.SenderName).Str("body", msg.Body).Msg("chat")
	}
	client.OnError = func(e string) {
		log.Warn().Str("error", e).Msg("rejected")
	}

	if err := client.Join(*venue, *name, *broadcast); err != nil {
		log.Fatal().Err(err).Msg("join")
	}

	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("connection lost")
	}
	log.Info().Msg("client exited")
}
