// Headless mesh participant: joins a room, negotiates a link with every
// other member and logs membership and screen-share changes. Useful for
// soaking the signaling server without a browser.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/okutsev/huddle/internal/client/mesh"
	"github.com/okutsev/huddle/internal/client/rtc"
	"github.com/okutsev/huddle/internal/client/signaling"
	"github.com/okutsev/huddle/internal/domain"
)

func main() {
	server := flag.String("server", "ws://localhost:8080/api/ws/signal", "signaling server URL")
	room := flag.String("room", "lobby", "room to join")
	name := flag.String("name", "probe", "display name")
	password := flag.String("password", "", "room password")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	sig := signaling.NewClient(*server)
	if err := sig.Connect(); err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer sig.Close()

	coord := mesh.NewCoordinator(mesh.Config{
		Sender:       sig,
		NewTransport: rtc.Factory(rtc.DefaultConfig(nil)),
		MaxRestarts:  1,
		OnRemoteShare: func(ann domain.ScreenShareAnnouncement) {
			log.Info().Str("identity", string(ann.Identity)).Bool("sharing", ann.IsSharing).
				Str("kind", string(ann.ShareKind)).Msg("remote share state")
		},
		OnPeerGone: func(id domain.Identity) {
			log.Info().Str("identity", string(id)).Msg("peer gone")
		},
	})
	// No capture hardware here: join receive-only, media gate open.
	coord.SetLocalMedia(nil, nil)

	sig.Send(&signaling.Message{
		Type:     signaling.TypeJoinRoom,
		Room:     *room,
		Name:     *name,
		Password: *password,
	})

	coord.Run(ctx, sig.Incoming())
	log.Info().Msg("client exited")
}
