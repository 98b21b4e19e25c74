package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dway/meetup/internal/client"
	"github.com/dway/meetup/internal/domain"
	sigmsg "github.com/dway/meetup/internal/signal"
)

var (
	serverURL string
	roomID    string
	name      string
	stun      []string
)

var rootCmd = &cobra.Command{
	Use:   "meetup-client",
	Short: "Headless meeting participant: joins a room and negotiates a media mesh",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&serverURL, "server", "ws://localhost:5000/api/ws/signal", "signaling server URL")
	rootCmd.Flags().StringVar(&roomID, "room", "", "room id to join (required)")
	rootCmd.Flags().StringVar(&name, "name", "", "display name")
	rootCmd.Flags().StringSliceVar(&stun, "stun", []string{
		"stun:stun.l.google.com:19302",
		"stun:global.stun.twilio.com:3478",
	}, "STUN servers")
	_ = rootCmd.MarkFlagRequired("room")
}

func run(cmd *cobra.Command, args []string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess := client.NewSession(stun, client.Events{
		OnRoster: func(ps []sigmsg.ParticipantDTO) {
			log.Info().Int("count", len(ps)).Msg("roster updated")
		},
		OnChat: func(m sigmsg.ChatEvent) {
			fmt.Printf("[%s] %s\n", m.Name, m.Text)
		},
		OnHandRaised: func(id domain.ConnID, raised bool) {
			log.Info().Str("peer", string(id)).Bool("raised", raised).Msg("hand state")
		},
		OnPeerState: func(id domain.ConnID, st client.State) {
			log.Info().Str("peer", string(id)).Stringer("state", st).Msg("peer state")
		},
	})

	identity := domain.Identity{Name: name}
	if err := sess.Join(ctx, serverURL, roomID, identity, client.SyntheticCapturer{}); err != nil {
		return err
	}
	log.Info().Str("room", roomID).Msg("joined, ctrl-c to leave")

	<-ctx.Done()
	sess.Leave()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
