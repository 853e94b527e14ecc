package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"

	"github.com/skijumpdraft/gameclient/internal/api"
	"github.com/skijumpdraft/gameclient/internal/config"
	"github.com/skijumpdraft/gameclient/internal/game"
	"github.com/skijumpdraft/gameclient/internal/hub"
	"github.com/skijumpdraft/gameclient/internal/stream"
)

const version = "v0.3.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		nickFlag    = flag.String("nick", "", "Nick to join with (overrides NICK env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Ski Jump Draft - terminal client

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --nick NAME     Nick to join matchmaking with

Environment Variables:
  API_BASE_URL     Game service REST base URL (default: http://localhost:8080/api)
  HUB_URL          Game push channel URL (default: ws://localhost:8080/hub)
  STREAM_BASE_URL  Matchmaking stream base URL (default: http://localhost:8080/api)
  NICK             Nick to join with (default: guest)
`, os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("skijumpdraft client %s\n", version)
		return
	}

	_ = godotenv.Load()

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zerologlog.Logger = zerologlog.Output(cw)
	log := zerologlog.Logger

	cfg := config.FromEnv()
	nick := *nickFlag
	if nick == "" {
		nick = cfg.Nick
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	actions := api.New(cfg.APIBaseURL, log)
	rec := game.NewReconciler(log, game.ReconcilerConfig{})
	mm := stream.New(cfg.StreamBaseURL, log)

	done := make(chan struct{})
	var endedOnce sync.Once

	rec.OnScreenChange = func(s game.Screen) {
		log.Info().Str("screen", s.String()).Msg("screen")
		if s == game.ScreenEnded {
			endedOnce.Do(func() { close(done) })
		}
	}
	rec.OnLobbyCountdown = func(remaining int) {
		log.Info().Int("seconds", remaining).Msg("lobby ends in")
	}
	rec.OnJumpResult = func(j game.JumpResult) {
		log.Info().Str("jumper", j.CompetitionJumperID).Float64("distance", j.Distance).
			Float64("points", j.Points).Msg("jump")
	}
	mm.OnState = rec.ApplyMatchmaking
	mm.OnPlayerJoined = func(p game.MatchmakingPlayer) {
		log.Info().Str("nick", p.Nick).Bool("bot", p.IsBot).Msg("player joined lobby")
	}
	mm.OnPlayerLeft = func(p game.MatchmakingPlayer) {
		log.Info().Str("nick", p.Nick).Msg("player left lobby")
	}

	var session *game.Session
	h := hub.New(cfg.HubURL, log, hub.Events{
		OnGameUpdated: rec.ApplyGameUpdate,
		OnGameEnded:   func(id string) { session.HandleGameEnded(id) },
		OnGameStarted: func(ev game.GameStarted) { session.HandleGameStarted(ev) },
		OnDisconnected: func(err error) {
			session.HandleDisconnected(err)
		},
	})
	session = game.NewSession(log, actions, mm, h, rec, func(msg string) {
		log.Warn().Msg(msg)
	})

	if _, err := session.Join(ctx, nick); err != nil {
		log.Fatal().Err(err).Msg("could not join matchmaking")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("interrupted, leaving")
		leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		session.Abort(leaveCtx)
		cancel()
	case <-done:
		log.Info().Msg("game over")
	}
}
