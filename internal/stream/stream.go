// Package stream subscribes to the matchmaking event stream: a long-lived SSE
// GET per lobby id whose every event wholesale-replaces the MatchmakingState.
package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog"
	backoffv1 "gopkg.in/cenkalti/backoff.v1"

	"github.com/skijumpdraft/gameclient/internal/game"
)

// Adapter consumes one lobby's stream at a time. Callbacks must be set before
// Subscribe. The joined/left callbacks are additive sugar computed by diffing
// player-id sets between consecutive events; the state callback remains the
// single source of truth.
type Adapter struct {
	baseURL string
	log     zerolog.Logger

	OnState        func(game.MatchmakingState)
	OnPlayerJoined func(game.MatchmakingPlayer)
	OnPlayerLeft   func(game.MatchmakingPlayer)

	mu     sync.Mutex
	known  map[string]game.MatchmakingPlayer
	cancel context.CancelFunc
}

func New(baseURL string, log zerolog.Logger) *Adapter {
	return &Adapter{
		baseURL: baseURL,
		log:     log.With().Str("component", "stream").Logger(),
	}
}

// Subscribe opens the stream for one matchmaking session and consumes it until
// the context ends, Close is called, or the transport fails. The adapter does
// not reconnect on its own; a transport error simply ends the sequence.
func (a *Adapter) Subscribe(ctx context.Context, matchmakingID string) error {
	if matchmakingID == "" {
		return fmt.Errorf("matchmaking id required")
	}

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.known = make(map[string]game.MatchmakingPlayer)
	a.mu.Unlock()

	url := fmt.Sprintf("%s/matchmaking/%s/stream", a.baseURL, matchmakingID)
	client := sse.NewClient(url)
	client.ReconnectStrategy = &backoffv1.StopBackOff{}

	a.log.Info().Str("matchmakingId", matchmakingID).Msg("stream connecting")
	go func() {
		err := client.SubscribeRawWithContext(ctx, a.handle)
		if err != nil && ctx.Err() == nil {
			a.log.Warn().Err(err).Str("matchmakingId", matchmakingID).Msg("stream closed")
		}
	}()
	return nil
}

func (a *Adapter) handle(msg *sse.Event) {
	if len(msg.Data) == 0 {
		return
	}
	st, err := game.DecodeMatchmakingState(msg.Data)
	if err != nil {
		a.log.Warn().Err(err).Msg("undecodable stream event, skipping")
		return
	}

	joined, left := a.diff(st)

	if a.OnState != nil {
		a.OnState(st)
	}
	for _, p := range joined {
		a.log.Debug().Str("playerId", p.PlayerID).Str("nick", p.Nick).Msg("player joined")
		if a.OnPlayerJoined != nil {
			a.OnPlayerJoined(p)
		}
	}
	for _, p := range left {
		a.log.Debug().Str("playerId", p.PlayerID).Str("nick", p.Nick).Msg("player left")
		if a.OnPlayerLeft != nil {
			a.OnPlayerLeft(p)
		}
	}
}

// diff updates the adapter-local player-id set and returns who appeared and
// who disappeared. Events without a player list leave the set untouched.
func (a *Adapter) diff(st game.MatchmakingState) (joined, left []game.MatchmakingPlayer) {
	if st.Players == nil {
		return nil, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.known == nil {
		return nil, nil
	}
	next := make(map[string]game.MatchmakingPlayer, len(st.Players))
	for _, p := range st.Players {
		next[p.PlayerID] = p
		if _, ok := a.known[p.PlayerID]; !ok {
			joined = append(joined, p)
		}
	}
	for id, p := range a.known {
		if _, ok := next[id]; !ok {
			left = append(left, p)
		}
	}
	a.known = next
	return joined, left
}

// Close tears the subscription down and clears the diff state.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.known = nil
}
