package game

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Actions is the mutating surface of the game service the session needs.
type Actions interface {
	JoinMatchmaking(ctx context.Context, nick string) (JoinResult, error)
	LeaveMatchmaking(ctx context.Context, matchmakingID, playerID string) error
}

// Stream is the matchmaking event-stream adapter as the session sees it.
type Stream interface {
	Subscribe(ctx context.Context, matchmakingID string) error
	Close()
}

// Hub is the game push-channel adapter as the session sees it. Connect opens
// the single physical connection against whichever id is non-empty; Close
// with userInitiated set marks the resulting disconnect as expected.
type Hub interface {
	Connect(ctx context.Context, matchmakingID, gameID string) error
	Close(userInitiated bool)
}

// Notifier surfaces a transient user-visible message (a toast).
type Notifier func(msg string)

// Session orchestrates the lifecycle join matchmaking -> wait -> game -> end.
// It owns which ids are live; every adapter callback checks them, so a stale
// callback after a reset is a harmless no-op.
type Session struct {
	log     zerolog.Logger
	actions Actions
	stream  Stream
	hub     Hub
	rec     *Reconciler
	notify  Notifier

	mu            sync.Mutex
	matchmakingID string
	gameID        string
	playerID      string
	nick          string
	userAborted   bool
}

func NewSession(log zerolog.Logger, actions Actions, stream Stream, hub Hub, rec *Reconciler, notify Notifier) *Session {
	return &Session{log: log, actions: actions, stream: stream, hub: hub, rec: rec, notify: notify}
}

// Join enters matchmaking: performs the join call, stores the returned ids
// and opens both adapters, the hub in matchmaking-group mode.
func (s *Session) Join(ctx context.Context, nick string) (JoinResult, error) {
	res, err := s.actions.JoinMatchmaking(ctx, nick)
	if err != nil {
		return JoinResult{}, err
	}

	s.mu.Lock()
	s.matchmakingID = res.MatchmakingID
	s.playerID = res.PlayerID
	s.nick = res.CorrectedNick
	if s.nick == "" {
		s.nick = nick
	}
	s.userAborted = false
	nickNow := s.nick
	s.mu.Unlock()

	s.rec.TrackSession(res.MatchmakingID, res.PlayerID, nickNow)

	if err := s.stream.Subscribe(ctx, res.MatchmakingID); err != nil {
		s.reset()
		return JoinResult{}, fmt.Errorf("subscribe matchmaking stream: %w", err)
	}
	if err := s.hub.Connect(ctx, res.MatchmakingID, ""); err != nil {
		s.reset()
		return JoinResult{}, fmt.Errorf("connect hub: %w", err)
	}
	s.log.Info().Str("matchmakingId", res.MatchmakingID).Str("nick", nickNow).Msg("joined matchmaking")
	return res, nil
}

// Abort leaves the session on the user's initiative: a best-effort leave call
// followed by a hard reset regardless of its outcome.
func (s *Session) Abort(ctx context.Context) {
	s.mu.Lock()
	s.userAborted = true
	mmID, playerID := s.matchmakingID, s.playerID
	s.mu.Unlock()

	if mmID != "" {
		if err := s.actions.LeaveMatchmaking(ctx, mmID, playerID); err != nil {
			s.log.Warn().Err(err).Msg("leave matchmaking failed, resetting anyway")
		}
	}
	s.reset()
}

// HandleGameStarted is wired to the hub's GameStartedAfterMatchmaking event.
// The adapter has already switched groups; the session only does bookkeeping.
func (s *Session) HandleGameStarted(ev GameStarted) {
	s.mu.Lock()
	if s.matchmakingID == "" || s.matchmakingID != ev.MatchmakingID {
		s.mu.Unlock()
		s.log.Debug().Str("matchmakingId", ev.MatchmakingID).Msg("game started for untracked session, ignoring")
		return
	}
	s.gameID = ev.GameID
	s.mu.Unlock()

	s.rec.ApplyGameStarted(ev)
	// The lobby is over; the stream has nothing more to say.
	s.stream.Close()
	s.log.Info().Str("gameId", ev.GameID).Msg("game started")
}

// HandleGameEnded is wired to the hub's terminal GameEnded event.
func (s *Session) HandleGameEnded(gameID string) {
	s.mu.Lock()
	tracked := s.gameID != "" && s.gameID == gameID
	s.userAborted = tracked // the teardown below is expected, not a drop
	s.mu.Unlock()
	if !tracked {
		return
	}
	s.rec.ApplyGameEnded(gameID)
	s.reset()
}

// HandleDisconnected is wired to the hub's onDisconnected. A drop the user
// caused (abort, game end) is suppressed one-shot; a genuine network drop
// surfaces a notification and resets the session.
func (s *Session) HandleDisconnected(err error) {
	s.mu.Lock()
	if s.userAborted {
		s.userAborted = false
		s.mu.Unlock()
		return
	}
	active := s.matchmakingID != "" || s.gameID != ""
	s.mu.Unlock()
	if !active {
		return
	}
	s.log.Warn().Err(err).Msg("connection lost")
	if s.notify != nil {
		s.notify("Connection to the game server was lost.")
	}
	s.reset()
}

// MatchmakingID returns the tracked lobby id, empty when no session is live.
func (s *Session) MatchmakingID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchmakingID
}

// GameID returns the tracked game id, empty before the handover.
func (s *Session) GameID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameID
}

// reset clears ids first, then tears the adapters down, so any callback
// racing the teardown already observes "no active session".
func (s *Session) reset() {
	s.mu.Lock()
	s.matchmakingID = ""
	s.gameID = ""
	s.playerID = ""
	s.nick = ""
	s.mu.Unlock()

	s.stream.Close()
	s.hub.Close(true)
	s.rec.Reset()
}
