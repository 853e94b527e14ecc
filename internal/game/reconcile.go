package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultPreDraftGrace = 5 * time.Second

// ReconcilerConfig tunes the reconciler's local timers. Zero values mean
// production behavior: 1s ticks, system clock, a 5s post-observation grace
// period and no transition-countdown subtraction.
type ReconcilerConfig struct {
	TickInterval       time.Duration
	Now                func() time.Time
	GraceDuration      time.Duration
	TransitionSubtract time.Duration
}

func (c ReconcilerConfig) withDefaults() ReconcilerConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.GraceDuration <= 0 {
		c.GraceDuration = defaultPreDraftGrace
	}
	return c
}

// Reconciler owns the canonical GameState and MatchmakingState and derives the
// screen the UI should show. It is the single writer of both; adapters feed it
// events, everything else only reads. Every incoming snapshot replaces state
// wholesale, so applying the same event twice is a no-op by construction.
type Reconciler struct {
	log zerolog.Logger
	cfg ReconcilerConfig

	mu          sync.Mutex
	state       *GameState
	matchmaking *MatchmakingState
	screen      Screen

	// session identity, used for the one-shot matchmaking->game player remap
	matchmakingID  string
	lobbyPlayerID  string
	nick           string
	gamePlayerID   string
	pendingMapping map[string]string

	grace          timerSlot // client-local pre-draft results grace period
	graceDone      bool
	transition     timerSlot // countdown toward a server-announced next status
	transitionDone string    // key of the last locally elapsed countdown
	pick           timerSlot // draft turn countdown
	lobby          timerSlot // matchmaking end-of-lobby countdown

	lastJumpKey string

	// Callbacks are optional and must be set before the adapters start
	// feeding events. They are invoked outside the reconciler's lock.
	OnScreenChange        func(Screen)
	OnGameState           func(*GameState)
	OnMatchmaking         func(MatchmakingState)
	OnLobbyCountdown      func(remaining int)
	OnPickCountdown       func(remaining int)
	OnTransitionCountdown func(remaining int)
	OnJumpResult          func(JumpResult)
	OnGameEnded           func(gameID string)
}

func NewReconciler(log zerolog.Logger, cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{log: log, cfg: cfg.withDefaults()}
}

// TrackSession records the identity returned by the join call. The player
// remap only ever happens while a matchmaking id is tracked here.
func (r *Reconciler) TrackSession(matchmakingID, lobbyPlayerID, nick string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matchmakingID = matchmakingID
	r.lobbyPlayerID = lobbyPlayerID
	r.nick = nick
}

// Screen returns the currently derived screen.
func (r *Reconciler) Screen() Screen {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.screen
}

// State returns the canonical game state, nil before the first update.
func (r *Reconciler) State() *GameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Matchmaking returns the last lobby snapshot, nil before the first event.
func (r *Reconciler) Matchmaking() *MatchmakingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matchmaking
}

// GamePlayerID returns the in-game player id once the remap has happened.
func (r *Reconciler) GamePlayerID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gamePlayerID
}

// ApplyMatchmaking replaces the lobby snapshot and keeps the lobby countdown
// aligned with whichever server deadline currently governs it.
func (r *Reconciler) ApplyMatchmaking(st MatchmakingState) {
	r.mu.Lock()
	r.matchmaking = &st
	if st.Ended() {
		r.lobby.stop()
	} else if !st.ForceEndAt.IsZero() {
		deadline := st.CountdownDeadline()
		r.lobby.restart(deadline.UTC().Format(time.RFC3339Nano), func() *Countdown {
			return StartDeadline(deadline, CountdownConfig{
				Interval: r.cfg.TickInterval,
				Now:      r.cfg.Now,
				OnTick:   r.OnLobbyCountdown,
			})
		})
	}
	cb := r.OnMatchmaking
	r.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

// ApplyGameStarted records the server's matchmaking->game player id mapping
// for the remap performed on the next game snapshot.
func (r *Reconciler) ApplyGameStarted(ev GameStarted) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingMapping = ev.PlayersMapping
	r.lobby.stop()
}

// ApplyGameUpdate replaces the canonical game state with a fresh snapshot and
// re-derives the screen, restarting local timers whose declaring input
// changed identity.
func (r *Reconciler) ApplyGameUpdate(gs *GameState) {
	if gs == nil {
		return
	}
	r.mu.Lock()

	r.retainCompetitionState(gs)
	r.state = gs
	r.remapPlayerLocked()

	var fire []func()

	if cb := r.OnJumpResult; cb != nil && gs.LastCompetitionResult != nil {
		key := jumpKey(gs.LastCompetitionResult)
		if key != r.lastJumpKey {
			r.lastJumpKey = key
			res := *gs.LastCompetitionResult
			fire = append(fire, func() { cb(res) })
		}
	}

	r.syncGraceLocked(gs)
	r.syncPickTimerLocked(gs)

	sc, ok := DeriveScreen(gs, r.screenFlagsLocked(gs))
	if !ok {
		r.log.Debug().Str("status", string(gs.Status)).Msg("snapshot gives no screen, keeping current")
	}
	r.syncTransitionLocked(gs, sc, ok)
	if ok && sc != r.screen {
		r.screen = sc
		if cb := r.OnScreenChange; cb != nil {
			s := sc
			fire = append(fire, func() { cb(s) })
		}
	}
	if ok && sc == ScreenEnded {
		r.stopTimersLocked()
	}
	if cb := r.OnGameState; cb != nil {
		st := gs
		fire = append(fire, func() { cb(st) })
	}
	r.mu.Unlock()
	for _, f := range fire {
		f()
	}
}

// ApplyGameEnded handles the terminal GameEnded push.
func (r *Reconciler) ApplyGameEnded(gameID string) {
	r.mu.Lock()
	r.stopTimersLocked()
	var fire []func()
	if r.screen != ScreenEnded {
		r.screen = ScreenEnded
		if cb := r.OnScreenChange; cb != nil {
			fire = append(fire, func() { cb(ScreenEnded) })
		}
	}
	if cb := r.OnGameEnded; cb != nil {
		fire = append(fire, func() { cb(gameID) })
	}
	r.mu.Unlock()
	for _, f := range fire {
		f()
	}
}

// Reset clears every piece of derived and tracked state atomically. A stale
// adapter callback arriving afterwards finds no tracked ids and no-ops.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimersLocked()
	r.state = nil
	r.matchmaking = nil
	r.screen = ScreenNone
	r.matchmakingID = ""
	r.lobbyPlayerID = ""
	r.nick = ""
	r.gamePlayerID = ""
	r.pendingMapping = nil
	r.graceDone = false
	r.transitionDone = ""
	r.lastJumpKey = ""
}

// screenFlagsLocked assembles the client-local facts derivation depends on.
func (r *Reconciler) screenFlagsLocked(gs *GameState) ScreenFlags {
	f := ScreenFlags{PreDraftGraceActive: r.grace.active()}
	if gs.NextStatus != nil && r.transitionDone == transitionKey(gs) {
		f.TransitionElapsed = true
	}
	return f
}

func (r *Reconciler) stopTimersLocked() {
	r.grace.stop()
	r.transition.stop()
	r.pick.stop()
	r.lobby.stop()
}

// retainCompetitionState keeps the frozen-view fields populated: a live
// competition in the snapshot refreshes them, an absent one inherits the
// previous value.
func (r *Reconciler) retainCompetitionState(gs *GameState) {
	switch {
	case gs.MainCompetition != nil:
		gs.LastCompetitionState = gs.MainCompetition
	case gs.PreDraft != nil && gs.PreDraft.Competition != nil:
		gs.LastCompetitionState = gs.PreDraft.Competition
	case gs.LastCompetitionState == nil && r.state != nil:
		gs.LastCompetitionState = r.state.LastCompetitionState
	}
	if gs.LastCompetitionResult == nil && r.state != nil {
		gs.LastCompetitionResult = r.state.LastCompetitionResult
	}
}

// remapPlayerLocked correlates the matchmaking player id with the in-game
// one, exactly once and only while a matchmaking id is still tracked. The
// server mapping wins; nick matching against the roster is the best-effort
// fallback since the two id spaces are not contractually linked.
func (r *Reconciler) remapPlayerLocked() {
	if r.gamePlayerID != "" || r.matchmakingID == "" {
		return
	}
	if id, ok := r.pendingMapping[r.lobbyPlayerID]; ok && id != "" {
		r.gamePlayerID = id
		return
	}
	if r.state == nil || r.state.Header == nil || r.nick == "" {
		return
	}
	for _, p := range r.state.Header.Players {
		if p.Nick == r.nick {
			r.gamePlayerID = p.PlayerID
			return
		}
	}
}

// syncGraceLocked starts the fixed results-viewing grace period on entering
// the draft break. The server's cutover is immediate; the delay is purely a
// client display concern so players see final observation results before the
// draft UI appears.
func (r *Reconciler) syncGraceLocked(gs *GameState) {
	if normalizeStatus(gs.Status) != "breakdraft" {
		r.grace.stop()
		r.graceDone = false
		return
	}
	if gs.LastCompetitionState == nil || r.grace.active() || r.graceDone {
		return
	}
	r.grace.restart("predraft-ended", func() *Countdown {
		return StartClockDuration(r.cfg.GraceDuration, CountdownConfig{
			Interval: r.cfg.TickInterval,
			Now:      r.cfg.Now,
			OnExpire: r.onGraceExpired,
		})
	})
}

func (r *Reconciler) onGraceExpired() {
	r.mu.Lock()
	r.graceDone = true
	r.grace.stop()
	var fire func()
	if r.state != nil {
		sc, ok := DeriveScreen(r.state, r.screenFlagsLocked(r.state))
		r.syncTransitionLocked(r.state, sc, ok)
		if ok && sc != r.screen {
			r.screen = sc
			if cb := r.OnScreenChange; cb != nil {
				s := sc
				fire = func() { cb(s) }
			}
		}
	}
	r.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// syncTransitionLocked runs the countdown toward a server-announced next
// status while the transition screen is up; its expiry, not a further server
// event, performs the visible switch. A countdown that already elapsed for
// this status->next pair is not re-armed by a stale snapshot; only a new
// announcement (different pair) starts a fresh one.
func (r *Reconciler) syncTransitionLocked(gs *GameState, sc Screen, ok bool) {
	if !ok || sc != ScreenTransition || gs.NextStatus == nil {
		r.transition.stop()
		return
	}
	next := gs.NextStatus
	key := transitionKey(gs)
	if key == r.transitionDone {
		return
	}
	r.transitionDone = ""
	r.transition.restart(key, func() *Countdown {
		d, err := ParseClockDuration(next.TimeRemaining)
		if err != nil {
			r.log.Warn().Err(err).Str("timeRemaining", next.TimeRemaining).Msg("bad transition countdown")
			d = 0
		}
		target := next.Status
		return StartClockDuration(d-r.cfg.TransitionSubtract, CountdownConfig{
			Interval: r.cfg.TickInterval,
			Now:      r.cfg.Now,
			OnTick:   r.OnTransitionCountdown,
			OnExpire: func() { r.onTransitionExpired(target, key) },
		})
	})
}

func (r *Reconciler) onTransitionExpired(target Status, key string) {
	r.mu.Lock()
	r.transition.stop()
	r.transitionDone = key
	var fire func()
	if sc, ok := screenForStatus(target); ok && sc != r.screen {
		r.screen = sc
		if cb := r.OnScreenChange; cb != nil {
			fire = func() { cb(sc) }
		}
	}
	r.mu.Unlock()
	if fire != nil {
		fire()
	}
}

func transitionKey(gs *GameState) string {
	return string(gs.Status) + "->" + string(gs.NextStatus.Status)
}

// syncPickTimerLocked keeps the draft turn countdown keyed to the turn
// holder's identity and progress, so it restarts on each new authoritative
// tick instead of free-running. The display is visual feedback only; the
// server's own timeout stays authoritative for auto-picks.
func (r *Reconciler) syncPickTimerLocked(gs *GameState) {
	d := gs.Draft
	if normalizeStatus(gs.Status) != "draft" || d == nil || d.TimeoutInSeconds == "" {
		r.pick.stop()
		return
	}
	picks := 0
	for _, ids := range d.Picks {
		picks += len(ids)
	}
	key := fmt.Sprintf("%s|%d", d.CurrentPlayerID, picks)
	r.pick.restart(key, func() *Countdown {
		c, err := StartClock(d.TimeoutInSeconds, 0, CountdownConfig{
			Interval: r.cfg.TickInterval,
			Now:      r.cfg.Now,
			OnTick:   r.OnPickCountdown,
		})
		if err != nil {
			r.log.Warn().Err(err).Str("timeout", d.TimeoutInSeconds).Msg("bad draft timeout")
			return StartClockDuration(0, CountdownConfig{Interval: r.cfg.TickInterval})
		}
		return c
	})
}

func jumpKey(j *JumpResult) string {
	return fmt.Sprintf("%s|%d|%.1f", j.CompetitionJumperID, j.RoundIndex, j.Distance)
}
