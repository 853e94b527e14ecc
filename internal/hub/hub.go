// Package hub maintains the persistent push channel to the game service: one
// physical websocket per client that first belongs to a matchmaking group and
// is switched in place to the game group when the server hands the lobby over.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/skijumpdraft/gameclient/internal/game"
)

// Server-pushed event names and client-invokable operations.
const (
	evGameUpdated = "GameUpdated"
	evGameEnded   = "GameEnded"
	evGameStarted = "GameStartedAfterMatchmaking"

	opJoinMatchmaking = "JoinMatchmaking"
	opJoinGame        = "JoinGame"
)

var (
	ErrAlreadyConnected = errors.New("hub already connected")
	ErrNoGroup          = errors.New("neither matchmaking id nor game id given")
)

// reconnectSchedule is the capped delay sequence between redial attempts; the
// final entry repeats once before the full-restart fallback kicks in.
var reconnectSchedule = []time.Duration{0, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second, 30 * time.Second}

const (
	pongWait      = 60 * time.Second
	pingInterval  = 25 * time.Second
	writeWait     = 10 * time.Second
	fallbackDelay = 3 * time.Second
)

// Events holds every handler the client can fire. The whole set is supplied
// at construction, before any connection exists, so no server push can ever
// race a missing handler.
type Events struct {
	OnGameUpdated func(*game.GameState)
	OnGameEnded   func(gameID string)
	// OnGameStarted fires after the adapter has already switched the
	// connection to the game group; it is bookkeeping for the caller.
	OnGameStarted func(game.GameStarted)
	OnReconnected func()
	// OnDisconnected fires at most once per genuine drop, never for a
	// caller-initiated teardown.
	OnDisconnected func(err error)
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type group struct {
	op string // opJoinMatchmaking or opJoinGame
	id string
}

// Client is the push-channel adapter. One Client owns at most one physical
// connection at a time, across every phase of a session.
type Client struct {
	url    string
	log    zerolog.Logger
	events Events
	dialer *websocket.Dialer

	mu           sync.Mutex
	conn         *websocket.Conn
	group        group
	connID       string
	gen          int // connection generation; stale pump exits are ignored
	userClosed   bool
	dropReported bool
	cancel       context.CancelFunc

	// writeMu serializes all data writes on the connection. gorilla supports
	// one concurrent writer; sends may originate from the caller, the read
	// pump (group switch) and the ping loop at once.
	writeMu sync.Mutex
}

func New(url string, log zerolog.Logger, events Events) *Client {
	return &Client{
		url:    url,
		log:    log.With().Str("component", "hub").Logger(),
		events: events,
		dialer: websocket.DefaultDialer,
	}
}

// Connect opens the connection and joins whichever group's id is non-empty.
// Handlers are registered since construction, strictly before the join call
// goes out.
func (c *Client) Connect(ctx context.Context, matchmakingID, gameID string) error {
	g, err := groupFor(matchmakingID, gameID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.userClosed = false
	c.dropReported = false
	c.group = g
	c.connID = uuid.NewString()
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		cancel()
		return err
	}
	if err := c.attach(ctx, conn, true); err != nil {
		conn.Close()
		cancel()
		return err
	}
	c.log.Info().Str("connId", c.connID).Str("group", g.op).Str("id", g.id).Msg("hub connected")
	return nil
}

func groupFor(matchmakingID, gameID string) (group, error) {
	switch {
	case gameID != "":
		return group{op: opJoinGame, id: gameID}, nil
	case matchmakingID != "":
		return group{op: opJoinMatchmaking, id: matchmakingID}, nil
	default:
		return group{}, ErrNoGroup
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}
	return conn, nil
}

// attach installs a freshly dialed connection and starts its pumps. join
// controls whether the group-join operation is sent: true on an initial
// connect and on the full-restart fallback, false on a plain reconnect,
// where session affinity is the caller's decision.
func (c *Client) attach(ctx context.Context, conn *websocket.Conn, join bool) error {
	c.mu.Lock()
	c.conn = conn
	c.gen++
	gen := c.gen
	g := c.group
	c.dropReported = false
	c.mu.Unlock()

	if join {
		if err := c.send(g.op, map[string]string{"id": g.id}); err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			return err
		}
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.readPump(ctx, conn, gen)
	go c.pingLoop(ctx, conn, gen)
	return nil
}

// send writes one operation envelope.
func (c *Client) send(op string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("hub not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(envelope{Type: op, Payload: raw})
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.pumpClosed(ctx, gen, err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			stale := c.gen != gen || c.conn != conn
			c.mu.Unlock()
			if stale {
				return
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn().Err(err).Msg("bad hub frame")
		return
	}
	switch env.Type {
	case evGameUpdated:
		gs, err := game.DecodeGameState(env.Payload)
		if err != nil {
			c.log.Warn().Err(err).Msg("bad game snapshot")
			return
		}
		if c.events.OnGameUpdated != nil {
			c.events.OnGameUpdated(gs)
		}

	case evGameEnded:
		var p struct {
			GameID string `json:"gameId"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.log.Warn().Err(err).Msg("bad game ended payload")
			return
		}
		if c.events.OnGameEnded != nil {
			c.events.OnGameEnded(p.GameID)
		}

	case evGameStarted:
		var ev game.GameStarted
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			c.log.Warn().Err(err).Msg("bad game started payload")
			return
		}
		// Switch this same connection over to the game group before anyone
		// downstream hears about the handover: tearing down and redialing
		// here would race the first GameUpdated push.
		if err := c.switchGroup(ev.GameID); err != nil {
			c.log.Error().Err(err).Str("gameId", ev.GameID).Msg("group switch failed")
			return
		}
		if c.events.OnGameStarted != nil {
			c.events.OnGameStarted(ev)
		}

	default:
		c.log.Debug().Str("type", env.Type).Msg("unhandled hub event")
	}
}

// switchGroup reattaches the current connection to the game group. The write
// completes before the triggering event is forwarded, so consumers never
// observe the handover while the connection still belongs to the old group.
func (c *Client) switchGroup(gameID string) error {
	c.mu.Lock()
	c.group = group{op: opJoinGame, id: gameID}
	c.mu.Unlock()
	return c.send(opJoinGame, map[string]string{"id": gameID})
}

// pumpClosed handles a read-pump exit: nothing for stale generations or
// user-initiated teardown, recovery for genuine drops.
func (c *Client) pumpClosed(ctx context.Context, gen int, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if c.userClosed {
		c.userClosed = false // one-shot suppression
		c.conn = nil
		c.mu.Unlock()
		c.log.Debug().Msg("hub closed by caller")
		return
	}
	c.conn = nil
	c.mu.Unlock()

	c.log.Warn().Err(err).Msg("hub connection dropped")
	go c.recover(ctx, err)
}

// recover redials with the capped schedule, without re-issuing the group
// join: whether session affinity is still valid is the caller's call. If the
// schedule is exhausted, one full stop/start/rejoin cycle is attempted after
// a short delay; only when that also fails is the drop reported.
func (c *Client) recover(ctx context.Context, cause error) {
	sched := &scheduleBackOff{steps: reconnectSchedule}
	err := backoff.Retry(func() error {
		conn, err := c.dial(ctx)
		if err != nil {
			c.log.Debug().Err(err).Msg("hub redial failed")
			return err
		}
		return c.attach(ctx, conn, false)
	}, backoff.WithContext(sched, ctx))
	if err == nil {
		c.log.Info().Msg("hub reconnected")
		if c.events.OnReconnected != nil {
			c.events.OnReconnected()
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	c.log.Warn().Err(err).Msg("hub reconnect exhausted, trying full restart")
	select {
	case <-ctx.Done():
		return
	case <-time.After(fallbackDelay):
	}
	conn, err := c.dial(ctx)
	if err == nil {
		if err = c.attach(ctx, conn, true); err == nil {
			c.log.Info().Msg("hub restarted and rejoined")
			if c.events.OnReconnected != nil {
				c.events.OnReconnected()
			}
			return
		}
		conn.Close()
	}
	c.reportDrop(cause)
}

func (c *Client) reportDrop(err error) {
	c.mu.Lock()
	if c.dropReported {
		c.mu.Unlock()
		return
	}
	c.dropReported = true
	c.mu.Unlock()
	if c.events.OnDisconnected != nil {
		c.events.OnDisconnected(err)
	}
}

// Close tears the connection down. userInitiated marks the resulting
// disconnect as expected so it is not reported as a drop. The connection slot
// is released immediately; the still-running pump exits as a stale generation,
// so a new Connect can follow without waiting for it.
func (c *Client) Close(userInitiated bool) {
	c.mu.Lock()
	c.userClosed = userInitiated
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.gen++
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(writeWait))
		conn.Close()
	}
}

// scheduleBackOff walks a fixed delay sequence once; backoff.Stop afterwards
// hands control to the full-restart fallback.
type scheduleBackOff struct {
	steps []time.Duration
	i     int
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	if b.i >= len(b.steps) {
		return backoff.Stop
	}
	d := b.steps[b.i]
	b.i++
	return d
}

func (b *scheduleBackOff) Reset() { b.i = 0 }
