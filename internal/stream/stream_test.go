package stream

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skijumpdraft/gameclient/internal/game"
)

const timeout = 2 * time.Second

// streamServer serves one fake matchmaking stream; tests feed raw event
// payloads through the events channel.
type streamServer struct {
	srv    *httptest.Server
	events chan string
}

func startStreamServer(t *testing.T) *streamServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ss := &streamServer{events: make(chan string, 16)}

	r := gin.New()
	r.GET("/matchmaking/:id/stream", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Stream(func(w io.Writer) bool {
			select {
			case data, ok := <-ss.events:
				if !ok {
					return false
				}
				fmt.Fprintf(w, "data: %s\n\n", data)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	})

	ss.srv = httptest.NewServer(r)
	t.Cleanup(ss.srv.Close)
	return ss
}

type streamRecorder struct {
	states chan game.MatchmakingState
	joined chan game.MatchmakingPlayer
	left   chan game.MatchmakingPlayer
}

func newStreamRecorder(a *Adapter) *streamRecorder {
	rec := &streamRecorder{
		states: make(chan game.MatchmakingState, 16),
		joined: make(chan game.MatchmakingPlayer, 16),
		left:   make(chan game.MatchmakingPlayer, 16),
	}
	a.OnState = func(st game.MatchmakingState) { rec.states <- st }
	a.OnPlayerJoined = func(p game.MatchmakingPlayer) { rec.joined <- p }
	a.OnPlayerLeft = func(p game.MatchmakingPlayer) { rec.left <- p }
	return rec
}

func recvState(t *testing.T, ch <-chan game.MatchmakingState) game.MatchmakingState {
	t.Helper()
	select {
	case st := <-ch:
		return st
	case <-time.After(timeout):
		t.Fatal("timed out waiting for state event")
		return game.MatchmakingState{}
	}
}

func recvPlayer(t *testing.T, ch <-chan game.MatchmakingPlayer) game.MatchmakingPlayer {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(timeout):
		t.Fatal("timed out waiting for player event")
		return game.MatchmakingPlayer{}
	}
}

func expectSilence(t *testing.T, rec *streamRecorder, within time.Duration) {
	t.Helper()
	select {
	case st := <-rec.states:
		t.Fatalf("unexpected state event: %+v", st)
	case p := <-rec.joined:
		t.Fatalf("unexpected join event: %+v", p)
	case p := <-rec.left:
		t.Fatalf("unexpected leave event: %+v", p)
	case <-time.After(within):
	}
}

func TestSubscribeRequiresMatchmakingID(t *testing.T) {
	a := New("http://irrelevant", zerolog.Nop())
	if err := a.Subscribe(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty matchmaking id")
	}
}

func TestStreamDeliversStatesAndPlayerDiffs(t *testing.T) {
	ss := startStreamServer(t)
	a := New(ss.srv.URL, zerolog.Nop())
	rec := newStreamRecorder(a)
	t.Cleanup(a.Close)

	if err := a.Subscribe(context.Background(), "mm1"); err != nil {
		t.Fatal(err)
	}

	// First event in the server's PascalCase casing.
	ss.events <- `{"Status":"Running","PlayersCount":1,"Players":[{"PlayerId":"p1","Nick":"Alice"}]}`
	st := recvState(t, rec.states)
	if st.Status != game.MatchmakingRunning || st.PlayersCount != 1 {
		t.Fatalf("first state: %+v", st)
	}
	if p := recvPlayer(t, rec.joined); p.PlayerID != "p1" {
		t.Fatalf("joined: %+v", p)
	}

	// Second event camelCase, one more player.
	ss.events <- `{"status":"Running","playersCount":2,"players":[{"playerId":"p1","nick":"Alice"},{"playerId":"p2","nick":"Bob"}]}`
	st = recvState(t, rec.states)
	if st.PlayersCount != 2 {
		t.Fatalf("second state: %+v", st)
	}
	if p := recvPlayer(t, rec.joined); p.PlayerID != "p2" {
		t.Fatalf("joined: %+v", p)
	}

	// Alice drops out.
	ss.events <- `{"status":"Running","playersCount":1,"players":[{"playerId":"p2","nick":"Bob"}]}`
	recvState(t, rec.states)
	if p := recvPlayer(t, rec.left); p.PlayerID != "p1" {
		t.Fatalf("left: %+v", p)
	}
}

func TestStreamSkipsUndecodableEvents(t *testing.T) {
	ss := startStreamServer(t)
	a := New(ss.srv.URL, zerolog.Nop())
	rec := newStreamRecorder(a)
	t.Cleanup(a.Close)

	if err := a.Subscribe(context.Background(), "mm1"); err != nil {
		t.Fatal(err)
	}

	ss.events <- `this is not json`
	ss.events <- `{"status":"Running","playersCount":0}`
	st := recvState(t, rec.states)
	if st.Status != game.MatchmakingRunning {
		t.Fatalf("state after garbage: %+v", st)
	}
	if len(rec.states) != 0 {
		t.Fatal("garbage event produced a state callback")
	}
}

func TestEventWithoutPlayerListLeavesDiffUntouched(t *testing.T) {
	ss := startStreamServer(t)
	a := New(ss.srv.URL, zerolog.Nop())
	rec := newStreamRecorder(a)
	t.Cleanup(a.Close)

	if err := a.Subscribe(context.Background(), "mm1"); err != nil {
		t.Fatal(err)
	}

	ss.events <- `{"status":"Running","playersCount":3}`
	recvState(t, rec.states)
	if len(rec.joined) != 0 || len(rec.left) != 0 {
		t.Fatal("count-only event must not produce join/leave callbacks")
	}

	// The next event with a list diffs against the still-empty set.
	ss.events <- `{"status":"Running","playersCount":1,"players":[{"playerId":"p1","nick":"Alice"}]}`
	recvState(t, rec.states)
	if p := recvPlayer(t, rec.joined); p.PlayerID != "p1" {
		t.Fatalf("joined: %+v", p)
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	ss := startStreamServer(t)
	a := New(ss.srv.URL, zerolog.Nop())
	rec := newStreamRecorder(a)

	if err := a.Subscribe(context.Background(), "mm1"); err != nil {
		t.Fatal(err)
	}
	ss.events <- `{"status":"Running","playersCount":0}`
	recvState(t, rec.states)

	a.Close()
	ss.events <- `{"status":"Running","playersCount":1,"players":[{"playerId":"p1","nick":"Alice"}]}`
	expectSilence(t, rec, 200*time.Millisecond)
}
