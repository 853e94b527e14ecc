package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// apiServer is a gin fake of the game service's REST surface, just enough to
// drive the client through its success and rejection paths.
type apiServer struct {
	srv *httptest.Server

	mu        sync.Mutex
	joinNicks []string
	leaves    []string // "matchmakingId/playerId"
	picks     []string // "gameId/playerId/jumperId"

	joinRejection *gin.H // when set, join answers 400 with this body
	pickStatus    int    // when non-zero, pick answers this bare status
}

func startAPIServer(t *testing.T) *apiServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	as := &apiServer{}

	r := gin.New()
	r.POST("/matchmaking/join", func(c *gin.Context) {
		var body struct {
			Nick string `json:"nick"`
		}
		if err := c.BindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ServerError", "message": "bad body"})
			return
		}
		as.mu.Lock()
		rejection := as.joinRejection
		as.joinNicks = append(as.joinNicks, body.Nick)
		as.mu.Unlock()
		if rejection != nil {
			c.JSON(http.StatusBadRequest, *rejection)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"matchmakingId": "mm1",
			"playerId":      "p1",
			"correctedNick": body.Nick + " (2)",
		})
	})
	r.POST("/matchmaking/:id/leave", func(c *gin.Context) {
		var body struct {
			PlayerID string `json:"playerId"`
		}
		_ = c.BindJSON(&body)
		as.mu.Lock()
		as.leaves = append(as.leaves, c.Param("id")+"/"+body.PlayerID)
		as.mu.Unlock()
		c.Status(http.StatusNoContent)
	})
	r.GET("/matchmaking/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "Running",
			"playersCount": 1,
			"players":      []gin.H{{"playerId": "p1", "nick": "Alice"}},
		})
	})
	r.POST("/game/:id/pick", func(c *gin.Context) {
		var body struct {
			PlayerID string `json:"playerId"`
			JumperID string `json:"jumperId"`
		}
		_ = c.BindJSON(&body)
		as.mu.Lock()
		status := as.pickStatus
		as.picks = append(as.picks, c.Param("id")+"/"+body.PlayerID+"/"+body.JumperID)
		as.mu.Unlock()
		if status != 0 {
			c.Status(status)
			return
		}
		c.Status(http.StatusOK)
	})

	as.srv = httptest.NewServer(r)
	t.Cleanup(as.srv.Close)
	return as
}

func (as *apiServer) rejectJoins(body gin.H) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.joinRejection = &body
}

func (as *apiServer) answerPicks(status int) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.pickStatus = status
}

func (as *apiServer) seen(which string) []string {
	as.mu.Lock()
	defer as.mu.Unlock()
	switch which {
	case "joins":
		return append([]string(nil), as.joinNicks...)
	case "leaves":
		return append([]string(nil), as.leaves...)
	default:
		return append([]string(nil), as.picks...)
	}
}

func TestJoinMatchmakingReturnsCorrectedNick(t *testing.T) {
	as := startAPIServer(t)
	c := New(as.srv.URL, zerolog.Nop())

	res, err := c.JoinMatchmaking(context.Background(), "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if res.MatchmakingID != "mm1" || res.PlayerID != "p1" {
		t.Fatalf("join result: %+v", res)
	}
	if res.CorrectedNick != "Alice (2)" {
		t.Fatalf("corrected nick = %q", res.CorrectedNick)
	}
	if joins := as.seen("joins"); len(joins) != 1 || joins[0] != "Alice" {
		t.Fatalf("server saw joins %v", joins)
	}
}

func TestJoinMatchmakingRejectionCodes(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"RoomIsFull", ErrRoomIsFull},
		{"AlreadyJoined", ErrAlreadyJoined},
		{"MultipleGamesNotSupported", ErrMultipleGamesNotSupported},
	}
	for _, tc := range cases {
		as := startAPIServer(t)
		as.rejectJoins(gin.H{"error": tc.code})
		c := New(as.srv.URL, zerolog.Nop())

		_, err := c.JoinMatchmaking(context.Background(), "Alice")
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.code, err, tc.want)
		}
	}
}

func TestJoinMatchmakingServerErrorCarriesMessage(t *testing.T) {
	as := startAPIServer(t)
	as.rejectJoins(gin.H{"error": "ServerError", "message": "db down"})
	c := New(as.srv.URL, zerolog.Nop())

	_, err := c.JoinMatchmaking(context.Background(), "Alice")
	if !errors.Is(err, ErrServer) {
		t.Fatalf("got %v, want ErrServer", err)
	}
}

func TestLeaveMatchmaking(t *testing.T) {
	as := startAPIServer(t)
	c := New(as.srv.URL, zerolog.Nop())

	if err := c.LeaveMatchmaking(context.Background(), "mm1", "p1"); err != nil {
		t.Fatal(err)
	}
	if leaves := as.seen("leaves"); len(leaves) != 1 || leaves[0] != "mm1/p1" {
		t.Fatalf("leaves: %v", leaves)
	}
}

func TestMatchmakingSnapshotDecodes(t *testing.T) {
	as := startAPIServer(t)
	c := New(as.srv.URL, zerolog.Nop())

	st, err := c.MatchmakingSnapshot(context.Background(), "mm1")
	if err != nil {
		t.Fatal(err)
	}
	if st.PlayersCount != 1 || len(st.Players) != 1 || st.Players[0].Nick != "Alice" {
		t.Fatalf("snapshot: %+v", st)
	}
}

func TestPickJumperSendsIDs(t *testing.T) {
	as := startAPIServer(t)
	c := New(as.srv.URL, zerolog.Nop())

	if err := c.PickJumper(context.Background(), "g1", "p1", "j7"); err != nil {
		t.Fatal(err)
	}
	if picks := as.seen("picks"); len(picks) != 1 || picks[0] != "g1/p1/j7" {
		t.Fatalf("picks: %v", picks)
	}
}

func TestPickJumperConflictAndTurnErrors(t *testing.T) {
	as := startAPIServer(t)
	c := New(as.srv.URL, zerolog.Nop())

	as.answerPicks(http.StatusConflict)
	if err := c.PickJumper(context.Background(), "g1", "p1", "j7"); !errors.Is(err, ErrJumperTaken) {
		t.Fatalf("409: got %v, want ErrJumperTaken", err)
	}

	as.answerPicks(http.StatusForbidden)
	if err := c.PickJumper(context.Background(), "g1", "p1", "j7"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("403: got %v, want ErrNotYourTurn", err)
	}

	as.answerPicks(http.StatusInternalServerError)
	if err := c.PickJumper(context.Background(), "g1", "p1", "j7"); !errors.Is(err, ErrServer) {
		t.Fatalf("500: got %v, want ErrServer", err)
	}
}
