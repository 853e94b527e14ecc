// Package api issues the mutating calls of the game service and maps its
// structured rejection codes onto errors the UI can match on. Rejections are
// never retried here; they surface directly to the caller.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/skijumpdraft/gameclient/internal/game"
)

var (
	ErrAlreadyJoined             = errors.New("already joined this matchmaking")
	ErrRoomIsFull                = errors.New("matchmaking room is full")
	ErrMultipleGamesNotSupported = errors.New("already in another game")
	ErrServer                    = errors.New("server error")

	ErrJumperTaken = errors.New("jumper already taken")
	ErrNotYourTurn = errors.New("not your turn to pick")
)

type Client struct {
	base string
	http *http.Client
	log  zerolog.Logger
}

func New(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  log.With().Str("component", "api").Logger(),
	}
}

// JoinMatchmaking enters the caller into a lobby. The server may correct the
// requested nick (dedupe suffixes etc.); the corrected one comes back in the
// result.
func (c *Client) JoinMatchmaking(ctx context.Context, nick string) (game.JoinResult, error) {
	var res game.JoinResult
	err := c.post(ctx, c.base+"/matchmaking/join", map[string]string{"nick": nick}, &res)
	if err != nil {
		return game.JoinResult{}, err
	}
	c.log.Info().Str("matchmakingId", res.MatchmakingID).Str("nick", res.CorrectedNick).Msg("joined matchmaking")
	return res, nil
}

// LeaveMatchmaking removes the player from a lobby. Callers treat failures as
// best-effort; the session resets either way.
func (c *Client) LeaveMatchmaking(ctx context.Context, matchmakingID, playerID string) error {
	return c.post(ctx, fmt.Sprintf("%s/matchmaking/%s/leave", c.base, matchmakingID),
		map[string]string{"playerId": playerID}, nil)
}

// MatchmakingSnapshot fetches the current lobby state once, outside the
// stream. Useful right after a join, before the first stream event lands.
func (c *Client) MatchmakingSnapshot(ctx context.Context, matchmakingID string) (game.MatchmakingState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/matchmaking/%s", c.base, matchmakingID), nil)
	if err != nil {
		return game.MatchmakingState{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return game.MatchmakingState{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return game.MatchmakingState{}, c.rejectionError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return game.MatchmakingState{}, err
	}
	return game.DecodeMatchmakingState(body)
}

// PickJumper locks in a draft choice. A conflict means someone picked the
// jumper first; forbidden means it is not the caller's turn.
func (c *Client) PickJumper(ctx context.Context, gameID, playerID, jumperID string) error {
	err := c.post(ctx, fmt.Sprintf("%s/game/%s/pick", c.base, gameID),
		map[string]string{"playerId": playerID, "jumperId": jumperID}, nil)
	if err != nil {
		c.log.Debug().Err(err).Str("jumperId", jumperID).Msg("pick rejected")
	}
	return err
}

func (c *Client) post(ctx context.Context, url string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.rejectionError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// rejectionError maps a non-2xx response to the closed error set. The body's
// error code wins; the HTTP status is the fallback for endpoints that only
// speak status codes.
func (c *Client) rejectionError(resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch body.Error {
	case "AlreadyJoined":
		return ErrAlreadyJoined
	case "RoomIsFull":
		return ErrRoomIsFull
	case "MultipleGamesNotSupported":
		return ErrMultipleGamesNotSupported
	case "ServerError":
		return fmt.Errorf("%w: %s", ErrServer, body.Message)
	}

	switch resp.StatusCode {
	case http.StatusConflict:
		return ErrJumperTaken
	case http.StatusForbidden:
		return ErrNotYourTurn
	default:
		return fmt.Errorf("%w: http %d", ErrServer, resp.StatusCode)
	}
}
