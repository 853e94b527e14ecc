package game

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// The matchmaking service emits loosely-typed payloads whose key casing is not
// stable (PascalCase and camelCase both occur). encoding/json already matches
// keys case-insensitively, which covers the casing split; everything else a
// strict contract would give us (status vocabulary, count/list agreement,
// absent fields) is normalized here, at the boundary, so the rest of the
// client never sees a raw payload.

type wireMatchmaking struct {
	Status                 string       `json:"status"`
	FailReason             string       `json:"failReason"`
	PlayersCount           int          `json:"playersCount"`
	MinPlayers             int          `json:"minPlayers"`
	MaxPlayers             int          `json:"maxPlayers"`
	Players                []wirePlayer `json:"players"`
	StartedAt              *time.Time   `json:"startedAt"`
	ForceEndAt             *time.Time   `json:"forceEndAt"`
	EndedAt                *time.Time   `json:"endedAt"`
	ShouldEndAcceleratedAt *time.Time   `json:"shouldEndAcceleratedAt"`
	EndAfterNoUpdate       bool         `json:"endAfterNoUpdate"`
}

type wirePlayer struct {
	PlayerID string     `json:"playerId"`
	Nick     string     `json:"nick"`
	IsBot    bool       `json:"isBot"`
	JoinedAt *time.Time `json:"joinedAt"`
}

// DecodeMatchmakingState parses one stream payload into a canonical
// MatchmakingState.
func DecodeMatchmakingState(data []byte) (MatchmakingState, error) {
	var w wireMatchmaking
	if err := json.Unmarshal(data, &w); err != nil {
		return MatchmakingState{}, fmt.Errorf("decode matchmaking payload: %w", err)
	}

	st := MatchmakingState{
		Status:                 parseMatchmakingStatus(w.Status),
		FailReason:             w.FailReason,
		PlayersCount:           w.PlayersCount,
		MinPlayers:             w.MinPlayers,
		MaxPlayers:             w.MaxPlayers,
		EndedAt:                w.EndedAt,
		ShouldEndAcceleratedAt: w.ShouldEndAcceleratedAt,
		EndAfterNoUpdate:       w.EndAfterNoUpdate,
	}
	if w.StartedAt != nil {
		st.StartedAt = *w.StartedAt
	}
	if w.ForceEndAt != nil {
		st.ForceEndAt = *w.ForceEndAt
	}
	if w.Players != nil {
		st.Players = make([]MatchmakingPlayer, 0, len(w.Players))
		for _, p := range w.Players {
			mp := MatchmakingPlayer{PlayerID: p.PlayerID, Nick: p.Nick, IsBot: p.IsBot}
			if p.JoinedAt != nil {
				mp.JoinedAt = *p.JoinedAt
			}
			st.Players = append(st.Players, mp)
		}
		// When the player list is present it is authoritative; the count
		// field must agree with it.
		st.PlayersCount = len(st.Players)
	}
	return st, nil
}

func parseMatchmakingStatus(s string) MatchmakingStatus {
	switch strings.ToLower(strings.ReplaceAll(s, " ", "")) {
	case "running", "":
		return MatchmakingRunning
	case "endedsucceeded", "succeeded":
		return MatchmakingEndedSucceeded
	case "endednotenoughplayers", "notenoughplayers":
		return MatchmakingEndedNotEnoughPlayers
	case "failed":
		return MatchmakingFailed
	default:
		return MatchmakingStatus(s)
	}
}

// DecodeGameState parses a GameUpdated payload. Game snapshots use the same
// tolerant key matching as matchmaking payloads.
func DecodeGameState(data []byte) (*GameState, error) {
	var gs GameState
	if err := json.Unmarshal(data, &gs); err != nil {
		return nil, fmt.Errorf("decode game snapshot: %w", err)
	}
	return &gs, nil
}
