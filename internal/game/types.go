package game

import (
	"strings"
	"time"
)

// Status values the server declares on a game snapshot. The server contract is
// not strictly versioned, so comparisons go through normalizeStatus rather
// than raw string equality.
type Status string

const (
	StatusPreDraft                Status = "Pre Draft"
	StatusDraft                   Status = "Draft"
	StatusMainCompetition         Status = "Main Competition"
	StatusEnded                   Status = "Ended"
	StatusBreak                   Status = "Break"
	StatusBreakPreDraft           Status = "Break Pre Draft"
	StatusBreakDraft              Status = "Break Draft"
	StatusBreakMainCompetition    Status = "Break Main Competition"
	StatusBreakEnded              Status = "Break Ended"
	StatusPreDraftNextCompetition Status = "Pre Draft Next Competition"
)

// normalizeStatus folds casing and whitespace so "PreDraft", "Pre Draft" and
// "pre draft" all compare equal.
func normalizeStatus(s Status) string {
	return strings.ToLower(strings.ReplaceAll(string(s), " ", ""))
}

// SameStatus reports whether two server status strings name the same phase.
func SameStatus(a, b Status) bool {
	return normalizeStatus(a) == normalizeStatus(b)
}

// NextStatus announces the upcoming phase and how long until the server
// switches to it. TimeRemaining is a clock string ("hh:mm:ss") taken at
// snapshot time, not an absolute deadline.
type NextStatus struct {
	Status        Status `json:"status"`
	TimeRemaining string `json:"timeRemaining"`
}

// GameState is the full server snapshot of a running game. Every GameUpdated
// push carries a complete replacement; ChangeType exists for diagnostics only.
// Sub-objects are nil outside their phase, but stale ones may stay populated
// after a phase ends and are used for break-screen rendering.
type GameState struct {
	GameID        string      `json:"gameId"`
	SchemaVersion int         `json:"schemaVersion"`
	ChangeType    string      `json:"changeType"`
	Status        Status      `json:"status"`
	NextStatus    *NextStatus `json:"nextStatus"`

	Header          *Header      `json:"header"`
	PreDraft        *PreDraft    `json:"preDraft"`
	EndedPreDraft   *PreDraft    `json:"endedPreDraft"`
	Draft           *Draft       `json:"draft"`
	MainCompetition *Competition `json:"mainCompetition"`
	Break           *Break       `json:"break"`
	Ended           *Ended       `json:"ended"`

	// Retained across phase transitions so the UI can render a frozen view
	// during breaks.
	LastCompetitionState  *Competition `json:"lastCompetitionState"`
	LastCompetitionResult *JumpResult  `json:"lastCompetitionResultDto"`
}

// Header holds the mostly-immutable reference dictionaries of a game. It is
// created once by the server; only Players may grow.
type Header struct {
	Hill               *Hill               `json:"hill"`
	Players            []GamePlayer        `json:"players"`
	Jumpers            []Jumper            `json:"jumpers"`
	CompetitionJumpers []CompetitionJumper `json:"competitionJumpers"`
	Draft              DraftPolicy         `json:"draft"`
}

type Hill struct {
	Name        string  `json:"name"`
	Location    string  `json:"location"`
	CountryCode string  `json:"countryCode"`
	KPoint      float64 `json:"kPoint"`
	HSPoint     float64 `json:"hsPoint"`
}

type GamePlayer struct {
	PlayerID string `json:"playerId"`
	Nick     string `json:"nick"`
	IsBot    bool   `json:"isBot"`
}

type Jumper struct {
	JumperID    string `json:"jumperId"`
	Name        string `json:"name"`
	Surname     string `json:"surname"`
	CountryCode string `json:"countryCode"`
}

// CompetitionJumper links a roster jumper to its per-competition identity.
type CompetitionJumper struct {
	CompetitionJumperID string `json:"competitionJumperId"`
	JumperID            string `json:"jumperId"`
}

type DraftPolicy struct {
	TargetPicks   int    `json:"targetPicks"`
	MaxPicks      int    `json:"maxPicks"`
	OrderPolicy   string `json:"orderPolicy"`
	TimeoutPolicy string `json:"timeoutPolicy"`
}

// PreDraft is the observation phase: players watch qualification-style
// sessions whose results feed the draft.
type PreDraft struct {
	Index             int           `json:"index"`
	Competition       *Competition  `json:"competition"`
	EndedCompetitions []Competition `json:"endedCompetitions"`
}

// Draft is the live pick phase.
type Draft struct {
	CurrentPlayerID  string              `json:"currentPlayerId"`
	NextPlayers      []string            `json:"nextPlayers"`
	TimeoutInSeconds string              `json:"timeoutInSeconds"`
	Picks            map[string][]string `json:"picks"`
	AvailableJumpers []string            `json:"availableJumpers"`
}

// Competition is a live (or frozen) competition sub-state.
type Competition struct {
	Status       string              `json:"status"`
	RoundIndex   int                 `json:"roundIndex"`
	Gate         int                 `json:"gate"`
	NextJumperID string              `json:"nextJumperId"`
	Startlist    []string            `json:"startlist"`
	Results      []CompetitionResult `json:"results"`
}

type CompetitionResult struct {
	CompetitionJumperID string       `json:"competitionJumperId"`
	Rank                int          `json:"rank"`
	Total               float64      `json:"total"`
	Jumps               []JumpResult `json:"jumps"`
}

// JumpResult is a single scored jump. The most recent one arrives both inside
// Results and as GameState.LastCompetitionResult to trigger highlights.
type JumpResult struct {
	CompetitionJumperID string  `json:"competitionJumperId"`
	RoundIndex          int     `json:"roundIndex"`
	Distance            float64 `json:"distance"`
	Points              float64 `json:"points"`
	Wind                float64 `json:"wind"`
	Gate                int     `json:"gate"`
}

// Break marks an inter-phase pause and names the upcoming phase.
type Break struct {
	Next Status `json:"next"`
}

// Ended carries the final ranking and the scoring policy used to compute it.
type Ended struct {
	Policy  string         `json:"policy"`
	Ranking map[string]int `json:"ranking"`
}

// MatchmakingStatus is the lifecycle of a lobby.
type MatchmakingStatus string

const (
	MatchmakingRunning               MatchmakingStatus = "Running"
	MatchmakingEndedSucceeded        MatchmakingStatus = "EndedSucceeded"
	MatchmakingEndedNotEnoughPlayers MatchmakingStatus = "EndedNotEnoughPlayers"
	MatchmakingFailed                MatchmakingStatus = "Failed"
)

// MatchmakingState is the wholesale-replaced lobby snapshot delivered on every
// stream event. There is no partial merge.
type MatchmakingState struct {
	Status       MatchmakingStatus
	FailReason   string
	PlayersCount int
	MinPlayers   int
	MaxPlayers   int
	Players      []MatchmakingPlayer

	StartedAt  time.Time
	ForceEndAt time.Time
	EndedAt    *time.Time

	// ShouldEndAcceleratedAt is an optional earlier deadline used once enough
	// players have joined; EndAfterNoUpdate selects which deadline governs
	// the lobby countdown.
	ShouldEndAcceleratedAt *time.Time
	EndAfterNoUpdate       bool
}

type MatchmakingPlayer struct {
	PlayerID string
	Nick     string
	IsBot    bool
	JoinedAt time.Time
}

// Ended reports whether the lobby reached a terminal status.
func (m *MatchmakingState) Ended() bool {
	return m.Status != MatchmakingRunning
}

// CountdownDeadline picks the wall-clock deadline that governs the lobby
// countdown: the accelerated deadline once it applies and is actually
// earlier, the force-end deadline otherwise.
func (m *MatchmakingState) CountdownDeadline() time.Time {
	if m.EndAfterNoUpdate && m.ShouldEndAcceleratedAt != nil && m.ShouldEndAcceleratedAt.Before(m.ForceEndAt) {
		return *m.ShouldEndAcceleratedAt
	}
	return m.ForceEndAt
}

// GameStarted is the matchmaking-to-game handover pushed on the hub. The two
// id spaces are not contractually linked; PlayersMapping is the server's
// best-effort bridge from matchmaking player ids to in-game player ids.
type GameStarted struct {
	MatchmakingID  string            `json:"matchmakingId"`
	GameID         string            `json:"gameId"`
	PlayersMapping map[string]string `json:"playersMapping"`
}

// JoinResult is what a successful join-matchmaking call returns.
type JoinResult struct {
	MatchmakingID string `json:"matchmakingId"`
	PlayerID      string `json:"playerId"`
	CorrectedNick string `json:"correctedNick"`
}
