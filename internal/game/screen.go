package game

// Screen is the single UI surface the client should be showing. It is derived
// from server state, never transmitted.
type Screen int

const (
	ScreenNone Screen = iota
	ScreenTransition
	ScreenHillInfo
	ScreenPreDraft
	ScreenDraft
	ScreenMainCompetition
	ScreenEnded
)

func (s Screen) String() string {
	switch s {
	case ScreenNone:
		return "none"
	case ScreenTransition:
		return "transition"
	case ScreenHillInfo:
		return "hill-info"
	case ScreenPreDraft:
		return "pre-draft"
	case ScreenDraft:
		return "draft"
	case ScreenMainCompetition:
		return "main-competition"
	case ScreenEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ScreenFlags carries the client-local timer facts screen derivation depends
// on, so DeriveScreen stays a pure function of its inputs.
type ScreenFlags struct {
	// PreDraftGraceActive is true while the fixed post-observation grace
	// timer is running: the server has already cut over to the draft break,
	// but the client keeps showing final observation results.
	PreDraftGraceActive bool
	// TransitionElapsed is true when the countdown for this snapshot's
	// status->nextStatus pair has already run out locally: the snapshot then
	// resolves to the announced phase instead of re-raising the countdown.
	TransitionElapsed bool
}

// DeriveScreen maps a game snapshot to the screen the UI should show. The
// second return value is false when the snapshot gives no grounds to change
// screens (incomplete snapshot, unknown status) - the caller keeps whatever
// it was showing.
//
// The transition rule comes first: any status announcing a different
// NextStatus puts up the countdown screen and defers the real switch to local
// timer expiry. Break Ended and Break Pre Draft are carved out (they render a
// phase screen of their own), as is the observation-internal cutover target
// PreDraftNextCompetition. The grace window trumps everything: while it runs,
// the client keeps showing final observation results.
func DeriveScreen(state *GameState, flags ScreenFlags) (Screen, bool) {
	status := normalizeStatus(state.Status)

	if status == "breakdraft" && flags.PreDraftGraceActive {
		return ScreenPreDraft, true
	}

	if wantsTransition(state) {
		if !flags.TransitionElapsed {
			return ScreenTransition, true
		}
		if sc, ok := screenForStatus(state.NextStatus.Status); ok {
			return sc, true
		}
		return ScreenNone, false
	}

	switch status {
	case "predraft":
		if state.PreDraft != nil && state.PreDraft.Competition != nil {
			return ScreenPreDraft, true
		}
		if state.LastCompetitionState != nil {
			return ScreenPreDraft, true
		}
		// Incomplete snapshot: nothing to render yet.
		return ScreenNone, false

	case "breakdraft":
		return ScreenDraft, true

	case "draft":
		return ScreenDraft, true

	case "maincompetition", "breakmaincompetition":
		return ScreenMainCompetition, true

	case "breakended":
		// Frozen final standings until the server declares Ended.
		return ScreenMainCompetition, true

	case "ended":
		return ScreenEnded, true

	case "breakpredraft":
		return ScreenPreDraft, true

	case "break":
		// A generic break whose announcement did not qualify for a countdown
		// (same phase, or the observation-internal cutover) still resolves to
		// the announced phase's screen.
		if state.NextStatus != nil {
			if sc, ok := screenForStatus(state.NextStatus.Status); ok {
				return sc, true
			}
		}
		return ScreenNone, false

	default:
		return ScreenNone, false
	}
}

// wantsTransition implements the countdown-screen rule: a NextStatus naming a
// different phase defers the real switch to local timer expiry, except for
// statuses that already render a frozen view and the observation-internal
// cutover (PreDraftNextCompetition), which never shows a countdown.
func wantsTransition(state *GameState) bool {
	next := state.NextStatus
	if next == nil || SameStatus(next.Status, state.Status) {
		return false
	}
	switch normalizeStatus(state.Status) {
	case "breakended", "breakpredraft":
		return false
	}
	return normalizeStatus(next.Status) != "predraftnextcompetition"
}

// screenForStatus maps a phase name to its screen, used when resolving a
// generic break or a transition target.
func screenForStatus(s Status) (Screen, bool) {
	switch normalizeStatus(s) {
	case "predraft", "breakpredraft", "predraftnextcompetition":
		return ScreenPreDraft, true
	case "draft", "breakdraft":
		return ScreenDraft, true
	case "maincompetition", "breakmaincompetition", "breakended":
		return ScreenMainCompetition, true
	case "ended":
		return ScreenEnded, true
	default:
		return ScreenNone, false
	}
}
