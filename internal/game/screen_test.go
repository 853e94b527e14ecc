package game

import "testing"

func TestDeriveScreenPerStatus(t *testing.T) {
	comp := &Competition{Status: "Running"}

	cases := []struct {
		name   string
		state  *GameState
		flags  ScreenFlags
		want   Screen
		wantOK bool
	}{
		{
			name:   "pre draft with live competition",
			state:  &GameState{Status: StatusPreDraft, PreDraft: &PreDraft{Competition: comp}},
			want:   ScreenPreDraft,
			wantOK: true,
		},
		{
			name:   "pre draft with only frozen competition",
			state:  &GameState{Status: StatusPreDraft, LastCompetitionState: comp},
			want:   ScreenPreDraft,
			wantOK: true,
		},
		{
			name:   "pre draft incomplete snapshot",
			state:  &GameState{Status: StatusPreDraft},
			wantOK: false,
		},
		{
			name:   "break draft while grace timer runs",
			state:  &GameState{Status: StatusBreakDraft, LastCompetitionState: comp},
			flags:  ScreenFlags{PreDraftGraceActive: true},
			want:   ScreenPreDraft,
			wantOK: true,
		},
		{
			name:   "break draft without grace timer",
			state:  &GameState{Status: StatusBreakDraft},
			want:   ScreenDraft,
			wantOK: true,
		},
		{
			name:   "draft",
			state:  &GameState{Status: StatusDraft},
			want:   ScreenDraft,
			wantOK: true,
		},
		{
			name:   "main competition",
			state:  &GameState{Status: StatusMainCompetition},
			want:   ScreenMainCompetition,
			wantOK: true,
		},
		{
			name:   "break main competition",
			state:  &GameState{Status: StatusBreakMainCompetition},
			want:   ScreenMainCompetition,
			wantOK: true,
		},
		{
			name:   "break ended keeps frozen standings",
			state:  &GameState{Status: StatusBreakEnded, NextStatus: &NextStatus{Status: StatusEnded}},
			want:   ScreenMainCompetition,
			wantOK: true,
		},
		{
			name:   "ended",
			state:  &GameState{Status: StatusEnded},
			want:   ScreenEnded,
			wantOK: true,
		},
		{
			name:   "break pre draft",
			state:  &GameState{Status: StatusBreakPreDraft, NextStatus: &NextStatus{Status: StatusPreDraft}},
			want:   ScreenPreDraft,
			wantOK: true,
		},
		{
			name:   "draft announcing main competition shows countdown",
			state:  &GameState{Status: StatusDraft, NextStatus: &NextStatus{Status: StatusMainCompetition, TimeRemaining: "00:00:10"}},
			want:   ScreenTransition,
			wantOK: true,
		},
		{
			name:   "draft announcement already elapsed resolves to target",
			state:  &GameState{Status: StatusDraft, NextStatus: &NextStatus{Status: StatusMainCompetition, TimeRemaining: "00:00:10"}},
			flags:  ScreenFlags{TransitionElapsed: true},
			want:   ScreenMainCompetition,
			wantOK: true,
		},
		{
			name:   "main competition announcing ended shows countdown",
			state:  &GameState{Status: StatusMainCompetition, NextStatus: &NextStatus{Status: StatusEnded, TimeRemaining: "00:00:05"}},
			want:   ScreenTransition,
			wantOK: true,
		},
		{
			name:   "break draft during grace ignores the announcement",
			state:  &GameState{Status: StatusBreakDraft, LastCompetitionState: comp, NextStatus: &NextStatus{Status: StatusDraft, TimeRemaining: "00:00:10"}},
			flags:  ScreenFlags{PreDraftGraceActive: true},
			want:   ScreenPreDraft,
			wantOK: true,
		},
		{
			name:   "generic break with differing next status shows countdown",
			state:  &GameState{Status: StatusBreak, NextStatus: &NextStatus{Status: StatusDraft, TimeRemaining: "00:00:10"}},
			want:   ScreenTransition,
			wantOK: true,
		},
		{
			name:   "generic break toward observation cutover skips countdown",
			state:  &GameState{Status: StatusBreak, NextStatus: &NextStatus{Status: StatusPreDraftNextCompetition}},
			want:   ScreenPreDraft,
			wantOK: true,
		},
		{
			name:   "generic break without next status",
			state:  &GameState{Status: StatusBreak},
			wantOK: false,
		},
		{
			name:   "unknown status",
			state:  &GameState{Status: "Warmup"},
			wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DeriveScreen(tc.state, tc.flags)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Fatalf("screen = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDeriveScreenToleratesStatusSpelling(t *testing.T) {
	for _, spelling := range []Status{"PreDraft", "Pre Draft", "pre draft"} {
		st := &GameState{Status: spelling, PreDraft: &PreDraft{Competition: &Competition{}}}
		got, ok := DeriveScreen(st, ScreenFlags{})
		if !ok || got != ScreenPreDraft {
			t.Fatalf("spelling %q: got %v ok=%v, want pre-draft", spelling, got, ok)
		}
	}
}

func TestSameStatus(t *testing.T) {
	if !SameStatus("Break Draft", "BreakDraft") {
		t.Fatal("expected spellings to compare equal")
	}
	if SameStatus(StatusDraft, StatusPreDraft) {
		t.Fatal("different phases must not compare equal")
	}
}
