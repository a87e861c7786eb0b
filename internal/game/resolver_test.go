package game

import (
	"math"
	"testing"

	"github.com/google/uuid"
)

var testAxis = []string{"S", "A", "B", "C", "D"}

func voterIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func TestResolveScenarios(t *testing.T) {
	b := uuid.New()
	c := uuid.New()

	tests := []struct {
		name       string
		votes      map[uuid.UUID]VoteValue
		eligible   []uuid.UUID
		wantScore  float64
		wantDrift  int
		wantToTier string
	}{
		{
			name:       "both positive drifts two down the axis",
			votes:      map[uuid.UUID]VoteValue{b: VoteUp, c: VoteUp},
			eligible:   []uuid.UUID{b, c},
			wantScore:  1.0,
			wantDrift:  2,
			wantToTier: "C",
		},
		{
			name:       "split vote cancels out",
			votes:      map[uuid.UUID]VoteValue{b: VoteUp, c: VoteDown},
			eligible:   []uuid.UUID{b, c},
			wantScore:  0,
			wantDrift:  0,
			wantToTier: "A",
		},
		{
			name:       "abstainer excluded from denominator",
			votes:      map[uuid.UUID]VoteValue{b: VoteUp},
			eligible:   []uuid.UUID{b},
			wantScore:  1.0,
			wantDrift:  2,
			wantToTier: "C",
		},
		{
			name:       "all neutral stays put",
			votes:      map[uuid.UUID]VoteValue{b: VoteAgree, c: VoteAgree},
			eligible:   []uuid.UUID{b, c},
			wantScore:  0,
			wantDrift:  0,
			wantToTier: "A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.votes, tt.eligible, "A", testAxis)
			if math.Abs(got.Score-tt.wantScore) > 1e-9 {
				t.Errorf("score = %v, want %v", got.Score, tt.wantScore)
			}
			if got.Drift != tt.wantDrift {
				t.Errorf("drift = %d, want %d", got.Drift, tt.wantDrift)
			}
			if got.ToTier != tt.wantToTier {
				t.Errorf("toTier = %q, want %q", got.ToTier, tt.wantToTier)
			}
			if got.FromTier != "A" {
				t.Errorf("fromTier = %q, want A", got.FromTier)
			}
		})
	}
}

func TestResolveBoundaryBucketsUp(t *testing.T) {
	// Full participation, so score = (up-down)/voters exactly.
	tests := []struct {
		name          string
		up, down      int
		wantMagnitude int
	}{
		{"2 of 10 up stays put", 2, 0, 0},
		{"exactly 0.3 is magnitude one", 3, 0, 1},
		{"just under 0.6 is magnitude one", 5, 0, 1},
		{"exactly 0.6 is magnitude two", 6, 0, 2},
		{"full agreement is magnitude two", 10, 0, 2},
		{"exactly -0.3 is magnitude one", 0, 3, 1},
		{"exactly -0.6 is magnitude two", 0, 6, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := voterIDs(10)
			votes := make(map[uuid.UUID]VoteValue, 10)
			for i, id := range ids {
				switch {
				case i < tt.up:
					votes[id] = VoteUp
				case i < tt.up+tt.down:
					votes[id] = VoteDown
				default:
					votes[id] = VoteAgree
				}
			}
			got := Resolve(votes, ids, "B", testAxis)
			magnitude := got.Drift
			if magnitude < 0 {
				magnitude = -magnitude
			}
			if magnitude != tt.wantMagnitude {
				t.Errorf("magnitude = %d (drift %d, score %v), want %d", magnitude, got.Drift, got.Score, tt.wantMagnitude)
			}
		})
	}
}

func TestResolveSaturatesAtAxisEnds(t *testing.T) {
	ids := voterIDs(4)
	allUp := make(map[uuid.UUID]VoteValue, 4)
	allDown := make(map[uuid.UUID]VoteValue, 4)
	for _, id := range ids {
		allUp[id] = VoteUp
		allDown[id] = VoteDown
	}

	if got := Resolve(allUp, ids, "D", testAxis); got.ToTier != "D" {
		t.Errorf("overshoot past bottom: toTier = %q, want D", got.ToTier)
	}
	if got := Resolve(allDown, ids, "S", testAxis); got.ToTier != "S" {
		t.Errorf("overshoot past top: toTier = %q, want S", got.ToTier)
	}
	if got := Resolve(allUp, ids, "C", testAxis); got.ToTier != "D" {
		t.Errorf("partial saturation: toTier = %q, want D", got.ToTier)
	}
}

func TestResolveEmptyAxisIsNoOp(t *testing.T) {
	ids := voterIDs(2)
	votes := map[uuid.UUID]VoteValue{ids[0]: VoteUp, ids[1]: VoteUp}
	got := Resolve(votes, ids, "X", nil)
	if got.ToTier != "X" {
		t.Errorf("toTier = %q, want X", got.ToTier)
	}
}

func TestResolveMagnitudeAndDestinationAlwaysInRange(t *testing.T) {
	inAxis := func(id string) bool {
		for _, a := range testAxis {
			if a == id {
				return true
			}
		}
		return false
	}

	ids := voterIDs(5)
	for up := 0; up <= 5; up++ {
		for down := 0; up+down <= 5; down++ {
			votes := make(map[uuid.UUID]VoteValue)
			for i, id := range ids {
				switch {
				case i < up:
					votes[id] = VoteUp
				case i < up+down:
					votes[id] = VoteDown
				}
			}
			for _, from := range testAxis {
				got := Resolve(votes, ids, from, testAxis)
				if got.Drift < -2 || got.Drift > 2 {
					t.Fatalf("drift %d out of range for up=%d down=%d from=%s", got.Drift, up, down, from)
				}
				if !inAxis(got.ToTier) {
					t.Fatalf("destination %q not on axis for up=%d down=%d from=%s", got.ToTier, up, down, from)
				}
			}
		}
	}
}

func TestResolveIgnoresBallotsOutsideDenominator(t *testing.T) {
	ids := voterIDs(3)
	votes := map[uuid.UUID]VoteValue{
		ids[0]: VoteUp,
		ids[1]: VoteUp,
		ids[2]: VoteDown, // not in the denominator list
	}
	got := Resolve(votes, ids[:2], "A", testAxis)
	if got.Voters != 2 || got.Down != 0 {
		t.Errorf("voters = %d, down = %d; ballots outside the denominator must not count", got.Voters, got.Down)
	}
}
