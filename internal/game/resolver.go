package game

import (
	"math"

	"github.com/google/uuid"
)

// Resolve turns a round's tally into a drift decision. Pure: no state, no
// I/O. Only ballots cast by ids in eligible are counted; eligible is also the
// participation denominator (the caller decides whether that list is the full
// eligible-voter set or just the actual voters).
//
// score = (up-down)/voters * voters/eligible. |score| in [0, 0.3) drifts 0
// positions, [0.3, 0.6) drifts 1, [0.6, 1] drifts 2 — a boundary value lands
// in the higher bucket. Drift saturates at the ends of the axis; an empty
// axis degrades to just the source tier, making drift a no-op.
func Resolve(votes map[uuid.UUID]VoteValue, eligible []uuid.UUID, fromTier string, axis []string) Resolution {
	var up, down, agree int
	for _, id := range eligible {
		v, ok := votes[id]
		if !ok {
			continue
		}
		switch v {
		case VoteUp:
			up++
		case VoteDown:
			down++
		case VoteAgree:
			agree++
		}
	}

	voters := up + down + agree
	eligibleCount := len(eligible)

	var rawScore float64
	if voters > 0 {
		rawScore = float64(up-down) / float64(voters)
	}
	var participation float64
	if eligibleCount > 0 {
		participation = float64(voters) / float64(eligibleCount)
	}
	score := rawScore * participation

	abs := math.Abs(score)
	var magnitude int
	switch {
	case abs < 0.3:
		magnitude = 0
	case abs < 0.6:
		magnitude = 1
	default:
		magnitude = 2
	}
	drift := 0
	if magnitude != 0 {
		if score > 0 {
			drift = magnitude
		} else {
			drift = -magnitude
		}
	}

	safeAxis := axis
	if len(safeAxis) == 0 {
		safeAxis = []string{fromTier}
	}
	fromIdx := 0
	for i, id := range safeAxis {
		if id == fromTier {
			fromIdx = i
			break
		}
	}
	toIdx := fromIdx + drift
	if toIdx < 0 {
		toIdx = 0
	}
	if toIdx > len(safeAxis)-1 {
		toIdx = len(safeAxis) - 1
	}

	return Resolution{
		Up:       up,
		Down:     down,
		Agree:    agree,
		Voters:   voters,
		Eligible: eligibleCount,
		Score:    score,
		Drift:    drift,
		FromTier: fromTier,
		ToTier:   safeAxis[toIdx],
	}
}
