package game

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// The transition functions below are the only writers of a session's public
// state. Callers hold the session lock and are responsible for broadcasting
// the new state and rescheduling the phase timer afterwards.

func (s *Session) clearDeadlines() {
	s.Deadlines = Deadlines{}
}

func deadlineAt(now time.Time, d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

// StartGame shuffles the turn order and the item queue independently, resets
// all per-round fields and enters STARTING with a build deadline.
func (s *Session) StartGame(set *TierSet, now time.Time, d Durations) error {
	if s.Phase != PhaseLobby {
		return ErrGameAlreadyStarted
	}
	if len(s.Players) < 1 {
		return ErrNoPlayers
	}
	items := set.ItemIDs()
	if len(items) < 1 {
		return ErrTierSetEmpty
	}

	queue := append([]string(nil), items...)
	rand.Shuffle(len(queue), func(i, j int) { queue[i], queue[j] = queue[j], queue[i] })
	s.ItemQueue = queue

	order := make([]uuid.UUID, 0, len(s.Players))
	for _, p := range s.Players {
		order = append(order, p.ID)
	}
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	s.Phase = PhaseStarting
	s.TurnOrder = order
	s.TurnIndex = 0
	s.CurrentPlacer = uuid.Nil
	s.CurrentItem = ""
	s.PendingTier = ""
	s.Votes = make(map[uuid.UUID]VoteValue)
	s.VoteConfirmed = make(map[uuid.UUID]bool)
	s.LastResolution = nil
	s.clearDeadlines()
	s.Deadlines.BuildEndsAt = deadlineAt(now, d.Build)
	return nil
}

// SelectTierSet installs a tier set while the lobby is still open: empty tier
// lists, the drift axis, and no per-round state.
func (s *Session) SelectTierSet(set *TierSet) error {
	if s.Phase != PhaseLobby {
		return ErrInvalidPhase
	}
	tiers := make(map[string][]string, len(set.Tiers))
	for _, t := range set.Tiers {
		tiers[t.ID] = []string{}
	}
	s.TierSetID = set.ID
	s.Tiers = tiers
	s.TierOrder = set.TierIDs()
	s.CurrentItem = ""
	s.CurrentPlacer = uuid.Nil
	s.PendingTier = ""
	s.Votes = make(map[uuid.UUID]VoteValue)
	s.VoteConfirmed = make(map[uuid.UUID]bool)
	s.LastResolution = nil
	return nil
}

// popNextUnplacedItem advances the queue past anything already placed.
func (s *Session) popNextUnplacedItem() string {
	for len(s.ItemQueue) > 0 {
		next := s.ItemQueue[0]
		s.ItemQueue = s.ItemQueue[1:]
		if !s.isItemPlaced(next) {
			return next
		}
	}
	return ""
}

// BeginTurn pops the next unplaced item. With the queue drained the session
// enters FINISHED and all deadlines are cleared; otherwise the current placer
// is selected from the turn order and PLACE begins.
func (s *Session) BeginTurn(now time.Time, d Durations) {
	next := s.popNextUnplacedItem()
	if next == "" {
		s.Phase = PhaseFinished
		s.CurrentItem = ""
		s.CurrentPlacer = uuid.Nil
		s.PendingTier = ""
		s.Votes = make(map[uuid.UUID]VoteValue)
		s.VoteConfirmed = make(map[uuid.UUID]bool)
		s.clearDeadlines()
		return
	}

	s.TurnIndex = normalizeCircularIndex(s.TurnIndex, len(s.TurnOrder))
	s.CurrentPlacer = uuid.Nil
	if len(s.TurnOrder) > 0 {
		s.CurrentPlacer = s.TurnOrder[s.TurnIndex]
	}

	s.Phase = PhasePlace
	s.CurrentItem = next
	s.PendingTier = ""
	s.Votes = make(map[uuid.UUID]VoteValue)
	s.VoteConfirmed = make(map[uuid.UUID]bool)
	s.clearDeadlines()
	s.Deadlines.PlaceEndsAt = deadlineAt(now, d.Place)
}

// BeginPlace re-arms the place deadline without changing the placer. Used
// when a timed-out or departed placer forces a restart of the phase.
func (s *Session) BeginPlace(now time.Time, d Durations) {
	s.Phase = PhasePlace
	s.clearDeadlines()
	s.Deadlines.PlaceEndsAt = deadlineAt(now, d.Place)
}

// SkipPlacer advances past a placer who let the place deadline expire: the
// turn pointer moves to the next participant and PLACE restarts with a fresh
// deadline. No vote round happens for the abandoned attempt; the item stays
// current for the next placer.
func (s *Session) SkipPlacer(now time.Time, d Durations) {
	if len(s.TurnOrder) == 0 {
		s.ForceFinish()
		return
	}
	s.TurnIndex = normalizeCircularIndex(s.TurnIndex+1, len(s.TurnOrder))
	s.CurrentPlacer = s.TurnOrder[s.TurnIndex]
	s.PendingTier = ""
	s.Votes = make(map[uuid.UUID]VoteValue)
	s.VoteConfirmed = make(map[uuid.UUID]bool)
	s.BeginPlace(now, d)
}

// SubmitPlacement records the placer's tentative tier for the current item.
// The caller transitions to BeginVote on success.
func (s *Session) SubmitPlacement(placer uuid.UUID, tierID string) error {
	if s.Phase != PhasePlace {
		return ErrInvalidPhase
	}
	if s.CurrentPlacer != placer {
		return ErrNotYourTurn
	}
	if s.CurrentItem == "" {
		return ErrNoCurrentItem
	}
	if _, ok := s.Tiers[tierID]; !ok {
		return ErrUnknownTier
	}
	if s.isItemPlaced(s.CurrentItem) {
		return ErrItemAlreadyPlaced
	}
	s.PendingTier = tierID
	s.Votes = make(map[uuid.UUID]VoteValue)
	s.VoteConfirmed = make(map[uuid.UUID]bool)
	return nil
}

// BeginVote enters VOTE with a vote deadline.
func (s *Session) BeginVote(now time.Time, d Durations) {
	s.Phase = PhaseVote
	s.clearDeadlines()
	s.Deadlines.VoteEndsAt = deadlineAt(now, d.Vote)
}

// CastVote records (or re-records) a ballot. A ballot can change until it is
// confirmed.
func (s *Session) CastVote(voter uuid.UUID, v VoteValue) error {
	if !v.Valid() {
		return ErrInvalidVote
	}
	if s.Phase != PhaseVote {
		return ErrInvalidPhase
	}
	p, ok := s.Participant(voter)
	if !ok || !p.Connected {
		return ErrNotAParticipant
	}
	if voter == s.CurrentPlacer {
		return ErrPlacerCannotVote
	}
	if s.VoteConfirmed[voter] {
		return ErrVoteConfirmed
	}
	s.Votes[voter] = v
	return nil
}

// ConfirmVote locks in a ballot. Confirming without an explicit vote counts
// as a neutral vote.
func (s *Session) ConfirmVote(voter uuid.UUID) error {
	if s.Phase != PhaseVote {
		return ErrInvalidPhase
	}
	p, ok := s.Participant(voter)
	if !ok || !p.Connected {
		return ErrNotAParticipant
	}
	if voter == s.CurrentPlacer {
		return ErrPlacerCannotVote
	}
	if s.VoteConfirmed[voter] {
		return ErrVoteConfirmed
	}
	if _, voted := s.Votes[voter]; !voted {
		s.Votes[voter] = VoteAgree
	}
	s.VoteConfirmed[voter] = true
	return nil
}

// AllEligibleConfirmed reports whether every eligible voter has confirmed.
// With no eligible voters left it reports true, which lets a removal during
// VOTE resolve the round immediately.
func (s *Session) AllEligibleConfirmed() bool {
	for _, id := range s.EligibleVoterIDs() {
		if !s.VoteConfirmed[id] {
			return false
		}
	}
	return true
}

// FillMissingVotesAsNeutral backfills a neutral ballot for every eligible
// voter who never voted. Invoked on vote-deadline expiry.
func (s *Session) FillMissingVotesAsNeutral() {
	for _, id := range s.EligibleVoterIDs() {
		if _, ok := s.Votes[id]; !ok {
			s.Votes[id] = VoteAgree
		}
	}
}

// BeginResults resolves the round's tally and enters RESULTS.
//
// Policy: if nobody voted, every eligible voter is treated as neutral
// (silence is no opinion, so no drift). If some voted, only those ballots
// count and abstainers drop out of the participation denominator — a cast
// vote never gets diluted by no-shows.
func (s *Session) BeginResults(now time.Time, d Durations) error {
	if s.CurrentItem == "" {
		return ErrNoCurrentItem
	}
	if s.PendingTier == "" {
		return ErrMissingPendingTier
	}

	eligible := s.EligibleVoterIDs()
	actual := make([]uuid.UUID, 0, len(eligible))
	for _, id := range eligible {
		if _, ok := s.Votes[id]; ok {
			actual = append(actual, id)
		}
	}

	denominator := actual
	if len(actual) == 0 {
		for _, id := range eligible {
			s.Votes[id] = VoteAgree
		}
		denominator = eligible
	}

	res := Resolve(s.Votes, denominator, s.PendingTier, s.TierOrder)
	s.LastResolution = &res

	s.Phase = PhaseResults
	s.clearDeadlines()
	s.Deadlines.ResultsEndsAt = deadlineAt(now, d.Results)
	return nil
}

// BeginDrift enters DRIFT with a drift deadline. The stored resolution must
// name a destination tier that exists.
func (s *Session) BeginDrift(now time.Time, d Durations) error {
	if s.LastResolution == nil {
		return ErrMissingResolution
	}
	if s.CurrentItem == "" {
		return ErrNoCurrentItem
	}
	if s.PendingTier == "" {
		return ErrMissingPendingTier
	}
	if _, ok := s.Tiers[s.LastResolution.ToTier]; !ok {
		return ErrUnknownTier
	}
	s.Phase = PhaseDrift
	s.clearDeadlines()
	s.Deadlines.DriftEndsAt = deadlineAt(now, d.Drift)
	return nil
}

// CommitDriftResolution moves the current item into the destination tier.
// The item is removed from every tier list and appended to the destination
// in the same mutation, so it never appears in two tiers.
func (s *Session) CommitDriftResolution() error {
	if s.CurrentItem == "" {
		return ErrNoCurrentItem
	}
	if s.LastResolution == nil {
		return ErrMissingResolution
	}
	dest := s.LastResolution.ToTier
	if _, ok := s.Tiers[dest]; !ok {
		return ErrUnknownTier
	}
	for tierID, items := range s.Tiers {
		kept := items[:0]
		for _, id := range items {
			if id != s.CurrentItem {
				kept = append(kept, id)
			}
		}
		s.Tiers[tierID] = kept
	}
	s.Tiers[dest] = append(s.Tiers[dest], s.CurrentItem)
	s.PendingTier = ""
	s.LastResolution = nil
	return nil
}

// FinalizeTurn closes the round: per-round fields are cleared, the turn
// pointer advances one position, and the session passes through RESOLVE on
// its way to the caller's BeginTurn. Legal only from VOTE or DRIFT.
func (s *Session) FinalizeTurn() error {
	if s.Phase != PhaseVote && s.Phase != PhaseDrift {
		return ErrFinalizeOutsideVote
	}
	if n := len(s.TurnOrder); n > 0 {
		s.TurnIndex = normalizeCircularIndex(s.TurnIndex+1, n)
	} else {
		s.TurnIndex = 0
	}
	s.Phase = PhaseResolve
	s.CurrentItem = ""
	s.CurrentPlacer = uuid.Nil
	s.Votes = make(map[uuid.UUID]VoteValue)
	s.VoteConfirmed = make(map[uuid.UUID]bool)
	s.clearDeadlines()
	return nil
}

// ForceFinish ends the game unconditionally, clearing all round state and
// deadlines. Used when the turn order empties mid-game.
func (s *Session) ForceFinish() {
	s.Phase = PhaseFinished
	s.TurnOrder = nil
	s.TurnIndex = 0
	s.CurrentPlacer = uuid.Nil
	s.CurrentItem = ""
	s.PendingTier = ""
	s.Votes = make(map[uuid.UUID]VoteValue)
	s.VoteConfirmed = make(map[uuid.UUID]bool)
	s.clearDeadlines()
}

// RemoveFromTurnOrder takes a departing participant out of the rotation and
// repairs the turn pointer:
//
//   - a slot before the pointer shifts the pointer down one;
//   - the pointer's own slot during PLACE means the current placer left, so
//     the next placer is selected and PLACE restarts immediately;
//   - the pointer's own slot in any other phase leaves the pointer aimed at
//     the slot that becomes current after the next FinalizeTurn;
//   - an emptied order forces FINISHED.
//
// The second return value tells the caller whether the phase timer must be
// rescheduled.
func (s *Session) RemoveFromTurnOrder(pid uuid.UUID, now time.Time, d Durations) (changed, reschedule bool) {
	if s.Phase == PhaseLobby || s.Phase == PhaseFinished {
		return false, false
	}

	removedIndex := -1
	for i, id := range s.TurnOrder {
		if id == pid {
			removedIndex = i
			break
		}
	}
	if removedIndex < 0 {
		return false, false
	}

	prevLen := len(s.TurnOrder)
	next := make([]uuid.UUID, 0, prevLen-1)
	for _, id := range s.TurnOrder {
		if id != pid {
			next = append(next, id)
		}
	}
	delete(s.Votes, pid)
	delete(s.VoteConfirmed, pid)

	if len(next) == 0 {
		s.ForceFinish()
		return true, true
	}

	pointer := normalizeCircularIndex(s.TurnIndex, prevLen)
	wasPlacer := s.CurrentPlacer == pid
	advancePlaceNow := wasPlacer && s.Phase == PhasePlace

	switch {
	case removedIndex < pointer:
		pointer--
	case removedIndex == pointer:
		if wasPlacer && s.Phase != PhasePlace {
			// Keep next-turn math stable during VOTE/RESULTS/DRIFT: the slot
			// after this one becomes current on the next FinalizeTurn.
			pointer = normalizeCircularIndex(removedIndex-1, len(next))
		} else {
			pointer = removedIndex % len(next)
		}
	}

	s.TurnOrder = next
	s.TurnIndex = pointer

	if advancePlaceNow {
		s.CurrentPlacer = next[pointer]
		s.PendingTier = ""
		s.Votes = make(map[uuid.UUID]VoteValue)
		s.VoteConfirmed = make(map[uuid.UUID]bool)
		s.BeginPlace(now, d)
		return true, true
	}
	return true, false
}

// RemoveFromRoster drops a participant from the players list and from any
// live tallies. Turn-order repair is RemoveFromTurnOrder's job.
func (s *Session) RemoveFromRoster(pid uuid.UUID) bool {
	kept := make([]*Participant, 0, len(s.Players))
	removed := false
	for _, p := range s.Players {
		if p.ID == pid {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	if !removed {
		return false
	}
	s.Players = kept
	delete(s.Votes, pid)
	delete(s.VoteConfirmed, pid)
	return true
}
