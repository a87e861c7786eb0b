package game

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is a deep copy of a session's game state at a phase start. The
// state machine never reads these; they exist for the debug rewind buffer.
type Snapshot struct {
	Phase          Phase
	Players        []Participant
	TurnOrder      []uuid.UUID
	TurnIndex      int
	CurrentPlacer  uuid.UUID
	TierSetID      string
	Tiers          map[string][]string
	TierOrder      []string
	CurrentItem    string
	PendingTier    string
	Votes          map[uuid.UUID]VoteValue
	VoteConfirmed  map[uuid.UUID]bool
	LastResolution *Resolution
	ItemQueue      []string
}

// Snapshot deep-copies the game state. Caller holds the session lock.
func (s *Session) Snapshot() Snapshot {
	players := make([]Participant, len(s.Players))
	for i, p := range s.Players {
		players[i] = *p
	}
	tiers := make(map[string][]string, len(s.Tiers))
	for id, items := range s.Tiers {
		tiers[id] = append([]string(nil), items...)
	}
	votes := make(map[uuid.UUID]VoteValue, len(s.Votes))
	for id, v := range s.Votes {
		votes[id] = v
	}
	confirmed := make(map[uuid.UUID]bool, len(s.VoteConfirmed))
	for id, ok := range s.VoteConfirmed {
		confirmed[id] = ok
	}
	var res *Resolution
	if s.LastResolution != nil {
		r := *s.LastResolution
		res = &r
	}
	return Snapshot{
		Phase:          s.Phase,
		Players:        players,
		TurnOrder:      append([]uuid.UUID(nil), s.TurnOrder...),
		TurnIndex:      s.TurnIndex,
		CurrentPlacer:  s.CurrentPlacer,
		TierSetID:      s.TierSetID,
		Tiers:          tiers,
		TierOrder:      append([]string(nil), s.TierOrder...),
		CurrentItem:    s.CurrentItem,
		PendingTier:    s.PendingTier,
		Votes:          votes,
		VoteConfirmed:  confirmed,
		LastResolution: res,
		ItemQueue:      append([]string(nil), s.ItemQueue...),
	}
}

// Restore rewinds the session to a snapshot and rebuilds the deadline so the
// restored state behaves like the start of its phase rather than instantly
// auto-advancing.
func (s *Session) Restore(snap Snapshot, now time.Time, d Durations) {
	players := make([]*Participant, len(snap.Players))
	for i := range snap.Players {
		p := snap.Players[i]
		players[i] = &p
	}
	tiers := make(map[string][]string, len(snap.Tiers))
	for id, items := range snap.Tiers {
		tiers[id] = append([]string(nil), items...)
	}
	votes := make(map[uuid.UUID]VoteValue, len(snap.Votes))
	for id, v := range snap.Votes {
		votes[id] = v
	}
	confirmed := make(map[uuid.UUID]bool, len(snap.VoteConfirmed))
	for id, ok := range snap.VoteConfirmed {
		confirmed[id] = ok
	}
	var res *Resolution
	if snap.LastResolution != nil {
		r := *snap.LastResolution
		res = &r
	}

	s.Phase = snap.Phase
	s.Players = players
	s.TurnOrder = append([]uuid.UUID(nil), snap.TurnOrder...)
	s.TurnIndex = snap.TurnIndex
	s.CurrentPlacer = snap.CurrentPlacer
	s.TierSetID = snap.TierSetID
	s.Tiers = tiers
	s.TierOrder = append([]string(nil), snap.TierOrder...)
	s.CurrentItem = snap.CurrentItem
	s.PendingTier = snap.PendingTier
	s.Votes = votes
	s.VoteConfirmed = confirmed
	s.LastResolution = res
	s.ItemQueue = append([]string(nil), snap.ItemQueue...)

	s.clearDeadlines()
	switch snap.Phase {
	case PhaseStarting:
		s.Deadlines.BuildEndsAt = deadlineAt(now, d.Build)
	case PhasePlace:
		s.Deadlines.PlaceEndsAt = deadlineAt(now, d.Place)
	case PhaseVote:
		s.Deadlines.VoteEndsAt = deadlineAt(now, d.Vote)
	case PhaseResults:
		s.Deadlines.ResultsEndsAt = deadlineAt(now, d.Results)
	case PhaseDrift:
		s.Deadlines.DriftEndsAt = deadlineAt(now, d.Drift)
	}
}
