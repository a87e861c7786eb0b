package game

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the session's current stage in the turn lifecycle.
type Phase string

const (
	PhaseLobby    Phase = "LOBBY"
	PhaseStarting Phase = "STARTING"
	PhasePlace    Phase = "PLACE"
	PhaseVote     Phase = "VOTE"
	PhaseResults  Phase = "RESULTS"
	PhaseDrift    Phase = "DRIFT"
	PhaseResolve  Phase = "RESOLVE"
	PhaseFinished Phase = "FINISHED"
)

// VoteValue is a single ballot: down, agree (neutral), or up.
type VoteValue int

const (
	VoteDown  VoteValue = -1
	VoteAgree VoteValue = 0
	VoteUp    VoteValue = 1
)

// Valid reports whether v is one of the three accepted ballot values.
func (v VoteValue) Valid() bool {
	return v == VoteDown || v == VoteAgree || v == VoteUp
}

// Participant is a game-visible player identity. The ID is permanent for the
// session's lifetime, including across a rematch when deferred and resumed.
type Participant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	JoinedAt  time.Time `json:"joinedAt"`
	Connected bool      `json:"connected"`
}

// Resolution is the resolver's output for one placement round.
type Resolution struct {
	Up       int     `json:"up"`
	Down     int     `json:"down"`
	Agree    int     `json:"agree"`
	Voters   int     `json:"voters"`
	Eligible int     `json:"eligible"`
	Score    float64 `json:"score"`
	Drift    int     `json:"driftDelta"`
	FromTier string  `json:"fromTierId"`
	ToTier   string  `json:"toTierId"`
}

// Deadlines holds the per-phase deadline slots. At most one is non-nil at any
// time; none while the session sits in LOBBY, RESOLVE or FINISHED.
type Deadlines struct {
	BuildEndsAt   *time.Time `json:"buildEndsAt"`
	PlaceEndsAt   *time.Time `json:"placeEndsAt"`
	VoteEndsAt    *time.Time `json:"voteEndsAt"`
	ResultsEndsAt *time.Time `json:"resultsEndsAt"`
	DriftEndsAt   *time.Time `json:"driftEndsAt"`
}

// Active returns the single armed deadline, or nil if none is set.
func (d Deadlines) Active() *time.Time {
	for _, t := range []*time.Time{d.BuildEndsAt, d.PlaceEndsAt, d.VoteEndsAt, d.ResultsEndsAt, d.DriftEndsAt} {
		if t != nil {
			return t
		}
	}
	return nil
}

// Durations configures how long each timed phase lasts.
type Durations struct {
	Build   time.Duration
	Place   time.Duration
	Vote    time.Duration
	Results time.Duration
	Drift   time.Duration
}

// Tier is a named bucket items can be placed into.
type Tier struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// TierItem is one rankable item of a tier set.
type TierItem struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	ImageSrc string `json:"imageSrc,omitempty" yaml:"image_src"`
}

// TierSet is a static category definition: the drift axis (ordered tiers) and
// the item catalog played through it.
type TierSet struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Tiers       []Tier     `json:"tiers" yaml:"tiers"`
	Items       []TierItem `json:"items" yaml:"items"`
}

// TierIDs returns the drift axis of the set in order.
func (ts *TierSet) TierIDs() []string {
	ids := make([]string, 0, len(ts.Tiers))
	for _, t := range ts.Tiers {
		ids = append(ids, t.ID)
	}
	return ids
}

// ItemIDs returns the ids of all items in the set, skipping blanks.
func (ts *TierSet) ItemIDs() []string {
	ids := make([]string, 0, len(ts.Items))
	for _, it := range ts.Items {
		if it.ID != "" {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// DeferredParticipant is the identity retained after a permanent leave so it
// can be restored when the same device rejoins a later rematch lobby.
type DeferredParticipant struct {
	ID       uuid.UUID
	Name     string
	Avatar   string
	JoinedAt time.Time
}

// RematchState reconciles who carries over into a host-initiated rematch.
type RematchState struct {
	// Participants who opted in before the host restarted.
	OptedIn map[uuid.UUID]struct{}
	// Set once the host has opened the new lobby.
	HostRestarted bool
	// Retained identities keyed by device id for anyone not carried over.
	DeferredByDevice map[string]DeferredParticipant
	// Reverse map for deferred connections that sit outside the broadcast
	// group but still need cleanup on disconnect.
	DeviceByDeferredConn map[string]string
}

func newRematchState() RematchState {
	return RematchState{
		OptedIn:              make(map[uuid.UUID]struct{}),
		DeferredByDevice:     make(map[string]DeferredParticipant),
		DeviceByDeferredConn: make(map[string]string),
	}
}
