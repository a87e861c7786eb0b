package game

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/tierdrift/internal/identity"
)

// Session is one running instance of the game. It is owned by the registry;
// every other component receives a reference and mutates it in place while
// holding the session lock. Inbound actions and timer expirations are the
// only mutation sources, and each locks the session for the whole handling
// step, so readers never observe a phase going backwards.
type Session struct {
	mu sync.Mutex

	Code string

	Phase         Phase
	Players       []*Participant
	TurnOrder     []uuid.UUID
	TurnIndex     int
	CurrentPlacer uuid.UUID

	TierSetID   string
	Tiers       map[string][]string // tier id -> ordered placed item ids
	TierOrder   []string            // drift axis, best to worst
	CurrentItem string
	PendingTier string

	Votes          map[uuid.UUID]VoteValue
	VoteConfirmed  map[uuid.UUID]bool
	LastResolution *Resolution

	Deadlines Deadlines
	ItemQueue []string

	CreatedAt      time.Time
	LastActivityAt time.Time

	// Host is a display role, not a participant. The device id is pinned on
	// the first host join; a different device is refused.
	HostDeviceID string
	HostConnID   string
	DisplayConns map[string]struct{}

	Conns   *identity.Map
	Rematch RematchState
}

// NewSession returns a fresh LOBBY session with the given code.
func NewSession(code string, now time.Time) *Session {
	return &Session{
		Code:           code,
		Phase:          PhaseLobby,
		Tiers:          make(map[string][]string),
		Votes:          make(map[uuid.UUID]VoteValue),
		VoteConfirmed:  make(map[uuid.UUID]bool),
		DisplayConns:   make(map[string]struct{}),
		Conns:          identity.NewMap(),
		Rematch:        newRematchState(),
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Touch records activity so the janitor's idle TTL does not reap the session.
func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now
}

// HasConnections reports whether any live connection (participant, host or
// observer display) is attached. Deferred rematch connections do not count.
func (s *Session) HasConnections() bool {
	return len(s.DisplayConns) > 0 || s.Conns.ConnectionCount() > 0
}

// Participant returns the roster entry for the given id.
func (s *Session) Participant(id uuid.UUID) (*Participant, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// NameTaken reports whether a display name is already used, case-insensitively.
func (s *Session) NameTaken(name string) bool {
	for _, p := range s.Players {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

// EligibleVoterIDs returns the connected participants excluding the current
// placer, in roster order.
func (s *Session) EligibleVoterIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.Players))
	for _, p := range s.Players {
		if p.ID == s.CurrentPlacer || !p.Connected {
			continue
		}
		ids = append(ids, p.ID)
	}
	return ids
}

// isItemPlaced reports whether the item already sits in any tier.
func (s *Session) isItemPlaced(itemID string) bool {
	for _, items := range s.Tiers {
		for _, id := range items {
			if id == itemID {
				return true
			}
		}
	}
	return false
}

// normalizeCircularIndex wraps an index into [0, length).
func normalizeCircularIndex(index, length int) int {
	if length <= 0 {
		return 0
	}
	return ((index % length) + length) % length
}

// PublicState is the broadcastable view of a session. It is rendered under
// the session lock, in the same handling step as the mutation it reflects.
type PublicState struct {
	Code               string               `json:"code"`
	Phase              Phase                `json:"phase"`
	Players            []Participant        `json:"players"`
	TurnOrderPlayerIDs []string             `json:"turnOrderPlayerIds"`
	TurnIndex          int                  `json:"turnIndex"`
	CurrentPlacerID    string               `json:"currentTurnPlayerId,omitempty"`
	TierSetID          string               `json:"tierSetId,omitempty"`
	Tiers              map[string][]string  `json:"tiers"`
	TierOrder          []string             `json:"tierOrder"`
	CurrentItem        string               `json:"currentItem,omitempty"`
	PendingTierID      string               `json:"pendingTierId,omitempty"`
	Votes              map[string]VoteValue `json:"votes"`
	VoteConfirmed      map[string]bool      `json:"voteConfirmedByPlayerId"`
	LastResolution     *Resolution          `json:"lastResolution"`
	Timers             Deadlines            `json:"timers"`
}

// Public renders the broadcast snapshot. Caller must hold the session lock.
func (s *Session) Public() PublicState {
	players := make([]Participant, len(s.Players))
	for i, p := range s.Players {
		players[i] = *p
	}
	order := make([]string, len(s.TurnOrder))
	for i, id := range s.TurnOrder {
		order[i] = id.String()
	}
	tiers := make(map[string][]string, len(s.Tiers))
	for id, items := range s.Tiers {
		tiers[id] = append([]string(nil), items...)
	}
	votes := make(map[string]VoteValue, len(s.Votes))
	for id, v := range s.Votes {
		votes[id.String()] = v
	}
	confirmed := make(map[string]bool, len(s.VoteConfirmed))
	for id, ok := range s.VoteConfirmed {
		confirmed[id.String()] = ok
	}
	var placer string
	if s.CurrentPlacer != uuid.Nil {
		placer = s.CurrentPlacer.String()
	}
	var res *Resolution
	if s.LastResolution != nil {
		r := *s.LastResolution
		res = &r
	}
	return PublicState{
		Code:               s.Code,
		Phase:              s.Phase,
		Players:            players,
		TurnOrderPlayerIDs: order,
		TurnIndex:          s.TurnIndex,
		CurrentPlacerID:    placer,
		TierSetID:          s.TierSetID,
		Tiers:              tiers,
		TierOrder:          append([]string(nil), s.TierOrder...),
		CurrentItem:        s.CurrentItem,
		PendingTierID:      s.PendingTier,
		Votes:              votes,
		VoteConfirmed:      confirmed,
		LastResolution:     res,
		Timers:             s.Deadlines,
	}
}
