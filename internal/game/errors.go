package game

import "errors"

// Input and authorization errors: surfaced to the offending connection only,
// session state unchanged.
var (
	ErrNotYourTurn         = errors.New("not your turn")
	ErrInvalidPhase        = errors.New("not allowed in the current game phase")
	ErrNotAParticipant     = errors.New("not a participant")
	ErrHostOnly            = errors.New("only the host can perform this action")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrUnknownTier         = errors.New("unknown tier")
	ErrItemAlreadyPlaced   = errors.New("item already placed")
	ErrInvalidVote         = errors.New("invalid vote value")
	ErrVoteConfirmed       = errors.New("vote already confirmed")
	ErrPlacerCannotVote    = errors.New("placer cannot vote on their own item")
	ErrNameRequired        = errors.New("name required")
	ErrNameTaken           = errors.New("name already taken")
	ErrLobbyFull           = errors.New("lobby player limit exceeded")
	ErrLobbyStarted        = errors.New("lobby already started")
	ErrGameAlreadyStarted  = errors.New("game already started")
	ErrNoPlayers           = errors.New("need at least one player")
	ErrTierSetEmpty        = errors.New("tier set has no items")
	ErrTierSetNotSelected  = errors.New("select a tier set first")
	ErrFinalizeOutsideVote = errors.New("cannot finalize outside voting")
)

// Not-found errors: surfaced to the requester, no state created.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTierSetNotFound = errors.New("unknown tier set")
)

// Invariant violations: unreachable through any legal sequence of the public
// operations. A transition returning one of these means a phase guard
// upstream is broken.
var (
	ErrNoCurrentItem      = errors.New("no current item")
	ErrMissingPendingTier = errors.New("missing pending tier")
	ErrMissingResolution  = errors.New("missing resolution")
)
